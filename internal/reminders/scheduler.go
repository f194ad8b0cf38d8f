// Package reminders sweeps scheduled interviews and fires the far-advance
// email and near-start notification exactly once per interview per stage.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"prep/internal/interview"

	"github.com/sirupsen/logrus"
)

// ErrSweepInProgress is returned when a tick finds the previous one still running.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Windows bound when each stage may fire, measured as time until start.
type Windows struct {
	EmailMin   time.Duration
	EmailMax   time.Duration
	PushMin    time.Duration
	PushMax    time.Duration
	StaleAfter time.Duration
	// Horizon limits the sweep to interviews dated within now ± Horizon.
	Horizon time.Duration
}

func DefaultWindows() Windows {
	return Windows{
		EmailMin:   25 * time.Minute,
		EmailMax:   35 * time.Minute,
		PushMin:    1 * time.Minute,
		PushMax:    3 * time.Minute,
		StaleAfter: 10 * time.Minute,
		Horizon:    48 * time.Hour,
	}
}

func (w Windows) Validate() error {
	if w.EmailMin > w.EmailMax {
		return fmt.Errorf("email window: min %s > max %s", w.EmailMin, w.EmailMax)
	}
	if w.PushMin > w.PushMax {
		return fmt.Errorf("push window: min %s > max %s", w.PushMin, w.PushMax)
	}
	if w.StaleAfter <= 0 {
		return fmt.Errorf("stale after must be positive, got %s", w.StaleAfter)
	}
	if w.Horizon < 24*time.Hour {
		return fmt.Errorf("horizon must cover at least a day, got %s", w.Horizon)
	}
	return nil
}

// SweepStats summarizes one tick.
type SweepStats struct {
	Scanned     int
	Emailed     int
	EmailFailed int
	Pushed      int
	Collected   int
	Failed      int
}

type Scheduler struct {
	Store         interview.Store
	Email         EmailSink
	Notifications *NotificationSink
	Ledger        *Ledger
	Windows       Windows
	Location      *time.Location
	Interval      time.Duration
	Log           logrus.FieldLogger
	Now           func() time.Time

	// DryRun counts what a tick would dispatch without sending email,
	// queueing notifications or touching the ledger.
	DryRun bool

	running atomic.Bool
}

// Run sweeps once immediately and then every Interval until ctx is done.
// Ticks run on this goroutine, so a slow sweep delays the next one rather
// than overlapping it.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.Log.WithError(err).Error("reminder sweep failed")
	}
}

// Tick performs one sweep. A load failure aborts only this tick; failures
// on a single interview are logged and the sweep continues.
func (s *Scheduler) Tick(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	if !s.running.CompareAndSwap(false, true) {
		s.Log.Warn("previous reminder sweep still running, skipping tick")
		return stats, ErrSweepInProgress
	}
	defer s.running.Store(false)

	now := s.now()
	ivs, err := s.Store.FindInterviewsDue(ctx, now.Add(-s.Windows.Horizon), now.Add(s.Windows.Horizon))
	if err != nil {
		return stats, fmt.Errorf("load interviews: %w", err)
	}

	for _, iv := range ivs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Scanned++
		if err := s.process(ctx, iv, now, &stats); err != nil {
			stats.Failed++
			s.Log.WithError(err).WithField("interview_id", iv.ID).Warn("reminder processing failed")
		}
	}

	s.Log.WithFields(logrus.Fields{
		"scanned":      stats.Scanned,
		"emailed":      stats.Emailed,
		"email_failed": stats.EmailFailed,
		"pushed":       stats.Pushed,
		"collected":    stats.Collected,
		"failed":       stats.Failed,
	}).Debug("reminder sweep done")
	return stats, nil
}

func (s *Scheduler) process(ctx context.Context, iv interview.Interview, now time.Time, stats *SweepStats) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if iv.Done {
		return nil
	}
	start, err := iv.StartsAt(s.Location)
	if err != nil {
		return err
	}
	delta := start.Sub(now)
	w := s.Windows

	log := s.Log.WithFields(logrus.Fields{
		"interview_id": iv.ID,
		"owner_id":     iv.OwnerID,
		"company":      iv.Company,
		"minutes_left": int(delta.Round(time.Minute).Minutes()),
	})

	if delta >= w.EmailMin && delta <= w.EmailMax {
		key := LedgerKey{OwnerID: iv.OwnerID, InterviewID: iv.ID, Stage: StageEmail}
		switch {
		case s.Ledger.Seen(key):
		case s.DryRun:
			stats.Emailed++
			log.Info("reminder email due (dry run)")
		default:
			if err := s.sendEmail(ctx, iv, delta); err != nil {
				// no ledger entry: the next tick inside the window retries
				stats.EmailFailed++
				log.WithError(err).Warn("reminder email failed")
			} else {
				s.Ledger.Mark(key, now)
				stats.Emailed++
				log.Info("reminder email sent")
			}
		}
	}

	if delta >= w.PushMin && delta <= w.PushMax {
		key := LedgerKey{OwnerID: iv.OwnerID, InterviewID: iv.ID, Stage: StagePush}
		switch {
		case s.Ledger.Seen(key):
		case s.DryRun:
			stats.Pushed++
			log.Info("reminder notification due (dry run)")
		default:
			s.Notifications.Enqueue(Notification{
				ID:         NotificationID(iv.OwnerEmail, iv.ID),
				OwnerEmail: iv.OwnerEmail,
				Interview:  iv,
				EnqueuedAt: now,
			})
			s.Ledger.Mark(key, now)
			stats.Pushed++
			log.Info("reminder notification queued")
		}
	}

	if delta < -w.StaleAfter && !s.DryRun {
		removed := s.Notifications.Remove(NotificationID(iv.OwnerEmail, iv.ID))
		forgot := s.Ledger.Forget(LedgerKey{OwnerID: iv.OwnerID, InterviewID: iv.ID, Stage: StagePush})
		if removed || forgot {
			stats.Collected++
			log.Debug("collected stale notification")
		}
	}
	return nil
}

func (s *Scheduler) sendEmail(ctx context.Context, iv interview.Interview, lead time.Duration) error {
	if iv.OwnerEmail == "" {
		return fmt.Errorf("interview %d has no owner email", iv.ID)
	}
	subject, body, err := RenderReminder(iv, lead)
	if err != nil {
		return err
	}
	return s.Email.Send(ctx, iv.OwnerEmail, subject, body)
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
