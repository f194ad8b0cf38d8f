package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prep/internal/interview"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres is the gorm-backed interview.Store.
type Postgres struct {
	DB *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{DB: db}
}

func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, interview.ErrTransient, err)
}

func (s *Postgres) CreateInterview(ctx context.Context, iv *interview.Interview) error {
	iv.Priority = interview.NormalizePriority(iv.Priority)
	if err := s.DB.WithContext(ctx).Create(iv).Error; err != nil {
		return transient("create interview", err)
	}
	return nil
}

func (s *Postgres) FindInterviewsDue(ctx context.Context, from, to time.Time) ([]interview.Interview, error) {
	var rows []interview.Interview
	err := s.DB.WithContext(ctx).
		Where("done = false AND scheduled_date BETWEEN ? AND ?", dateOnly(from), dateOnly(to)).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, transient("find interviews due", err)
	}
	return rows, nil
}

func (s *Postgres) MarkInterviewDone(ctx context.Context, ownerID string, interviewID uint64) error {
	res := s.DB.WithContext(ctx).Model(&interview.Interview{}).
		Where("id = ? AND owner_id = ?", interviewID, ownerID).
		Updates(map[string]any{
			"done":       true,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return transient("mark interview done", res.Error)
	}
	if res.RowsAffected == 0 {
		return interview.ErrNotFound
	}
	return nil
}

func (s *Postgres) AttachCall(ctx context.Context, ownerID string, interviewID uint64, callID string) error {
	res := s.DB.WithContext(ctx).Model(&interview.Interview{}).
		Where("id = ? AND owner_id = ?", interviewID, ownerID).
		Updates(map[string]any{
			"call_id":    callID,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return transient("attach call", res.Error)
	}
	if res.RowsAffected == 0 {
		return interview.ErrNotFound
	}
	return nil
}

func (s *Postgres) FindResult(ctx context.Context, callID string) (*interview.Result, error) {
	var r interview.Result
	if err := s.DB.WithContext(ctx).Where("call_id = ?", callID).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, interview.ErrNotFound
		}
		return nil, transient("find result", err)
	}
	return &r, nil
}

func (s *Postgres) FindLatestResultForOwner(ctx context.Context, ownerID string) (*interview.Result, error) {
	var r interview.Result
	if err := s.DB.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at desc").
		First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, interview.ErrNotFound
		}
		return nil, transient("find latest result", err)
	}
	return &r, nil
}

func (s *Postgres) FindPromotedResult(ctx context.Context, placeholderID string) (*interview.Result, error) {
	var r interview.Result
	if err := s.DB.WithContext(ctx).
		Where("? = any(previous_call_ids)", placeholderID).
		First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, interview.ErrNotFound
		}
		return nil, transient("find promoted result", err)
	}
	return &r, nil
}

func (s *Postgres) CreatePlaceholder(ctx context.Context, r *interview.Result) error {
	now := time.Now()
	r.Phase = interview.PhasePlaceholder
	r.CreatedAt, r.UpdatedAt = now, now
	if r.ResultTimestamp.IsZero() {
		r.ResultTimestamp = now
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "call_id"}}, DoNothing: true}).
		Create(r)
	if res.Error != nil {
		return transient("create placeholder", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("call id %s already exists: %w", r.CallID, interview.ErrInvariant)
	}
	return nil
}

// UpsertResult inserts the row if absent, then locks it and overwrites the
// webhook fields inside one transaction.
func (s *Postgres) UpsertResult(ctx context.Context, in interview.Result) (*interview.Result, error) {
	var out interview.Result
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		seed := interview.Result{
			CallID:          in.CallID,
			OwnerID:         in.OwnerID,
			Phase:           interview.PhaseProvider,
			ResultTimestamp: now,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "call_id"}}, DoNothing: true}).
			Create(&seed).Error; err != nil {
			return err
		}

		// fetch FOR UPDATE
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("call_id = ?", in.CallID).
			First(&out).Error; err != nil {
			return err
		}
		if interview.OwnerConflict(out.OwnerID, in.OwnerID) {
			return fmt.Errorf("call id %s owned by %s, payload claims %s: %w", in.CallID, out.OwnerID, in.OwnerID, interview.ErrInvariant)
		}

		interview.ApplyUpsert(&out, in, now)
		return tx.Save(&out).Error
	})
	if err != nil {
		if errors.Is(err, interview.ErrInvariant) {
			return nil, err
		}
		return nil, transient("upsert result", err)
	}
	return &out, nil
}

func (s *Postgres) PromoteResult(ctx context.Context, placeholderID, providerID string) (*interview.Result, error) {
	var out interview.Result
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ph interview.Result
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("call_id = ?", placeholderID).
			First(&ph).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			var prior interview.Result
			err := tx.Where("? = any(previous_call_ids)", placeholderID).First(&prior).Error
			if err == nil && prior.CallID != providerID {
				return fmt.Errorf("placeholder %s already promoted to %s: %w", placeholderID, prior.CallID, interview.ErrInvariant)
			}
			return fmt.Errorf("placeholder %s: %w", placeholderID, interview.ErrNotFound)
		}
		if err != nil {
			return err
		}

		now := time.Now()
		var target interview.Result
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("call_id = ?", providerID).
			First(&target).Error
		switch {
		case err == nil:
			if interview.OwnerConflict(target.OwnerID, ph.OwnerID) {
				return fmt.Errorf("provider call %s owned by %s, placeholder by %s: %w", providerID, target.OwnerID, ph.OwnerID, interview.ErrInvariant)
			}
			interview.MergePromoted(&target, ph, now)
			if err := tx.Delete(&ph).Error; err != nil {
				return err
			}
			if err := tx.Save(&target).Error; err != nil {
				return err
			}
			out = target
		case errors.Is(err, gorm.ErrRecordNotFound):
			ph.PreviousCallIDs = append(ph.PreviousCallIDs, placeholderID)
			ph.CallID = providerID
			ph.Phase = interview.PhaseProvider
			ph.UpdatedAt = now
			if err := tx.Save(&ph).Error; err != nil {
				return err
			}
			out = ph
		default:
			return err
		}

		return tx.Model(&interview.Interview{}).
			Where("call_id = ?", placeholderID).
			Updates(map[string]any{
				"call_id":    providerID,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		if errors.Is(err, interview.ErrNotFound) || errors.Is(err, interview.ErrInvariant) {
			return nil, err
		}
		return nil, transient("promote result", err)
	}
	return &out, nil
}

var _ interview.Store = (*Postgres)(nil)
