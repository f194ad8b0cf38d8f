package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"prep/internal/interview"
)

// Memory is an in-process interview.Store for development and tests.
type Memory struct {
	mu         sync.Mutex
	nextIvID   uint64
	nextResID  uint64
	interviews map[uint64]interview.Interview
	results    map[string]interview.Result
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		interviews: make(map[uint64]interview.Interview),
		results:    make(map[string]interview.Result),
		now:        time.Now,
	}
}

func (m *Memory) CreateInterview(_ context.Context, iv *interview.Interview) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextIvID++
	iv.ID = m.nextIvID
	iv.Priority = interview.NormalizePriority(iv.Priority)
	now := m.now()
	iv.CreatedAt, iv.UpdatedAt = now, now
	m.interviews[iv.ID] = *iv
	return nil
}

func (m *Memory) FindInterviewsDue(_ context.Context, from, to time.Time) ([]interview.Interview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lo, hi := dateOnly(from), dateOnly(to)
	out := make([]interview.Interview, 0, len(m.interviews))
	for _, iv := range m.interviews {
		if iv.Done {
			continue
		}
		d := dateOnly(iv.ScheduledDate)
		if d.Before(lo) || d.After(hi) {
			continue
		}
		out = append(out, iv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) MarkInterviewDone(_ context.Context, ownerID string, interviewID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	iv, ok := m.interviews[interviewID]
	if !ok || iv.OwnerID != ownerID {
		return interview.ErrNotFound
	}
	if !iv.Done {
		iv.Done = true
		iv.UpdatedAt = m.now()
		m.interviews[interviewID] = iv
	}
	return nil
}

func (m *Memory) AttachCall(_ context.Context, ownerID string, interviewID uint64, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	iv, ok := m.interviews[interviewID]
	if !ok || iv.OwnerID != ownerID {
		return interview.ErrNotFound
	}
	iv.CallID = &callID
	iv.UpdatedAt = m.now()
	m.interviews[interviewID] = iv
	return nil
}

func (m *Memory) FindResult(_ context.Context, callID string) (*interview.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.results[callID]
	if !ok {
		return nil, interview.ErrNotFound
	}
	return &r, nil
}

func (m *Memory) FindLatestResultForOwner(_ context.Context, ownerID string) (*interview.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *interview.Result
	for _, r := range m.results {
		if r.OwnerID != ownerID {
			continue
		}
		if latest == nil || r.UpdatedAt.After(latest.UpdatedAt) {
			r := r
			latest = &r
		}
	}
	if latest == nil {
		return nil, interview.ErrNotFound
	}
	return latest, nil
}

func (m *Memory) FindPromotedResult(_ context.Context, placeholderID string) (*interview.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.promotedFrom(placeholderID); ok {
		return &r, nil
	}
	return nil, interview.ErrNotFound
}

// promotedFrom expects m.mu held.
func (m *Memory) promotedFrom(placeholderID string) (interview.Result, bool) {
	for _, r := range m.results {
		if r.WasPromotedFrom(placeholderID) {
			return r, true
		}
	}
	return interview.Result{}, false
}

func (m *Memory) CreatePlaceholder(_ context.Context, r *interview.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.results[r.CallID]; exists {
		return fmt.Errorf("call id %s already exists: %w", r.CallID, interview.ErrInvariant)
	}
	m.nextResID++
	now := m.now()
	r.ID = m.nextResID
	r.Phase = interview.PhasePlaceholder
	r.CreatedAt, r.UpdatedAt = now, now
	if r.ResultTimestamp.IsZero() {
		r.ResultTimestamp = now
	}
	m.results[r.CallID] = *r
	return nil
}

func (m *Memory) UpsertResult(_ context.Context, in interview.Result) (*interview.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cur, ok := m.results[in.CallID]
	if !ok {
		m.nextResID++
		cur = interview.Result{ID: m.nextResID, CallID: in.CallID, CreatedAt: now}
	} else if interview.OwnerConflict(cur.OwnerID, in.OwnerID) {
		return nil, fmt.Errorf("call id %s owned by %s, payload claims %s: %w", in.CallID, cur.OwnerID, in.OwnerID, interview.ErrInvariant)
	}
	interview.ApplyUpsert(&cur, in, now)
	m.results[in.CallID] = cur
	return &cur, nil
}

func (m *Memory) PromoteResult(_ context.Context, placeholderID, providerID string) (*interview.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ph, ok := m.results[placeholderID]
	if !ok {
		if r, ok := m.promotedFrom(placeholderID); ok && r.CallID != providerID {
			return nil, fmt.Errorf("placeholder %s already promoted to %s: %w", placeholderID, r.CallID, interview.ErrInvariant)
		}
		return nil, fmt.Errorf("placeholder %s: %w", placeholderID, interview.ErrNotFound)
	}

	now := m.now()
	target, exists := m.results[providerID]
	if exists {
		if interview.OwnerConflict(target.OwnerID, ph.OwnerID) {
			return nil, fmt.Errorf("provider call %s owned by %s, placeholder by %s: %w", providerID, target.OwnerID, ph.OwnerID, interview.ErrInvariant)
		}
		interview.MergePromoted(&target, ph, now)
	} else {
		target = ph
		target.CallID = providerID
		target.Phase = interview.PhaseProvider
		target.PreviousCallIDs = append(target.PreviousCallIDs, placeholderID)
		target.UpdatedAt = now
	}
	delete(m.results, placeholderID)
	m.results[providerID] = target

	for id, iv := range m.interviews {
		if iv.CallID != nil && *iv.CallID == placeholderID {
			pid := providerID
			iv.CallID = &pid
			iv.UpdatedAt = now
			m.interviews[id] = iv
		}
	}
	return &target, nil
}

func dateOnly(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

var _ interview.Store = (*Memory)(nil)
