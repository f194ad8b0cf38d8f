package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"prep/internal/interview"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMemoryFindInterviewsDue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, iv := range []interview.Interview{
		{OwnerID: "u1", Company: "past", ScheduledDate: day(2026, 3, 10), ScheduledTime: "10:00"},
		{OwnerID: "u1", Company: "today", ScheduledDate: day(2026, 3, 14), ScheduledTime: "10:00"},
		{OwnerID: "u1", Company: "tomorrow", ScheduledDate: day(2026, 3, 15), ScheduledTime: "10:00"},
		{OwnerID: "u1", Company: "done", ScheduledDate: day(2026, 3, 14), ScheduledTime: "11:00", Done: true},
	} {
		iv := iv
		if err := m.CreateInterview(ctx, &iv); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	got, err := m.FindInterviewsDue(ctx, now.Add(-24*time.Hour), now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 2 || got[0].Company != "today" || got[1].Company != "tomorrow" {
		t.Fatalf("unexpected due set: %+v", got)
	}
}

func TestMemoryCreateInterviewNormalizesPriority(t *testing.T) {
	m := NewMemory()
	iv := interview.Interview{OwnerID: "u1", Priority: "high"}
	_ = m.CreateInterview(context.Background(), &iv)
	if iv.ID == 0 || iv.Priority != interview.PriorityHigh {
		t.Fatalf("unexpected interview %+v", iv)
	}
}

func TestMemoryMarkInterviewDone(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	iv := interview.Interview{OwnerID: "u1", ScheduledDate: day(2026, 3, 14), ScheduledTime: "10:00"}
	_ = m.CreateInterview(ctx, &iv)

	if err := m.MarkInterviewDone(ctx, "u2", iv.ID); !errors.Is(err, interview.ErrNotFound) {
		t.Fatalf("other owner should see not found, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := m.MarkInterviewDone(ctx, "u1", iv.ID); err != nil {
			t.Fatalf("mark done #%d: %v", i, err)
		}
	}
	got, _ := m.FindInterviewsDue(ctx, day(2026, 3, 13), day(2026, 3, 15))
	if len(got) != 0 {
		t.Fatalf("done interview still due: %+v", got)
	}
}

func TestMemoryCreatePlaceholderDuplicate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	r := interview.Result{CallID: "pending_1_a", OwnerID: "u1"}
	if err := m.CreatePlaceholder(ctx, &r); err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.Phase != interview.PhasePlaceholder {
		t.Fatalf("expected placeholder phase, got %q", r.Phase)
	}
	dup := interview.Result{CallID: "pending_1_a"}
	if err := m.CreatePlaceholder(ctx, &dup); !errors.Is(err, interview.ErrInvariant) {
		t.Fatalf("expected invariant error, got %v", err)
	}
}

func TestMemoryUpsertFillsButKeepsOwner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.UpsertResult(ctx, interview.Result{CallID: "c", Summary: "one"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := m.UpsertResult(ctx, interview.Result{CallID: "c", OwnerID: "u1", Summary: "two"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got.OwnerID != "u1" || got.Summary != "two" {
		t.Fatalf("unexpected row %+v", got)
	}
	got, err = m.UpsertResult(ctx, interview.Result{CallID: "c", Summary: "three"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got.OwnerID != "u1" {
		t.Fatalf("owner cleared by ownerless payload: %+v", got)
	}
	if _, err := m.UpsertResult(ctx, interview.Result{CallID: "c", OwnerID: "u2"}); !errors.Is(err, interview.ErrInvariant) {
		t.Fatalf("expected invariant error, got %v", err)
	}
}

func TestMemoryLatestResultForOwner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	_, _ = m.UpsertResult(ctx, interview.Result{CallID: "a", OwnerID: "u1"})
	clock = clock.Add(time.Minute)
	_, _ = m.UpsertResult(ctx, interview.Result{CallID: "b", OwnerID: "u1"})
	clock = clock.Add(time.Minute)
	_, _ = m.UpsertResult(ctx, interview.Result{CallID: "a", OwnerID: "u1", Summary: "again"})

	got, err := m.FindLatestResultForOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.CallID != "a" {
		t.Fatalf("expected a, got %s", got.CallID)
	}
}

func TestMemoryFindPromotedResult(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ph := interview.Result{CallID: "pending_1_aa", OwnerID: "u1"}
	if err := m.CreatePlaceholder(ctx, &ph); err != nil {
		t.Fatalf("create placeholder: %v", err)
	}
	if _, err := m.FindPromotedResult(ctx, "pending_1_aa"); !errors.Is(err, interview.ErrNotFound) {
		t.Fatalf("unpromoted placeholder should not resolve, got %v", err)
	}

	if _, err := m.PromoteResult(ctx, "pending_1_aa", "prov-1"); err != nil {
		t.Fatalf("promote: %v", err)
	}
	got, err := m.FindPromotedResult(ctx, "pending_1_aa")
	if err != nil {
		t.Fatalf("find promoted: %v", err)
	}
	if got.CallID != "prov-1" || got.OwnerID != "u1" {
		t.Fatalf("unexpected row %+v", got)
	}
}
