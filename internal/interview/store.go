package interview

import (
	"context"
	"time"
)

// Store is the durable side of the engine. Implementations wrap driver
// failures in ErrTransient and report missing rows as ErrNotFound.
type Store interface {
	CreateInterview(ctx context.Context, iv *Interview) error
	// FindInterviewsDue returns every non-done interview scheduled between
	// from and to (inclusive, by date).
	FindInterviewsDue(ctx context.Context, from, to time.Time) ([]Interview, error)
	MarkInterviewDone(ctx context.Context, ownerID string, interviewID uint64) error
	// AttachCall sets the active call id of an interview owned by ownerID.
	AttachCall(ctx context.Context, ownerID string, interviewID uint64, callID string) error

	FindResult(ctx context.Context, callID string) (*Result, error)
	FindLatestResultForOwner(ctx context.Context, ownerID string) (*Result, error)
	// FindPromotedResult returns the row that absorbed placeholderID when it
	// was promoted, or ErrNotFound.
	FindPromotedResult(ctx context.Context, placeholderID string) (*Result, error)
	// CreatePlaceholder inserts a placeholder row; the call id must be new.
	CreatePlaceholder(ctx context.Context, r *Result) error
	// UpsertResult creates or overwrites the row for r.CallID. An existing
	// row owned by someone else yields ErrInvariant.
	UpsertResult(ctx context.Context, r Result) (*Result, error)
	// PromoteResult rewrites placeholderID to providerID, merging into an
	// existing provider row when the webhook got there first.
	PromoteResult(ctx context.Context, placeholderID, providerID string) (*Result, error)
}

// ApplyUpsert copies the webhook-owned fields of in onto cur. Owner and
// interview linkage are only filled, never replaced.
func ApplyUpsert(cur *Result, in Result, now time.Time) {
	if cur.OwnerID == "" {
		cur.OwnerID = in.OwnerID
	}
	if cur.InterviewID == nil {
		cur.InterviewID = in.InterviewID
	}
	cur.Phase = PhaseProvider
	cur.Summary = in.Summary
	cur.Sentiment = in.Sentiment
	cur.Transcript = in.Transcript
	cur.RecordingRef = in.RecordingRef
	cur.ExtractedInfo = in.ExtractedInfo
	if len(in.RawPayload) > 0 {
		cur.RawPayload = in.RawPayload
	}
	cur.ResultTimestamp = in.ResultTimestamp
	cur.UpdatedAt = now
}

// OwnerConflict reports whether two non-empty owners disagree.
func OwnerConflict(a, b string) bool {
	return a != "" && b != "" && a != b
}

// MergePromoted folds a placeholder row into an existing provider row.
func MergePromoted(provider *Result, placeholder Result, now time.Time) {
	if provider.OwnerID == "" {
		provider.OwnerID = placeholder.OwnerID
	}
	if provider.InterviewID == nil {
		provider.InterviewID = placeholder.InterviewID
	}
	if len(provider.Session) == 0 || string(provider.Session) == "{}" {
		provider.Session = placeholder.Session
	}
	provider.PreviousCallIDs = appendUnique(provider.PreviousCallIDs, placeholder.PreviousCallIDs...)
	provider.PreviousCallIDs = appendUnique(provider.PreviousCallIDs, placeholder.CallID)
	provider.Phase = PhaseProvider
	provider.UpdatedAt = now
}

func appendUnique(dst []string, vals ...string) []string {
	for _, v := range vals {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

// WasPromotedFrom reports whether r absorbed the given placeholder.
func (r Result) WasPromotedFrom(placeholderID string) bool {
	for _, p := range r.PreviousCallIDs {
		if p == placeholderID {
			return true
		}
	}
	return false
}
