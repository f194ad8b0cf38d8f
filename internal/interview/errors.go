package interview

import "errors"

var (
	// ErrInput marks a malformed request that retrying will not fix.
	ErrInput = errors.New("invalid input")
	// ErrNotFound covers results not yet available and unknown ids.
	ErrNotFound = errors.New("not found")
	// ErrTransient wraps durable store or delivery failures.
	ErrTransient = errors.New("transient dependency failure")
	// ErrInvariant marks an operation that would break a cross-key rule,
	// e.g. one call id claimed by two owners.
	ErrInvariant = errors.New("invariant violation")
)
