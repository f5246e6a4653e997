package invite

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRequest is returned by SendInvites when a whole-batch
// precondition is violated (no recipients, or missing game/time). It is
// raised before any side effect; per-recipient failures are never raised,
// they are collected as outcomes.
var ErrInvalidRequest = errors.New("invalid invite request")

// ValidationError reports a missing required field in an email payload.
// It is never retried.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// RateLimitedError reports that the recipient's sending window is full.
// The dispatcher does not retry it; the caller may try again after RetryAfter.
type RateLimitedError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Key, e.RetryAfter.Round(time.Second))
}

// DeliveryError reports a transport failure that survived the retry budget.
// It wraps the last underlying transport error.
type DeliveryError struct {
	Attempts int
	Last     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *DeliveryError) Unwrap() error {
	return e.Last
}
