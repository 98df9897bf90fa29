package port

import (
	"context"
	"time"
)

// RateLimitStore persists request attempts for sliding-window throttling.
// Reads take the window and a reference time so enforcement runs off the
// caller's clock, not the store's.
type RateLimitStore interface {
	// TrimWindow discards attempts that fell out of the window ending at
	// reference.
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	// CountAttempts reports attempts inside the window ending at reference.
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	// RecordAttempt appends one attempt stamped at the given time.
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	// OldestAttempt returns the earliest attempt still inside the window,
	// or false when none remain.
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}
