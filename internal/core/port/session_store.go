package port

import (
	"context"
	"time"
)

// SessionStore is a key-value store with per-key TTL backing refresh-token
// validity records, the access-token blacklist, and login-attempt counters.
// Every operation is atomic per key; no invariant spans multiple keys.
type SessionStore interface {
	// SetWithTTL writes a value that expires after ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value for key; absent keys yield a not-found error.
	Get(ctx context.Context, key string) (string, error)
	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// DeleteByPrefix removes every key under prefix and reports how many went.
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
	// Increment atomically bumps a counter. The ttl applies only when the key
	// had no expiry yet, so the window starts at the first increment.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Exists reports key presence without reading the value.
	Exists(ctx context.Context, key string) (bool, error)
	// TTL reports the remaining lifetime of a key; zero when the key is absent
	// or carries no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)
}
