package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/coursava/auth-service/internal/core/port"
	"github.com/coursava/auth-service/internal/repository"
)

// scanBatchSize bounds how many keys a single SCAN iteration returns during
// prefix deletion.
const scanBatchSize = 100

// SessionRepository is the Redis-backed session store. It holds refresh-token
// validity records, the access-token blacklist, and login-attempt counters;
// callers own the key namespace, the repository stays a plain KV with TTL.
type SessionRepository struct {
	client *red.Client
}

// NewSessionRepository wires a Redis client into a session repository.
func NewSessionRepository(client *red.Client) *SessionRepository {
	return &SessionRepository{client: client}
}

// SetWithTTL writes a value that expires after ttl.
func (r *SessionRepository) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Get returns the stored value or repository.ErrNotFound when absent.
func (r *SessionRepository) Get(ctx context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}

	return value, nil
}

// Delete removes a key. Absent keys delete silently.
func (r *SessionRepository) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// DeleteByPrefix removes every key under prefix using SCAN batches and
// reports how many keys were removed.
func (r *SessionRepository) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	if err := validateKey(prefix); err != nil {
		return 0, err
	}

	var (
		cursor  uint64
		removed int64
	)

	for {
		keys, next, err := r.client.Scan(ctx, cursor, prefix+"*", scanBatchSize).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan: %w", err)
		}

		if len(keys) > 0 {
			deleted, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("redis del batch: %w", err)
			}
			removed += deleted
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

// Increment atomically bumps a counter. The ttl is applied only when the key
// has no expiry yet, so the window runs from the first increment.
func (r *SessionRepository) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if ttl > 0 {
		pipe.ExpireNX(ctx, key, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}

	return incr.Val(), nil
}

// Exists reports key presence.
func (r *SessionRepository) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}

	return count > 0, nil
}

// TTL reports the remaining lifetime of a key. Absent keys and keys without
// expiry both report zero.
func (r *SessionRepository) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}

	return ttl, nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("key must not be empty")
	}
	return nil
}

var _ port.SessionStore = (*SessionRepository)(nil)
