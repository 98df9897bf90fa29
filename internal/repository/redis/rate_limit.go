package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	red "github.com/redis/go-redis/v9"

	"github.com/coursava/auth-service/internal/core/port"
)

// SlidingWindowConfig tunes the attempt store. KeyPrefix namespaces the
// per-identifier sorted sets; TTL caps how long an idle set survives and
// should exceed the enforcement window so entries leave by trimming, not
// eviction.
type SlidingWindowConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// RateLimitRepository tracks request attempts in Redis sorted sets, one set
// per identifier, scored by attempt time in nanoseconds. Window math runs
// against a caller-supplied reference time, never the wall clock.
type RateLimitRepository struct {
	client *red.Client
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository wires a Redis client into an attempt store.
func NewRateLimitRepository(client *red.Client, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// RecordAttempt appends one attempt at the given time. Members carry a random
// suffix so attempts landing on the same nanosecond stay distinct entries
// instead of overwriting each other.
func (r *RateLimitRepository) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	if err := validateKey(identifier); err != nil {
		return err
	}

	nanos := at.UnixNano()
	entry := red.Z{
		Score:  float64(nanos),
		Member: strconv.FormatInt(nanos, 10) + ":" + uuid.NewString(),
	}

	key := r.attemptKey(identifier)
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, key, entry)
	if r.cfg.TTL > 0 {
		pipe.Expire(ctx, key, r.cfg.TTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis zadd: %w", err)
	}

	return nil
}

// CountAttempts reports how many attempts fall inside the window ending at
// the reference time.
func (r *RateLimitRepository) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	if err := validateSpan(identifier, window); err != nil {
		return 0, err
	}

	floor, ceil := spanBounds(window, reference)
	count, err := r.client.ZCount(ctx, r.attemptKey(identifier), floor, ceil).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcount: %w", err)
	}

	return int(count), nil
}

// TrimWindow drops attempts that have slid out of the window ending at the
// reference time.
func (r *RateLimitRepository) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	if err := validateSpan(identifier, window); err != nil {
		return err
	}

	floor, _ := spanBounds(window, reference)
	if err := r.client.ZRemRangeByScore(ctx, r.attemptKey(identifier), "-inf", floor).Err(); err != nil {
		return fmt.Errorf("redis zremrangebyscore: %w", err)
	}

	return nil
}

// OldestAttempt returns the earliest attempt still inside the window, used to
// compute when a blocked caller may retry.
func (r *RateLimitRepository) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if err := validateSpan(identifier, window); err != nil {
		return time.Time{}, false, err
	}

	floor, ceil := spanBounds(window, reference)
	members, err := r.client.ZRangeByScore(ctx, r.attemptKey(identifier), &red.ZRangeBy{
		Min:   floor,
		Max:   ceil,
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis zrangebyscore: %w", err)
	}
	if len(members) == 0 {
		return time.Time{}, false, nil
	}

	raw, _, _ := strings.Cut(members[0], ":")
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse attempt member %q: %w", members[0], err)
	}

	return time.Unix(0, nanos), true, nil
}

func (r *RateLimitRepository) attemptKey(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return r.cfg.KeyPrefix + ":" + identifier
}

func validateSpan(identifier string, window time.Duration) error {
	if err := validateKey(identifier); err != nil {
		return err
	}
	if window <= 0 {
		return errors.New("window must be positive")
	}
	return nil
}

// spanBounds renders the inclusive score range for the window ending at
// reference. Scores are integer nanoseconds, so plain decimal strings are
// exact.
func spanBounds(window time.Duration, reference time.Time) (floor, ceil string) {
	floor = strconv.FormatInt(reference.Add(-window).UnixNano(), 10)
	ceil = strconv.FormatInt(reference.UnixNano(), 10)
	return floor, ceil
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
