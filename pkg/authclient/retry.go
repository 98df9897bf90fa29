package authclient

import (
	"context"
	"time"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 500 * time.Millisecond
)

// backoffFunc maps a 1-based attempt number to the delay before the next
// attempt. linearBackoff(base) yields base, 2*base, 3*base, ...
type backoffFunc func(attempt int) time.Duration

func linearBackoff(base time.Duration) backoffFunc {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// attempt runs fn up to maxAttempts times, sleeping backoff(n) between
// tries. Only transient failures are retried; terminal errors and context
// cancellation return immediately. The last error is returned when every
// attempt fails.
func attempt[T any](ctx context.Context, maxAttempts int, backoff backoffFunc, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isTransient(err) || n == maxAttempts {
			break
		}

		timer := time.NewTimer(backoff(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}
