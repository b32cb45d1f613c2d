// Package retry implements exponential backoff with full jitter over a
// caller-supplied retryable predicate.
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Predicate decides whether a given error is worth retrying. Predicates MUST
// be pure.
type Predicate func(error) bool

// Policy configures the retry engine.
type Policy struct {
	MaxRetries   int
	BaseDelay    time.Duration
	Retryable    Predicate
}

// DefaultPolicy retries transient errors up to 3 additional times (4 total
// attempts) with a 200ms base delay.
func DefaultPolicy(retryable Predicate) Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		Retryable:  retryable,
	}
}

// Do executes thunk up to p.MaxRetries+1 times. After each failure, if
// p.Retryable admits the error and attempts remain, Do sleeps
// random(0, BaseDelay*2^attempt) and retries. Do returns as soon as thunk
// succeeds, the predicate rejects the error, attempts are exhausted, or ctx
// is cancelled while sleeping.
func Do[T any](ctx context.Context, p Policy, thunk func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		v, err := thunk(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == p.MaxRetries {
			break
		}
		if p.Retryable != nil && !p.Retryable(err) {
			break
		}

		delay := fullJitter(p.BaseDelay, attempt)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}

// fullJitter returns a random duration in [0, base*2^attempt).
func fullJitter(base time.Duration, attempt int) time.Duration {
	max := base * time.Duration(1<<uint(attempt))
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}
