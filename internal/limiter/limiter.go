// Package limiter bounds concurrency per upstream host, independent of any
// global concurrency cap.
package limiter

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Limiter runs operations under a per-key concurrency bound. Limiters for
// distinct keys are fully independent of each other. Construct one with New;
// the zero value is not usable.
type Limiter struct {
	maxPerKey int64

	mu  sync.Mutex
	sem map[string]*semaphore.Weighted
}

// New constructs a Limiter admitting up to maxPerKey concurrent operations
// for any given key.
func New(maxPerKey int64) *Limiter {
	if maxPerKey < 1 {
		maxPerKey = 1
	}
	return &Limiter{
		maxPerKey: maxPerKey,
		sem:       make(map[string]*semaphore.Weighted),
	}
}

func (l *Limiter) semFor(key string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sem[key]
	if !ok {
		s = semaphore.NewWeighted(l.maxPerKey)
		l.sem[key] = s
	}
	return s
}

// Run executes thunk under the concurrency bound for key, queuing FIFO-ish
// behind the semaphore when the bound is saturated. If ctx is cancelled while
// waiting for a slot, Run returns ctx.Err() without invoking thunk.
// Cancellation of ctx after thunk has been admitted does not abort thunk
// here — callers are expected to derive their own cancellation signal for
// the operation itself (the coordinator passes a per-system timeout context
// into the adapter call).
func Run[T any](ctx context.Context, l *Limiter, key string, thunk func() (T, error)) (T, error) {
	var zero T

	s := l.semFor(key)
	if err := s.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	defer s.Release(1)

	return thunk()
}
