// Package breaker implements a per-system circuit breaker gating fan-out
// tasks in the search coordinator.
package breaker

import (
	"sync"
	"time"
)

// State is one of the three breaker states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

const (
	defaultFailureThreshold = 5
	defaultResetTimeout     = 60 * time.Second
)

// Breaker is a single per-system circuit breaker. The zero value is not
// usable; construct with New.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	resetTimeout      time.Duration

	state               State
	consecutiveFailures int
	lastFailureTime     time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold overrides the default consecutive-failure threshold
// (5) that trips the breaker from closed to open.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) { b.failureThreshold = n }
}

// WithResetTimeout overrides the default reset window (60s) after which an
// open breaker admits a single half-open probe.
func WithResetTimeout(d time.Duration) Option {
	return func(b *Breaker) { b.resetTimeout = d }
}

// New constructs a Breaker starting in the closed state.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		failureThreshold: defaultFailureThreshold,
		resetTimeout:      defaultResetTimeout,
		state:             Closed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IsOpen reports whether the breaker currently rejects calls. If the breaker
// is open and the reset window has elapsed since the last failure, this call
// transitions the breaker to half_open as a side effect and returns false,
// admitting exactly one probe. Subsequent calls return true until that probe
// reports a success or failure.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		// A probe is already in flight; reject until RecordSuccess or
		// RecordFailure resolves it.
		return true
	case Open:
		if time.Since(b.lastFailureTime) >= b.resetTimeout {
			b.state = HalfOpen
			return false
		}
		return true
	default:
		return false
	}
}

// RecordSuccess transitions the breaker to closed and resets the failure
// counter, regardless of prior state.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.consecutiveFailures = 0
}

// RecordFailure registers a failure. In closed state the failure counter is
// incremented and the breaker trips to open once the threshold is reached.
// In half_open state any failure immediately reopens the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.state = Open
		b.lastFailureTime = time.Now()
	case Closed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.state = Open
			b.lastFailureTime = time.Now()
		}
	case Open:
		// Already open; refresh the failure time so the reset window
		// restarts from the most recent observed failure.
		b.lastFailureTime = time.Now()
	}
}

// State returns the breaker's current state without performing the
// time-based half-open transition that IsOpen performs.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current failure streak.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}
