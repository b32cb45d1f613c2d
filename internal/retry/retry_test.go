package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errTransient = errors.New("transient")
var errAuth = errors.New("auth")

func transientRetryable(err error) bool { return errors.Is(err, errTransient) }

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), DefaultPolicy(transientRetryable), func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	p := Policy{MaxRetries: 3, BaseDelay: time.Millisecond, Retryable: transientRetryable}
	v, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errTransient
		}
		return 7, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 3, calls)
}

func TestDoDoesNotRetryRejectedError(t *testing.T) {
	calls := 0
	p := Policy{MaxRetries: 3, BaseDelay: time.Millisecond, Retryable: transientRetryable}
	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 0, errAuth
	})
	assert.ErrorIs(t, err, errAuth)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsRetries(t *testing.T) {
	calls := 0
	p := Policy{MaxRetries: 2, BaseDelay: time.Millisecond, Retryable: transientRetryable}
	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 0, errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestDoAbortsOnContextCancel(t *testing.T) {
	p := Policy{MaxRetries: 5, BaseDelay: 50 * time.Millisecond, Retryable: transientRetryable}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, p, func(ctx context.Context) (int, error) {
		return 0, errTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
}
