package limiter

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunBoundsConcurrencyPerKey(t *testing.T) {
	l := New(2)

	var inFlight int32
	var maxSeen int32

	run := func() (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxSeen)
			if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return 0, nil
	}

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			_, _ = Run(context.Background(), l, "host-a", run)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}

	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxSeen)), 2)
}

func TestRunIndependentPerKey(t *testing.T) {
	l := New(1)

	var aRunning, bRunning int32
	block := make(chan struct{})

	go func() {
		_, _ = Run(context.Background(), l, "host-a", func() (int, error) {
			atomic.AddInt32(&aRunning, 1)
			<-block
			return 0, nil
		})
	}()

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&aRunning))

	_, _ = Run(context.Background(), l, "host-b", func() (int, error) {
		atomic.AddInt32(&bRunning, 1)
		return 0, nil
	})
	assert.Equal(t, int32(1), atomic.LoadInt32(&bRunning))

	close(block)
}

func TestRunAbortsOnContextCancel(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())

	block := make(chan struct{})
	go func() {
		_, _ = Run(context.Background(), l, "host-a", func() (int, error) {
			<-block
			return 0, nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	cancel()
	_, err := Run(ctx, l, "host-a", func() (int, error) { return 0, nil })
	assert.ErrorIs(t, err, context.Canceled)

	close(block)
}
