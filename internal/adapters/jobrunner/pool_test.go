package jobrunner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/jobstream/internal/domain/model"
)

// chanQueue is an in-memory ClaimFunc source.
type chanQueue struct {
	items  chan int
	claims atomic.Int64
}

func newChanQueue(n int) *chanQueue {
	q := &chanQueue{items: make(chan int, n)}
	for i := range n {
		q.items <- i
	}
	return q
}

func (q *chanQueue) claim(ctx context.Context, timeout time.Duration) (int, error) {
	q.claims.Add(1)
	select {
	case v := <-q.items:
		return v, nil
	case <-time.After(timeout):
		return 0, model.ErrQueueEmpty
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	q := newChanQueue(10)
	var (
		running atomic.Int64
		peak    atomic.Int64
		handled atomic.Int64
	)
	release := make(chan struct{})

	pool, err := NewPool(PoolOptions{Name: "test", Concurrency: 3, ClaimTimeout: 20 * time.Millisecond},
		q.claim,
		func(_ context.Context, _ int) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
			handled.Add(1)
		})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	require.Eventually(t, func() bool { return pool.InFlight() == 3 }, 2*time.Second, 5*time.Millisecond)
	// Saturated: the remaining items stay queued.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, q.items, 7)

	close(release)
	require.Eventually(t, func() bool { return handled.Load() == 10 }, 2*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, peak.Load(), int64(3))

	cancel()
	require.NoError(t, <-done)
}

func TestPool_WaitsForInFlightOnShutdown(t *testing.T) {
	q := newChanQueue(1)
	started := make(chan struct{})
	var finished atomic.Bool

	pool, err := NewPool(PoolOptions{Name: "test", ClaimTimeout: 20 * time.Millisecond},
		q.claim,
		func(ctx context.Context, _ int) {
			close(started)
			time.Sleep(100 * time.Millisecond)
			// Shutdown does not cancel the handler context.
			if ctx.Err() == nil {
				finished.Store(true)
			}
		})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	<-started
	cancel()
	require.NoError(t, <-done)
	assert.True(t, finished.Load())
}

func TestPool_RecoversHandlerPanic(t *testing.T) {
	q := newChanQueue(2)
	var handled atomic.Int64

	pool, err := NewPool(PoolOptions{Name: "test", ClaimTimeout: 20 * time.Millisecond},
		q.claim,
		func(_ context.Context, item int) {
			handled.Add(1)
			if item == 0 {
				panic("bad item")
			}
		})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	require.Eventually(t, func() bool { return handled.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestPool_BacksOffOnClaimError(t *testing.T) {
	var (
		mu     sync.Mutex
		claims int
	)
	claim := func(context.Context, time.Duration) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		claims++
		return 0, errors.New("connection refused")
	}
	pool, err := NewPool(PoolOptions{Name: "test", ErrorBackoff: time.Hour}, claim, func(context.Context, int) {})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, pool.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, claims)
}

func TestNewPool_Validation(t *testing.T) {
	_, err := NewPool[int](PoolOptions{}, nil, nil)
	require.Error(t, err)
	_, err = NewPool[int](PoolOptions{Name: "q"}, nil, func(context.Context, int) {})
	require.Error(t, err)
}
