package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/jobstream/internal/domain/model"
	"github.com/target/jobstream/internal/observability/metrics"
	"github.com/target/jobstream/internal/observability/statsd"
	"golang.org/x/sync/semaphore"
)

// ClaimFunc pops the next work item, blocking up to timeout. It returns
// model.ErrQueueEmpty when nothing arrived.
type ClaimFunc[T any] func(ctx context.Context, timeout time.Duration) (T, error)

// HandleFunc processes one claimed item. It owns all error handling for the item.
type HandleFunc[T any] func(ctx context.Context, item T)

// PoolOptions configures a Pool.
type PoolOptions struct {
	Name         string        // Required: queue label for logs and metrics
	Concurrency  int           // Optional: items handled at once, defaults to 1
	ClaimTimeout time.Duration // Optional: blocking claim timeout, defaults to 5s
	ErrorBackoff time.Duration // Optional: pause after a failed claim, defaults to 5s

	// Depth optionally reports the queue backlog; it is sampled every DepthInterval.
	Depth         func(ctx context.Context) (int64, error)
	DepthInterval time.Duration

	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Pool claims items from a queue and handles them with bounded concurrency.
// A slot is acquired before claiming, so a saturated pool leaves items in
// the queue for other processes instead of holding them in memory.
type Pool[T any] struct {
	opts     PoolOptions
	claim    ClaimFunc[T]
	handle   HandleFunc[T]
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	logger   *slog.Logger
}

// NewPool constructs a Pool.
func NewPool[T any](opts PoolOptions, claim ClaimFunc[T], handle HandleFunc[T]) (*Pool[T], error) {
	if opts.Name == "" {
		return nil, errors.New("pool name is required")
	}
	if claim == nil || handle == nil {
		return nil, errors.New("claim and handle functions are required")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.ClaimTimeout <= 0 {
		opts.ClaimTimeout = 5 * time.Second
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = 5 * time.Second
	}
	if opts.DepthInterval <= 0 {
		opts.DepthInterval = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool[T]{
		opts:   opts,
		claim:  claim,
		handle: handle,
		sem:    semaphore.NewWeighted(int64(opts.Concurrency)),
		logger: logger.With("component", "pool", "queue", opts.Name),
	}, nil
}

// InFlight returns the number of items currently being handled.
func (p *Pool[T]) InFlight() int {
	return int(p.inFlight.Load())
}

// Run claims and handles items until ctx is cancelled, then waits for
// in-flight handlers. Handlers run on a context detached from ctx so
// shutdown never interrupts a job halfway.
func (p *Pool[T]) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "starting pool",
		"concurrency", p.opts.Concurrency,
		"claim_timeout", p.opts.ClaimTimeout,
	)

	var wg sync.WaitGroup
	if p.opts.Depth != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.sampleDepth(ctx)
		}()
	}

	handleCtx := context.WithoutCancel(ctx)
	for {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			break
		}
		item, err := p.claim(ctx, p.opts.ClaimTimeout)
		if err != nil {
			p.sem.Release(1)
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, model.ErrQueueEmpty) {
				continue
			}
			p.logger.ErrorContext(ctx, "claim failed", "error", err)
			if !sleepCtx(ctx, p.opts.ErrorBackoff) {
				break
			}
			continue
		}

		n := p.inFlight.Add(1)
		metrics.EmitInFlight(p.opts.Metrics, p.opts.Name, int(n))
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer p.sem.Release(1)
			defer func() {
				n := p.inFlight.Add(-1)
				metrics.EmitInFlight(p.opts.Metrics, p.opts.Name, int(n))
			}()
			p.safeHandle(handleCtx, item)
		}()
	}

	p.logger.InfoContext(ctx, "pool stopping, waiting for in-flight items", "in_flight", p.InFlight())
	wg.Wait()
	return nil
}

// safeHandle keeps one panicking item from taking the whole pool down.
func (p *Pool[T]) safeHandle(ctx context.Context, item T) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "handler panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	p.handle(ctx, item)
}

func (p *Pool[T]) sampleDepth(ctx context.Context) {
	ticker := time.NewTicker(p.opts.DepthInterval)
	defer ticker.Stop()
	for {
		depth, err := p.opts.Depth(ctx)
		if err == nil {
			metrics.EmitQueueDepth(p.opts.Metrics, p.opts.Name, depth)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
