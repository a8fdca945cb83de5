package jobrunner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/target/jobstream/config"
	"github.com/target/jobstream/internal/core"
	domainjob "github.com/target/jobstream/internal/domain/job"
	"github.com/target/jobstream/internal/observability/statsd"
)

// BatchProcessor runs one validation batch to completion. ValidationService implements it.
type BatchProcessor interface {
	Process(ctx context.Context, requestID string) error
}

// ValidationRunnerOptions configures a ValidationRunner.
type ValidationRunnerOptions struct {
	Queue     core.ValidationQueue    // Required: validation request queue
	Processor BatchProcessor          // Required: batch processor
	Config    config.ValidationConfig // Required: concurrency and claim timeout
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// ValidationRunner pops request ids off the validation queue and processes
// each batch with bounded concurrency.
type ValidationRunner struct {
	processor BatchProcessor
	logger    *slog.Logger
	pool      *Pool[string]
}

// NewValidationRunner constructs a ValidationRunner.
func NewValidationRunner(opts ValidationRunnerOptions) (*ValidationRunner, error) {
	if opts.Queue == nil {
		return nil, errors.New("ValidationQueue is required")
	}
	if opts.Processor == nil {
		return nil, errors.New("BatchProcessor is required")
	}
	cfg := opts.Config
	cfg.Sanitize()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &ValidationRunner{
		processor: opts.Processor,
		logger:    logger.With("component", "validation_runner"),
	}
	pool, err := NewPool(PoolOptions{
		Name:         domainjob.ValidationQueueKey,
		Concurrency:  cfg.Concurrency,
		ClaimTimeout: cfg.ClaimTimeout,
		Depth:        opts.Queue.QueueDepth,
		Logger:       logger,
		Metrics:      opts.Metrics,
	}, opts.Queue.Claim, r.handle)
	if err != nil {
		return nil, err
	}
	r.pool = pool
	return r, nil
}

// Run processes batches until ctx is cancelled.
func (r *ValidationRunner) Run(ctx context.Context) error {
	return r.pool.Run(ctx)
}

func (r *ValidationRunner) handle(ctx context.Context, requestID string) {
	start := time.Now()
	if err := r.processor.Process(ctx, requestID); err != nil {
		r.logger.ErrorContext(ctx, "validation batch failed", "request_id", requestID, "error", err)
		return
	}
	r.logger.InfoContext(ctx, "validation batch finished", "request_id", requestID, "duration", time.Since(start))
}
