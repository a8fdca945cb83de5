// Package reaper provides adapters for running the lease reaper.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/jobstream/config"
	"github.com/target/jobstream/internal/core"
	"github.com/target/jobstream/internal/observability/statsd"
	"github.com/target/jobstream/internal/service"
)

// Runner provides a simple adapter to run the reaper loop.
// It constructs the reaper service and runs the reclaim loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Store    service.ReclaimStore
	Config   config.ReaperConfig
	Notifier core.FailureNotifier
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Store == nil {
		return nil, errors.New("job store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Store:    opts.Store,
		Config:   opts.Config,
		Notifier: opts.Notifier,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: reaper, logger: opts.Logger}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}

// ReclaimOnce performs a single sweep, used by the admin CLI.
func (r *Runner) ReclaimOnce(ctx context.Context) (int64, error) {
	return r.reaper.Reclaim(ctx)
}
