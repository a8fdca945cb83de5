// Package jobrunner claims queued work and drives it through executors with bounded concurrency.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/target/jobstream/config"
	"github.com/target/jobstream/internal/core"
	"github.com/target/jobstream/internal/data"
	domainjob "github.com/target/jobstream/internal/domain/job"
	"github.com/target/jobstream/internal/domain/model"
	obserrors "github.com/target/jobstream/internal/observability/errors"
	"github.com/target/jobstream/internal/observability/metrics"
	"github.com/target/jobstream/internal/observability/notify"
	"github.com/target/jobstream/internal/observability/statsd"
	"github.com/target/jobstream/internal/service"
)

var errLeaseLost = errors.New(service.LeaseExpiredMessage)

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Store    core.JobStore           // Required: queue, state, stream and lease store
	Registry *Registry               // Required: job type strategies
	Config   config.DispatcherConfig // Required: concurrency, timeouts and lease
	WorkerID string                  // Optional: defaults to "<hostname>-<random>"
	Notifier core.FailureNotifier    // Optional: alerted when a job ends in error
	Logger   *slog.Logger            // Optional: structured logger
	Metrics  statsd.Sink             // Optional: metrics sink
}

// Dispatcher claims envelopes from the shared queue and runs each through the
// strategy registered for its type.
type Dispatcher struct {
	store    core.JobStore
	registry *Registry
	cfg      config.DispatcherConfig
	lease    domainjob.LeaseDecision
	workerID string
	notifier core.FailureNotifier
	logger   *slog.Logger
	metrics  statsd.Sink
	pool     *Pool[model.Envelope]
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("Registry is required")
	}
	cfg := opts.Config
	cfg.Sanitize()

	policy, err := domainjob.NewLeasePolicy(cfg.JobLease)
	if err != nil {
		return nil, fmt.Errorf("lease policy: %w", err)
	}
	workerID := opts.WorkerID
	if workerID == "" {
		workerID = defaultWorkerID()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		store:    opts.Store,
		registry: opts.Registry,
		cfg:      cfg,
		lease:    policy.Resolve(0),
		workerID: workerID,
		notifier: opts.Notifier,
		logger:   logger.With("component", "dispatcher", "worker_id", workerID),
		metrics:  opts.Metrics,
	}
	d.pool, err = NewPool(PoolOptions{
		Name:         domainjob.DefaultQueueKey,
		Concurrency:  cfg.Concurrency,
		ClaimTimeout: cfg.ClaimTimeout,
		ErrorBackoff: cfg.ErrorBackoff,
		Depth:        opts.Store.QueueDepth,
		Logger:       logger,
		Metrics:      opts.Metrics,
	}, d.claim, d.Process)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// WorkerID returns the identity written into claimed job states.
func (d *Dispatcher) WorkerID() string {
	return d.workerID
}

// Run claims and processes jobs until ctx is cancelled, then waits for in-flight jobs.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.InfoContext(ctx, "starting dispatcher",
		"job_types", d.registry.Types(),
		"concurrency", d.cfg.Concurrency,
		"lease", d.lease.Duration,
	)
	return d.pool.Run(ctx)
}

func (d *Dispatcher) claim(ctx context.Context, timeout time.Duration) (model.Envelope, error) {
	env, err := d.store.Claim(ctx, timeout)
	if errors.Is(err, data.ErrMalformedEnvelope) {
		// Nothing can ever process the entry; drop it and keep polling.
		d.logger.ErrorContext(ctx, "dropping malformed queue entry", "error", err)
		return model.Envelope{}, model.ErrQueueEmpty
	}
	return env, err
}

// Process runs one claimed envelope to a terminal state. Store and executor
// errors are handled here so one failing job never stops the dispatcher.
func (d *Dispatcher) Process(ctx context.Context, env model.Envelope) {
	ref := env.Ref()
	log := d.logger.With("job_id", env.JobID, "job_type", env.Type)
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitJobLifecycle(d.metrics, metrics.JobMetric{
			JobType:    string(env.Type),
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	strategy, ok := d.registry.Lookup(env.Type)
	if !ok {
		err := fmt.Errorf("%w: no executor registered for %q", model.ErrUnknownJobType, env.Type)
		d.fail(ctx, log, env, Strategy{}, err)
		emit(metrics.TransitionFailed, metrics.ResultError, err)
		return
	}

	// The lease is registered before the state flips so a crash in between
	// still leaves a claim for the reaper to find.
	if err := d.store.AcquireLease(ctx, ref, d.workerID, d.lease.Duration); err != nil {
		log.WarnContext(ctx, "failed to acquire lease, running unprotected", "error", err)
	}
	defer func() {
		if err := d.store.ReleaseLease(context.WithoutCancel(ctx), ref, d.workerID); err != nil {
			log.WarnContext(ctx, "failed to release lease", "error", err)
		}
	}()

	if _, err := d.store.Transition(ctx, ref, model.StatusUpdate{
		Status:   model.JobStatusProcessing,
		WorkerID: d.workerID,
	}); err != nil {
		// Terminal or expired jobs are not run again.
		log.WarnContext(ctx, "cannot start job", "error", err)
		emit(metrics.TransitionClaimed, metrics.ResultError, err)
		return
	}
	emit(metrics.TransitionClaimed, metrics.ResultSuccess, nil)

	text, execErr := d.execute(ctx, log, env, strategy)
	if execErr != nil {
		d.fail(ctx, log, env, strategy, execErr)
		emit(metrics.TransitionFailed, metrics.ResultError, execErr)
		return
	}

	if _, err := d.store.Transition(ctx, ref, model.StatusUpdate{
		Status:   model.JobStatusDone,
		WorkerID: d.workerID,
	}); err != nil {
		log.ErrorContext(ctx, "failed to mark job done", "error", err)
		emit(metrics.TransitionCompleted, metrics.ResultError, err)
		return
	}
	emit(metrics.TransitionCompleted, metrics.ResultSuccess, nil)

	if strategy.Persist != nil {
		if err := strategy.Persist(ctx, env, text); err != nil {
			log.ErrorContext(ctx, "persistence callback failed", "error", err)
		}
	}
	log.InfoContext(ctx, "job finished", "duration", time.Since(start))
}

// execute drives the executor, appending each chunk as it arrives, and
// returns the concatenated text.
func (d *Dispatcher) execute(
	ctx context.Context,
	log *slog.Logger,
	env model.Envelope,
	strategy Strategy,
) (string, error) {
	ref := env.Ref()
	execCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if d.cfg.JobTimeout > 0 {
		var stop context.CancelFunc
		execCtx, stop = context.WithTimeoutCause(execCtx, d.cfg.JobTimeout,
			fmt.Errorf("job timed out after %s: %w", d.cfg.JobTimeout, context.DeadlineExceeded))
		defer stop()
	}

	hbDone := make(chan struct{})
	hbCtx, stopHB := context.WithCancel(ctx)
	go func() {
		defer close(hbDone)
		d.heartbeat(hbCtx, log, ref, cancel)
	}()
	defer func() {
		stopHB()
		<-hbDone
	}()

	var (
		text   strings.Builder
		index  int64
		fenced error
	)
	emitChunk := func(chunk string) error {
		if fenced != nil {
			return fenced
		}
		if chunk == "" {
			return nil
		}
		if err := d.store.AppendChunk(execCtx, ref, d.workerID, index, chunk); err != nil {
			err = fmt.Errorf("append chunk %d: %w", index, err)
			if errors.Is(err, model.ErrJobFinished) || errors.Is(err, model.ErrNotJobOwner) {
				// The job was settled without us; stop producing output for it.
				fenced = err
				cancel(errLeaseLost)
			}
			return err
		}
		index++
		text.WriteString(chunk)
		metrics.EmitChunk(d.metrics, string(env.Type), len(chunk))
		return nil
	}

	err := runExecutor(execCtx, strategy.Executor, env, emitChunk)
	if fenced != nil {
		return text.String(), fenced
	}
	if err != nil {
		if cause := context.Cause(execCtx); cause != nil && !errors.Is(err, cause) && execCtx.Err() != nil {
			return text.String(), cause
		}
		return text.String(), err
	}
	return text.String(), nil
}

func runExecutor(ctx context.Context, ex core.Executor, env model.Envelope, emit core.EmitFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panicked: %v", r)
		}
	}()
	return ex.Execute(ctx, env, emit)
}

// heartbeat renews the lease until ctx ends. Losing the lease means the reaper
// has failed the job, so execution is cancelled.
func (d *Dispatcher) heartbeat(
	ctx context.Context,
	log *slog.Logger,
	ref model.JobRef,
	cancelExec context.CancelCauseFunc,
) {
	ticker := time.NewTicker(d.lease.Heartbeat())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		ok, err := d.store.RenewLease(ctx, ref, d.workerID, d.lease.Duration)
		if err != nil {
			if ctx.Err() == nil {
				log.WarnContext(ctx, "lease renewal failed", "error", err)
			}
			continue
		}
		if !ok {
			log.ErrorContext(ctx, "lease lost, cancelling job")
			cancelExec(errLeaseLost)
			return
		}
	}
}

// fail appends an error chunk for in-flight observers and records the error
// state in one write, then notifies the owner. A job that already ended, for
// example one the reaper reclaimed, is left untouched.
func (d *Dispatcher) fail(ctx context.Context, log *slog.Logger, env model.Envelope, strategy Strategy, cause error) {
	ref := env.Ref()
	msg := cause.Error()
	class := obserrors.Classify(cause)
	if errors.Is(cause, errLeaseLost) {
		class = "lease_lost"
	}
	ctx = context.WithoutCancel(ctx)

	_, chunks, err := d.store.Fail(ctx, ref, d.workerID, msg, service.ErrorChunk(msg))
	switch {
	case errors.Is(err, model.ErrJobFinished), errors.Is(err, model.ErrNotJobOwner):
		log.WarnContext(ctx, "job already settled elsewhere, dropping failure", "error", err, "original_error", msg)
		return
	case err != nil:
		log.ErrorContext(ctx, "failed to mark job failed", "error", err, "original_error", msg)
		return
	}
	log.WarnContext(ctx, "job failed", "error", msg, "error_class", class)

	if strategy.PersistFailure != nil {
		if err := strategy.PersistFailure(ctx, env, msg); err != nil {
			log.ErrorContext(ctx, "failure persistence callback failed", "error", err)
		}
	}

	if d.notifier != nil {
		d.notifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
			JobID:      env.JobID,
			JobType:    string(env.Type),
			WorkerID:   d.workerID,
			Stage:      notify.StageExecute,
			Chunks:     chunks,
			Error:      msg,
			ErrorClass: class,
		})
	}
}
