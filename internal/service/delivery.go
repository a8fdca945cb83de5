package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/target/jobstream/internal/core"
	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
	"github.com/target/jobstream/internal/observability/metrics"
	"github.com/target/jobstream/internal/observability/statsd"
)

// EventKind names a delivery event.
type EventKind string

const (
	// EventMessage carries one chunk.
	EventMessage EventKind = "message"
	// EventDone terminates a stream whose job finished.
	EventDone EventKind = "done"
	// EventError terminates a stream whose job failed or could not be read.
	EventError EventKind = "error"
)

// DeliveryEvent is one event sent to a stream observer. Index is the chunk
// index for message events and the final chunk count for terminal events.
type DeliveryEvent struct {
	Kind  EventKind `json:"event"`
	Index int64     `json:"index"`
	Data  string    `json:"data"`
}

// EmitEventFunc sends an event to an observer. An error means the observer is
// gone and streaming stops.
type EmitEventFunc func(DeliveryEvent) error

// DeliveryStore is the read side of the job store used by observers.
type DeliveryStore interface {
	core.JobStateStore
	core.ChunkStore
}

// DeliveryServiceOptions groups dependencies for DeliveryService.
type DeliveryServiceOptions struct {
	Store          DeliveryStore // Required: state and chunk reader
	Waiter         ChunkWaiter   // Optional: defaults to a PollingChunkWaiter over Store
	PollInterval   time.Duration // Optional: poll cadence of the default waiter
	WaitTimeout    time.Duration // Optional: bound of one wait before the state is rechecked
	AttachGrace    time.Duration // Optional: how long a stream waits for a job that is not enqueued yet
	MaxStoreErrors int           // Optional: consecutive failed polls before a terminal error event
	Logger         *slog.Logger  // Optional: structured logger
	Metrics        statsd.Sink   // Optional: metrics sink
}

// DeliveryService replays and follows job chunk streams for observers.
type DeliveryService struct {
	store          DeliveryStore
	waiter         ChunkWaiter
	pollInterval   time.Duration
	waitTimeout    time.Duration
	attachGrace    time.Duration
	maxStoreErrors int
	logger         *slog.Logger
	metrics        statsd.Sink
}

// JobResult is the non-streaming view of a job.
type JobResult struct {
	JobID   string          `json:"job_id"`
	JobType model.JobType   `json:"job_type"`
	Status  model.JobStatus `json:"status"`
	Error   string          `json:"error,omitempty"`
	Text    string          `json:"text"`
	Chunks  int             `json:"chunks"`
}

// NewDeliveryService constructs a new DeliveryService.
func NewDeliveryService(opts DeliveryServiceOptions) (*DeliveryService, error) {
	if opts.Store == nil {
		return nil, errors.New("DeliveryStore is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.WaitTimeout < opts.PollInterval {
		opts.WaitTimeout = opts.PollInterval
	}
	if opts.AttachGrace < 0 {
		opts.AttachGrace = 0
	}
	if opts.MaxStoreErrors < 1 {
		opts.MaxStoreErrors = 5
	}
	if opts.Waiter == nil {
		opts.Waiter = NewPollingChunkWaiter(opts.Store, opts.PollInterval)
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "delivery_service")
	}
	return &DeliveryService{
		store:          opts.Store,
		waiter:         opts.Waiter,
		pollInterval:   opts.PollInterval,
		waitTimeout:    opts.WaitTimeout,
		attachGrace:    opts.AttachGrace,
		maxStoreErrors: opts.MaxStoreErrors,
		logger:         logger,
		metrics:        opts.Metrics,
	}, nil
}

// Lookup returns the state of a job, or a NotFound error when no record exists.
func (s *DeliveryService) Lookup(ctx context.Context, ref model.JobRef) (model.State, error) {
	st, err := s.store.State(ctx, ref)
	if errors.Is(err, model.ErrJobNotFound) {
		return model.State{}, apperrors.NotFoundf("job %s not found", ref.ID)
	}
	if err != nil {
		return model.State{}, fmt.Errorf("load state %s: %w", ref, err)
	}
	return st, nil
}

// Attach is Lookup for stream observers: an observer may connect before the
// job is enqueued, so a missing record is polled for up to the attach grace
// before the NotFound error is returned.
func (s *DeliveryService) Attach(ctx context.Context, ref model.JobRef) (model.State, error) {
	st, err := s.Lookup(ctx, ref)
	if err == nil || !apperrors.IsNotFound(err) || s.attachGrace <= 0 {
		return st, err
	}

	graceCtx, cancel := context.WithTimeout(ctx, s.attachGrace)
	defer cancel()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-graceCtx.Done():
			if ctx.Err() != nil {
				return model.State{}, ctx.Err()
			}
			return model.State{}, err
		case <-ticker.C:
		}
		st, err = s.Lookup(ctx, ref)
		if err == nil || !apperrors.IsNotFound(err) {
			return st, err
		}
	}
}

// Result returns the current state with the concatenated chunk history.
func (s *DeliveryService) Result(ctx context.Context, ref model.JobRef) (JobResult, error) {
	st, err := s.Lookup(ctx, ref)
	if err != nil {
		return JobResult{}, err
	}
	chunks, err := s.store.Chunks(ctx, ref, 0)
	if err != nil {
		return JobResult{}, fmt.Errorf("load chunks %s: %w", ref, err)
	}
	return JobResult{
		JobID:   ref.ID,
		JobType: ref.Type,
		Status:  st.Status,
		Error:   st.Error,
		Text:    strings.Join(chunks, ""),
		Chunks:  len(chunks),
	}, nil
}

// Stream emits every chunk from cursor onward, follows the stream while the
// job runs, and ends with a done or error event. Each chunk index is emitted
// exactly once and in order. A job that is not enqueued yet is awaited for
// the attach grace; after that it returns a NotFound error without emitting
// anything. A cancelled ctx or a failing emit means the observer left; Stream
// then returns nil and leaves shared state untouched.
func (s *DeliveryService) Stream(ctx context.Context, ref model.JobRef, cursor int64, emit EmitEventFunc) error {
	if _, err := s.Attach(ctx, ref); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	sess := &streamSession{svc: s, ref: ref, cursor: max(cursor, 0), emit: emit}
	start := time.Now()
	outcome := sess.run(ctx)
	metrics.EmitDeliverySession(s.metrics, "stream", outcome, time.Since(start))
	return nil
}

// Session outcomes for metrics.
const (
	outcomeDone       = "done"
	outcomeError      = "error"
	outcomeDetached   = "detached"
	outcomeStoreError = "store_error"
)

type streamSession struct {
	svc      *DeliveryService
	ref      model.JobRef
	cursor   int64
	emit     EmitEventFunc
	failures int
	gone     bool
}

func (ss *streamSession) run(ctx context.Context) string {
	if err := ss.drain(ctx); err != nil && !ss.storeFailed(ctx, err) {
		return ss.exitOutcome(outcomeStoreError)
	}

	for {
		if ss.gone || ctx.Err() != nil {
			return outcomeDetached
		}

		st, err := ss.svc.store.State(ctx, ss.ref)
		switch {
		case errors.Is(err, model.ErrJobNotFound):
			ss.send(DeliveryEvent{Kind: EventError, Index: ss.cursor, Data: "job expired"})
			return ss.exitOutcome(outcomeError)
		case err != nil:
			if !ss.storeFailed(ctx, err) {
				return ss.exitOutcome(outcomeStoreError)
			}
			continue
		}

		if st.Status.Terminal() {
			return ss.finish(ctx, st)
		}

		n, err := ss.svc.waiter.WaitForChunks(ctx, ss.ref, ss.cursor, ss.svc.waitTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return outcomeDetached
			}
			if !ss.storeFailed(ctx, err) {
				return ss.exitOutcome(outcomeStoreError)
			}
			continue
		}
		if n > ss.cursor {
			if err := ss.drain(ctx); err != nil && !ss.storeFailed(ctx, err) {
				return ss.exitOutcome(outcomeStoreError)
			}
		}
	}
}

// finish performs the final drain for chunks appended before the terminal
// status flip and emits the terminal event.
func (ss *streamSession) finish(ctx context.Context, st model.State) string {
	for {
		err := ss.drain(ctx)
		if err == nil {
			break
		}
		if !ss.storeFailed(ctx, err) {
			return ss.exitOutcome(outcomeStoreError)
		}
	}
	if st.Status == model.JobStatusDone {
		ss.send(DeliveryEvent{Kind: EventDone, Index: ss.cursor})
		return ss.exitOutcome(outcomeDone)
	}
	msg := st.Error
	if msg == "" {
		msg = "job failed"
	}
	ss.send(DeliveryEvent{Kind: EventError, Index: ss.cursor, Data: msg})
	return ss.exitOutcome(outcomeError)
}

// drain emits every chunk past the cursor and advances it.
func (ss *streamSession) drain(ctx context.Context) error {
	if ss.gone {
		return nil
	}
	chunks, err := ss.svc.store.Chunks(ctx, ss.ref, ss.cursor)
	if err != nil {
		return err
	}
	ss.failures = 0
	for _, c := range chunks {
		if !ss.send(DeliveryEvent{Kind: EventMessage, Index: ss.cursor, Data: c}) {
			return nil
		}
		ss.cursor++
	}
	return nil
}

func (ss *streamSession) send(ev DeliveryEvent) bool {
	if ss.gone {
		return false
	}
	if err := ss.emit(ev); err != nil {
		ss.gone = true
		return false
	}
	return true
}

// storeFailed records a failed store read. It returns true when the session
// should retry after a pause, false once the failure budget is spent, in which
// case the observer has already received a terminal error event.
func (ss *streamSession) storeFailed(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		ss.gone = true
		return false
	}
	ss.failures++
	if ss.svc.logger != nil {
		ss.svc.logger.WarnContext(ctx, "stream poll failed",
			"job_id", ss.ref.ID,
			"job_type", ss.ref.Type,
			"attempt", ss.failures,
			"error", err,
		)
	}
	if ss.failures >= ss.svc.maxStoreErrors {
		ss.send(DeliveryEvent{Kind: EventError, Index: ss.cursor, Data: "stream unavailable: " + err.Error()})
		return false
	}
	timer := time.NewTimer(ss.svc.waitTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		ss.gone = true
		return false
	case <-timer.C:
		return true
	}
}

func (ss *streamSession) exitOutcome(outcome string) string {
	if ss.gone {
		return outcomeDetached
	}
	return outcome
}
