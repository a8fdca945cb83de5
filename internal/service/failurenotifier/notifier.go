// Package failurenotifier fans job failure notifications out to alerting sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/target/jobstream/internal/domain/model"
	"github.com/target/jobstream/internal/observability/metrics"
	"github.com/target/jobstream/internal/observability/notify"
	"github.com/target/jobstream/internal/observability/statsd"
)

const (
	defaultDeliveryTimeout = 10 * time.Second
	defaultSuppressWindow  = 5 * time.Minute
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger  *slog.Logger
	Metrics statsd.Sink
	Sinks   []SinkRegistration
	// JobTypes limits notifications to these types. Empty notifies for every type.
	JobTypes []model.JobType
	// Timeout bounds one fan-out. Defaults to 10s.
	Timeout time.Duration
	// SuppressWindow drops repeat alerts for the same job inside the window,
	// e.g. a dispatcher failure followed by a reaper sweep. Defaults to 5m;
	// negative disables suppression.
	SuppressWindow time.Duration
	Clock          func() time.Time
}

// Service dispatches failure events to all registered sinks. A nil *Service drops everything.
type Service struct {
	logger   *slog.Logger
	metrics  statsd.Sink
	sinks    []SinkRegistration
	jobTypes map[model.JobType]struct{}
	timeout  time.Duration
	window   time.Duration
	now      func() time.Time

	mu     sync.Mutex
	recent map[string]time.Time
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sinks := make([]SinkRegistration, 0, len(opts.Sinks))
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	var jobTypes map[model.JobType]struct{}
	if len(opts.JobTypes) > 0 {
		jobTypes = make(map[model.JobType]struct{}, len(opts.JobTypes))
		for _, jt := range opts.JobTypes {
			jobTypes[jt] = struct{}{}
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	window := opts.SuppressWindow
	if window == 0 {
		window = defaultSuppressWindow
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &Service{
		logger:   logger.With("component", "failure_notifier"),
		metrics:  opts.Metrics,
		sinks:    sinks,
		jobTypes: jobTypes,
		timeout:  timeout,
		window:   window,
		now:      now,
		recent:   make(map[string]time.Time),
	}
}

// NotifyJobFailure fans the payload out to all sinks and waits for them.
// Failures caused by shutdown are not reported.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if !s.Enabled() || !s.wants(ctx, payload) {
		return
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = s.now().UTC()
	}

	// Delivery outlives caller cancellation.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := s.now()
			err := entry.Sink.SendJobFailure(sendCtx, payload)
			result := metrics.ResultSuccess
			if err != nil {
				result = metrics.ResultError
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"job_type", payload.JobType,
					"error", err,
				)
			}
			metrics.EmitAlertDelivery(s.metrics, entry.Name, result, s.now().Sub(start))
		}()
	}
	wg.Wait()
}

// wants applies the cancellation, job type and repeat filters.
func (s *Service) wants(ctx context.Context, payload notify.JobFailurePayload) bool {
	if payload.ErrorClass == "canceled" {
		s.logger.DebugContext(ctx, "skipping notification for cancelled job",
			"job_id", payload.JobID,
			"job_type", payload.JobType,
		)
		return false
	}
	if s.jobTypes != nil {
		if _, ok := s.jobTypes[model.JobType(payload.JobType)]; !ok {
			return false
		}
	}
	if s.window < 0 {
		return true
	}

	key := payload.Ref()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, at := range s.recent {
		if now.Sub(at) >= s.window {
			delete(s.recent, k)
		}
	}
	if _, seen := s.recent[key]; seen {
		s.logger.DebugContext(ctx, "suppressing repeat failure alert", "job", key)
		metrics.EmitAlertDelivery(s.metrics, "all", metrics.ResultNoop, 0)
		return false
	}
	s.recent[key] = now
	return true
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
