package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/target/jobstream/internal/core"
	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
	"github.com/target/jobstream/internal/observability/metrics"
	"github.com/target/jobstream/internal/observability/statsd"
)

const maxJobIDLength = 128

// ProducerServiceOptions groups dependencies for ProducerService.
type ProducerServiceOptions struct {
	Queue         core.JobQueue    // Required: shared work queue
	MaxQueueDepth int64            // Optional: reject when the queue holds this many envelopes (0 disables)
	Now           func() time.Time // Optional: clock override for tests
	NewID         func() string    // Optional: job id generator, defaults to UUIDv4
	Logger        *slog.Logger     // Optional: structured logger
	Metrics       statsd.Sink      // Optional: metrics sink
}

// ProducerService validates job requests and enqueues them.
type ProducerService struct {
	queue    core.JobQueue
	maxDepth int64
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
	metrics  statsd.Sink
}

// EnqueueRequest is a request to start a streaming job.
type EnqueueRequest struct {
	JobType model.JobType   `json:"job_type"`
	JobID   string          `json:"job_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// NewProducerService constructs a new ProducerService.
func NewProducerService(opts ProducerServiceOptions) (*ProducerService, error) {
	if opts.Queue == nil {
		return nil, errors.New("JobQueue is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "producer_service")
	}
	return &ProducerService{
		queue:    opts.Queue,
		maxDepth: opts.MaxQueueDepth,
		now:      opts.Now,
		newID:    opts.NewID,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// MustNewProducerService constructs a new ProducerService and panics on error.
func MustNewProducerService(opts ProducerServiceOptions) *ProducerService {
	svc, err := NewProducerService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ProducerService: %v", err))
	}
	return svc
}

// Enqueue validates req, writes the pending state and pushes the envelope.
// Malformed requests are rejected before any state is written.
func (s *ProducerService) Enqueue(ctx context.Context, req EnqueueRequest) (model.Envelope, error) {
	env, err := s.buildEnvelope(req)
	if err != nil {
		return model.Envelope{}, err
	}

	if err := s.checkBackpressure(ctx); err != nil {
		s.emit(env.Type, metrics.ResultRejected, err)
		return model.Envelope{}, err
	}

	state := model.State{
		Status:      model.JobStatusPending,
		MessageType: string(env.Type),
		CreatedAt:   env.EnqueuedAt,
	}
	if err := s.queue.Enqueue(ctx, env, state); err != nil {
		s.emit(env.Type, metrics.ResultError, err)
		return model.Envelope{}, fmt.Errorf("enqueue %s: %w", env.Ref(), err)
	}

	s.emit(env.Type, metrics.ResultSuccess, nil)
	if s.logger != nil {
		s.logger.DebugContext(ctx, "job enqueued", "job_id", env.JobID, "job_type", env.Type)
	}
	return env, nil
}

func (s *ProducerService) buildEnvelope(req EnqueueRequest) (model.Envelope, error) {
	if !req.JobType.Valid() {
		return model.Envelope{}, apperrors.ValidationField("job_type", fmt.Sprintf("unknown job_type %q", req.JobType))
	}
	dst, err := payloadFor(req.JobType)
	if err != nil {
		return model.Envelope{}, err
	}
	if err := decodePayload(req.Payload, dst); err != nil {
		return model.Envelope{}, err
	}

	id := strings.TrimSpace(req.JobID)
	if id == "" {
		id = s.newID()
	}
	if err := validateJobID(id); err != nil {
		return model.Envelope{}, err
	}

	// Re-encode the validated payload so the queue only ever carries canonical JSON.
	payload, err := json.Marshal(dst)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("encode payload: %w", err)
	}

	return model.Envelope{
		JobID:      id,
		Type:       req.JobType,
		Payload:    payload,
		EnqueuedAt: s.now().UTC(),
	}, nil
}

func validateJobID(id string) error {
	if len(id) > maxJobIDLength {
		return apperrors.ValidationField("job_id", fmt.Sprintf("job_id must be at most %d characters", maxJobIDLength))
	}
	if strings.ContainsAny(id, " \t\r\n{}") {
		return apperrors.ValidationField("job_id", "job_id must not contain whitespace or braces")
	}
	return nil
}

func (s *ProducerService) checkBackpressure(ctx context.Context) error {
	if s.maxDepth <= 0 {
		return nil
	}
	depth, err := s.queue.QueueDepth(ctx)
	if err != nil {
		return fmt.Errorf("queue depth: %w", err)
	}
	if depth >= s.maxDepth {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "rejecting job, queue saturated", "depth", depth, "max_depth", s.maxDepth)
		}
		return apperrors.Unavailable("dispatcher saturated, retry later")
	}
	return nil
}

func (s *ProducerService) emit(jobType model.JobType, result string, err error) {
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		JobType:    string(jobType),
		Transition: metrics.TransitionEnqueued,
		Result:     result,
		Err:        err,
	})
}
