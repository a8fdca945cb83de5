package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/jobstream/config"
	"github.com/target/jobstream/internal/core"
	"github.com/target/jobstream/internal/domain/model"
	obserrors "github.com/target/jobstream/internal/observability/errors"
	"github.com/target/jobstream/internal/observability/metrics"
	"github.com/target/jobstream/internal/observability/notify"
	"github.com/target/jobstream/internal/observability/statsd"
)

// LeaseExpiredMessage is the error recorded on jobs whose worker stopped heartbeating.
const LeaseExpiredMessage = "worker lease expired"

// ReclaimStore is the slice of the job store the reaper needs.
type ReclaimStore interface {
	core.ClaimReclaimer
	core.JobStateStore
	core.LeaseStore
}

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Store    ReclaimStore         // Required: job store
	Config   config.ReaperConfig  // Required: reaper configuration
	Notifier core.FailureNotifier // Optional: alerted for each reclaimed job
	Logger   *slog.Logger         // Optional: structured logger
	Metrics  statsd.Sink          // Optional: metrics sink (StatsD-compatible)
}

// ReaperService fails jobs whose worker lease expired.
//
// A claimed job is registered with a lease deadline that its worker renews
// while executing. When a worker dies the deadline passes; the reaper then
// moves the job to error and appends an error chunk so observers terminate.
// Jobs are never re-queued: the lifecycle only moves forward.
type ReaperService struct {
	store    ReclaimStore
	config   config.ReaperConfig
	notifier core.FailureNotifier
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Store == nil {
		return nil, errors.New("ReclaimStore is required")
	}
	cfg := opts.Config
	cfg.Sanitize()

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", cfg.Interval,
			"batch_size", cfg.BatchSize,
		)
	}

	return &ReaperService{
		store:    opts.Store,
		config:   cfg,
		notifier: opts.Notifier,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.Reclaim(ctx); err != nil {
		s.logReclaimError(err, "initial reclaim")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.Reclaim(ctx); err != nil {
				s.logReclaimError(err, "reclaim")
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	// Use modulo on uint64 before converting to avoid overflow
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Reclaim processes expired claims in batches until none remain and returns
// the number of jobs moved to error.
func (s *ReaperService) Reclaim(ctx context.Context) (int64, error) {
	start := time.Now()
	var (
		total int64
		errs  []error
	)
	for {
		refs, err := s.store.ExpiredClaims(ctx, s.config.BatchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("list expired claims: %w", err))
			break
		}
		progressed := 0
		for _, ref := range refs {
			reclaimed, handled, err := s.reclaimOne(ctx, ref)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if handled {
				progressed++
			}
			if reclaimed {
				total++
			}
		}
		// Stop when the batch was short or nothing could be cleared, so a
		// persistently failing entry cannot spin the loop.
		if len(refs) < s.config.BatchSize || progressed == 0 {
			break
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}

	s.emitReclaimMetrics(total, time.Since(start), errors.Join(errs...))

	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "reclaimed expired jobs", "count", total)
	}
	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if isContextCancellation(joined) && ctx.Err() != nil {
			return total, context.Canceled
		}
		return total, fmt.Errorf("reclaim failed: %w", joined)
	}
	return total, nil
}

// reclaimOne handles one expired claim. handled reports whether the claim was
// cleared from the processing set; reclaimed whether the job moved to error.
func (s *ReaperService) reclaimOne(ctx context.Context, ref model.JobRef) (reclaimed, handled bool, err error) {
	held, err := s.store.LeaseHeld(ctx, ref)
	if err != nil {
		return false, false, fmt.Errorf("check lease %s: %w", ref, err)
	}
	if held {
		// The lease key outlived its deadline entry; the next heartbeat fixes the score.
		return false, true, nil
	}

	st, err := s.store.State(ctx, ref)
	switch {
	case errors.Is(err, model.ErrJobNotFound):
		// State expired; only the claim entry is left behind.
	case err != nil:
		return false, false, fmt.Errorf("load state %s: %w", ref, err)
	case !st.Status.Terminal():
		// Unfenced: the reaper overrides whichever worker let the lease lapse.
		// That worker's later appends are refused once the job is terminal.
		prev, chunks, err := s.store.Fail(ctx, ref, "", LeaseExpiredMessage, ErrorChunk(LeaseExpiredMessage))
		switch {
		case err == nil:
			reclaimed = true
			metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
				JobType:    string(ref.Type),
				Transition: metrics.TransitionReclaimed,
				Result:     metrics.ResultSuccess,
			})
			if s.logger != nil {
				s.logger.WarnContext(ctx, "job lease expired, marked failed",
					"job_id", ref.ID,
					"job_type", ref.Type,
					"previous_status", prev,
				)
			}
			s.notifyReclaimed(ctx, ref, st.WorkerID, chunks)
		case errors.Is(err, model.ErrJobFinished), errors.Is(err, model.ErrJobNotFound):
			// Finished between the read and the write.
		default:
			return false, false, fmt.Errorf("fail %s: %w", ref, err)
		}
	}

	if err := s.store.ForgetClaim(ctx, ref); err != nil {
		return reclaimed, false, fmt.Errorf("forget claim %s: %w", ref, err)
	}
	return reclaimed, true, nil
}

func (s *ReaperService) notifyReclaimed(ctx context.Context, ref model.JobRef, workerID string, chunks int64) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
		JobID:      ref.ID,
		JobType:    string(ref.Type),
		WorkerID:   workerID,
		Stage:      notify.StageLease,
		Chunks:     chunks,
		Error:      LeaseExpiredMessage,
		ErrorClass: "lease_expired",
	})
}

func (s *ReaperService) emitReclaimMetrics(count int64, elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result":      result,
		"error_class": "none",
	}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.runs", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.run_duration", elapsed, metrics.CloneTags(tags))
	}
	if count > 0 {
		s.metrics.Count("reaper.reclaimed", count, nil)
	}
	if err == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) logReclaimError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ErrorChunk renders the final stream chunk appended when a job fails.
func ErrorChunk(msg string) string {
	return "Error: " + msg
}
