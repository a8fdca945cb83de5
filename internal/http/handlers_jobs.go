// Package httpx provides HTTP handlers and utilities for the jobstream API.
package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/jobstream/internal/domain/model"
	"github.com/target/jobstream/internal/service"
)

// JobProducer enqueues streaming jobs.
type JobProducer interface {
	Enqueue(ctx context.Context, req service.EnqueueRequest) (model.Envelope, error)
}

// JobDelivery reads job state and streams chunks to observers.
type JobDelivery interface {
	// Attach waits briefly for a job that is not enqueued yet before reporting NotFound.
	Attach(ctx context.Context, ref model.JobRef) (model.State, error)
	Result(ctx context.Context, ref model.JobRef) (service.JobResult, error)
	Stream(ctx context.Context, ref model.JobRef, cursor int64, emit service.EmitEventFunc) error
}

// JobHandlers provides HTTP handlers for job-related operations.
type JobHandlers struct {
	Producer  JobProducer
	Delivery  JobDelivery
	KeepAlive time.Duration // interval between keepalive pings on idle streams; 0 disables
	Logger    *slog.Logger
}

type createJobResponse struct {
	JobID   string          `json:"job_id"`
	JobType model.JobType   `json:"job_type"`
	Status  model.JobStatus `json:"status"`
}

// CreateJob handles HTTP requests to enqueue a new streaming job.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req service.EnqueueRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	env, err := h.Producer.Enqueue(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}

	WriteJSON(w, http.StatusCreated, createJobResponse{
		JobID:   env.JobID,
		JobType: env.Type,
		Status:  model.JobStatusPending,
	})
}

// Result handles non-streaming reads of a job. It answers 200 once the job is
// terminal and 202 with the partial text while it is still running.
func (h *JobHandlers) Result(w http.ResponseWriter, r *http.Request) {
	ref, err := jobRefFromRequest(r)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}

	res, err := h.Delivery.Result(r.Context(), ref)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}

	status := http.StatusAccepted
	if res.Status.Terminal() {
		status = http.StatusOK
	}
	WriteJSON(w, status, res)
}

// Stream serves the chunk stream of a job as server-sent events. Jobs still
// unknown after the attach grace are answered with 404 before any stream
// headers are written.
func (h *JobHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	ref, err := jobRefFromRequest(r)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if _, err := h.Delivery.Attach(r.Context(), ref); err != nil {
		if r.Context().Err() == nil {
			writeServiceError(w, r, h.Logger, err)
		}
		return
	}

	sw := newSSEWriter(w)
	if err := sw.open(); err != nil {
		if h.Logger != nil {
			h.Logger.WarnContext(r.Context(), "stream not supported", "job_id", ref.ID, "error", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	stopPings := startKeepAlive(ctx, h.KeepAlive, sw.ping)
	defer stopPings()
	defer cancel()

	err = h.Delivery.Stream(ctx, ref, streamCursor(r), sw.event)
	if err != nil {
		// The job vanished between the lookup and the first read.
		_ = sw.event(service.DeliveryEvent{Kind: service.EventError, Data: err.Error()})
	}
}

// startKeepAlive calls ping every interval until ctx ends or the returned stop
// function is called. stop waits for the pinging goroutine to exit.
func startKeepAlive(ctx context.Context, interval time.Duration, ping func() error) (stop func()) {
	if interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if ping() != nil {
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
