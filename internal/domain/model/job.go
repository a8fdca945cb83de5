// Package model defines the core data types shared by the jobstream producer, dispatcher and delivery layers.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType represents the kind of work carried by an envelope.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the lifecycle status of a job.
type JobStatus string

const (
	// JobTypeChat is a streamed assistant reply for a chat message.
	JobTypeChat JobType = "chat"
	// JobTypeWhatsAppChat is a streamed reply for an inbound WhatsApp message.
	JobTypeWhatsAppChat JobType = "whatsapp_chat"
	// JobTypeSOValidation is a sales order batch validation request.
	JobTypeSOValidation JobType = "so_validation"
	// JobTypePerformanceReport is a streamed goods receipt performance report.
	JobTypePerformanceReport JobType = "performance_report"

	// JobStatusPending indicates the envelope is queued and not yet claimed.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a worker has claimed the job.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusDone indicates the executor finished successfully.
	JobStatusDone JobStatus = "done"
	// JobStatusError indicates the executor failed or the claim was lost.
	JobStatusError JobStatus = "error"
)

// Sentinel errors shared across layers.
var (
	// ErrQueueEmpty is returned when a blocking claim times out without an envelope.
	ErrQueueEmpty = errors.New("queue empty")
	// ErrJobNotFound is returned when no state record exists for a job.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when a status change would violate the lifecycle.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrUnknownJobType is returned when no strategy is registered for a job type.
	ErrUnknownJobType = errors.New("unknown job type")
	// ErrJobFinished is returned when a write targets a job already in a terminal state.
	ErrJobFinished = errors.New("job already finished")
	// ErrNotJobOwner is returned when a worker writes to a job claimed by another worker.
	ErrNotJobOwner = errors.New("job owned by another worker")
)

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// Valid returns true if the JobType is known.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeChat, JobTypeWhatsAppChat, JobTypeSOValidation, JobTypePerformanceReport:
		return true
	}
	return false
}

// Streaming reports whether jobs of this type produce a chunk stream.
func (t JobType) Streaming() bool {
	return t == JobTypeChat || t == JobTypeWhatsAppChat || t == JobTypePerformanceReport
}

// Valid returns true if the JobStatus is known.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusProcessing || s == JobStatusDone || s == JobStatusError
}

// Terminal reports whether no further transitions may follow.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// CanTransition reports whether moving from s to next is allowed.
// The lifecycle is pending -> processing -> done|error; pending may also fail
// directly when a job is rejected before any worker picks it up.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next == JobStatusError
	case JobStatusProcessing:
		return next == JobStatusDone || next == JobStatusError
	case JobStatusDone, JobStatusError:
		return false
	}
	return false
}

// Envelope is the unit of work pushed onto the work queue. It is immutable once enqueued.
type Envelope struct {
	JobID      string          `json:"job_id"`
	Type       JobType         `json:"job_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Ref returns the namespace reference for the envelope.
func (e Envelope) Ref() JobRef {
	return JobRef{Type: e.Type, ID: e.JobID}
}

// JobRef identifies a job within its type namespace.
type JobRef struct {
	Type JobType
	ID   string
}

// String renders the reference as "<type>:<id>".
func (r JobRef) String() string {
	return string(r.Type) + ":" + r.ID
}

// ParseJobRef parses the "<type>:<id>" form produced by JobRef.String.
func ParseJobRef(s string) (JobRef, error) {
	typ, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return JobRef{}, fmt.Errorf("malformed job ref %q", s)
	}
	jt := JobType(typ)
	if !jt.Valid() {
		return JobRef{}, fmt.Errorf("malformed job ref %q: %w", s, ErrUnknownJobType)
	}
	return JobRef{Type: jt, ID: id}, nil
}

// State is the lifecycle record for one job.
type State struct {
	Status      JobStatus `json:"status"`
	MessageType string    `json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
	Error       string    `json:"error,omitempty"`
	WorkerID    string    `json:"worker_id,omitempty"`
}

// StatusUpdate describes a lifecycle write performed by the owning worker.
type StatusUpdate struct {
	Status   JobStatus
	Error    string
	WorkerID string
}
