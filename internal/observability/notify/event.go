// Package notify defines the job failure notification payload shared by alerting sinks.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
)

// Failure stages reported in JobFailurePayload.Stage.
const (
	StageExecute = "execute"
	StageLease   = "lease"
)

// JobFailurePayload captures the data emitted when a job ends in error.
type JobFailurePayload struct {
	JobID      string
	JobType    string
	WorkerID   string
	Stage      string
	Chunks     int64
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Ref returns "<job_type>:<job_id>", dropping whichever half is empty.
func (p JobFailurePayload) Ref() string {
	return strings.Trim(p.JobType+":"+p.JobID, ":")
}

// Summary is a one-line description suitable for incident titles.
func (p JobFailurePayload) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job %s (%s) failed", orUnknown(p.JobID), orUnknown(p.JobType))
	if p.Stage != "" {
		b.WriteString(" during ")
		b.WriteString(p.Stage)
	}
	if p.Chunks > 0 {
		fmt.Fprintf(&b, " after %d chunk(s)", p.Chunks)
	}
	return b.String()
}

// NormalizedSeverity lowercases Severity, mapping unknown values to critical.
func (p JobFailurePayload) NormalizedSeverity() string {
	switch s := strings.ToLower(strings.TrimSpace(p.Severity)); s {
	case SeverityCritical, SeverityError, SeverityWarning:
		return s
	default:
		return SeverityCritical
	}
}

// Timestamp returns OccurredAt in UTC, or now when it was never set.
func (p JobFailurePayload) Timestamp() time.Time {
	if p.OccurredAt.IsZero() {
		return time.Now().UTC()
	}
	return p.OccurredAt.UTC()
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "unknown"
	}
	return v
}

// Sink describes a destination capable of consuming job failure notifications.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements the Sink interface.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
