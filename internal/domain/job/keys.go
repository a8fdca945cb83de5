// Package job holds the pure domain rules for queued jobs: key namespacing and lease policy.
package job

import (
	"strings"

	"github.com/target/jobstream/internal/domain/model"
)

// Default key names. Queue and index keys are shared by every job type; per-job
// keys are namespaced by entity, type and id so logically distinct streams never collide.
// The type and id are wrapped in a hash tag so a job's state, stream and lease
// keys share one Redis Cluster slot and a single script may touch them together.
const (
	DefaultEntity        = "message"
	DefaultQueueKey      = "jobs:queue"
	DefaultProcessingKey = "jobs:processing"

	ValidationQueueKey   = "so_validation:queue"
	validationInputFmt   = "so_validation:input:"
	validationResultsFmt = "so_validation:result:"
)

// Namespace builds store keys for jobs.
type Namespace struct {
	Entity string
}

// DefaultNamespace returns the namespace used by the service.
func DefaultNamespace() Namespace {
	return Namespace{Entity: DefaultEntity}
}

func (n Namespace) entity() string {
	if e := strings.TrimSpace(n.Entity); e != "" {
		return e
	}
	return DefaultEntity
}

func (n Namespace) key(ref model.JobRef, suffix string) string {
	return n.entity() + ":{" + string(ref.Type) + ":" + ref.ID + "}:" + suffix
}

// StateKey is the hash holding the job's lifecycle record.
func (n Namespace) StateKey(ref model.JobRef) string { return n.key(ref, "state") }

// StreamKey is the list holding the job's output chunks.
func (n Namespace) StreamKey(ref model.JobRef) string { return n.key(ref, "stream") }

// LeaseKey is the string key proving a worker still holds the claim.
func (n Namespace) LeaseKey(ref model.JobRef) string { return n.key(ref, "lease") }

// NotifyChannel is the pub/sub channel signalled on chunk appends and terminal transitions.
func (n Namespace) NotifyChannel(ref model.JobRef) string { return n.key(ref, "notify") }

// ValidationInputKey holds the input snapshot of an in-flight batch.
func ValidationInputKey(requestID string) string { return validationInputFmt + requestID }

// ValidationResultKey holds the short-lived mirror of a finished batch.
func ValidationResultKey(requestID string) string { return validationResultsFmt + requestID }
