package core

import (
	"context"
	"time"

	"github.com/target/jobstream/internal/domain/model"
)

// This file contains store and repository interface definitions (ports in hexagonal architecture).
// Services depend on these interfaces; internal/data provides the Redis and Postgres implementations.

// JobQueue is the point-to-point work queue for streaming job types.
type JobQueue interface {
	// Enqueue writes the initial state and then pushes the envelope.
	Enqueue(ctx context.Context, env model.Envelope, state model.State) error
	// Claim pops the next envelope, blocking up to timeout. Returns model.ErrQueueEmpty on timeout.
	Claim(ctx context.Context, timeout time.Duration) (model.Envelope, error)
	QueueDepth(ctx context.Context) (int64, error)
}

// JobStateStore reads and advances job lifecycle records.
type JobStateStore interface {
	// Transition applies upd if the lifecycle allows it and returns the previous status.
	Transition(ctx context.Context, ref model.JobRef, upd model.StatusUpdate) (model.JobStatus, error)
	State(ctx context.Context, ref model.JobRef) (model.State, error)
	Envelope(ctx context.Context, ref model.JobRef) (model.Envelope, error)
	// Fail appends chunk as the last stream entry and records the error state in
	// one write. A non-empty workerID must own the job while it is processing.
	// It returns the replaced status and the chunk count before chunk.
	Fail(ctx context.Context, ref model.JobRef, workerID, message, chunk string) (model.JobStatus, int64, error)
}

// ChunkStore is the append-only chunk stream of a job.
type ChunkStore interface {
	// AppendChunk appends chunk at index for the worker holding the job.
	// Replaying an existing index with the same chunk is a no-op; appends to a
	// finished job or by a worker that lost the job are refused.
	AppendChunk(ctx context.Context, ref model.JobRef, workerID string, index int64, chunk string) error
	// Chunks returns every chunk from index from onward.
	Chunks(ctx context.Context, ref model.JobRef, from int64) ([]string, error)
	ChunkCount(ctx context.Context, ref model.JobRef) (int64, error)
}

// LeaseStore tracks worker ownership of claimed jobs.
type LeaseStore interface {
	AcquireLease(ctx context.Context, ref model.JobRef, workerID string, lease time.Duration) error
	RenewLease(ctx context.Context, ref model.JobRef, workerID string, lease time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, ref model.JobRef, workerID string) error
	LeaseHeld(ctx context.Context, ref model.JobRef) (bool, error)
}

// ClaimReclaimer lists and clears claims whose lease deadline has passed.
type ClaimReclaimer interface {
	ExpiredClaims(ctx context.Context, limit int) ([]model.JobRef, error)
	ForgetClaim(ctx context.Context, ref model.JobRef) error
}

// JobStore combines every job store capability. data.JobStore implements it.
type JobStore interface {
	JobQueue
	JobStateStore
	ChunkStore
	LeaseStore
	ClaimReclaimer
}

// ValidationQueue carries batch validation requests between producer and runner.
type ValidationQueue interface {
	Submit(ctx context.Context, requestID string, req model.ValidationRequest) error
	Claim(ctx context.Context, timeout time.Duration) (string, error)
	QueueDepth(ctx context.Context) (int64, error)
	LoadInput(ctx context.Context, requestID string) (model.ValidationRequest, bool, error)
	InputExists(ctx context.Context, requestID string) (bool, error)
	DeleteInput(ctx context.Context, requestID string) error
	SaveResults(ctx context.Context, requestID string, results []model.ValidationResult) error
	LoadResults(ctx context.Context, requestID string) ([]model.ValidationResult, bool, error)
}

// ValidationResultRepository is the durable store for batch validation results.
type ValidationResultRepository interface {
	NextRequestID(ctx context.Context, prefix string) (string, error)
	InsertBatch(ctx context.Context, requestID string, results []model.ValidationResult) error
	ListByRequestID(ctx context.Context, requestID string) ([]model.ValidationResult, error)
}

// ItemCatalog looks up reference data for validated products.
type ItemCatalog interface {
	Lookup(ctx context.Context, productID int64) (model.CatalogItem, error)
}

// GRNRepository loads goods receipt notes for performance reports.
type GRNRepository interface {
	LoadGRN(ctx context.Context, grnNo string) (model.GRN, error)
}

// MessageRepository writes final job text back to the owning message records.
type MessageRepository interface {
	UpdateChatContent(ctx context.Context, messageID int64, content string, metadata map[string]any) error
	// UpdateWhatsAppBody stores the reply body and returns the sender to route the reply to.
	UpdateWhatsAppBody(ctx context.Context, messageID int64, body string) (string, error)
}

// Reasoner performs a single-shot completion used by sub-validations.
type Reasoner interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GatewayNotifier forwards a finished reply to the outbound messaging gateway.
type GatewayNotifier interface {
	SendReply(ctx context.Context, reply model.GatewayReply) error
}

// StoreHealth reports whether a backing store is reachable.
type StoreHealth interface {
	Health(ctx context.Context) error
}
