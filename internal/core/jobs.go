// Package core defines the ports shared by the jobstream services and adapters.
package core

import (
	"context"

	"github.com/target/jobstream/internal/domain/model"
	"github.com/target/jobstream/internal/observability/notify"
)

// EmitFunc receives one chunk of executor output. A returned error aborts the executor.
type EmitFunc func(chunk string) error

// Executor produces the output of a job as an ordered sequence of chunks.
// It returns nil on success; any error marks the job failed with its message.
type Executor interface {
	Execute(ctx context.Context, env model.Envelope, emit EmitFunc) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, env model.Envelope, emit EmitFunc) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, env model.Envelope, emit EmitFunc) error {
	return f(ctx, env, emit)
}

// PersistFunc hands the final text of a finished job to its owner.
type PersistFunc func(ctx context.Context, env model.Envelope, text string) error

// PersistFailureFunc records a failed job on its owner.
type PersistFailureFunc func(ctx context.Context, env model.Envelope, errMsg string) error

// FailureNotifier is told about every job that ends in error.
type FailureNotifier interface {
	NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload)
}
