package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/target/jobstream/internal/data"
	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
)

type replyError string

func (e replyError) Error() string { return string(e) }
func (replyError) RedisError() {}

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }
func (timeoutError) Timeout() bool { return true }
func (timeoutError) Temporary() bool { return true }

var _ redis.Error = replyError("")
var _ net.Error = timeoutError{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("execute: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"job not found", fmt.Errorf("lookup: %w", model.ErrJobNotFound), "job_not_found"},
		{"transition", model.ErrInvalidTransition, "invalid_transition"},
		{"chunk gap", fmt.Errorf("append: %w", data.ErrChunkGap), "chunk_gap"},
		{"stale writer", fmt.Errorf("append chunk 3: %w", model.ErrJobFinished), "job_finished"},
		{"other owner", fmt.Errorf("append chunk 0: %w", model.ErrNotJobOwner), "not_job_owner"},
		{"app code", apperrors.Validation("bad payload"), "app_validation"},
		{"redis nil", redis.Nil, "store_miss"},
		{"redis loading", fmt.Errorf("claim: %w", replyError("LOADING Redis is loading the dataset in memory")), "store_loading"},
		{"redis other", replyError("ERR wrong number of arguments"), "store_error"},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutError{}}, "network_timeout"},
		{"fallback type", fmt.Errorf("open: %w", &os.PathError{Op: "open", Path: "x", Err: goerrors.ErrUnsupported}), "errors_errorstring"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
