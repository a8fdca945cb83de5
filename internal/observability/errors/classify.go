// Package errors normalizes error values into low-cardinality labels for metrics and logs.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/target/jobstream/internal/data"
	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
)

// sentinels are checked in order; the first match wins.
var sentinels = []struct {
	err   error
	label string
}{
	{context.DeadlineExceeded, "timeout"},
	{context.Canceled, "canceled"},
	{model.ErrJobNotFound, "job_not_found"},
	{model.ErrInvalidTransition, "invalid_transition"},
	{model.ErrUnknownJobType, "unknown_job_type"},
	{model.ErrQueueEmpty, "queue_empty"},
	{model.ErrJobFinished, "job_finished"},
	{model.ErrNotJobOwner, "not_job_owner"},
	{data.ErrJobExists, "job_exists"},
	{data.ErrChunkGap, "chunk_gap"},
	{data.ErrChunkConflict, "chunk_conflict"},
	{data.ErrMalformedEnvelope, "malformed_envelope"},
	{data.ErrNoDatabase, "no_database"},
	{redis.Nil, "store_miss"},
	{redis.ErrPoolTimeout, "store_pool_timeout"},
}

// storeReplies maps Redis error reply prefixes to labels. Anything else is store_error.
var storeReplies = map[string]string{
	"LOADING":     "store_loading",
	"READONLY":    "store_readonly",
	"CLUSTERDOWN": "store_clusterdown",
	"MASTERDOWN":  "store_masterdown",
	"TRYAGAIN":    "store_tryagain",
	"NOSCRIPT":    "store_noscript",
	"OOM":         "store_oom",
	"BUSY":        "store_busy",
}

// Classify returns a normalized error type name suitable for tagging metrics/logs.
// Known sentinels and application codes map to fixed labels, store and network
// failures to coarse families; anything else unwraps to its innermost concrete
// type, rendered snake_case-ish.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	for _, s := range sentinels {
		if goerrors.Is(err, s.err) {
			return s.label
		}
	}

	var appErr *apperrors.AppError
	if goerrors.As(err, &appErr) && appErr.Code != "" {
		return "app_" + string(appErr.Code)
	}

	var redisErr redis.Error
	if goerrors.As(err, &redisErr) {
		word, _, _ := strings.Cut(redisErr.Error(), " ")
		if label, ok := storeReplies[word]; ok {
			return label
		}
		return "store_error"
	}

	var netErr net.Error
	if goerrors.As(err, &netErr) {
		if netErr.Timeout() {
			return "network_timeout"
		}
		return "network"
	}

	return typeName(err)
}

func typeName(err error) string {
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(t.String())
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
