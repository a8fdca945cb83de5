// Package metrics holds the metric vocabulary of the job pipeline and the sinks that carry it.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/target/jobstream/internal/observability/errors"
	"github.com/target/jobstream/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultNoop     = "noop"
	ResultRejected = "rejected"
)

// Transition labels for job lifecycle metrics.
const (
	TransitionEnqueued  = "enqueued"
	TransitionClaimed   = "claimed"
	TransitionCompleted = "completed"
	TransitionFailed    = "failed"
	TransitionReclaimed = "reclaimed"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	JobType    string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	// error_class is always present so every sample carries the same label set.
	tags := map[string]string{
		"job_type":    in.JobType,
		"transition":  in.Transition,
		"result":      in.Result,
		"error_class": "none",
	}
	if in.Err != nil && in.Result != ResultSuccess {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// EmitChunk counts one persisted stream chunk.
func EmitChunk(sink statsd.Sink, jobType string, size int) {
	if sink == nil {
		return
	}
	tags := map[string]string{"job_type": jobType}
	sink.Count("job.chunks", 1, tags)
	sink.Count("job.chunk_bytes", int64(size), CloneTags(tags))
}

// EmitQueueDepth records the observed backlog of a queue.
func EmitQueueDepth(sink statsd.Sink, queue string, depth int64) {
	if sink == nil {
		return
	}
	sink.Gauge("queue.depth", float64(depth), map[string]string{"queue": queue})
}

// EmitInFlight records how many jobs a dispatcher is currently executing.
func EmitInFlight(sink statsd.Sink, queue string, n int) {
	if sink == nil {
		return
	}
	sink.Gauge("dispatcher.in_flight", float64(n), map[string]string{"queue": queue})
}

// EmitValidationItem counts one validated batch item by outcome.
func EmitValidationItem(sink statsd.Sink, status string) {
	if sink == nil {
		return
	}
	sink.Count("validation.items", 1, map[string]string{"status": status})
}

// EmitDeliverySession records one observer session ending with the given outcome.
func EmitDeliverySession(sink statsd.Sink, transport, outcome string, d time.Duration) {
	if sink == nil {
		return
	}
	tags := map[string]string{"transport": transport, "outcome": outcome}
	sink.Count("delivery.sessions", 1, tags)
	if d > 0 {
		sink.Timing("delivery.session_duration", d, CloneTags(tags))
	}
}

// Cache tiers and operations for cache metrics.
const (
	CacheTierLocal  = "local"
	CacheTierShared = "shared"
	CacheTierRepo   = "repo"

	CacheOpHit  = "hit"
	CacheOpMiss = "miss"
)

// EmitCacheEvent counts one lookup against a cache tier.
func EmitCacheEvent(sink statsd.Sink, cache, tier, op string) {
	if sink == nil {
		return
	}
	sink.Count("cache.lookup", 1, map[string]string{"cache": cache, "tier": tier, "op": op})
}

// EmitAlertDelivery records one failure alert handed to a sink. result is
// ResultSuccess, ResultError or ResultNoop (suppressed duplicate).
func EmitAlertDelivery(sink statsd.Sink, sinkName, result string, d time.Duration) {
	if sink == nil {
		return
	}
	tags := map[string]string{"sink": sinkName, "result": result}
	sink.Count("alerts.delivered", 1, tags)
	if d > 0 {
		sink.Timing("alerts.delivery_duration", d, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}
