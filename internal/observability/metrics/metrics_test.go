package metrics

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	counts  map[string]int64
	gauges  map[string]float64
	timings map[string]int
	tags    []map[string]string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		counts:  map[string]int64{},
		gauges:  map[string]float64{},
		timings: map[string]int{},
	}
}

func (r *recordingSink) Count(name string, value int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name] += value
	r.tags = append(r.tags, tags)
}

func (r *recordingSink) Gauge(name string, value float64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = value
}

func (r *recordingSink) Timing(name string, _ time.Duration, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings[name]++
}

func TestEmitJobLifecycle(t *testing.T) {
	sink := newRecordingSink()

	EmitJobLifecycle(sink, JobMetric{
		JobType:    "chat",
		Transition: TransitionFailed,
		Result:     ResultError,
		Duration:   time.Second,
		Err:        errors.New("boom"),
	})

	assert.Equal(t, int64(1), sink.counts["job.transition"])
	assert.Equal(t, 1, sink.timings["job.duration"])
	require.Len(t, sink.tags, 1)
	assert.Equal(t, "chat", sink.tags[0]["job_type"])
	assert.NotEmpty(t, sink.tags[0]["error_class"])

	EmitJobLifecycle(nil, JobMetric{})
}

func TestPrometheusSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink("jobstream", reg)

	sink.Count("job.transition", 1, map[string]string{"job_type": "chat", "result": "success"})
	sink.Count("job.transition", 2, map[string]string{"job_type": "chat", "result": "success"})
	// Unknown labels are dropped, missing ones are blank.
	sink.Count("job.transition", 1, map[string]string{"job_type": "chat", "extra": "x"})
	sink.Gauge("queue.depth", 7, map[string]string{"queue": "jobs:queue"})
	sink.Timing("job.duration", 250*time.Millisecond, map[string]string{"job_type": "chat"})

	expected := `
# HELP jobstream_job_transition_total Count of job.transition events.
# TYPE jobstream_job_transition_total counter
jobstream_job_transition_total{job_type="chat",result=""} 1
jobstream_job_transition_total{job_type="chat",result="success"} 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "jobstream_job_transition_total"))

	gauge := `
# HELP jobstream_queue_depth Current value of queue.depth.
# TYPE jobstream_queue_depth gauge
jobstream_queue_depth{queue="jobs:queue"} 7
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(gauge), "jobstream_queue_depth"))

	n, err := testutil.GatherAndCount(reg, "jobstream_job_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPrometheusSinkSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewPrometheusSink("jobstream", reg)
	b := NewPrometheusSink("jobstream", reg)

	a.Count("reaper.reclaimed", 1, map[string]string{"job_type": "chat"})
	b.Count("reaper.reclaimed", 1, map[string]string{"job_type": "chat"})

	expected := `
# HELP jobstream_reaper_reclaimed_total Count of reaper.reclaimed events.
# TYPE jobstream_reaper_reclaimed_total counter
jobstream_reaper_reclaimed_total{job_type="chat"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "jobstream_reaper_reclaimed_total"))
}

func TestNewMultiSink(t *testing.T) {
	assert.Nil(t, NewMultiSink(nil, nil))

	one := newRecordingSink()
	assert.Same(t, one, NewMultiSink(nil, one))

	two := newRecordingSink()
	multi := NewMultiSink(one, two)
	multi.Count("job.chunks", 1, map[string]string{"job_type": "chat"})
	multi.Gauge("queue.depth", 3, nil)

	assert.Equal(t, int64(1), one.counts["job.chunks"])
	assert.Equal(t, int64(1), two.counts["job.chunks"])
	assert.InDelta(t, 3.0, two.gauges["queue.depth"], 0)
}
