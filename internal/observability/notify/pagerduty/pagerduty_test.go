package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/jobstream/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{RoutingKey: "  "})
	require.Error(t, err)
}

func TestTriggerEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	require.NoError(t, err)

	ev := client.triggerEvent(notify.JobFailurePayload{
		JobID:      "123",
		JobType:    "chat",
		WorkerID:   "host-a1",
		Stage:      notify.StageLease,
		Chunks:     3,
		Error:      "worker lease expired",
		ErrorClass: "lease_expired",
		Severity:   "LOUD",
		Metadata:   map[string]string{"job_id": "ignored", "region": "us"},
	})

	assert.Equal(t, "trigger", ev.EventAction)
	assert.Equal(t, "chat:123", ev.DedupKey)
	require.NotNil(t, ev.Payload)
	assert.Equal(t, notify.SeverityCritical, ev.Payload.Severity)
	assert.Equal(t, "jobstream", ev.Payload.Source)
	assert.Equal(t, "dispatcher", ev.Payload.Component)
	assert.Equal(t, "chat", ev.Payload.Group)
	assert.Equal(t, "lease_expired", ev.Payload.Class)
	assert.Equal(t, "Job 123 (chat) failed during lease after 3 chunk(s)", ev.Payload.Summary)
	assert.Equal(t, "123", ev.Payload.CustomDetails["job_id"])
	assert.Equal(t, "us", ev.Payload.CustomDetails["region"])
}

func TestSendJobFailurePostsEvent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL})
	require.NoError(t, err)
	require.NoError(t, client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "J1", JobType: "chat"}))

	assert.Equal(t, "key", got["routing_key"])
	assert.Equal(t, "trigger", got["event_action"])
	assert.Equal(t, "chat:J1", got["dedup_key"])
}

func TestResolvePostsResolveEvent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL})
	require.NoError(t, err)
	require.NoError(t, client.Resolve(context.Background(), "chat", "J1"))

	assert.Equal(t, "resolve", got["event_action"])
	assert.Equal(t, "chat:J1", got["dedup_key"])
	assert.NotContains(t, got, "payload")

	require.Error(t, client.Resolve(context.Background(), "", ""))
}

func TestSendJobFailureDoesNotRetryRejectedEvent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"status":"invalid event"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL, RetryLimit: 3})
	require.NoError(t, err)

	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "J1"})
	require.ErrorContains(t, err, "invalid event")
	assert.EqualValues(t, 1, calls.Load())
}
