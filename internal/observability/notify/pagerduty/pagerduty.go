// Package pagerduty raises incidents for failed jobs through the Events API v2.
package pagerduty

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/target/jobstream/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

const (
	defaultSource    = "jobstream"
	defaultComponent = "dispatcher"

	actionTrigger = "trigger"
	actionResolve = "resolve"
)

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint.
	Endpoint string
}

type event struct {
	RoutingKey  string        `json:"routing_key"`
	EventAction string        `json:"event_action"`
	DedupKey    string        `json:"dedup_key,omitempty"`
	Payload     *eventPayload `json:"payload,omitempty"`
}

type eventPayload struct {
	Summary       string         `json:"summary"`
	Severity      string         `json:"severity"`
	Source        string         `json:"source"`
	Component     string         `json:"component,omitempty"`
	Group         string         `json:"group,omitempty"`
	Class         string         `json:"class,omitempty"`
	Timestamp     string         `json:"timestamp"`
	CustomDetails map[string]any `json:"custom_details"`
}

// Client publishes job failures as PagerDuty incidents. Incidents are keyed by
// "<job_type>:<job_id>" so repeated failures of one job collapse together.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	poster     *notify.Poster
}

// NewClient constructs a PagerDuty events client from config. Callers must provide a routing key.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	return &Client{
		routingKey: key,
		source:     orDefault(cfg.Source, defaultSource),
		component:  orDefault(cfg.Component, defaultComponent),
		endpoint:   orDefault(cfg.Endpoint, APIEndpoint),
		poster:     notify.NewPoster("pagerduty", cfg.Client, cfg.Timeout, cfg.RetryLimit),
	}, nil
}

// SendJobFailure triggers an incident for the failed job.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	return c.poster.PostJSON(ctx, c.endpoint, c.triggerEvent(payload))
}

// Resolve closes the incident previously raised for jobType/jobID, e.g. after
// an operator re-runs the job successfully.
func (c *Client) Resolve(ctx context.Context, jobType, jobID string) error {
	ref := notify.JobFailurePayload{JobType: jobType, JobID: jobID}.Ref()
	if ref == "" {
		return errors.New("pagerduty resolve requires a job reference")
	}
	return c.poster.PostJSON(ctx, c.endpoint, event{
		RoutingKey:  c.routingKey,
		EventAction: actionResolve,
		DedupKey:    ref,
	})
}

func (c *Client) triggerEvent(p notify.JobFailurePayload) event {
	details := make(map[string]any, len(p.Metadata)+7)
	for k, v := range p.Metadata {
		details[k] = v
	}
	// Job fields win over metadata with the same key.
	details["job_id"] = p.JobID
	details["job_type"] = p.JobType
	details["worker_id"] = p.WorkerID
	details["stage"] = p.Stage
	details["chunks"] = p.Chunks
	details["error"] = p.Error
	details["error_class"] = p.ErrorClass

	return event{
		RoutingKey:  c.routingKey,
		EventAction: actionTrigger,
		DedupKey:    p.Ref(),
		Payload: &eventPayload{
			Summary:       p.Summary(),
			Severity:      p.NormalizedSeverity(),
			Source:        c.source,
			Component:     c.component,
			Group:         p.JobType,
			Class:         p.ErrorClass,
			Timestamp:     p.Timestamp().Format(time.RFC3339),
			CustomDetails: details,
		},
	}
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
