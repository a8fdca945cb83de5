// Package slack posts job failure alerts to an incoming webhook.
package slack

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/target/jobstream/internal/observability/notify"
)

const defaultUsername = "jobstream"

var severityColors = map[string]string{
	notify.SeverityCritical: "#d0021b",
	notify.SeverityError:    "#f5a623",
	notify.SeverityWarning:  "#f8e71c",
}

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// APIBaseURL, when set, turns the job id into a link to its result endpoint.
	APIBaseURL string
}

type message struct {
	Text        string       `json:"text"`
	Username    string       `json:"username,omitempty"`
	Channel     string       `json:"channel,omitempty"`
	Attachments []attachment `json:"attachments,omitempty"`
}

type attachment struct {
	Color    string   `json:"color"`
	Fallback string   `json:"fallback"`
	Fields   []field  `json:"fields"`
	Footer   string   `json:"footer,omitempty"`
	TS       int64    `json:"ts"`
	Markdown []string `json:"mrkdwn_in,omitempty"`
}

type field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Client delivers job failure notifications to a Slack webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	resultBase *url.URL
	poster     *notify.Poster
}

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = defaultUsername
	}

	return &Client{
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   username,
		resultBase: parseBase(cfg.APIBaseURL),
		poster:     notify.NewPoster("slack webhook", cfg.Client, cfg.Timeout, cfg.RetryLimit),
	}, nil
}

// SendJobFailure posts a formatted message to Slack.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	return c.poster.PostJSON(ctx, c.webhookURL, c.buildMessage(payload))
}

func (c *Client) buildMessage(p notify.JobFailurePayload) message {
	severity := p.NormalizedSeverity()

	fields := make([]field, 0, 6+len(p.Metadata))
	add := func(title, value string, short bool) {
		if strings.TrimSpace(value) != "" {
			fields = append(fields, field{Title: title, Value: value, Short: short})
		}
	}
	add("Severity", severity, true)
	add("Stage", p.Stage, true)
	add("Worker", mrkdwnEscaper.Replace(p.WorkerID), true)
	if p.Chunks > 0 {
		add("Chunks streamed", strconv.FormatInt(p.Chunks, 10), true)
	}
	add("Error class", p.ErrorClass, true)
	add("Error", mrkdwnEscaper.Replace(p.Error), false)

	keys := make([]string, 0, len(p.Metadata))
	for k := range p.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, mrkdwnEscaper.Replace(p.Metadata[k]), true)
	}

	return message{
		Text:     c.headline(p),
		Username: c.username,
		Channel:  c.channel,
		Attachments: []attachment{{
			Color:    severityColors[severity],
			Fallback: p.Summary(),
			Fields:   fields,
			Footer:   p.Ref(),
			TS:       p.Timestamp().Unix(),
			Markdown: []string{"fields"},
		}},
	}
}

func (c *Client) headline(p notify.JobFailurePayload) string {
	var b strings.Builder
	b.WriteString("*Job failure alert*")
	if p.JobID != "" {
		if link := c.resultLink(p.JobID, p.JobType); link != "" {
			b.WriteString(" <" + link + "|" + mrkdwnEscaper.Replace(p.JobID) + ">")
		} else {
			b.WriteString(" `" + p.JobID + "`")
		}
	}
	if p.JobType != "" {
		b.WriteString(" (" + p.JobType + ")")
	}
	return b.String()
}

// resultLink returns <base>/jobs/<id>/result?type=<type>, or "" when no usable
// base URL is configured.
func (c *Client) resultLink(jobID, jobType string) string {
	if c.resultBase == nil || jobID == "" {
		return ""
	}
	u := c.resultBase.JoinPath("jobs", jobID, "result")
	if jobType != "" {
		u.RawQuery = url.Values{"type": {jobType}}.Encode()
	}
	return u.String()
}

func parseBase(raw string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return u
}
