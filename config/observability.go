package config

import (
	"strings"
	"time"
)

const defaultMetricsPrefix = "jobstream"

// ObservabilityConfig groups configuration that controls metrics emission and failure alerts.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to StatsD and the Prometheus endpoint.
type ObservabilityMetricsConfig struct {
	StatsdEnabled bool   `env:"OBSERVABILITY_METRICS_STATSD_ENABLED" envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`

	// StatsdFlushInterval batches lines into packets; zero sends each line immediately.
	StatsdFlushInterval time.Duration `env:"OBSERVABILITY_METRICS_STATSD_FLUSH_INTERVAL" envDefault:"1s"`

	// PrometheusEnabled exposes GET /metrics on the HTTP server.
	PrometheusEnabled bool `env:"OBSERVABILITY_METRICS_PROMETHEUS_ENABLED" envDefault:"true"`

	Prefix string `env:"OBSERVABILITY_METRICS_PREFIX" envDefault:"jobstream"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.StatsdEnabled = false
	}
	if c.StatsdFlushInterval < 0 {
		c.StatsdFlushInterval = 0
	}
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.Prefix == "" {
		c.Prefix = defaultMetricsPrefix
	}
}

// StatsdActive returns true when StatsD emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) StatsdActive() bool {
	return c.StatsdEnabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls outbound alerts for jobs that end in error.
type ObservabilityNotificationsConfig struct {
	Enabled    bool          `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`

	// SuppressWindow drops repeat alerts for the same job; negative disables.
	SuppressWindow time.Duration `env:"OBSERVABILITY_NOTIFICATIONS_SUPPRESS_WINDOW" envDefault:"5m"`

	// JobTypes limits alerts to these job types; empty alerts on every type.
	JobTypes  []string                    `env:"OBSERVABILITY_NOTIFICATIONS_JOB_TYPES"`
	Slack     SlackNotificationConfig     `                                                     envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
	PagerDuty PagerDutyNotificationConfig `                                                     envPrefix:"OBSERVABILITY_NOTIFICATIONS_PAGERDUTY_"`
}

// Sanitize normalises notification configuration values.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}

	types := c.JobTypes[:0]
	for _, t := range c.JobTypes {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	c.JobTypes = types

	c.Slack.sanitize()
	c.PagerDuty.sanitize()

	if !c.Enabled {
		c.Slack.Enabled = false
		c.PagerDuty.Enabled = false
		return
	}

	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		c.Slack.Enabled = false
	}

	if c.PagerDuty.Enabled && c.PagerDuty.RoutingKey == "" {
		c.PagerDuty.Enabled = false
	}
}

// SlackNotificationConfig controls Slack webhook fan-out.
type SlackNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"      envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME"     envDefault:"jobstream"`
	// APIBaseURL is the public base URL of this service, used to link job results.
	APIBaseURL string `env:"API_BASE_URL"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.APIBaseURL = strings.TrimSpace(c.APIBaseURL)
	if c.Username = strings.TrimSpace(c.Username); c.Username == "" {
		c.Username = defaultMetricsPrefix
	}
}

// PagerDutyNotificationConfig controls PagerDuty Events API v2 fan-out.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"jobstream"`
	Component  string `env:"COMPONENT"   envDefault:"dispatcher"`
}

func (c *PagerDutyNotificationConfig) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	if c.Source = strings.TrimSpace(c.Source); c.Source == "" {
		c.Source = defaultMetricsPrefix
	}
	if c.Component = strings.TrimSpace(c.Component); c.Component == "" {
		c.Component = "dispatcher"
	}
}
