package config

import (
	"strings"
	"time"
)

// ExecutorConfig configures the upstream generation endpoint that executors stream from.
type ExecutorConfig struct {
	// UpstreamURL receives the job envelope and streams newline-delimited text back.
	// Empty in dev mode selects the echo executor.
	UpstreamURL string `env:"EXECUTOR_UPSTREAM_URL"`

	// CompleteURL receives single-shot prompts used by batch validation.
	// Defaults to UpstreamURL.
	CompleteURL string `env:"EXECUTOR_COMPLETE_URL"`

	// Token is sent as a bearer token to the upstream.
	Token string `env:"EXECUTOR_TOKEN"`

	// Timeout bounds a single-shot completion call.
	Timeout time.Duration `env:"EXECUTOR_TIMEOUT" envDefault:"60s"`

	// EchoDelay spaces out chunks from the dev echo executor.
	EchoDelay time.Duration `env:"EXECUTOR_ECHO_DELAY" envDefault:"50ms"`
}

// Sanitize normalises executor configuration values.
func (e *ExecutorConfig) Sanitize() {
	e.UpstreamURL = strings.TrimSpace(e.UpstreamURL)
	e.CompleteURL = strings.TrimSpace(e.CompleteURL)
	if e.CompleteURL == "" {
		e.CompleteURL = e.UpstreamURL
	}
	e.Token = strings.TrimSpace(e.Token)
	if e.Timeout <= 0 {
		e.Timeout = 60 * time.Second
	}
	if e.EchoDelay < 0 {
		e.EchoDelay = 0
	}
}

// Enabled reports whether an upstream executor endpoint is configured.
func (e *ExecutorConfig) Enabled() bool {
	return e.UpstreamURL != ""
}

// GatewayConfig configures the outbound messaging gateway notified when a
// whatsapp_chat job finishes.
type GatewayConfig struct {
	URL     string        `env:"GATEWAY_URL"`
	Token   string        `env:"GATEWAY_TOKEN"`
	Timeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	// RetryLimit is the number of retries after a 5xx or 429 reply.
	RetryLimit int `env:"GATEWAY_RETRY_LIMIT" envDefault:"2"`
}

// Sanitize normalises gateway configuration values.
func (g *GatewayConfig) Sanitize() {
	g.URL = strings.TrimSpace(g.URL)
	g.Token = strings.TrimSpace(g.Token)
	if g.Timeout <= 0 {
		g.Timeout = 10 * time.Second
	}
	if g.RetryLimit < 0 {
		g.RetryLimit = 0
	}
}

// Enabled reports whether the gateway should be notified.
func (g *GatewayConfig) Enabled() bool {
	return g.URL != ""
}

// WebhookConfig configures the inbound WhatsApp webhook.
type WebhookConfig struct {
	// MessageIDExpr is a JMESPath expression selecting the message id from the webhook body.
	MessageIDExpr string `env:"WEBHOOK_WHATSAPP_ID_EXPR"   envDefault:"id"`
	// FromExpr selects the sender; optional.
	FromExpr string `env:"WEBHOOK_WHATSAPP_FROM_EXPR" envDefault:"from"`
	// TextExpr selects the message text; optional.
	TextExpr string `env:"WEBHOOK_WHATSAPP_TEXT_EXPR" envDefault:"body"`
}

// Sanitize normalises webhook configuration values.
func (w *WebhookConfig) Sanitize() {
	w.MessageIDExpr = strings.TrimSpace(w.MessageIDExpr)
	if w.MessageIDExpr == "" {
		w.MessageIDExpr = "id"
	}
	w.FromExpr = strings.TrimSpace(w.FromExpr)
	w.TextExpr = strings.TrimSpace(w.TextExpr)
}
