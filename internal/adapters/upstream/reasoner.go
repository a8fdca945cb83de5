package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/target/jobstream/internal/core"
)

const maxCompletionBytes = 1 << 20

// ReasonerOptions configures a Reasoner.
type ReasonerOptions struct {
	URL     string        // Required: single-shot completion endpoint
	Token   string        // Optional: bearer token
	Timeout time.Duration // Optional: per-call bound, defaults to 60s
	Client  *http.Client  // Optional: base transport
}

// Reasoner performs single-shot completions against the upstream endpoint.
type Reasoner struct {
	url    string
	client *http.Client
}

var _ core.Reasoner = (*Reasoner)(nil)

// NewReasoner constructs a Reasoner.
func NewReasoner(opts ReasonerOptions) (*Reasoner, error) {
	u := strings.TrimSpace(opts.URL)
	if u == "" {
		return nil, errors.New("completion url is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Reasoner{url: u, client: NewHTTPClient(opts.Token, timeout, opts.Client)}, nil
}

// Complete posts {"prompt": prompt} and returns the answer text. A JSON
// response with a "text" field is unwrapped; any other body is returned as-is.
func (r *Reasoner) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError("completion", resp)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCompletionBytes))
	if err != nil {
		return "", fmt.Errorf("read completion: %w", err)
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var wrapped struct {
			Text *string `json:"text"`
		}
		if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Text != nil {
			return *wrapped.Text, nil
		}
	}
	return string(raw), nil
}
