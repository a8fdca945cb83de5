package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/target/jobstream/internal/core"
	"github.com/target/jobstream/internal/domain/model"
)

// GatewayOptions configures a GatewayClient.
type GatewayOptions struct {
	URL        string
	Token      string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// GatewayClient posts finished WhatsApp replies to the messaging gateway.
type GatewayClient struct {
	url        string
	retryLimit int
	client     *http.Client
}

var _ core.GatewayNotifier = (*GatewayClient)(nil)

// NewGatewayClient builds a gateway client. Callers should pass a validated config.
func NewGatewayClient(opts GatewayOptions) (*GatewayClient, error) {
	u := strings.TrimSpace(opts.URL)
	if u == "" {
		return nil, errors.New("gateway url is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GatewayClient{
		url:        u,
		retryLimit: max(opts.RetryLimit, 0),
		client:     NewHTTPClient(opts.Token, timeout, opts.Client),
	}, nil
}

// SendReply posts reply, retrying server errors with a linear backoff.
func (c *GatewayClient) SendReply(ctx context.Context, reply model.GatewayReply) error {
	body, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("encode gateway reply: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		retryable, err := c.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * 200 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (c *GatewayClient) post(ctx context.Context, body []byte) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("gateway request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests, statusError("gateway", resp)
	}
	return false, drainAndClose(resp)
}
