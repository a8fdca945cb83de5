package notify

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
)

const (
	defaultPostTimeout = 5 * time.Second
	defaultPostBackoff = 200 * time.Millisecond
	maxErrorBody       = 4 << 10
)

// StatusError is a non-2xx answer from an alerting endpoint.
type StatusError struct {
	Service string
	Code    int
	Status  string
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Service, e.Status, e.Body)
}

// Retryable reports whether resending the same document may succeed.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// Poster sends JSON documents to an alerting endpoint. Transport errors, 429s
// and 5xx answers are retried with linear backoff; other 4xx answers are final.
type Poster struct {
	service string
	client  *http.Client
	retries int
	backoff time.Duration
}

// NewPoster builds a Poster. A nil client gets one bounded by timeout.
func NewPoster(service string, client *http.Client, timeout time.Duration, retries int) *Poster {
	if timeout <= 0 {
		timeout = defaultPostTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Poster{
		service: service,
		client:  client,
		retries: max(retries, 0),
		backoff: defaultPostBackoff,
	}
}

// PostJSON encodes doc once and delivers it to endpoint.
func (p *Poster) PostJSON(ctx context.Context, endpoint string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", p.service, err)
	}

	var lastErr error
	for attempt := range p.retries + 1 {
		if attempt > 0 {
			if err := sleepCtx(ctx, time.Duration(attempt)*p.backoff); err != nil {
				return err
			}
		}
		lastErr = p.post(ctx, endpoint, body)
		if lastErr == nil {
			return nil
		}
		var se *StatusError
		if errors.As(lastErr, &se) && !se.Retryable() {
			return lastErr
		}
	}
	return lastErr
}

func (p *Poster) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", p.service, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drain so the keep-alive connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		return fmt.Errorf("read %s error response: %w", p.service, readErr)
	}
	return &StatusError{
		Service: p.service,
		Code:    resp.StatusCode,
		Status:  resp.Status,
		Body:    strings.TrimSpace(string(raw)),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
