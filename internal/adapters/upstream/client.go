// Package upstream holds the HTTP adapters for the generation endpoint and the
// outbound messaging gateway.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 4 << 10

// NewHTTPClient returns a client that sends token as a bearer credential.
// An empty token yields a plain client. timeout 0 leaves the client unbounded,
// which streaming callers rely on; they bound work through the request context.
func NewHTTPClient(token string, timeout time.Duration, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	var hc *http.Client
	if token = strings.TrimSpace(token); token == "" {
		clone := *base
		hc = &clone
	} else {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	}
	hc.Timeout = timeout
	return hc
}

// statusError reads a bounded excerpt of a non-2xx response and closes the body.
func statusError(prefix string, resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	closeErr := resp.Body.Close()
	err := fmt.Errorf("%s %s: %s", prefix, resp.Status, strings.TrimSpace(string(body)))
	if readErr != nil || closeErr != nil {
		return errors.Join(err, readErr, closeErr)
	}
	return err
}

// drainAndClose lets the transport reuse the connection.
func drainAndClose(resp *http.Response) error {
	_, copyErr := io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	closeErr := resp.Body.Close()
	if copyErr != nil {
		return fmt.Errorf("drain response body: %w", copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close response body: %w", closeErr)
	}
	return nil
}
