package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/target/jobstream/internal/core"
	"github.com/target/jobstream/internal/domain/model"
)

// maxLineBytes bounds a single streamed line.
const maxLineBytes = 1 << 20

// StreamExecutorOptions configures a StreamExecutor.
type StreamExecutorOptions struct {
	URL    string       // Required: generation endpoint
	Token  string       // Optional: bearer token
	Client *http.Client // Optional: base transport
}

// StreamExecutor posts the envelope to the generation endpoint and emits each
// line of the streamed response as one chunk, line break included, so the
// concatenated chunks reproduce the body with line endings normalized to \n.
// A line of the form {"error": "..."} fails the job with that message.
type StreamExecutor struct {
	url    string
	client *http.Client
}

var _ core.Executor = (*StreamExecutor)(nil)

// NewStreamExecutor constructs a StreamExecutor.
func NewStreamExecutor(opts StreamExecutorOptions) (*StreamExecutor, error) {
	u := strings.TrimSpace(opts.URL)
	if u == "" {
		return nil, errors.New("upstream url is required")
	}
	return &StreamExecutor{url: u, client: NewHTTPClient(opts.Token, 0, opts.Client)}, nil
}

// Execute implements core.Executor.
func (e *StreamExecutor) Execute(ctx context.Context, env model.Envelope, emit core.EmitFunc) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson, text/plain")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError("upstream", resp)
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	sc.Split(scanRawLines)
	for sc.Scan() {
		line := sc.Text()
		if body, ok := strings.CutSuffix(line, "\n"); ok {
			line = strings.TrimSuffix(body, "\r") + "\n"
		}
		if msg, ok := errorLine(line); ok {
			return errors.New(msg)
		}
		if err := emit(line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read upstream stream: %w", err)
	}
	return nil
}

// scanRawLines is bufio.ScanLines without dropping the line terminator.
func scanRawLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// errorLine reports whether line is an upstream error record.
func errorLine(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	var rec struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil || rec.Error == nil {
		return "", false
	}
	if *rec.Error == "" {
		return "upstream reported an error", true
	}
	return *rec.Error, true
}
