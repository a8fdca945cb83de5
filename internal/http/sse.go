package httpx

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/target/jobstream/internal/service"
)

// streamFinishedData is the payload of the terminal done event.
const streamFinishedData = "Stream finished"

//nolint:gochecknoglobals // read-only normalizer
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// sseWriter frames delivery events as text/event-stream. Writes are serialized
// because keepalive pings share the connection with the event loop.
type sseWriter struct {
	mu sync.Mutex
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

// open writes the stream headers and flushes them to the client.
func (s *sseWriter) open() error {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	return s.rc.Flush()
}

// event writes one delivery event. Message events carry their chunk index as
// the event id so a reconnecting client resumes after the last chunk it saw.
func (s *sseWriter) event(ev service.DeliveryEvent) error {
	var b strings.Builder
	if ev.Kind == service.EventMessage {
		fmt.Fprintf(&b, "id: %d\n", ev.Index)
	}
	fmt.Fprintf(&b, "event: %s\n", ev.Kind)
	data := ev.Data
	if ev.Kind == service.EventDone && data == "" {
		data = streamFinishedData
	}
	for line := range strings.SplitSeq(lineBreaks.Replace(data), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return s.write(b.String())
}

// ping writes a comment line, which clients ignore.
func (s *sseWriter) ping() error {
	return s.write(": keepalive\n\n")
}

func (s *sseWriter) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, frame); err != nil {
		return err
	}
	return s.rc.Flush()
}
