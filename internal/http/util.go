package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
)

// parseIntQuery returns the integer value of a query param or a default.
// It is tolerant of missing/invalid values.
func parseIntQuery(r *http.Request, key string, def int64) int64 {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

// jobRefFromRequest builds the job reference from the {id} path value and the
// type query parameter, which defaults to chat.
func jobRefFromRequest(r *http.Request) (model.JobRef, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return model.JobRef{}, apperrors.ValidationField("id", "job id is required")
	}
	jt := model.JobTypeChat
	if raw := r.URL.Query().Get("type"); raw != "" {
		if err := jt.UnmarshalText([]byte(raw)); err != nil || !jt.Streaming() {
			return model.JobRef{}, apperrors.ValidationField("type", "type must be a streaming job type")
		}
	}
	return model.JobRef{ID: id, Type: jt}, nil
}

// streamCursor returns the first chunk index an observer wants. A
// Last-Event-ID header from a reconnecting EventSource wins over ?cursor.
func streamCursor(r *http.Request) int64 {
	if last := strings.TrimSpace(r.Header.Get("Last-Event-ID")); last != "" {
		if i, err := strconv.ParseInt(last, 10, 64); err == nil && i >= 0 {
			return i + 1
		}
	}
	return max(parseIntQuery(r, "cursor", 0), 0)
}
