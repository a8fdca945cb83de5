package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/target/jobstream/internal/errors"
	"github.com/target/jobstream/internal/service"
)

type fakeIngester struct {
	bodies [][]byte
	ack    service.WebhookAck
	err    error
}

func (f *fakeIngester) HandleWhatsApp(_ context.Context, body []byte) (service.WebhookAck, error) {
	f.bodies = append(f.bodies, body)
	return f.ack, f.err
}

func TestWhatsAppWebhook(t *testing.T) {
	tests := []struct {
		name   string
		ing    *fakeIngester
		status int
		want   string
	}{
		{
			name:   "accepted",
			ing:    &fakeIngester{ack: service.WebhookAck{JobID: "wa-42"}},
			status: http.StatusAccepted,
			want:   `{"status":"received","job_id":"wa-42"}`,
		},
		{
			name:   "duplicate",
			ing:    &fakeIngester{ack: service.WebhookAck{JobID: "wa-42", Duplicate: true}},
			status: http.StatusAccepted,
			want:   `{"status":"received","job_id":"wa-42","duplicate":true}`,
		},
		{
			name:   "rejected",
			ing:    &fakeIngester{err: apperrors.ValidationField("message_id", "message id is required")},
			status: http.StatusBadRequest,
			want:   `{"error":"validation","message":"message id is required","field":"message_id"}`,
		},
		{
			name:   "saturated",
			ing:    &fakeIngester{err: apperrors.Unavailable("dispatcher saturated, retry later")},
			status: http.StatusServiceUnavailable,
			want:   `{"error":"unavailable","message":"dispatcher saturated, retry later"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(RouterServices{Webhook: tt.ing})
			body := `{"id":42,"from":"+15550100","body":"hi"}`
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body)))

			require.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.want, w.Body.String())
			require.Len(t, tt.ing.bodies, 1)
			assert.JSONEq(t, body, string(tt.ing.bodies[0]))
		})
	}
}

func TestWhatsAppWebhook_BodyTooLarge(t *testing.T) {
	ing := &fakeIngester{}
	h := NewRouter(RouterServices{Webhook: ing, MaxBodyBytes: 16})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(strings.Repeat("x", 64))))

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, ing.bodies)
}

func TestWebhookRoutesOptional(t *testing.T) {
	h := NewRouter(RouterServices{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader("{}")))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
