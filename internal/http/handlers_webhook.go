package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/target/jobstream/internal/service"
)

// WhatsAppIngester turns inbound gateway webhooks into jobs.
type WhatsAppIngester interface {
	HandleWhatsApp(ctx context.Context, body []byte) (service.WebhookAck, error)
}

// WebhookHandlers provides HTTP handlers for messaging gateway webhooks.
type WebhookHandlers struct {
	Svc    WhatsAppIngester
	Logger *slog.Logger
}

type webhookResponse struct {
	Status    string `json:"status"`
	JobID     string `json:"job_id"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// WhatsApp handles POST /webhooks/whatsapp. Redeliveries of a message that
// already has a job are acknowledged the same way as the first delivery.
func (h *WebhookHandlers) WhatsApp(w http.ResponseWriter, r *http.Request) {
	body, ok := ReadBody(w, r)
	if !ok {
		return
	}
	ack, err := h.Svc.HandleWhatsApp(r.Context(), body)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, webhookResponse{Status: "received", JobID: ack.JobID, Duplicate: ack.Duplicate})
}
