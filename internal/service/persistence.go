package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/target/jobstream/internal/core"
	"github.com/target/jobstream/internal/domain/model"
)

// ChatPersister writes the final reply of a chat job into its placeholder message.
type ChatPersister struct {
	Messages core.MessageRepository
}

// Persist stores the trimmed reply and flags the message processed.
func (p ChatPersister) Persist(ctx context.Context, env model.Envelope, text string) error {
	var payload model.ChatPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode chat payload: %w", err)
	}
	return p.Messages.UpdateChatContent(ctx, payload.MessageID, strings.TrimSpace(text), map[string]any{"processed": true})
}

// PersistFailure stores the error text on the message and flags it failed.
func (p ChatPersister) PersistFailure(ctx context.Context, env model.Envelope, errMsg string) error {
	var payload model.ChatPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode chat payload: %w", err)
	}
	return p.Messages.UpdateChatContent(ctx, payload.MessageID, ErrorChunk(errMsg), map[string]any{"error": true})
}

// WhatsAppPersister stores a whatsapp_chat reply and forwards it to the messaging gateway.
type WhatsAppPersister struct {
	Messages core.MessageRepository
	Gateway  core.GatewayNotifier // Optional: nil skips outbound delivery
	Logger   *slog.Logger
}

// Persist writes the reply body and posts it to the gateway, routed to the original sender.
func (p WhatsAppPersister) Persist(ctx context.Context, env model.Envelope, text string) error {
	var payload model.WhatsAppPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode whatsapp payload: %w", err)
	}
	text = strings.TrimSpace(text)
	from, err := p.Messages.UpdateWhatsAppBody(ctx, payload.MessageID, text)
	if err != nil {
		return err
	}
	if p.Gateway == nil {
		return nil
	}
	to := from
	if to == "" {
		to = payload.From
	}
	if to == "" {
		return errors.New("no recipient for whatsapp reply")
	}
	if err := p.Gateway.SendReply(ctx, model.GatewayReply{MessageID: payload.MessageID, To: to, Text: text}); err != nil {
		return fmt.Errorf("notify gateway: %w", err)
	}
	return nil
}

// PersistFailure logs the failure; the sender receives nothing for failed jobs.
func (p WhatsAppPersister) PersistFailure(ctx context.Context, env model.Envelope, errMsg string) error {
	if p.Logger != nil {
		p.Logger.WarnContext(ctx, "whatsapp reply failed", "job_id", env.JobID, "error", errMsg)
	}
	return nil
}
