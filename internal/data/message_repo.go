package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/target/jobstream/internal/errors"
)

// MessageRepo writes job output back onto chat and WhatsApp message rows.
type MessageRepo struct {
	DB *sql.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{DB: db}
}

// UpdateChatContent replaces the content and metadata of a chat message.
func (r *MessageRepo) UpdateChatContent(ctx context.Context, messageID int64, content string, metadata map[string]any) error {
	if r == nil || r.DB == nil {
		return ErrNoDatabase
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal message metadata: %w", err)
	}

	res, err := r.DB.ExecContext(ctx,
		`UPDATE messages SET content = $1, metadata = $2::jsonb WHERE id = $3`,
		content, string(meta), messageID)
	if err != nil {
		return fmt.Errorf("update message %d: %w", messageID, apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update message %d: %w", messageID, err)
	}
	if n == 0 {
		return apperrors.NotFoundf("message %d not found", messageID)
	}
	return nil
}

// UpdateWhatsAppBody replaces the body of a WhatsApp message and returns the
// sender number the reply is routed to.
func (r *MessageRepo) UpdateWhatsAppBody(ctx context.Context, messageID int64, body string) (string, error) {
	if r == nil || r.DB == nil {
		return "", ErrNoDatabase
	}
	var from string
	err := r.DB.QueryRowContext(ctx,
		`UPDATE whatsapp_messages SET body = $1 WHERE id = $2 RETURNING from_number`,
		body, messageID).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NotFoundf("whatsapp message %d not found", messageID)
	}
	if err != nil {
		return "", fmt.Errorf("update whatsapp message %d: %w", messageID, apperrors.MapDBError(err))
	}
	return from, nil
}
