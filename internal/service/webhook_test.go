package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/jobstream/config"
	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
)

type fakeEnqueuer struct {
	reqs []EnqueueRequest
	seen map[string]bool
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, req EnqueueRequest) (model.Envelope, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[req.JobID] {
		return model.Envelope{}, apperrors.Wrapf(apperrors.NotFound("exists"), apperrors.ErrCodeConflict, "job %s", req.JobID)
	}
	f.seen[req.JobID] = true
	f.reqs = append(f.reqs, req)
	return model.Envelope{JobID: req.JobID, Type: req.JobType}, nil
}

func TestNewWebhookService(t *testing.T) {
	_, err := NewWebhookService(WebhookServiceOptions{})
	require.Error(t, err)

	_, err = NewWebhookService(WebhookServiceOptions{
		Producer: &fakeEnqueuer{},
		Config:   config.WebhookConfig{MessageIDExpr: "data.[", FromExpr: "from"},
	})
	require.Error(t, err, "invalid expression rejected at construction")
}

func TestWebhookService_HandleWhatsApp(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc, err := NewWebhookService(WebhookServiceOptions{
		Producer: enq,
		Config: config.WebhookConfig{
			MessageIDExpr: "data.message.id",
			FromExpr:      "data.message.from",
			TextExpr:      "data.message.body",
		},
	})
	require.NoError(t, err)
	ctx := context.Background()
	body := []byte(`{"data":{"message":{"id":"981","from":"+15550100","body":"hola"}}}`)

	ack, err := svc.HandleWhatsApp(ctx, body)
	require.NoError(t, err)
	assert.Equal(t, WebhookAck{JobID: "wa-981"}, ack)

	require.Len(t, enq.reqs, 1)
	assert.Equal(t, model.JobTypeWhatsAppChat, enq.reqs[0].JobType)
	var payload model.WhatsAppPayload
	require.NoError(t, json.Unmarshal(enq.reqs[0].Payload, &payload))
	assert.Equal(t, model.WhatsAppPayload{MessageID: 981, From: "+15550100", Text: "hola"}, payload)

	// A gateway redelivery maps onto the same job.
	ack, err = svc.HandleWhatsApp(ctx, body)
	require.NoError(t, err)
	assert.True(t, ack.Duplicate)
	assert.Len(t, enq.reqs, 1)
}

func TestWebhookService_HandleWhatsApp_Rejects(t *testing.T) {
	svc, err := NewWebhookService(WebhookServiceOptions{Producer: &fakeEnqueuer{}})
	require.NoError(t, err)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"id":`},
		{"missing id", `{"from":"x"}`},
		{"fractional id", `{"id": 1.5}`},
		{"negative id", `{"id": -3}`},
		{"non numeric id", `{"id": "abc"}`},
		{"object id", `{"id": {"n": 1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.HandleWhatsApp(context.Background(), []byte(tt.body))
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestToMessageID(t *testing.T) {
	id, err := toMessageID(float64(12))
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	id, err = toMessageID(" 34 ")
	require.NoError(t, err)
	assert.Equal(t, int64(34), id)

	_, err = toMessageID(float64(0))
	require.Error(t, err)
}
