package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/jobstream/config"
	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
)

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (j jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (j jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// JobEnqueuer starts streaming jobs. ProducerService implements it.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (model.Envelope, error)
}

// WebhookServiceOptions groups dependencies for WebhookService.
type WebhookServiceOptions struct {
	Producer  JobEnqueuer          // Required: job producer
	Config    config.WebhookConfig // Required: field selectors
	Evaluator JMESPathEvaluator    // Optional: defaults to go-jmespath
	Logger    *slog.Logger         // Optional: structured logger
}

// WebhookService turns inbound messaging gateway webhooks into whatsapp_chat jobs.
type WebhookService struct {
	producer JobEnqueuer
	cfg      config.WebhookConfig
	jems     JMESPathEvaluator
	logger   *slog.Logger
}

// WebhookAck reports the job started for a webhook delivery.
type WebhookAck struct {
	JobID     string
	Duplicate bool
}

// NewWebhookService constructs a WebhookService, rejecting invalid expressions up front.
func NewWebhookService(opts WebhookServiceOptions) (*WebhookService, error) {
	if opts.Producer == nil {
		return nil, errors.New("JobEnqueuer is required")
	}
	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}
	cfg := opts.Config
	cfg.Sanitize()
	for name, expr := range map[string]string{
		"message id": cfg.MessageIDExpr,
		"from":       cfg.FromExpr,
		"text":       cfg.TextExpr,
	} {
		if err := jems.Validate(expr); err != nil {
			return nil, fmt.Errorf("invalid %s expression %q: %w", name, expr, err)
		}
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "webhook_service")
	}
	return &WebhookService{producer: opts.Producer, cfg: cfg, jems: jems, logger: logger}, nil
}

// WhatsAppJobID is the job id used for a WhatsApp message so that gateway
// redeliveries of the same message map onto one job.
func WhatsAppJobID(messageID int64) string {
	return "wa-" + strconv.FormatInt(messageID, 10)
}

// HandleWhatsApp extracts the message reference from body and enqueues a
// whatsapp_chat job. A redelivered webhook is acknowledged as a duplicate.
func (s *WebhookService) HandleWhatsApp(ctx context.Context, body []byte) (WebhookAck, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return WebhookAck{}, apperrors.Validation("malformed webhook body: " + err.Error())
	}

	rawID, err := s.jems.Evaluate(s.cfg.MessageIDExpr, doc)
	if err != nil {
		return WebhookAck{}, apperrors.Validationf("evaluate message id: %v", err)
	}
	messageID, err := toMessageID(rawID)
	if err != nil {
		return WebhookAck{}, apperrors.ValidationField("message_id", err.Error())
	}

	payload := model.WhatsAppPayload{
		MessageID: messageID,
		From:      s.optionalString(s.cfg.FromExpr, doc),
		Text:      s.optionalString(s.cfg.TextExpr, doc),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return WebhookAck{}, fmt.Errorf("encode payload: %w", err)
	}

	jobID := WhatsAppJobID(messageID)
	_, err = s.producer.Enqueue(ctx, EnqueueRequest{
		JobType: model.JobTypeWhatsAppChat,
		JobID:   jobID,
		Payload: raw,
	})
	if apperrors.IsConflict(err) {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "duplicate webhook delivery", "job_id", jobID)
		}
		return WebhookAck{JobID: jobID, Duplicate: true}, nil
	}
	if err != nil {
		return WebhookAck{}, err
	}
	return WebhookAck{JobID: jobID}, nil
}

func (s *WebhookService) optionalString(expr string, doc any) string {
	if expr == "" {
		return ""
	}
	v, err := s.jems.Evaluate(expr, doc)
	if err != nil || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func toMessageID(v any) (int64, error) {
	var id int64
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || t > math.MaxInt64 {
			return 0, fmt.Errorf("message id %v is not an integer", t)
		}
		id = int64(t)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("message id %q is not an integer", t)
		}
		id = n
	case nil:
		return 0, errors.New("message id is required")
	default:
		return 0, fmt.Errorf("message id has unsupported type %T", v)
	}
	if id <= 0 {
		return 0, errors.New("message id must be positive")
	}
	return id, nil
}
