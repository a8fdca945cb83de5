package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/target/jobstream/internal/core"
	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
	"github.com/target/jobstream/internal/observability/metrics"
	"github.com/target/jobstream/internal/observability/statsd"
	"golang.org/x/sync/errgroup"
)

// Result sources reported by ValidationService.Results.
const (
	SourceDatabase = "database"
	SourceCache    = "cache"
)

// ValidationServiceOptions groups dependencies for ValidationService.
type ValidationServiceOptions struct {
	Queue           core.ValidationQueue            // Required: input snapshots, queue and result mirror
	Results         core.ValidationResultRepository // Required: durable results and request ids
	Catalog         core.ItemCatalog                // Required for Process: item reference data
	Reasoner        core.Reasoner                   // Required for Process: single-shot reasoning
	RequestPrefix   string                          // Optional: request id prefix, defaults to "SO"
	ItemConcurrency int                             // Optional: sub-validations running at once per batch
	Logger          *slog.Logger                    // Optional: structured logger
	Metrics         statsd.Sink                     // Optional: metrics sink
}

// ValidationService submits, processes and reads sales order validation batches.
type ValidationService struct {
	queue           core.ValidationQueue
	results         core.ValidationResultRepository
	catalog         core.ItemCatalog
	reasoner        core.Reasoner
	prefix          string
	itemConcurrency int
	logger          *slog.Logger
	metrics         statsd.Sink
}

// BatchResults is the read view of one validation request.
type BatchResults struct {
	RequestID string                   `json:"request_id"`
	Status    model.BatchStatus        `json:"status"`
	Source    string                   `json:"source,omitempty"`
	Results   []model.ValidationResult `json:"results,omitempty"`
}

// NewValidationService constructs a new ValidationService.
func NewValidationService(opts ValidationServiceOptions) (*ValidationService, error) {
	if opts.Queue == nil {
		return nil, errors.New("ValidationQueue is required")
	}
	if opts.Results == nil {
		return nil, errors.New("ValidationResultRepository is required")
	}
	if strings.TrimSpace(opts.RequestPrefix) == "" {
		opts.RequestPrefix = "SO"
	}
	if opts.ItemConcurrency < 1 {
		opts.ItemConcurrency = 4
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "validation_service")
	}
	return &ValidationService{
		queue:           opts.Queue,
		results:         opts.Results,
		catalog:         opts.Catalog,
		reasoner:        opts.Reasoner,
		prefix:          strings.TrimSpace(opts.RequestPrefix),
		itemConcurrency: opts.ItemConcurrency,
		logger:          logger,
		metrics:         opts.Metrics,
	}, nil
}

// Submit validates req, allocates a request id and queues the batch.
func (s *ValidationService) Submit(ctx context.Context, req model.ValidationRequest) (string, error) {
	if err := validateStruct(&req); err != nil {
		return "", err
	}
	id, err := s.results.NextRequestID(ctx, s.prefix)
	if err != nil {
		return "", fmt.Errorf("allocate request id: %w", err)
	}
	if err := s.queue.Submit(ctx, id, req); err != nil {
		return "", fmt.Errorf("submit %s: %w", id, err)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "validation request queued", "request_id", id, "items", len(req.Items))
	}
	return id, nil
}

// Process runs every sub-validation of a queued batch, writes the results to
// durable storage, mirrors them into the shared store and drops the input.
// A failing item is recorded with status error and never aborts its siblings.
func (s *ValidationService) Process(ctx context.Context, requestID string) error {
	if s.catalog == nil || s.reasoner == nil {
		return errors.New("validation processing requires an ItemCatalog and a Reasoner")
	}
	start := time.Now()

	req, found, err := s.queue.LoadInput(ctx, requestID)
	if err != nil {
		s.mirrorBatchError(ctx, requestID, err)
		return fmt.Errorf("load input %s: %w", requestID, err)
	}
	if !found {
		return apperrors.NotFoundf("input for %s not found or expired", requestID)
	}

	results := s.ValidateItems(ctx, requestID, req.Items)

	var errs []error
	if err := s.results.InsertBatch(ctx, requestID, results); err != nil {
		errs = append(errs, fmt.Errorf("persist results: %w", err))
	}
	if err := s.queue.SaveResults(ctx, requestID, results); err != nil {
		errs = append(errs, fmt.Errorf("mirror results: %w", err))
	}
	if err := s.queue.DeleteInput(ctx, requestID); err != nil {
		errs = append(errs, fmt.Errorf("delete input: %w", err))
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "validation request processed",
			"request_id", requestID,
			"items", len(results),
			"duration", time.Since(start),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation %s: %w", requestID, errors.Join(errs...))
	}
	return nil
}

// ValidateItems runs one sub-validation per item with bounded concurrency.
// The result slice keeps the order of items.
func (s *ValidationService) ValidateItems(
	ctx context.Context,
	requestID string,
	items []model.ValidationItem,
) []model.ValidationResult {
	results := make([]model.ValidationResult, len(items))
	var g errgroup.Group
	g.SetLimit(s.itemConcurrency)
	for i, item := range items {
		g.Go(func() error {
			results[i] = s.validateItem(ctx, requestID, item)
			metrics.EmitValidationItem(s.metrics, string(results[i].Status))
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *ValidationService) validateItem(
	ctx context.Context,
	requestID string,
	item model.ValidationItem,
) (res model.ValidationResult) {
	res = model.ValidationResult{
		RequestID:  requestID,
		ProductID:  item.ProductID,
		Quantity:   item.Quantity,
		UserWeight: item.Weight,
	}
	defer func() {
		if r := recover(); r != nil {
			res.Status = model.ValidationError
			res.Message = fmt.Sprintf("validation panicked: %v", r)
		}
	}()

	catalogItem, err := s.catalog.Lookup(ctx, item.ProductID)
	if err != nil {
		return s.itemFailed(ctx, res, err)
	}
	res.ActualWeight = catalogItem.ItemGrossWeight
	res.GSM = catalogItem.GSM
	res.Sheets = catalogItem.Sheets

	answer, err := s.reasoner.Complete(ctx, reasoningPrompt(catalogItem, item))
	if err != nil {
		return s.itemFailed(ctx, res, err)
	}
	res.Status, res.Message = parseReasoning(answer)
	return res
}

func (s *ValidationService) itemFailed(ctx context.Context, res model.ValidationResult, err error) model.ValidationResult {
	res.Status = model.ValidationError
	res.Message = err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.ErrCodeNotFound {
		res.Message = appErr.Message
	} else if s.logger != nil {
		s.logger.WarnContext(ctx, "sub-validation failed",
			"request_id", res.RequestID,
			"product_id", res.ProductID,
			"error", err,
		)
	}
	return res
}

func reasoningPrompt(ci model.CatalogItem, item model.ValidationItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sales order item: %s\n", ci.Name)
	fmt.Fprintf(&b, "Reference: GSM %s, Sheets %s, Actual Weight %s\n",
		formatOptFloat(ci.GSM), formatOptInt(ci.Sheets), formatOptFloat(ci.ItemGrossWeight))
	fmt.Fprintf(&b, "Provided: Qty %s, Weight %s\n",
		strconv.FormatFloat(item.Quantity, 'f', -1, 64), strconv.FormatFloat(item.Weight, 'f', -1, 64))
	b.WriteString(`Respond only with JSON: {"status": "valid" or "invalid", "message": "<explanation>"}`)
	return b.String()
}

func formatOptFloat(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatOptInt(v *int) string {
	if v == nil {
		return "unknown"
	}
	return strconv.Itoa(*v)
}

// parseReasoning extracts {status, message} from the text between the first
// "{" and the last "}". Anything unparseable is reported as invalid with the
// raw answer as the message.
func parseReasoning(answer string) (model.ValidationStatus, string) {
	raw := strings.TrimSpace(answer)
	status, message := model.ValidationInvalid, raw

	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return status, message
	}
	var parsed struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return status, message
	}
	if st := model.ValidationStatus(strings.ToLower(strings.TrimSpace(parsed.Status))); st == model.ValidationValid || st == model.ValidationInvalid {
		status = st
	}
	if parsed.Message != "" {
		message = parsed.Message
	}
	return status, message
}

// mirrorBatchError records a whole-batch failure so readers learn why no
// per-item results exist.
func (s *ValidationService) mirrorBatchError(ctx context.Context, requestID string, cause error) {
	res := []model.ValidationResult{{RequestID: requestID, Status: model.ValidationError, Message: cause.Error()}}
	if err := s.queue.SaveResults(context.WithoutCancel(ctx), requestID, res); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to mirror batch error", "request_id", requestID, "error", err)
	}
}

// Results reads a batch from durable storage, then the shared-store mirror,
// and finally reports processing while the input snapshot still exists.
func (s *ValidationService) Results(ctx context.Context, requestID string) (BatchResults, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return BatchResults{}, apperrors.ValidationField("request_id", "request_id is required")
	}
	out := BatchResults{RequestID: requestID}

	rows, err := s.results.ListByRequestID(ctx, requestID)
	switch {
	case err != nil:
		if s.logger != nil {
			s.logger.WarnContext(ctx, "durable result lookup failed, using cache", "request_id", requestID, "error", err)
		}
	case len(rows) > 0:
		out.Status, out.Source, out.Results = model.BatchStatusDone, SourceDatabase, rows
		return out, nil
	}

	cached, found, err := s.queue.LoadResults(ctx, requestID)
	if err != nil {
		return BatchResults{}, fmt.Errorf("load cached results %s: %w", requestID, err)
	}
	if found {
		out.Status, out.Source, out.Results = model.BatchStatusDone, SourceCache, cached
		return out, nil
	}

	pending, err := s.queue.InputExists(ctx, requestID)
	if err != nil {
		return BatchResults{}, fmt.Errorf("check input %s: %w", requestID, err)
	}
	if pending {
		out.Status = model.BatchStatusProcessing
		return out, nil
	}
	return BatchResults{}, apperrors.NotFound("Results not found or expired.")
}
