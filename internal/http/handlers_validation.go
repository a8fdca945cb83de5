package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
	"github.com/target/jobstream/internal/service"
)

// BatchValidator submits validation batches and reads their results.
type BatchValidator interface {
	Submit(ctx context.Context, req model.ValidationRequest) (string, error)
	Results(ctx context.Context, requestID string) (service.BatchResults, error)
}

// ValidationHandlers provides HTTP handlers for sales order validation.
type ValidationHandlers struct {
	Svc    BatchValidator
	Logger *slog.Logger
}

// validateBody accepts either an items list or the parallel arrays
// product_ids, quantities and weights.
type validateBody struct {
	Items      []model.ValidationItem `json:"items"`
	ProductIDs []int64                `json:"product_ids"`
	Quantities []float64              `json:"quantities"`
	Weights    []float64              `json:"weights"`
}

func (b validateBody) toRequest() (model.ValidationRequest, error) {
	parallel := len(b.ProductIDs) > 0 || len(b.Quantities) > 0 || len(b.Weights) > 0
	if len(b.Items) > 0 {
		if parallel {
			return model.ValidationRequest{}, apperrors.Validation("send either items or product_ids/quantities/weights, not both")
		}
		return model.ValidationRequest{Items: b.Items}, nil
	}
	if len(b.ProductIDs) != len(b.Quantities) || len(b.ProductIDs) != len(b.Weights) {
		return model.ValidationRequest{}, apperrors.Validation("product_ids, quantities and weights must have the same length")
	}
	items := make([]model.ValidationItem, len(b.ProductIDs))
	for i, id := range b.ProductIDs {
		items[i] = model.ValidationItem{ProductID: id, Quantity: b.Quantities[i], Weight: b.Weights[i]}
	}
	return model.ValidationRequest{Items: items}, nil
}

type submitResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// Submit handles POST /so/validate.
func (h *ValidationHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var body validateBody
	if !DecodeJSON(w, r, &body) {
		return
	}
	req, err := body.toRequest()
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}

	id, err := h.Svc.Submit(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, submitResponse{RequestID: id, Status: "queued"})
}

// Results handles GET /so/results/{id}: 200 with results, 202 while the
// batch is still running, 404 when unknown or expired.
func (h *ValidationHandlers) Results(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.Results(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if res.Status == model.BatchStatusProcessing {
		WriteJSON(w, http.StatusAccepted, res)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}
