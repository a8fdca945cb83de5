package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/target/jobstream/internal/data/pgxutil"
	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
)

// ValidationResultRepo persists batch validation outcomes in so_validation_analysis.
type ValidationResultRepo struct {
	DB *sql.DB
}

// NewValidationResultRepo constructs a ValidationResultRepo.
func NewValidationResultRepo(db *sql.DB) *ValidationResultRepo {
	return &ValidationResultRepo{DB: db}
}

var validationColumns = []string{
	"request_id", "position", "product_id", "quantity", "weight",
	"actual_weight", "gsm", "sheets", "status", "message",
}

// NextRequestID draws the next id from so_analysis_seq and formats it as "<prefix>-<n>".
func (r *ValidationResultRepo) NextRequestID(ctx context.Context, prefix string) (string, error) {
	if r == nil || r.DB == nil {
		return "", ErrNoDatabase
	}
	var n int64
	if err := r.DB.QueryRowContext(ctx, `SELECT nextval('so_analysis_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("next request id: %w", apperrors.MapDBError(err))
	}
	return fmt.Sprintf("%s-%d", strings.TrimSpace(prefix), n), nil
}

// InsertBatch writes every result of a request in one COPY inside a single
// transaction, so readers never observe a partial batch.
func (r *ValidationResultRepo) InsertBatch(ctx context.Context, requestID string, results []model.ValidationResult) error {
	if r == nil || r.DB == nil {
		return ErrNoDatabase
	}
	if strings.TrimSpace(requestID) == "" {
		return ErrRequestIDRequired
	}
	if len(results) == 0 {
		return nil
	}

	rows := make([][]any, len(results))
	for i, res := range results {
		rows[i] = []any{
			requestID, i, res.ProductID, res.Quantity, res.UserWeight,
			res.ActualWeight, res.GSM, res.Sheets, string(res.Status), res.Message,
		}
	}

	err := pgxutil.CopyRows(ctx, r.DB, "so_validation_analysis", validationColumns, rows)
	if err != nil {
		return fmt.Errorf("insert validation results %s: %w", requestID, apperrors.MapDBError(err))
	}
	return nil
}

type validationRow struct {
	RequestID    string    `db:"request_id"`
	ProductID    int64     `db:"product_id"`
	Quantity     *float64  `db:"quantity"`
	Weight       *float64  `db:"weight"`
	ActualWeight *float64  `db:"actual_weight"`
	GSM          *float64  `db:"gsm"`
	Sheets       *int32    `db:"sheets"`
	Status       string    `db:"status"`
	Message      string    `db:"message"`
	CreatedAt    time.Time `db:"created_at"`
}

// ListByRequestID returns the results of a request in submission order. An
// unknown request yields an empty slice.
func (r *ValidationResultRepo) ListByRequestID(ctx context.Context, requestID string) ([]model.ValidationResult, error) {
	if r == nil || r.DB == nil {
		return nil, ErrNoDatabase
	}
	if strings.TrimSpace(requestID) == "" {
		return nil, ErrRequestIDRequired
	}

	const query = `
		SELECT request_id, product_id, quantity, weight, actual_weight, gsm, sheets, status, message, created_at
		FROM so_validation_analysis
		WHERE request_id = $1
		ORDER BY position ASC`

	collected, err := pgxutil.QueryStructs[validationRow](ctx, r.DB, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("list validation results %s: %w", requestID, apperrors.MapDBError(err))
	}
	out := make([]model.ValidationResult, 0, len(collected))
	for _, row := range collected {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (row validationRow) toModel() model.ValidationResult {
	res := model.ValidationResult{
		RequestID:    row.RequestID,
		ProductID:    row.ProductID,
		ActualWeight: row.ActualWeight,
		GSM:          row.GSM,
		Status:       model.ValidationStatus(row.Status),
		Message:      row.Message,
		CreatedAt:    row.CreatedAt,
	}
	if row.Quantity != nil {
		res.Quantity = *row.Quantity
	}
	if row.Weight != nil {
		res.UserWeight = *row.Weight
	}
	if row.Sheets != nil {
		s := int(*row.Sheets)
		res.Sheets = &s
	}
	return res
}
