package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/target/jobstream/internal/data/pgxutil"
	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
)

// GRNRepo reads goods receipt notes from grns and grn_items.
type GRNRepo struct {
	DB *sql.DB
}

// NewGRNRepo constructs a GRNRepo.
func NewGRNRepo(db *sql.DB) *GRNRepo {
	return &GRNRepo{DB: db}
}

type grnItemRow struct {
	POQuantity       float64 `db:"po_quantity"`
	ReceivedQuantity float64 `db:"received_quantity"`
	DamagedQuantity  float64 `db:"damaged_quantity"`
}

// LoadGRN returns the note numbered grnNo with its lines in insertion order,
// or an ErrCodeNotFound AppError when no such note exists.
func (r *GRNRepo) LoadGRN(ctx context.Context, grnNo string) (model.GRN, error) {
	if r == nil || r.DB == nil {
		return model.GRN{}, ErrNoDatabase
	}
	grnNo = strings.TrimSpace(grnNo)
	if grnNo == "" {
		return model.GRN{}, apperrors.ValidationField("grn_number", "grn_number is required")
	}

	var (
		id                 int64
		expected, received sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, expected_delivery_date, actual_receipt_date FROM grns WHERE grn_no = $1`,
		grnNo,
	).Scan(&id, &expected, &received)
	if errors.Is(err, sql.ErrNoRows) {
		return model.GRN{}, apperrors.NotFound("GRN not found")
	}
	if err != nil {
		return model.GRN{}, fmt.Errorf("load grn %s: %w", grnNo, apperrors.MapDBError(err))
	}

	const itemsQuery = `
		SELECT po_quantity, received_quantity, damaged_quantity
		FROM grn_items
		WHERE grn_id = $1
		ORDER BY id ASC`

	rows, err := pgxutil.QueryStructs[grnItemRow](ctx, r.DB, itemsQuery, id)
	if err != nil {
		return model.GRN{}, fmt.Errorf("load grn items %s: %w", grnNo, apperrors.MapDBError(err))
	}

	grn := model.GRN{ID: id, Number: grnNo, Items: make([]model.GRNItem, 0, len(rows))}
	if expected.Valid {
		grn.ExpectedDeliveryDate = &expected.Time
	}
	if received.Valid {
		grn.ActualReceiptDate = &received.Time
	}
	for _, row := range rows {
		grn.Items = append(grn.Items, model.GRNItem(row))
	}
	return grn, nil
}
