package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
)

// ItemCatalogRepo reads product reference data from item_master.
type ItemCatalogRepo struct {
	DB *sql.DB
}

// NewItemCatalogRepo constructs an ItemCatalogRepo.
func NewItemCatalogRepo(db *sql.DB) *ItemCatalogRepo {
	return &ItemCatalogRepo{DB: db}
}

// Lookup returns the most recent catalog entry for productID, or an
// ErrCodeNotFound AppError when the product is unknown.
func (r *ItemCatalogRepo) Lookup(ctx context.Context, productID int64) (model.CatalogItem, error) {
	if r == nil || r.DB == nil {
		return model.CatalogItem{}, ErrNoDatabase
	}

	const query = `
		SELECT gsm, number_of_sheets, item_gross_weight, item_name
		FROM item_master
		WHERE product_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var (
		gsm, weight sql.NullFloat64
		sheets      sql.NullInt32
		name        string
	)
	err := r.DB.QueryRowContext(ctx, query, productID).Scan(&gsm, &sheets, &weight, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CatalogItem{}, apperrors.NotFoundf("Product ID %d not found.", productID)
	}
	if err != nil {
		return model.CatalogItem{}, fmt.Errorf("lookup product %d: %w", productID, apperrors.MapDBError(err))
	}

	item := model.CatalogItem{ProductID: productID, Name: name}
	if gsm.Valid {
		item.GSM = &gsm.Float64
	}
	if sheets.Valid {
		s := int(sheets.Int32)
		item.Sheets = &s
	}
	if weight.Valid {
		item.ItemGrossWeight = &weight.Float64
	}
	return item, nil
}
