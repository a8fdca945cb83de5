package model

import "time"

// ValidationStatus is the outcome of one sub-validation.
type ValidationStatus string

const (
	// ValidationValid means the provided weight matches the catalog.
	ValidationValid ValidationStatus = "valid"
	// ValidationInvalid means the provided weight was rejected.
	ValidationInvalid ValidationStatus = "invalid"
	// ValidationError means the item could not be evaluated.
	ValidationError ValidationStatus = "error"
)

// Valid returns true if the status is known.
func (s ValidationStatus) Valid() bool {
	return s == ValidationValid || s == ValidationInvalid || s == ValidationError
}

// ValidationItem is one sales order line submitted for validation.
type ValidationItem struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity"   validate:"gte=0"`
	Weight    float64 `json:"weight"     validate:"gte=0"`
}

// ValidationRequest is the input snapshot stored while a batch is in flight.
type ValidationRequest struct {
	Items []ValidationItem `json:"items" validate:"required,min=1,max=500,dive"`
}

// ValidationResult is the outcome record for one item. Results keep the order of the request items.
type ValidationResult struct {
	RequestID    string           `json:"request_id,omitempty"`
	ProductID    int64            `json:"product_id"`
	Quantity     float64          `json:"quantity"`
	UserWeight   float64          `json:"user_weight"`
	ActualWeight *float64         `json:"actual_weight,omitempty"`
	GSM          *float64         `json:"gsm,omitempty"`
	Sheets       *int             `json:"sheets,omitempty"`
	Status       ValidationStatus `json:"status"`
	Message      string           `json:"message"`
	CreatedAt    time.Time        `json:"created_at,omitzero"`
}

// CatalogItem is the reference record looked up for a product.
type CatalogItem struct {
	ProductID       int64
	Name            string
	GSM             *float64
	Sheets          *int
	ItemGrossWeight *float64
}

// BatchStatus describes where a validation request is in its lifecycle.
type BatchStatus string

const (
	// BatchStatusDone means results are available.
	BatchStatusDone BatchStatus = "done"
	// BatchStatusProcessing means the input snapshot exists but results are not yet written.
	BatchStatusProcessing BatchStatus = "processing"
)
