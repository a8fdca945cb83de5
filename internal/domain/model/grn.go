package model

import "time"

// GRNItem is one received line of a goods receipt note.
type GRNItem struct {
	POQuantity       float64
	ReceivedQuantity float64
	DamagedQuantity  float64
}

// GRN is a goods receipt note with its received lines. Either date may be
// unset when the supplier never committed to a delivery date or the goods
// have not been received.
type GRN struct {
	ID                   int64
	Number               string
	ExpectedDeliveryDate *time.Time
	ActualReceiptDate    *time.Time
	Items                []GRNItem
}
