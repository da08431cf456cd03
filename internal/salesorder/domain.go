package salesorder

import (
	"time"
)

// ============================================================================
// RECONCILIATION STATUS
// ============================================================================

// ReconStatus summarizes the latest document reconciliation for an order.
// It is the only mutable field on a sales order and gates the warehouse gate.
type ReconStatus string

const (
	ReconPending     ReconStatus = "PENDING"     // No reconciliation run yet
	ReconDiscrepancy ReconStatus = "DISCREPANCY" // Last run found mismatches
	ReconAllMatched  ReconStatus = "ALL_MATCHED" // Last run matched every line
)

// IsValid checks if the status is valid
func (s ReconStatus) IsValid() bool {
	switch s {
	case ReconPending, ReconDiscrepancy, ReconAllMatched:
		return true
	default:
		return false
	}
}

// ============================================================================
// SALES ORDER ENTITY
// ============================================================================

// SalesOrder is the internal confirmed order derived from a confirmed order
// sheet. Core fields are written once at creation and never change.
type SalesOrder struct {
	ID                 int64       `json:"id" db:"id"`
	SourceOrderSheetID int64       `json:"source_order_sheet_id" db:"source_order_sheet_id"`
	CustomerName       string      `json:"customer_name" db:"customer_name"`
	ShipDate           *time.Time  `json:"ship_date,omitempty" db:"ship_date"`
	ReconStatus        ReconStatus `json:"recon_status" db:"recon_status"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at" db:"updated_at"`
	Items              []OrderItem `json:"items,omitempty" db:"-"`
}

// OrderItem is a confirmed line item, copied from the sheet at confirmation.
type OrderItem struct {
	ID           int64   `json:"id" db:"id"`
	SalesOrderID int64   `json:"sales_order_id" db:"sales_order_id"`
	ProductName  string  `json:"product_name" db:"product_name"`
	Quantity     float64 `json:"quantity" db:"quantity"`
	WeightKg     float64 `json:"weight_kg" db:"weight_kg"`
	UnitPrice    float64 `json:"unit_price" db:"unit_price"`
	LineOrder    int     `json:"line_order" db:"line_order"`
}

// ListSalesOrdersRequest represents filters for listing sales orders
type ListSalesOrdersRequest struct {
	ReconStatus *ReconStatus `json:"recon_status,omitempty"`
	Customer    *string      `json:"customer,omitempty"`
	Limit       int          `json:"limit" validate:"gte=0,lte=1000"`
	Offset      int          `json:"offset" validate:"gte=0"`
}
