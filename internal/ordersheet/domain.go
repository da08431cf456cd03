package ordersheet

import (
	"time"

	"github.com/meatflow/meatflow/internal/shared"
)

// ============================================================================
// ORDER SHEET STATUS
// ============================================================================

// SheetStatus represents the lifecycle of an order sheet
type SheetStatus string

const (
	StatusDraft     SheetStatus = "DRAFT"     // Operations drafting, can be edited
	StatusSent      SheetStatus = "SENT"      // Invite token dispatched to customer
	StatusSubmitted SheetStatus = "SUBMITTED" // Customer submitted quantities
	StatusRevision  SheetStatus = "REVISION"  // Rejected by operations, awaiting edits
	StatusConfirmed SheetStatus = "CONFIRMED" // Approved, sales order created
	StatusClosed    SheetStatus = "CLOSED"    // Delivery completed
)

// IsValid checks if the status is valid
func (s SheetStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusSubmitted, StatusRevision, StatusConfirmed, StatusClosed:
		return true
	default:
		return false
	}
}

// CanEdit checks if sheet contents can be edited in this status
func (s SheetStatus) CanEdit() bool {
	return s == StatusDraft || s == StatusRevision
}

// edge is a directed transition in the sheet state machine
type edge struct {
	From SheetStatus
	To   SheetStatus
}

// legalEdges maps every allowed transition to the permission required to request it.
// Any edge absent from this table is an invalid transition.
var legalEdges = map[edge]string{
	{StatusDraft, StatusSent}:          shared.PermSheetDispatch,
	{StatusRevision, StatusSent}:       shared.PermSheetDispatch,
	{StatusSent, StatusSubmitted}:      shared.PermSheetSubmit,
	{StatusSubmitted, StatusRevision}:  shared.PermSheetReview,
	{StatusSubmitted, StatusConfirmed}: shared.PermSheetConfirm,
	{StatusConfirmed, StatusClosed}:    shared.PermSheetClose,
}

// EdgePermission returns the permission guarding a transition, or false
// when the edge is not in the legal set.
func EdgePermission(from, to SheetStatus) (string, bool) {
	perm, ok := legalEdges[edge{from, to}]
	return perm, ok
}

// ============================================================================
// ORDER SHEET ENTITY
// ============================================================================

// OrderSheet represents a customer-facing order draft through confirmation
type OrderSheet struct {
	ID              int64       `json:"id" db:"id"`
	CustomerName    string      `json:"customer_name" db:"customer_name"`
	Status          SheetStatus `json:"status" db:"status"`
	InviteTokenID   *string     `json:"invite_token_id,omitempty" db:"invite_token_id"`
	ShipDate        *time.Time  `json:"ship_date,omitempty" db:"ship_date"`
	CutOffAt        *time.Time  `json:"cut_off_at,omitempty" db:"cut_off_at"`
	LastSubmittedAt *time.Time  `json:"last_submitted_at,omitempty" db:"last_submitted_at"`
	RevisionNote    *string     `json:"revision_note,omitempty" db:"revision_note"`
	CreatedBy       int64       `json:"created_by" db:"created_by"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
	Items           []SheetItem `json:"items,omitempty" db:"-"`
}

// SheetItem represents a product line on an order sheet
type SheetItem struct {
	ID           int64   `json:"id" db:"id"`
	OrderSheetID int64   `json:"order_sheet_id" db:"order_sheet_id"`
	ProductName  string  `json:"product_name" db:"product_name"`
	Quantity     float64 `json:"quantity" db:"quantity"`
	WeightKg     float64 `json:"weight_kg" db:"weight_kg"`
	UnitPrice    float64 `json:"unit_price" db:"unit_price"`
	LineOrder    int     `json:"line_order" db:"line_order"`
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// CreateOrderSheetRequest represents request to create an order sheet
type CreateOrderSheetRequest struct {
	CustomerName string               `json:"customer_name" validate:"required,max=200"`
	ShipDate     *time.Time           `json:"ship_date,omitempty"`
	CutOffAt     *time.Time           `json:"cut_off_at,omitempty"`
	Items        []CreateSheetItemReq `json:"items" validate:"required,min=1,dive"`
}

// CreateSheetItemReq represents a line item in a create or update request
type CreateSheetItemReq struct {
	ProductName string  `json:"product_name" validate:"required,max=200"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	WeightKg    float64 `json:"weight_kg" validate:"gte=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	LineOrder   int     `json:"line_order" validate:"gte=0"`
}

// UpdateOrderSheetRequest represents edits to a DRAFT or REVISION sheet
type UpdateOrderSheetRequest struct {
	CustomerName *string               `json:"customer_name,omitempty" validate:"omitempty,max=200"`
	ShipDate     *time.Time            `json:"ship_date,omitempty"`
	CutOffAt     *time.Time            `json:"cut_off_at,omitempty"`
	Items        *[]CreateSheetItemReq `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

// TransitionRequest represents a generic state transition request
type TransitionRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

// ReviseRequest represents operations rejecting a submitted sheet
type ReviseRequest struct {
	Reason string `json:"reason" validate:"required,min=5,max=500"`
}

// SubmitRequest represents a customer submission via invite token
type SubmitRequest struct {
	Token string                `json:"token" validate:"required"`
	Items *[]CreateSheetItemReq `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

// ListOrderSheetsRequest represents filters for listing order sheets
type ListOrderSheetsRequest struct {
	Status   *SheetStatus `json:"status,omitempty"`
	Customer *string      `json:"customer,omitempty"`
	Limit    int          `json:"limit" validate:"gte=0,lte=1000"`
	Offset   int          `json:"offset" validate:"gte=0"`
}
