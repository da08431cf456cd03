package shipment

import (
	"time"
)

// ============================================================================
// SHIPMENT STATUS
// ============================================================================

// Status represents the lifecycle of a shipment
type Status string

const (
	StatusPreparing Status = "PREPARING"  // Being packed at the warehouse
	StatusInTransit Status = "IN_TRANSIT" // Out for delivery
	StatusDelivered Status = "DELIVERED"  // Gate completed, customer received goods
)

// IsValid checks if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPreparing, StatusInTransit, StatusDelivered:
		return true
	default:
		return false
	}
}

// CanDepart checks if the shipment can leave the warehouse
func (s Status) CanDepart() bool {
	return s == StatusPreparing
}

// ============================================================================
// SHIPMENT ENTITY
// ============================================================================

// Shipment represents a physical delivery tied to a sales order
type Shipment struct {
	ID                 int64      `json:"id" db:"id"`
	SourceSalesOrderID int64      `json:"source_sales_order_id" db:"source_sales_order_id"`
	Status             Status     `json:"status" db:"status"`
	Company            *string    `json:"company,omitempty" db:"company"`
	VehicleNumber      *string    `json:"vehicle_number,omitempty" db:"vehicle_number"`
	DriverName         *string    `json:"driver_name,omitempty" db:"driver_name"`
	DriverPhone        *string    `json:"driver_phone,omitempty" db:"driver_phone"`
	EtaAt              *time.Time `json:"eta_at,omitempty" db:"eta_at"`
	IsModified         bool       `json:"is_modified" db:"is_modified"`
	DeliveredAt        *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`

	// Ready is derived, not stored: a PREPARING shipment whose sales order
	// reconciled clean is eligible for the gate.
	Ready bool `json:"ready" db:"-"`
}

// ============================================================================
// GATE CHECKLIST
// ============================================================================

// ChecklistItems are the fixed gate checklist entries. The gate is not a
// configurable workflow; every shipment answers the same four questions.
var ChecklistItems = []string{
	"quantity_verified",
	"temperature_checked",
	"packaging_intact",
	"vehicle_sealed",
}

// GateSession is the in-flight state of one gate checkpoint. It lives in
// redis for the duration of the session and is only written to the database
// when the gate completes.
type GateSession struct {
	ShipmentID int64           `json:"shipment_id"`
	FromStatus Status          `json:"from_status"`
	Items      map[string]bool `json:"items"`
	Signature  []byte          `json:"signature,omitempty"`
	OpenedAt   time.Time       `json:"opened_at"`
	OpenedBy   int64           `json:"opened_by"`
}

// Complete reports whether every checklist item is checked and a signature
// was captured.
func (g *GateSession) Complete() bool {
	for _, name := range ChecklistItems {
		if !g.Items[name] {
			return false
		}
	}
	return len(g.Signature) > 0
}

// GateRecord is the persisted outcome of a completed gate.
type GateRecord struct {
	ShipmentID  int64           `json:"shipment_id" db:"shipment_id"`
	Items       map[string]bool `json:"items" db:"items"`
	Signature   []byte          `json:"signature" db:"signature"`
	CompletedBy int64           `json:"completed_by" db:"completed_by"`
	CompletedAt time.Time       `json:"completed_at" db:"completed_at"`
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// CreateShipmentRequest represents request to create a shipment
type CreateShipmentRequest struct {
	SalesOrderID  int64      `json:"sales_order_id" validate:"required,gt=0"`
	Company       *string    `json:"company,omitempty" validate:"omitempty,max=200"`
	VehicleNumber *string    `json:"vehicle_number,omitempty" validate:"omitempty,max=50"`
	DriverName    *string    `json:"driver_name,omitempty" validate:"omitempty,max=100"`
	DriverPhone   *string    `json:"driver_phone,omitempty" validate:"omitempty,max=30"`
	EtaAt         *time.Time `json:"eta_at,omitempty"`
}

// UpdateCarrierRequest represents carrier detail edits on a shipment
type UpdateCarrierRequest struct {
	Company       *string    `json:"company,omitempty" validate:"omitempty,max=200"`
	VehicleNumber *string    `json:"vehicle_number,omitempty" validate:"omitempty,max=50"`
	DriverName    *string    `json:"driver_name,omitempty" validate:"omitempty,max=100"`
	DriverPhone   *string    `json:"driver_phone,omitempty" validate:"omitempty,max=30"`
	EtaAt         *time.Time `json:"eta_at,omitempty"`
}

// ToggleChecklistRequest flips one checklist item in an open gate session
type ToggleChecklistRequest struct {
	Item    string `json:"item" validate:"required"`
	Checked bool   `json:"checked"`
}

// SubmitSignatureRequest attaches the signature artifact to a gate session
type SubmitSignatureRequest struct {
	Signature []byte `json:"signature" validate:"required"`
}

// ListShipmentsRequest represents filters for listing shipments
type ListShipmentsRequest struct {
	Status *Status `json:"status,omitempty"`
	Limit  int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset int     `json:"offset" validate:"gte=0"`
}
