package shared

// Role classifies actors for transition authorization.
type Role string

const (
	// RoleOperations covers office staff who dispatch, review and confirm
	// order sheets.
	RoleOperations Role = "OPERATIONS"
	// RoleWarehouse covers staff who prepare shipments and work the gate.
	RoleWarehouse Role = "WAREHOUSE"
	// RoleCustomer covers external customers acting through an invite token.
	RoleCustomer Role = "CUSTOMER"
)

// IsValid reports whether the role is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleOperations, RoleWarehouse, RoleCustomer:
		return true
	default:
		return false
	}
}

// Fulfillment permissions declared for authorization checks.
const (
	PermSheetView     = "ordersheet.view"
	PermSheetCreate   = "ordersheet.create"
	PermSheetDispatch = "ordersheet.dispatch"
	PermSheetSubmit   = "ordersheet.submit"
	PermSheetReview   = "ordersheet.review"
	PermSheetConfirm  = "ordersheet.confirm"
	PermSheetClose    = "ordersheet.close"

	PermSalesOrderView = "salesorder.view"

	PermDocumentUpload = "document.upload"
	PermDocumentView   = "document.view"

	PermReconcileRun  = "recon.run"
	PermReconcileView = "recon.view"

	PermShipmentView   = "shipment.view"
	PermShipmentCreate = "shipment.create"
	PermShipmentEdit   = "shipment.edit"
	PermShipmentDepart = "shipment.depart"
	PermGateOperate    = "shipment.gate"
)

// rolePermissions is the static permission table. Roles are fixed, not
// user-configurable, so a literal map is the whole of the RBAC story.
var rolePermissions = map[Role][]string{
	RoleOperations: {
		PermSheetView, PermSheetCreate, PermSheetDispatch, PermSheetReview,
		PermSheetConfirm, PermSheetClose,
		PermSalesOrderView,
		PermDocumentUpload, PermDocumentView,
		PermReconcileRun, PermReconcileView,
		PermShipmentView, PermShipmentCreate, PermShipmentEdit,
	},
	RoleWarehouse: {
		PermSheetView,
		PermSalesOrderView,
		PermDocumentUpload, PermDocumentView,
		PermReconcileRun, PermReconcileView,
		PermShipmentView, PermShipmentEdit, PermShipmentDepart, PermGateOperate,
	},
	RoleCustomer: {
		PermSheetSubmit,
	},
}

// HasPermission reports whether the role grants the permission.
func (r Role) HasPermission(perm string) bool {
	for _, p := range rolePermissions[r] {
		if p == perm {
			return true
		}
	}
	return false
}
