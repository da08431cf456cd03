package shipment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meatflow/meatflow/internal/platform/db"
	"github.com/meatflow/meatflow/internal/shared"
)

// Repository persists shipments and completed gate records.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, sh Shipment) (int64, error)
	Get(ctx context.Context, id int64) (*Shipment, error)
	GetBySalesOrder(ctx context.Context, salesOrderID int64) (*Shipment, error)
	List(ctx context.Context, req ListShipmentsRequest) ([]Shipment, int, error)
	UpdateCarrier(ctx context.Context, sh Shipment) error
	UpdateStatus(ctx context.Context, id int64, from, to Status, deliveredAt *time.Time) error
	SaveGateRecord(ctx context.Context, rec GateRecord) error
	GetGateRecord(ctx context.Context, shipmentID int64) (*GateRecord, error)
	DeliveredForSheet(ctx context.Context, orderSheetID int64) (bool, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const shipmentColumns = `id, source_sales_order_id, status, company, vehicle_number,
	driver_name, driver_phone, eta_at, is_modified, delivered_at, created_at, updated_at`

func (r *repository) Create(ctx context.Context, sh Shipment) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO shipments
			(source_sales_order_id, status, company, vehicle_number, driver_name,
			 driver_phone, eta_at, is_modified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, now(), now())
		RETURNING id`,
		sh.SourceSalesOrderID, StatusPreparing, sh.Company, sh.VehicleNumber,
		sh.DriverName, sh.DriverPhone, sh.EtaAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert shipment: %w", err)
	}
	return id, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Shipment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1`, id)
	sh, err := scanShipment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return sh, nil
}

func (r *repository) GetBySalesOrder(ctx context.Context, salesOrderID int64) (*Shipment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+shipmentColumns+` FROM shipments
		WHERE source_sales_order_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, salesOrderID)
	sh, err := scanShipment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return sh, nil
}

func (r *repository) List(ctx context.Context, req ListShipmentsRequest) ([]Shipment, int, error) {
	where := `WHERE ($1::text IS NULL OR status = $1)`

	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM shipments `+where, req.Status,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count shipments: %w", err)
	}

	win := shared.NewListWindow(req.Limit, req.Offset)
	rows, err := r.db.Query(ctx, `
		SELECT `+shipmentColumns+` FROM shipments `+where+`
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, req.Status, win.Limit, win.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var shipments []Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, 0, err
		}
		shipments = append(shipments, *sh)
	}
	return shipments, total, rows.Err()
}

// UpdateCarrier writes carrier details and flags the shipment as modified
// after creation.
func (r *repository) UpdateCarrier(ctx context.Context, sh Shipment) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE shipments
		SET company = $1, vehicle_number = $2, driver_name = $3, driver_phone = $4,
		    eta_at = $5, is_modified = true, updated_at = now()
		WHERE id = $6 AND status <> $7`,
		sh.Company, sh.VehicleNumber, sh.DriverName, sh.DriverPhone, sh.EtaAt,
		sh.ID, StatusDelivered)
	if err != nil {
		return fmt.Errorf("update carrier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStaleState
	}
	return nil
}

// UpdateStatus performs the compare-and-swap status transition.
func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to Status, deliveredAt *time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE shipments
		SET status = $1, delivered_at = COALESCE($2, delivered_at), updated_at = now()
		WHERE id = $3 AND status = $4`,
		to, deliveredAt, id, from)
	if err != nil {
		return fmt.Errorf("update shipment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStaleState
	}
	return nil
}

func (r *repository) SaveGateRecord(ctx context.Context, rec GateRecord) error {
	items, err := json.Marshal(rec.Items)
	if err != nil {
		return fmt.Errorf("marshal checklist: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO gate_records (shipment_id, items, signature, completed_by, completed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ShipmentID, items, rec.Signature, rec.CompletedBy, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert gate record: %w", err)
	}
	return nil
}

func (r *repository) GetGateRecord(ctx context.Context, shipmentID int64) (*GateRecord, error) {
	var (
		rec   GateRecord
		items []byte
	)
	err := r.db.QueryRow(ctx, `
		SELECT shipment_id, items, signature, completed_by, completed_at
		FROM gate_records
		WHERE shipment_id = $1`, shipmentID,
	).Scan(&rec.ShipmentID, &items, &rec.Signature, &rec.CompletedBy, &rec.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(items, &rec.Items); err != nil {
		return nil, fmt.Errorf("unmarshal checklist: %w", err)
	}
	return &rec, nil
}

// DeliveredForSheet reports whether the sheet's sales order has a delivered
// shipment. Used by order sheet close.
func (r *repository) DeliveredForSheet(ctx context.Context, orderSheetID int64) (bool, error) {
	var delivered bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM shipments s
			JOIN sales_orders so ON so.id = s.source_sales_order_id
			WHERE so.source_order_sheet_id = $1 AND s.status = $2
		)`, orderSheetID, StatusDelivered).Scan(&delivered)
	if err != nil {
		return false, fmt.Errorf("check delivery for sheet: %w", err)
	}
	return delivered, nil
}

func scanShipment(row pgx.Row) (*Shipment, error) {
	var s Shipment
	if err := row.Scan(&s.ID, &s.SourceSalesOrderID, &s.Status, &s.Company,
		&s.VehicleNumber, &s.DriverName, &s.DriverPhone, &s.EtaAt,
		&s.IsModified, &s.DeliveredAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
