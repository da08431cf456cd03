package salesorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meatflow/meatflow/internal/platform/db"
	"github.com/meatflow/meatflow/internal/shared"
)

// uniqueViolation is the postgres error code raised by the unique index on
// source_order_sheet_id. It is what makes CreateFromSheet idempotent under
// concurrent confirms.
const uniqueViolation = "23505"

// Repository persists sales orders and their items.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, order SalesOrder) (int64, error)
	Get(ctx context.Context, id int64) (*SalesOrder, error)
	GetBySourceSheet(ctx context.Context, orderSheetID int64) (*SalesOrder, error)
	List(ctx context.Context, req ListSalesOrdersRequest) ([]SalesOrder, int, error)
	SetReconStatus(ctx context.Context, id int64, status ReconStatus) error
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

const orderColumns = `id, source_order_sheet_id, customer_name, ship_date, recon_status, created_at, updated_at`

// Create inserts a sales order with its items. A duplicate source sheet id
// surfaces as ErrStaleState wrapped with the unique violation so callers can
// fall back to the existing order.
func (r *repository) Create(ctx context.Context, order SalesOrder) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO sales_orders
			(source_order_sheet_id, customer_name, ship_date, recon_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id`,
		order.SourceOrderSheetID, order.CustomerName, order.ShipDate, ReconPending,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, fmt.Errorf("%w: sheet %d already confirmed", shared.ErrStaleState, order.SourceOrderSheetID)
		}
		return 0, fmt.Errorf("insert sales order: %w", err)
	}

	for i, item := range order.Items {
		_, err := r.db.Exec(ctx, `
			INSERT INTO sales_order_items
				(sales_order_id, product_name, quantity, weight_kg, unit_price, line_order)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, item.ProductName, item.Quantity, item.WeightKg, item.UnitPrice, item.LineOrder)
		if err != nil {
			return 0, fmt.Errorf("insert order item %d: %w", i, err)
		}
	}
	return id, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1`, id)
	return r.hydrate(ctx, row)
}

func (r *repository) GetBySourceSheet(ctx context.Context, orderSheetID int64) (*SalesOrder, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM sales_orders WHERE source_order_sheet_id = $1`, orderSheetID)
	return r.hydrate(ctx, row)
}

func (r *repository) List(ctx context.Context, req ListSalesOrdersRequest) ([]SalesOrder, int, error) {
	where := `WHERE ($1::text IS NULL OR recon_status = $1)
		AND ($2::text IS NULL OR customer_name ILIKE '%' || $2 || '%')`

	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM sales_orders `+where, req.ReconStatus, req.Customer,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sales orders: %w", err)
	}

	win := shared.NewListWindow(req.Limit, req.Offset)
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+` FROM sales_orders `+where+`
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, req.ReconStatus, req.Customer, win.Limit, win.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []SalesOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, *order)
	}
	return orders, total, rows.Err()
}

func (r *repository) SetReconStatus(ctx context.Context, id int64, status ReconStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sales_orders SET recon_status = $1, updated_at = now() WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("set recon status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) hydrate(ctx context.Context, row pgx.Row) (*SalesOrder, error) {
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	items, err := r.getItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (r *repository) getItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, sales_order_id, product_name, quantity, weight_kg, unit_price, line_order
		FROM sales_order_items
		WHERE sales_order_id = $1
		ORDER BY line_order, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.SalesOrderID, &it.ProductName, &it.Quantity,
			&it.WeightKg, &it.UnitPrice, &it.LineOrder); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (*SalesOrder, error) {
	var o SalesOrder
	if err := row.Scan(&o.ID, &o.SourceOrderSheetID, &o.CustomerName, &o.ShipDate,
		&o.ReconStatus, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}
