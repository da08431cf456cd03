package ordersheet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meatflow/meatflow/internal/platform/db"
	"github.com/meatflow/meatflow/internal/shared"
)

// TransitionFields carries the columns written alongside a status change.
// Nil fields keep their stored value.
type TransitionFields struct {
	InviteTokenID   *string
	LastSubmittedAt *time.Time
	RevisionNote    *string
}

// Repository persists order sheets and their items.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, sheet OrderSheet) (int64, error)
	Get(ctx context.Context, id int64) (*OrderSheet, error)
	List(ctx context.Context, req ListOrderSheetsRequest) ([]OrderSheet, int, error)
	UpdateDraft(ctx context.Context, sheet OrderSheet) error
	ReplaceItems(ctx context.Context, sheetID int64, items []SheetItem) error
	UpdateStatus(ctx context.Context, id int64, from, to SheetStatus, fields TransitionFields) error
	ListPastCutoff(ctx context.Context, now time.Time) ([]OrderSheet, error)
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

const sheetColumns = `id, customer_name, status, invite_token_id, ship_date, cut_off_at,
	last_submitted_at, revision_note, created_by, created_at, updated_at`

func (r *repository) Create(ctx context.Context, sheet OrderSheet) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO order_sheets
			(customer_name, status, ship_date, cut_off_at, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id`,
		sheet.CustomerName, StatusDraft, sheet.ShipDate, sheet.CutOffAt, sheet.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order sheet: %w", err)
	}

	if err := r.insertItems(ctx, id, sheet.Items); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*OrderSheet, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sheetColumns+` FROM order_sheets WHERE id = $1`, id)
	sheet, err := scanSheet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	items, err := r.getItems(ctx, id)
	if err != nil {
		return nil, err
	}
	sheet.Items = items
	return sheet, nil
}

func (r *repository) List(ctx context.Context, req ListOrderSheetsRequest) ([]OrderSheet, int, error) {
	where := `WHERE ($1::text IS NULL OR status = $1)
		AND ($2::text IS NULL OR customer_name ILIKE '%' || $2 || '%')`

	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM order_sheets `+where, req.Status, req.Customer,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count order sheets: %w", err)
	}

	win := shared.NewListWindow(req.Limit, req.Offset)
	rows, err := r.db.Query(ctx, `
		SELECT `+sheetColumns+` FROM order_sheets `+where+`
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, req.Status, req.Customer, win.Limit, win.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sheets []OrderSheet
	for rows.Next() {
		sheet, err := scanSheet(rows)
		if err != nil {
			return nil, 0, err
		}
		sheets = append(sheets, *sheet)
	}
	return sheets, total, rows.Err()
}

func (r *repository) UpdateDraft(ctx context.Context, sheet OrderSheet) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE order_sheets
		SET customer_name = $1, ship_date = $2, cut_off_at = $3, updated_at = now()
		WHERE id = $4 AND status = ANY($5)`,
		sheet.CustomerName, sheet.ShipDate, sheet.CutOffAt, sheet.ID,
		[]string{string(StatusDraft), string(StatusRevision)})
	if err != nil {
		return fmt.Errorf("update order sheet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStaleState
	}
	return nil
}

func (r *repository) ReplaceItems(ctx context.Context, sheetID int64, items []SheetItem) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM order_sheet_items WHERE order_sheet_id = $1`, sheetID); err != nil {
		return fmt.Errorf("delete sheet items: %w", err)
	}
	return r.insertItems(ctx, sheetID, items)
}

// UpdateStatus performs the compare-and-swap transition. The expected current
// status is part of the WHERE clause; a zero row count means another caller
// changed the sheet first.
func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to SheetStatus, fields TransitionFields) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE order_sheets
		SET status = $1,
		    invite_token_id = COALESCE($2, invite_token_id),
		    last_submitted_at = COALESCE($3, last_submitted_at),
		    revision_note = COALESCE($4, revision_note),
		    updated_at = now()
		WHERE id = $5 AND status = $6`,
		to, fields.InviteTokenID, fields.LastSubmittedAt, fields.RevisionNote, id, from)
	if err != nil {
		return fmt.Errorf("update sheet status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStaleState
	}
	return nil
}

// ListPastCutoff returns SENT sheets whose cutoff has elapsed. Used by the
// cutoff sweep job to expire dangling invites.
func (r *repository) ListPastCutoff(ctx context.Context, now time.Time) ([]OrderSheet, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sheetColumns+` FROM order_sheets
		WHERE status = $1 AND cut_off_at IS NOT NULL AND cut_off_at < $2
		ORDER BY cut_off_at`, StatusSent, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sheets []OrderSheet
	for rows.Next() {
		sheet, err := scanSheet(rows)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, *sheet)
	}
	return sheets, rows.Err()
}

func (r *repository) insertItems(ctx context.Context, sheetID int64, items []SheetItem) error {
	for i, item := range items {
		_, err := r.db.Exec(ctx, `
			INSERT INTO order_sheet_items
				(order_sheet_id, product_name, quantity, weight_kg, unit_price, line_order)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			sheetID, item.ProductName, item.Quantity, item.WeightKg, item.UnitPrice, item.LineOrder)
		if err != nil {
			return fmt.Errorf("insert sheet item %d: %w", i, err)
		}
	}
	return nil
}

func (r *repository) getItems(ctx context.Context, sheetID int64) ([]SheetItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_sheet_id, product_name, quantity, weight_kg, unit_price, line_order
		FROM order_sheet_items
		WHERE order_sheet_id = $1
		ORDER BY line_order, id`, sheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SheetItem
	for rows.Next() {
		var it SheetItem
		if err := rows.Scan(&it.ID, &it.OrderSheetID, &it.ProductName, &it.Quantity,
			&it.WeightKg, &it.UnitPrice, &it.LineOrder); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanSheet(row pgx.Row) (*OrderSheet, error) {
	var s OrderSheet
	if err := row.Scan(&s.ID, &s.CustomerName, &s.Status, &s.InviteTokenID, &s.ShipDate,
		&s.CutOffAt, &s.LastSubmittedAt, &s.RevisionNote, &s.CreatedBy,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
