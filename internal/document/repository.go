package document

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

// Repository persists documents and their parsed line records.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, doc Document, rawGrid [][]string) (int64, error)
	Get(ctx context.Context, id int64) (*Document, error)
	GetRawGrid(ctx context.Context, id int64) ([][]string, error)
	ListBySalesOrder(ctx context.Context, salesOrderID int64) ([]Document, error)
	GetBySalesOrderAndType(ctx context.Context, salesOrderID int64, docType DocType) (*Document, error)
	InsertLines(ctx context.Context, documentID int64, lines []LineRecord) error
	GetLines(ctx context.Context, documentID int64) ([]LineRecord, error)
	AdvanceStatus(ctx context.Context, id int64, from, to DocStatus) error
	ListUnparsed(ctx context.Context, uploadedBefore time.Time) ([]int64, error)
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

const documentColumns = `id, sales_order_id, doc_type, status, file_name, uploaded_by, uploaded_at, parsed_at`

func (r *repository) Create(ctx context.Context, doc Document, rawGrid [][]string) (int64, error) {
	grid, err := json.Marshal(rawGrid)
	if err != nil {
		return 0, fmt.Errorf("marshal grid: %w", err)
	}

	var id int64
	err = r.db.QueryRow(ctx, `
		INSERT INTO documents (sales_order_id, doc_type, status, file_name, raw_grid, uploaded_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		doc.SalesOrderID, doc.DocType, DocStatusUploaded, doc.FileName, grid, doc.UploadedBy, time.Now(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Document, error) {
	row := r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	if doc.Status != DocStatusUploaded {
		lines, err := r.GetLines(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		doc.Lines = lines
	}
	return doc, nil
}

func (r *repository) GetRawGrid(ctx context.Context, id int64) ([][]string, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT raw_grid FROM documents WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	var grid [][]string
	if err := json.Unmarshal(raw, &grid); err != nil {
		return nil, fmt.Errorf("unmarshal grid: %w", err)
	}
	return grid, nil
}

func (r *repository) ListBySalesOrder(ctx context.Context, salesOrderID int64) ([]Document, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE sales_order_id = $1
		ORDER BY uploaded_at`, salesOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *repository) GetBySalesOrderAndType(ctx context.Context, salesOrderID int64, docType DocType) (*Document, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE sales_order_id = $1 AND doc_type = $2
		ORDER BY uploaded_at DESC
		LIMIT 1`, salesOrderID, docType)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	lines, err := r.GetLines(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	doc.Lines = lines
	return doc, nil
}

func (r *repository) InsertLines(ctx context.Context, documentID int64, lines []LineRecord) error {
	for _, line := range lines {
		_, err := r.db.Exec(ctx, `
			INSERT INTO document_lines
				(document_id, line_no, product_name, origin, quantity, weight_kg,
				 unit_price, amount, trace_no, slaughterhouse, barcode, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			documentID, line.LineNo, line.ProductName, line.Origin, line.Quantity,
			line.WeightKg, line.UnitPrice, line.Amount, line.TraceNo,
			line.Slaughterhouse, line.Barcode, line.ExpiresAt)
		if err != nil {
			return fmt.Errorf("insert line %d: %w", line.LineNo, err)
		}
	}
	return nil
}

func (r *repository) GetLines(ctx context.Context, documentID int64) ([]LineRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, document_id, line_no, product_name, origin, quantity, weight_kg,
		       unit_price, amount, trace_no, slaughterhouse, barcode, expires_at
		FROM document_lines
		WHERE document_id = $1
		ORDER BY line_no`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []LineRecord
	for rows.Next() {
		var l LineRecord
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.LineNo, &l.ProductName, &l.Origin,
			&l.Quantity, &l.WeightKg, &l.UnitPrice, &l.Amount, &l.TraceNo,
			&l.Slaughterhouse, &l.Barcode, &l.ExpiresAt); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// AdvanceStatus moves a document one step forward. The expected current
// status is part of the WHERE clause so concurrent advances cannot skip or
// repeat a step.
func (r *repository) AdvanceStatus(ctx context.Context, id int64, from, to DocStatus) error {
	if !from.CanAdvanceTo(to) {
		return fmt.Errorf("%w: document %s -> %s", shared.ErrInvalidTransition, from, to)
	}

	var parsedAt interface{}
	if to == DocStatusParsed {
		parsedAt = time.Now()
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE documents
		SET status = $1, parsed_at = COALESCE($2, parsed_at)
		WHERE id = $3 AND status = $4`,
		to, parsedAt, id, from)
	if err != nil {
		return fmt.Errorf("advance document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStaleState
	}
	return nil
}

// ListUnparsed returns documents stuck in UPLOADED, typically after a lost
// enqueue. The age filter keeps just-uploaded documents out of the sweep.
func (r *repository) ListUnparsed(ctx context.Context, uploadedBefore time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM documents
		WHERE status = $1 AND uploaded_at < $2
		ORDER BY uploaded_at`, DocStatusUploaded, uploadedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	if err := row.Scan(&d.ID, &d.SalesOrderID, &d.DocType, &d.Status, &d.FileName,
		&d.UploadedBy, &d.UploadedAt, &d.ParsedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
