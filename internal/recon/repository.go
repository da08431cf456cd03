package recon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meatflow/meatflow/internal/shared"
)

// Repository persists reconciliation reports.
type Repository interface {
	Save(ctx context.Context, report Report) (int64, error)
	GetLatest(ctx context.Context, salesOrderID int64) (*Report, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Save(ctx context.Context, report Report) (int64, error) {
	results, err := json.Marshal(report.Results)
	if err != nil {
		return 0, fmt.Errorf("marshal results: %w", err)
	}

	var id int64
	err = r.pool.QueryRow(ctx, `
		INSERT INTO reconciliations
			(sales_order_id, statement_doc_id, inspection_doc_id, all_matched, results, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		report.SalesOrderID, report.StatementDocID, report.InspectionDocID,
		report.AllMatched, results, time.Now(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert reconciliation: %w", err)
	}
	return id, nil
}

func (r *repository) GetLatest(ctx context.Context, salesOrderID int64) (*Report, error) {
	var (
		report  Report
		results []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, sales_order_id, statement_doc_id, inspection_doc_id, all_matched, results, created_at
		FROM reconciliations
		WHERE sales_order_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, salesOrderID,
	).Scan(&report.ID, &report.SalesOrderID, &report.StatementDocID,
		&report.InspectionDocID, &report.AllMatched, &results, &report.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(results, &report.Results); err != nil {
		return nil, fmt.Errorf("unmarshal results: %w", err)
	}
	return &report, nil
}
