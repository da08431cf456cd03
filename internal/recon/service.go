package recon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meatflow/meatflow/internal/document"
	"github.com/meatflow/meatflow/internal/shared"
)

// DocumentSource supplies parsed documents and records match progress.
type DocumentSource interface {
	ParsedPair(ctx context.Context, salesOrderID int64) (statement, inspection *document.Document, err error)
	MarkMatched(ctx context.Context, statementID, inspectionID int64, allMatched bool) error
}

// SalesOrderMarker records the reconciliation outcome on the sales order, the
// flag the gate checkpoint later consults.
type SalesOrderMarker interface {
	SetReconciliationStatus(ctx context.Context, salesOrderID int64, allMatched bool) error
}

// Service runs reconciliations and stores their reports.
type Service struct {
	repo       Repository
	documents  DocumentSource
	salesOrder SalesOrderMarker
	logger     *slog.Logger
	tolerance  Tolerance

	onOutcome func(allMatched bool)
}

// NewService constructs a reconciliation service with default tolerances.
func NewService(repo Repository, documents DocumentSource, salesOrder SalesOrderMarker, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		documents:  documents,
		salesOrder: salesOrder,
		logger:     logger,
		tolerance:  DefaultTolerance(),
	}
}

// SetOutcomeHook observes reconciliation outcomes, typically for metrics.
func (s *Service) SetOutcomeHook(fn func(allMatched bool)) {
	s.onOutcome = fn
}

// SetTolerance overrides the matching tolerances.
func (s *Service) SetTolerance(tol Tolerance) {
	s.tolerance = tol
}

// Reconcile loads the latest parsed statement and inspection report for a
// sales order, matches them, persists the report, advances both document
// statuses and stamps the outcome on the sales order.
func (s *Service) Reconcile(ctx context.Context, salesOrderID int64) (*Report, error) {
	statement, inspection, err := s.documents.ParsedPair(ctx, salesOrderID)
	if err != nil {
		return nil, err
	}
	if statement.Status == document.DocStatusUploaded || inspection.Status == document.DocStatusUploaded {
		return nil, fmt.Errorf("%w: documents not parsed yet", shared.ErrValidation)
	}

	report := Match(statement.Lines, inspection.Lines, s.tolerance)
	report.SalesOrderID = salesOrderID
	report.StatementDocID = statement.ID
	report.InspectionDocID = inspection.ID

	id, err := s.repo.Save(ctx, report)
	if err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}
	report.ID = id

	if err := s.documents.MarkMatched(ctx, statement.ID, inspection.ID, report.AllMatched); err != nil {
		return nil, fmt.Errorf("mark documents: %w", err)
	}
	if err := s.salesOrder.SetReconciliationStatus(ctx, salesOrderID, report.AllMatched); err != nil {
		return nil, fmt.Errorf("mark sales order: %w", err)
	}

	if s.onOutcome != nil {
		s.onOutcome(report.AllMatched)
	}
	s.logger.Info("reconciliation complete",
		slog.Int64("sales_order_id", salesOrderID),
		slog.Int("results", len(report.Results)),
		slog.Bool("all_matched", report.AllMatched))

	return &report, nil
}

// Latest returns the most recent report for a sales order.
func (s *Service) Latest(ctx context.Context, salesOrderID int64) (*Report, error) {
	return s.repo.GetLatest(ctx, salesOrderID)
}
