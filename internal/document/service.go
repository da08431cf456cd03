package document

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meatflow/meatflow/internal/shared"
)

// TaskEnqueuer hands parse work to the background worker.
type TaskEnqueuer interface {
	EnqueueParse(ctx context.Context, documentID int64) error
}

// Service provides document ingestion business logic.
type Service struct {
	repo     Repository
	logger   *slog.Logger
	enqueuer TaskEnqueuer
}

// NewService constructs a document service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// SetEnqueuer wires the background worker. Without one, uploads are parsed
// inline on the request path.
func (s *Service) SetEnqueuer(e TaskEnqueuer) {
	s.enqueuer = e
}

// UploadRequest carries one decoded tabular export.
type UploadRequest struct {
	SalesOrderID int64   `json:"sales_order_id" validate:"required,gt=0"`
	DocType      DocType `json:"doc_type" validate:"required"`
	FileName     *string `json:"file_name,omitempty" validate:"omitempty,max=255"`
	Rows         [][]string
}

// Upload stores the raw grid and schedules parsing.
func (s *Service) Upload(ctx context.Context, req UploadRequest, uploadedBy int64) (*Document, error) {
	if !req.DocType.IsValid() {
		return nil, fmt.Errorf("%w: unknown doc type %q", shared.ErrValidation, req.DocType)
	}
	if len(req.Rows) == 0 {
		return nil, fmt.Errorf("%w: document has no rows", shared.ErrValidation)
	}

	doc := Document{
		SalesOrderID: req.SalesOrderID,
		DocType:      req.DocType,
		FileName:     req.FileName,
		UploadedBy:   uploadedBy,
	}

	id, err := s.repo.Create(ctx, doc, req.Rows)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueParse(ctx, id); err != nil {
			// The document stays UPLOADED; the cutoff sweep re-enqueues
			// stragglers, so a failed enqueue is not fatal to the upload.
			s.logger.Warn("enqueue parse failed", slog.Int64("document_id", id), slog.Any("error", err))
		}
	} else if err := s.Parse(ctx, id); err != nil {
		return nil, err
	}

	return s.repo.Get(ctx, id)
}

// Parse runs the row parser over the stored grid and advances the document
// to PARSED. Re-parsing an already parsed document fails with StaleState,
// which the worker treats as a duplicate delivery and drops.
func (s *Service) Parse(ctx context.Context, id int64) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}

	grid, err := s.repo.GetRawGrid(ctx, id)
	if err != nil {
		return fmt.Errorf("get raw grid: %w", err)
	}

	lines := ParseGrid(doc.DocType, grid)
	s.logger.Info("document parsed",
		slog.Int64("document_id", id),
		slog.String("doc_type", string(doc.DocType)),
		slog.Int("rows_in", len(grid)),
		slog.Int("lines_out", len(lines)))

	return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.InsertLines(ctx, id, lines); err != nil {
			return err
		}
		return repo.AdvanceStatus(ctx, id, DocStatusUploaded, DocStatusParsed)
	})
}

// ReenqueueUnparsed schedules parse tasks for documents whose original
// enqueue was lost. Returns the number of documents re-enqueued.
func (s *Service) ReenqueueUnparsed(ctx context.Context, uploadedBefore time.Time) (int, error) {
	if s.enqueuer == nil {
		return 0, nil
	}
	ids, err := s.repo.ListUnparsed(ctx, uploadedBefore)
	if err != nil {
		return 0, fmt.Errorf("list unparsed: %w", err)
	}

	count := 0
	for _, id := range ids {
		if err := s.enqueuer.EnqueueParse(ctx, id); err != nil {
			s.logger.Warn("re-enqueue parse failed", slog.Int64("document_id", id), slog.Any("error", err))
			continue
		}
		count++
	}
	return count, nil
}

// Get retrieves a document with its parsed lines.
func (s *Service) Get(ctx context.Context, id int64) (*Document, error) {
	return s.repo.Get(ctx, id)
}

// ListBySalesOrder returns all documents uploaded for a sales order.
func (s *Service) ListBySalesOrder(ctx context.Context, salesOrderID int64) ([]Document, error) {
	return s.repo.ListBySalesOrder(ctx, salesOrderID)
}

// ParsedPair loads the latest parsed statement and inspection report for a
// sales order, as consumed by reconciliation.
func (s *Service) ParsedPair(ctx context.Context, salesOrderID int64) (statement, inspection *Document, err error) {
	statement, err = s.repo.GetBySalesOrderAndType(ctx, salesOrderID, DocTypeTransactionStatement)
	if err != nil {
		return nil, nil, fmt.Errorf("load statement: %w", err)
	}
	inspection, err = s.repo.GetBySalesOrderAndType(ctx, salesOrderID, DocTypeInspectionReport)
	if err != nil {
		return nil, nil, fmt.Errorf("load inspection report: %w", err)
	}
	return statement, inspection, nil
}

// MarkMatched advances both documents after a reconciliation run; verified
// follows only when every line matched.
func (s *Service) MarkMatched(ctx context.Context, statementID, inspectionID int64, allMatched bool) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		for _, id := range []int64{statementID, inspectionID} {
			doc, err := repo.Get(ctx, id)
			if err != nil {
				return err
			}
			// Re-running reconciliation on already matched documents is
			// legal; only the first run moves the status.
			if doc.Status == DocStatusParsed {
				if err := repo.AdvanceStatus(ctx, id, DocStatusParsed, DocStatusMatched); err != nil {
					return err
				}
				doc.Status = DocStatusMatched
			}
			if allMatched && doc.Status == DocStatusMatched {
				if err := repo.AdvanceStatus(ctx, id, DocStatusMatched, DocStatusVerified); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
