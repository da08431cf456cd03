package salesorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meatflow/meatflow/internal/ordersheet"
	"github.com/meatflow/meatflow/internal/shared"
)

// Service owns sales orders. Core fields are immutable after creation; only
// the reconciliation status changes, and only the reconciliation run writes it.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateFromSheet materializes the sales order for a confirmed sheet. The
// unique index on source_order_sheet_id makes this idempotent: losing a race
// or re-confirming both resolve to the already existing order.
func (s *Service) CreateFromSheet(ctx context.Context, sheet ordersheet.OrderSheet) (int64, error) {
	if existing, err := s.repo.GetBySourceSheet(ctx, sheet.ID); err == nil {
		return existing.ID, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return 0, err
	}

	order := SalesOrder{
		SourceOrderSheetID: sheet.ID,
		CustomerName:       sheet.CustomerName,
		ShipDate:           sheet.ShipDate,
		Items:              itemsFromSheet(sheet.Items),
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		var err error
		id, err = tx.Create(ctx, order)
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrStaleState) {
			// Lost the race to a concurrent confirm.
			existing, lookupErr := s.repo.GetBySourceSheet(ctx, sheet.ID)
			if lookupErr != nil {
				return 0, lookupErr
			}
			return existing.ID, nil
		}
		return 0, err
	}

	s.logger.Info("sales order created",
		slog.Int64("sales_order_id", id),
		slog.Int64("sheet_id", sheet.ID),
		slog.String("customer", sheet.CustomerName))
	return id, nil
}

// Get returns an order with its items.
func (s *Service) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	return s.repo.Get(ctx, id)
}

// GetBySourceSheet returns the order created from a sheet, if any.
func (s *Service) GetBySourceSheet(ctx context.Context, orderSheetID int64) (*SalesOrder, error) {
	return s.repo.GetBySourceSheet(ctx, orderSheetID)
}

// List returns orders matching the filters plus the unpaged total.
func (s *Service) List(ctx context.Context, req ListSalesOrdersRequest) ([]SalesOrder, int, error) {
	return s.repo.List(ctx, req)
}

// ReconciliationAllMatched reports whether the last reconciliation run
// matched every line. The gate checkpoint opens on this fact alone.
func (s *Service) ReconciliationAllMatched(ctx context.Context, salesOrderID int64) (bool, error) {
	order, err := s.repo.Get(ctx, salesOrderID)
	if err != nil {
		return false, err
	}
	return order.ReconStatus == ReconAllMatched, nil
}

// SetReconciliationStatus records the outcome of a reconciliation run.
func (s *Service) SetReconciliationStatus(ctx context.Context, salesOrderID int64, allMatched bool) error {
	status := ReconDiscrepancy
	if allMatched {
		status = ReconAllMatched
	}
	if err := s.repo.SetReconStatus(ctx, salesOrderID, status); err != nil {
		return fmt.Errorf("record reconciliation: %w", err)
	}
	return nil
}

func itemsFromSheet(items []ordersheet.SheetItem) []OrderItem {
	out := make([]OrderItem, 0, len(items))
	for _, it := range items {
		out = append(out, OrderItem{
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			WeightKg:    it.WeightKg,
			UnitPrice:   it.UnitPrice,
			LineOrder:   it.LineOrder,
		})
	}
	return out
}
