package ordersheet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meatflow/meatflow/internal/shared"
)

// SalesOrderCreator materializes a sales order from a confirmed sheet.
// Creation is idempotent on the source sheet id: calling it again for the
// same sheet returns the existing order.
type SalesOrderCreator interface {
	CreateFromSheet(ctx context.Context, sheet OrderSheet) (int64, error)
}

// DeliveryChecker reports whether the shipment backing a sheet has been
// delivered. Closing a sheet is only legal after delivery.
type DeliveryChecker interface {
	DeliveredForSheet(ctx context.Context, orderSheetID int64) (bool, error)
}

// Service drives the order sheet state machine. It is the single writer of
// OrderSheet.status; every transition goes through the compare-and-swap in
// the repository.
type Service struct {
	repo        Repository
	tokens      *InviteTokenStore
	salesOrders SalesOrderCreator
	deliveries  DeliveryChecker
	logger      *slog.Logger

	onTransition func(from, to SheetStatus)
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *InviteTokenStore, salesOrders SalesOrderCreator, deliveries DeliveryChecker, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		tokens:      tokens,
		salesOrders: salesOrders,
		deliveries:  deliveries,
		logger:      logger,
	}
}

// SetTransitionHook observes successful transitions, typically for metrics.
func (s *Service) SetTransitionHook(fn func(from, to SheetStatus)) {
	s.onTransition = fn
}

func (s *Service) notifyTransition(from, to SheetStatus) {
	if s.onTransition != nil {
		s.onTransition(from, to)
	}
}

// Create opens a new DRAFT sheet.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateOrderSheetRequest) (*OrderSheet, error) {
	sheet := OrderSheet{
		CustomerName: req.CustomerName,
		Status:       StatusDraft,
		ShipDate:     req.ShipDate,
		CutOffAt:     req.CutOffAt,
		CreatedBy:    actor.ID,
		Items:        itemsFromReqs(req.Items),
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		var err error
		id, err = tx.Create(ctx, sheet)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order sheet created",
		slog.Int64("sheet_id", id),
		slog.String("customer", req.CustomerName),
		slog.Int64("actor_id", actor.ID))
	return s.repo.Get(ctx, id)
}

// Get returns a sheet with its items.
func (s *Service) Get(ctx context.Context, id int64) (*OrderSheet, error) {
	return s.repo.Get(ctx, id)
}

// List returns sheets matching the filters plus the unpaged total.
func (s *Service) List(ctx context.Context, req ListOrderSheetsRequest) ([]OrderSheet, int, error) {
	return s.repo.List(ctx, req)
}

// Update edits a DRAFT or REVISION sheet. Sheets in any other status are
// frozen for operations staff.
func (s *Service) Update(ctx context.Context, id int64, req UpdateOrderSheetRequest) (*OrderSheet, error) {
	sheet, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sheet.Status.CanEdit() {
		return nil, fmt.Errorf("%w: sheet in %s cannot be edited", shared.ErrInvalidTransition, sheet.Status)
	}

	if req.CustomerName != nil {
		sheet.CustomerName = *req.CustomerName
	}
	if req.ShipDate != nil {
		sheet.ShipDate = req.ShipDate
	}
	if req.CutOffAt != nil {
		sheet.CutOffAt = req.CutOffAt
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.UpdateDraft(ctx, *sheet); err != nil {
			return err
		}
		if req.Items != nil {
			return tx.ReplaceItems(ctx, id, itemsFromReqs(*req.Items))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// RequestTransition is the generic edge request. It authorizes the actor
// against the static per-edge permission table and dispatches to the edge's
// side effects. The caller-supplied from status is the compare-and-swap
// expectation; a sheet that moved on since the caller last read it fails
// with a stale state error.
func (s *Service) RequestTransition(ctx context.Context, id int64, from, to SheetStatus, actor shared.Actor) (*OrderSheet, error) {
	if !from.IsValid() || !to.IsValid() {
		return nil, fmt.Errorf("%w: unknown status", shared.ErrValidation)
	}
	perm, ok := EdgePermission(from, to)
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, from, to)
	}
	if !actor.Role.HasPermission(perm) {
		return nil, fmt.Errorf("%w: role %s may not request %s -> %s", shared.ErrUnauthorized, actor.Role, from, to)
	}

	switch {
	case to == StatusSent:
		return s.dispatch(ctx, id, from, actor)
	case to == StatusSubmitted:
		// Submission is authenticated by the invite token, not a session.
		return nil, fmt.Errorf("%w: submission requires an invite token", shared.ErrUnauthorized)
	case to == StatusRevision:
		return nil, fmt.Errorf("%w: revision requires a reason", shared.ErrValidation)
	case to == StatusConfirmed:
		return s.Confirm(ctx, id, actor)
	case to == StatusClosed:
		return s.Close(ctx, id, actor)
	default:
		return nil, fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, from, to)
	}
}

// Dispatch moves a DRAFT or REVISION sheet to SENT, issuing a fresh invite
// token for the customer as part of the transition.
func (s *Service) Dispatch(ctx context.Context, id int64, actor shared.Actor) (*OrderSheet, error) {
	if !actor.Role.HasPermission(shared.PermSheetDispatch) {
		return nil, shared.ErrUnauthorized
	}
	sheet, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, id, sheet.Status, actor)
}

func (s *Service) dispatch(ctx context.Context, id int64, from SheetStatus, actor shared.Actor) (*OrderSheet, error) {
	if _, ok := EdgePermission(from, StatusSent); !ok {
		return nil, fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, from, StatusSent)
	}

	sheet, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(ctx, id, sheet.CutOffAt)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, from, StatusSent, TransitionFields{InviteTokenID: &token}); err != nil {
		// Token was never handed out, drop it.
		_ = s.tokens.Revoke(ctx, token)
		return nil, err
	}

	s.notifyTransition(from, StatusSent)
	s.logger.Info("order sheet dispatched",
		slog.Int64("sheet_id", id),
		slog.String("from", string(from)),
		slog.Int64("actor_id", actor.ID))
	return s.repo.Get(ctx, id)
}

// SubmitViaToken is the customer-facing transition SENT -> SUBMITTED. The
// invite token is the whole of the customer's credential; it must resolve to
// this sheet and match the token the sheet was dispatched with.
func (s *Service) SubmitViaToken(ctx context.Context, req SubmitRequest) (*OrderSheet, error) {
	sheetID, err := s.tokens.Lookup(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	sheet, err := s.repo.Get(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	if sheet.InviteTokenID == nil || *sheet.InviteTokenID != req.Token {
		return nil, shared.ErrUnauthorized
	}

	now := time.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.UpdateStatus(ctx, sheetID, StatusSent, StatusSubmitted,
			TransitionFields{LastSubmittedAt: &now}); err != nil {
			return err
		}
		if req.Items != nil {
			return tx.ReplaceItems(ctx, sheetID, itemsFromReqs(*req.Items))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = s.tokens.Revoke(ctx, req.Token)
	s.notifyTransition(StatusSent, StatusSubmitted)
	s.logger.Info("order sheet submitted", slog.Int64("sheet_id", sheetID))
	return s.repo.Get(ctx, sheetID)
}

// Revise rejects a SUBMITTED sheet back to REVISION with a reason for the
// customer-facing edit round.
func (s *Service) Revise(ctx context.Context, id int64, actor shared.Actor, reason string) (*OrderSheet, error) {
	if !actor.Role.HasPermission(shared.PermSheetReview) {
		return nil, shared.ErrUnauthorized
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: revision reason is required", shared.ErrValidation)
	}

	if err := s.repo.UpdateStatus(ctx, id, StatusSubmitted, StatusRevision,
		TransitionFields{RevisionNote: &reason}); err != nil {
		return nil, err
	}

	s.notifyTransition(StatusSubmitted, StatusRevision)
	s.logger.Info("order sheet sent back for revision",
		slog.Int64("sheet_id", id),
		slog.Int64("actor_id", actor.ID))
	return s.repo.Get(ctx, id)
}

// Confirm approves a SUBMITTED sheet and creates its sales order. Confirming
// an already confirmed sheet only re-ensures the sales order exists, it never
// duplicates one.
func (s *Service) Confirm(ctx context.Context, id int64, actor shared.Actor) (*OrderSheet, error) {
	if !actor.Role.HasPermission(shared.PermSheetConfirm) {
		return nil, shared.ErrUnauthorized
	}

	sheet, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if sheet.Status != StatusConfirmed {
		if err := s.repo.UpdateStatus(ctx, id, StatusSubmitted, StatusConfirmed, TransitionFields{}); err != nil {
			return nil, err
		}
		sheet.Status = StatusConfirmed
		s.notifyTransition(StatusSubmitted, StatusConfirmed)
	}

	salesOrderID, err := s.salesOrders.CreateFromSheet(ctx, *sheet)
	if err != nil {
		return nil, fmt.Errorf("create sales order: %w", err)
	}

	s.logger.Info("order sheet confirmed",
		slog.Int64("sheet_id", id),
		slog.Int64("sales_order_id", salesOrderID),
		slog.Int64("actor_id", actor.ID))
	return s.repo.Get(ctx, id)
}

// Close finishes the lifecycle once the backing shipment is delivered.
func (s *Service) Close(ctx context.Context, id int64, actor shared.Actor) (*OrderSheet, error) {
	if !actor.Role.HasPermission(shared.PermSheetClose) {
		return nil, shared.ErrUnauthorized
	}

	delivered, err := s.deliveries.DeliveredForSheet(ctx, id)
	if err != nil {
		return nil, err
	}
	if !delivered {
		return nil, fmt.Errorf("%w: shipment not delivered", shared.ErrInvalidTransition)
	}

	if err := s.repo.UpdateStatus(ctx, id, StatusConfirmed, StatusClosed, TransitionFields{}); err != nil {
		return nil, err
	}

	s.notifyTransition(StatusConfirmed, StatusClosed)
	s.logger.Info("order sheet closed",
		slog.Int64("sheet_id", id),
		slog.Int64("actor_id", actor.ID))
	return s.repo.Get(ctx, id)
}

// ExpireInvites revokes invite tokens on SENT sheets whose cutoff has
// passed. Tokens already carry the cutoff as their TTL; this sweep covers
// sheets whose cutoff was shortened after dispatch.
func (s *Service) ExpireInvites(ctx context.Context, now time.Time) (int, error) {
	sheets, err := s.repo.ListPastCutoff(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, sheet := range sheets {
		if sheet.InviteTokenID == nil {
			continue
		}
		if err := s.tokens.Revoke(ctx, *sheet.InviteTokenID); err != nil {
			s.logger.Warn("revoke expired invite failed",
				slog.Int64("sheet_id", sheet.ID), slog.Any("error", err))
			continue
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info("expired invite tokens", slog.Int("count", expired))
	}
	return expired, nil
}

func itemsFromReqs(reqs []CreateSheetItemReq) []SheetItem {
	items := make([]SheetItem, 0, len(reqs))
	for i, r := range reqs {
		order := r.LineOrder
		if order == 0 {
			order = i
		}
		items = append(items, SheetItem{
			ProductName: r.ProductName,
			Quantity:    r.Quantity,
			WeightKg:    r.WeightKg,
			UnitPrice:   r.UnitPrice,
			LineOrder:   order,
		})
	}
	return items
}
