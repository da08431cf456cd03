package shipment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meatflow/meatflow/internal/shared"
)

// ReconSource reports whether a sales order's documents reconciled clean.
// Gate eligibility hangs off this single fact.
type ReconSource interface {
	ReconciliationAllMatched(ctx context.Context, salesOrderID int64) (bool, error)
}

// Service owns shipment state and the gate checkpoint. It is the single
// writer of Shipment.status; DELIVERED is reachable only through a completed
// gate.
type Service struct {
	repo     Repository
	sessions *GateSessionStore
	recon    ReconSource
	logger   *slog.Logger

	readiness      singleflight.Group
	onGateComplete func()
}

// SetGateHook observes completed gates, typically for metrics.
func (s *Service) SetGateHook(fn func()) {
	s.onGateComplete = fn
}

// NewService constructs a new Service.
func NewService(repo Repository, sessions *GateSessionStore, recon ReconSource, logger *slog.Logger) *Service {
	return &Service{repo: repo, sessions: sessions, recon: recon, logger: logger}
}

// CreateFromSalesOrder opens a PREPARING shipment for a sales order.
func (s *Service) CreateFromSalesOrder(ctx context.Context, req CreateShipmentRequest) (*Shipment, error) {
	if existing, err := s.repo.GetBySalesOrder(ctx, req.SalesOrderID); err == nil {
		if existing.Status != StatusDelivered {
			return nil, fmt.Errorf("%w: sales order %d already has an open shipment", shared.ErrValidation, req.SalesOrderID)
		}
	}

	sh := Shipment{
		SourceSalesOrderID: req.SalesOrderID,
		Company:            req.Company,
		VehicleNumber:      req.VehicleNumber,
		DriverName:         req.DriverName,
		DriverPhone:        req.DriverPhone,
		EtaAt:              req.EtaAt,
	}
	id, err := s.repo.Create(ctx, sh)
	if err != nil {
		return nil, err
	}

	s.logger.Info("shipment created",
		slog.Int64("shipment_id", id),
		slog.Int64("sales_order_id", req.SalesOrderID))
	return s.Get(ctx, id)
}

// Get returns a shipment with its derived gate readiness.
func (s *Service) Get(ctx context.Context, id int64) (*Shipment, error) {
	sh, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withReadiness(ctx, sh)
}

// GetBySalesOrder returns the latest shipment for a sales order.
func (s *Service) GetBySalesOrder(ctx context.Context, salesOrderID int64) (*Shipment, error) {
	sh, err := s.repo.GetBySalesOrder(ctx, salesOrderID)
	if err != nil {
		return nil, err
	}
	return s.withReadiness(ctx, sh)
}

// List returns shipments matching the filters plus the unpaged total.
func (s *Service) List(ctx context.Context, req ListShipmentsRequest) ([]Shipment, int, error) {
	return s.repo.List(ctx, req)
}

// UpdateCarrierInfo edits carrier details on a not-yet-delivered shipment
// and marks it modified.
func (s *Service) UpdateCarrierInfo(ctx context.Context, id int64, req UpdateCarrierRequest) (*Shipment, error) {
	sh, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Company != nil {
		sh.Company = req.Company
	}
	if req.VehicleNumber != nil {
		sh.VehicleNumber = req.VehicleNumber
	}
	if req.DriverName != nil {
		sh.DriverName = req.DriverName
	}
	if req.DriverPhone != nil {
		sh.DriverPhone = req.DriverPhone
	}
	if req.EtaAt != nil {
		sh.EtaAt = req.EtaAt
	}

	if err := s.repo.UpdateCarrier(ctx, *sh); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Depart moves a PREPARING shipment onto the road.
func (s *Service) Depart(ctx context.Context, id int64, actor shared.Actor) (*Shipment, error) {
	if !actor.Role.HasPermission(shared.PermShipmentDepart) {
		return nil, shared.ErrUnauthorized
	}

	sh, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sh.Status.CanDepart() {
		return nil, fmt.Errorf("%w: shipment in %s cannot depart", shared.ErrInvalidTransition, sh.Status)
	}

	if err := s.repo.UpdateStatus(ctx, id, StatusPreparing, StatusInTransit, nil); err != nil {
		return nil, err
	}

	s.logger.Info("shipment departed", slog.Int64("shipment_id", id), slog.Int64("actor_id", actor.ID))
	return s.Get(ctx, id)
}

// DeliveredForSheet implements the order sheet close precondition.
func (s *Service) DeliveredForSheet(ctx context.Context, orderSheetID int64) (bool, error) {
	return s.repo.DeliveredForSheet(ctx, orderSheetID)
}

// ============================================================================
// GATE CHECKPOINT
// ============================================================================

// OpenGate starts a gate session for a shipment. The gate only opens once
// reconciliation reported every line matched; an undelivered shipment in any
// earlier state is rejected.
func (s *Service) OpenGate(ctx context.Context, shipmentID int64, actor shared.Actor) (*GateSession, error) {
	if !actor.Role.HasPermission(shared.PermGateOperate) {
		return nil, shared.ErrUnauthorized
	}

	sh, err := s.repo.Get(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if sh.Status == StatusDelivered {
		return nil, fmt.Errorf("%w: shipment already delivered", shared.ErrInvalidTransition)
	}

	allMatched, err := s.recon.ReconciliationAllMatched(ctx, sh.SourceSalesOrderID)
	if err != nil {
		return nil, err
	}
	if !allMatched {
		return nil, fmt.Errorf("%w: reconciliation has not converged", shared.ErrIncompleteGate)
	}

	items := make(map[string]bool, len(ChecklistItems))
	for _, name := range ChecklistItems {
		items[name] = false
	}
	session := &GateSession{
		ShipmentID: shipmentID,
		FromStatus: sh.Status,
		Items:      items,
		OpenedAt:   time.Now(),
		OpenedBy:   actor.ID,
	}
	if err := s.sessions.Put(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("gate opened",
		slog.Int64("shipment_id", shipmentID),
		slog.Int64("actor_id", actor.ID))
	return session, nil
}

// ToggleChecklistItem flips one checklist item in the open session.
func (s *Service) ToggleChecklistItem(ctx context.Context, shipmentID int64, actor shared.Actor, item string, checked bool) (*GateSession, error) {
	if !actor.Role.HasPermission(shared.PermGateOperate) {
		return nil, shared.ErrUnauthorized
	}

	session, err := s.sessions.Get(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if _, known := session.Items[item]; !known {
		return nil, fmt.Errorf("%w: unknown checklist item %q", shared.ErrValidation, item)
	}

	session.Items[item] = checked
	if err := s.sessions.Put(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SubmitSignature attaches the signature artifact to the open session.
func (s *Service) SubmitSignature(ctx context.Context, shipmentID int64, actor shared.Actor, signature []byte) (*GateSession, error) {
	if !actor.Role.HasPermission(shared.PermGateOperate) {
		return nil, shared.ErrUnauthorized
	}
	if len(signature) == 0 {
		return nil, fmt.Errorf("%w: empty signature", shared.ErrValidation)
	}

	session, err := s.sessions.Get(ctx, shipmentID)
	if err != nil {
		return nil, err
	}

	session.Signature = signature
	if err := s.sessions.Put(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// CompleteGate closes the checkpoint. It requires every checklist item true
// plus a signature; anything less leaves the session open for correction.
// Completion persists the gate record and flips the shipment to DELIVERED in
// one transaction, exactly once.
func (s *Service) CompleteGate(ctx context.Context, shipmentID int64, actor shared.Actor) (*Shipment, error) {
	if !actor.Role.HasPermission(shared.PermGateOperate) {
		return nil, shared.ErrUnauthorized
	}

	session, err := s.sessions.Get(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if !session.Complete() {
		return nil, fmt.Errorf("%w: checklist or signature missing", shared.ErrIncompleteGate)
	}

	now := time.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.UpdateStatus(ctx, shipmentID, session.FromStatus, StatusDelivered, &now); err != nil {
			return err
		}
		return tx.SaveGateRecord(ctx, GateRecord{
			ShipmentID:  shipmentID,
			Items:       session.Items,
			Signature:   session.Signature,
			CompletedBy: actor.ID,
			CompletedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	_ = s.sessions.Delete(ctx, shipmentID)
	if s.onGateComplete != nil {
		s.onGateComplete()
	}
	s.logger.Info("gate completed",
		slog.Int64("shipment_id", shipmentID),
		slog.Int64("actor_id", actor.ID))
	return s.Get(ctx, shipmentID)
}

// AbandonGate discards the open session with no effect on the shipment.
func (s *Service) AbandonGate(ctx context.Context, shipmentID int64, actor shared.Actor) error {
	if !actor.Role.HasPermission(shared.PermGateOperate) {
		return shared.ErrUnauthorized
	}
	return s.sessions.Delete(ctx, shipmentID)
}

// CompletedGate returns the persisted record of a completed gate.
func (s *Service) CompletedGate(ctx context.Context, shipmentID int64) (*GateRecord, error) {
	return s.repo.GetGateRecord(ctx, shipmentID)
}

// withReadiness derives the gate readiness flag. Concurrent probes for the
// same sales order collapse into one reconciliation lookup.
func (s *Service) withReadiness(ctx context.Context, sh *Shipment) (*Shipment, error) {
	if sh.Status != StatusPreparing {
		return sh, nil
	}

	ch := s.readiness.DoChan(strconv.FormatInt(sh.SourceSalesOrderID, 10), func() (interface{}, error) {
		return s.recon.ReconciliationAllMatched(ctx, sh.SourceSalesOrderID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		sh.Ready = res.Val.(bool)
	}
	return sh, nil
}
