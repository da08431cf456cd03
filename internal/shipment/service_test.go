package shipment

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meatflow/meatflow/internal/shared"
)

// ============================================================================
// MOCKS
// ============================================================================

type mockRepository struct {
	shipments map[int64]*Shipment
	records   map[int64]*GateRecord
	sheetFor  map[int64]int64 // sales order id -> order sheet id
	nextID    int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		shipments: make(map[int64]*Shipment),
		records:   make(map[int64]*GateRecord),
		sheetFor:  make(map[int64]int64),
		nextID:    1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) Create(_ context.Context, sh Shipment) (int64, error) {
	id := m.nextID
	m.nextID++
	sh.ID = id
	sh.Status = StatusPreparing
	sh.CreatedAt = time.Now()
	m.shipments[id] = &sh
	return id, nil
}

func (m *mockRepository) Get(_ context.Context, id int64) (*Shipment, error) {
	sh, ok := m.shipments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *sh
	return &cp, nil
}

func (m *mockRepository) GetBySalesOrder(_ context.Context, salesOrderID int64) (*Shipment, error) {
	for _, sh := range m.shipments {
		if sh.SourceSalesOrderID == salesOrderID {
			cp := *sh
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepository) List(_ context.Context, _ ListShipmentsRequest) ([]Shipment, int, error) {
	var out []Shipment
	for _, sh := range m.shipments {
		out = append(out, *sh)
	}
	return out, len(out), nil
}

func (m *mockRepository) UpdateCarrier(_ context.Context, sh Shipment) error {
	stored, ok := m.shipments[sh.ID]
	if !ok || stored.Status == StatusDelivered {
		return shared.ErrStaleState
	}
	stored.Company = sh.Company
	stored.VehicleNumber = sh.VehicleNumber
	stored.DriverName = sh.DriverName
	stored.DriverPhone = sh.DriverPhone
	stored.EtaAt = sh.EtaAt
	stored.IsModified = true
	return nil
}

func (m *mockRepository) UpdateStatus(_ context.Context, id int64, from, to Status, deliveredAt *time.Time) error {
	stored, ok := m.shipments[id]
	if !ok || stored.Status != from {
		return shared.ErrStaleState
	}
	stored.Status = to
	if deliveredAt != nil {
		stored.DeliveredAt = deliveredAt
	}
	return nil
}

func (m *mockRepository) SaveGateRecord(_ context.Context, rec GateRecord) error {
	m.records[rec.ShipmentID] = &rec
	return nil
}

func (m *mockRepository) GetGateRecord(_ context.Context, shipmentID int64) (*GateRecord, error) {
	rec, ok := m.records[shipmentID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return rec, nil
}

func (m *mockRepository) DeliveredForSheet(_ context.Context, orderSheetID int64) (bool, error) {
	for _, sh := range m.shipments {
		if m.sheetFor[sh.SourceSalesOrderID] == orderSheetID && sh.Status == StatusDelivered {
			return true, nil
		}
	}
	return false, nil
}

type mockRecon struct {
	allMatched map[int64]bool
}

func (m *mockRecon) ReconciliationAllMatched(_ context.Context, salesOrderID int64) (bool, error) {
	return m.allMatched[salesOrderID], nil
}

// ============================================================================
// FIXTURE
// ============================================================================

type fixture struct {
	repo    *mockRepository
	recon   *mockRecon
	service *Service
	redis   *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMockRepository()
	recon := &mockRecon{allMatched: make(map[int64]bool)}
	sessions := NewGateSessionStore(client, 0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		repo:    repo,
		recon:   recon,
		service: NewService(repo, sessions, recon, logger),
		redis:   mr,
	}
}

var gateActor = shared.Actor{ID: 9, Name: "wh", Role: shared.RoleWarehouse}

func (f *fixture) createShipment(t *testing.T, salesOrderID int64) *Shipment {
	t.Helper()
	sh, err := f.service.CreateFromSalesOrder(context.Background(), CreateShipmentRequest{
		SalesOrderID: salesOrderID,
	})
	require.NoError(t, err)
	return sh
}

func (f *fixture) openGate(t *testing.T, salesOrderID int64) *Shipment {
	t.Helper()
	sh := f.createShipment(t, salesOrderID)
	f.recon.allMatched[salesOrderID] = true
	_, err := f.service.OpenGate(context.Background(), sh.ID, gateActor)
	require.NoError(t, err)
	return sh
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateRejectsSecondOpenShipment(t *testing.T) {
	f := newFixture(t)
	f.createShipment(t, 1)

	_, err := f.service.CreateFromSalesOrder(context.Background(), CreateShipmentRequest{SalesOrderID: 1})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestReadinessDerivedFromReconciliation(t *testing.T) {
	f := newFixture(t)
	sh := f.createShipment(t, 1)
	assert.False(t, sh.Ready)

	f.recon.allMatched[1] = true
	got, err := f.service.Get(context.Background(), sh.ID)
	require.NoError(t, err)
	assert.True(t, got.Ready)
	assert.Equal(t, StatusPreparing, got.Status)
}

func TestUpdateCarrierMarksModified(t *testing.T) {
	f := newFixture(t)
	sh := f.createShipment(t, 1)

	driver := "김기사"
	got, err := f.service.UpdateCarrierInfo(context.Background(), sh.ID, UpdateCarrierRequest{DriverName: &driver})
	require.NoError(t, err)
	assert.True(t, got.IsModified)
	require.NotNil(t, got.DriverName)
	assert.Equal(t, "김기사", *got.DriverName)
}

func TestDepartOnlyFromPreparing(t *testing.T) {
	f := newFixture(t)
	sh := f.createShipment(t, 1)

	got, err := f.service.Depart(context.Background(), sh.ID, gateActor)
	require.NoError(t, err)
	assert.Equal(t, StatusInTransit, got.Status)

	_, err = f.service.Depart(context.Background(), sh.ID, gateActor)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestDepartRequiresPermission(t *testing.T) {
	f := newFixture(t)
	sh := f.createShipment(t, 1)

	customer := shared.Actor{ID: 3, Role: shared.RoleCustomer}
	_, err := f.service.Depart(context.Background(), sh.ID, customer)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestOpenGateRequiresCleanReconciliation(t *testing.T) {
	f := newFixture(t)
	sh := f.createShipment(t, 1)

	_, err := f.service.OpenGate(context.Background(), sh.ID, gateActor)
	assert.ErrorIs(t, err, shared.ErrIncompleteGate)

	f.recon.allMatched[1] = true
	session, err := f.service.OpenGate(context.Background(), sh.ID, gateActor)
	require.NoError(t, err)
	assert.Len(t, session.Items, len(ChecklistItems))
	for _, checked := range session.Items {
		assert.False(t, checked)
	}
}

func TestCompleteGateRequiresChecklistAndSignature(t *testing.T) {
	f := newFixture(t)
	sh := f.openGate(t, 1)
	ctx := context.Background()

	// Nothing checked yet.
	_, err := f.service.CompleteGate(ctx, sh.ID, gateActor)
	assert.ErrorIs(t, err, shared.ErrIncompleteGate)

	for _, item := range ChecklistItems {
		_, err := f.service.ToggleChecklistItem(ctx, sh.ID, gateActor, item, true)
		require.NoError(t, err)
	}

	// Checklist done, signature still missing.
	_, err = f.service.CompleteGate(ctx, sh.ID, gateActor)
	assert.ErrorIs(t, err, shared.ErrIncompleteGate)

	_, err = f.service.SubmitSignature(ctx, sh.ID, gateActor, []byte("png-bytes"))
	require.NoError(t, err)

	got, err := f.service.CompleteGate(ctx, sh.ID, gateActor)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
	assert.NotNil(t, got.DeliveredAt)

	rec, err := f.service.CompletedGate(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), rec.Signature)
	for _, item := range ChecklistItems {
		assert.True(t, rec.Items[item])
	}
}

func TestCompleteGateDeliversExactlyOnce(t *testing.T) {
	f := newFixture(t)
	sh := f.openGate(t, 1)
	ctx := context.Background()

	for _, item := range ChecklistItems {
		_, err := f.service.ToggleChecklistItem(ctx, sh.ID, gateActor, item, true)
		require.NoError(t, err)
	}
	_, err := f.service.SubmitSignature(ctx, sh.ID, gateActor, []byte("sig"))
	require.NoError(t, err)

	_, err = f.service.CompleteGate(ctx, sh.ID, gateActor)
	require.NoError(t, err)

	// The session is gone and the shipment cannot be delivered again.
	_, err = f.service.CompleteGate(ctx, sh.ID, gateActor)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.service.OpenGate(ctx, sh.ID, gateActor)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestToggleUnknownChecklistItem(t *testing.T) {
	f := newFixture(t)
	sh := f.openGate(t, 1)

	_, err := f.service.ToggleChecklistItem(context.Background(), sh.ID, gateActor, "favorite_color", true)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestAbandonGateDiscardsProgress(t *testing.T) {
	f := newFixture(t)
	sh := f.openGate(t, 1)
	ctx := context.Background()

	_, err := f.service.ToggleChecklistItem(ctx, sh.ID, gateActor, ChecklistItems[0], true)
	require.NoError(t, err)

	require.NoError(t, f.service.AbandonGate(ctx, sh.ID, gateActor))

	// Shipment untouched, session gone.
	got, err := f.service.Get(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPreparing, got.Status)

	_, err = f.service.ToggleChecklistItem(ctx, sh.ID, gateActor, ChecklistItems[0], true)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	// Reopening starts clean.
	session, err := f.service.OpenGate(ctx, sh.ID, gateActor)
	require.NoError(t, err)
	assert.False(t, session.Items[ChecklistItems[0]])
}

func TestGateSessionExpires(t *testing.T) {
	f := newFixture(t)
	sh := f.openGate(t, 1)

	f.redis.FastForward(defaultGateTTL + time.Minute)

	_, err := f.service.ToggleChecklistItem(context.Background(), sh.ID, gateActor, ChecklistItems[0], true)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGateOpensAfterDeparture(t *testing.T) {
	f := newFixture(t)
	sh := f.createShipment(t, 1)
	f.recon.allMatched[1] = true
	ctx := context.Background()

	_, err := f.service.Depart(ctx, sh.ID, gateActor)
	require.NoError(t, err)

	session, err := f.service.OpenGate(ctx, sh.ID, gateActor)
	require.NoError(t, err)
	assert.Equal(t, StatusInTransit, session.FromStatus)

	for _, item := range ChecklistItems {
		_, err := f.service.ToggleChecklistItem(ctx, sh.ID, gateActor, item, true)
		require.NoError(t, err)
	}
	_, err = f.service.SubmitSignature(ctx, sh.ID, gateActor, []byte("sig"))
	require.NoError(t, err)

	got, err := f.service.CompleteGate(ctx, sh.ID, gateActor)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
}

func TestDeliveredForSheet(t *testing.T) {
	f := newFixture(t)
	f.repo.sheetFor[1] = 42
	sh := f.openGate(t, 1)
	ctx := context.Background()

	delivered, err := f.service.DeliveredForSheet(ctx, 42)
	require.NoError(t, err)
	assert.False(t, delivered)

	for _, item := range ChecklistItems {
		_, err := f.service.ToggleChecklistItem(ctx, sh.ID, gateActor, item, true)
		require.NoError(t, err)
	}
	_, err = f.service.SubmitSignature(ctx, sh.ID, gateActor, []byte("sig"))
	require.NoError(t, err)
	_, err = f.service.CompleteGate(ctx, sh.ID, gateActor)
	require.NoError(t, err)

	delivered, err = f.service.DeliveredForSheet(ctx, 42)
	require.NoError(t, err)
	assert.True(t, delivered)
}
