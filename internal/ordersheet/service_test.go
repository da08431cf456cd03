package ordersheet

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
	sheets map[int64]*OrderSheet
	nextID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{sheets: make(map[int64]*OrderSheet), nextID: 1}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) Create(_ context.Context, sheet OrderSheet) (int64, error) {
	id := m.nextID
	m.nextID++
	sheet.ID = id
	sheet.Status = StatusDraft
	sheet.CreatedAt = time.Now()
	sheet.UpdatedAt = sheet.CreatedAt
	m.sheets[id] = &sheet
	return id, nil
}

func (m *mockRepository) Get(_ context.Context, id int64) (*OrderSheet, error) {
	sheet, ok := m.sheets[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *sheet
	return &cp, nil
}

func (m *mockRepository) List(_ context.Context, _ ListOrderSheetsRequest) ([]OrderSheet, int, error) {
	var out []OrderSheet
	for _, s := range m.sheets {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (m *mockRepository) UpdateDraft(_ context.Context, sheet OrderSheet) error {
	stored, ok := m.sheets[sheet.ID]
	if !ok || !stored.Status.CanEdit() {
		return shared.ErrStaleState
	}
	stored.CustomerName = sheet.CustomerName
	stored.ShipDate = sheet.ShipDate
	stored.CutOffAt = sheet.CutOffAt
	return nil
}

func (m *mockRepository) ReplaceItems(_ context.Context, sheetID int64, items []SheetItem) error {
	stored, ok := m.sheets[sheetID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.Items = items
	return nil
}

func (m *mockRepository) UpdateStatus(_ context.Context, id int64, from, to SheetStatus, fields TransitionFields) error {
	stored, ok := m.sheets[id]
	if !ok || stored.Status != from {
		return shared.ErrStaleState
	}
	stored.Status = to
	if fields.InviteTokenID != nil {
		stored.InviteTokenID = fields.InviteTokenID
	}
	if fields.LastSubmittedAt != nil {
		stored.LastSubmittedAt = fields.LastSubmittedAt
	}
	if fields.RevisionNote != nil {
		stored.RevisionNote = fields.RevisionNote
	}
	return nil
}

func (m *mockRepository) ListPastCutoff(_ context.Context, now time.Time) ([]OrderSheet, error) {
	var out []OrderSheet
	for _, s := range m.sheets {
		if s.Status == StatusSent && s.CutOffAt != nil && s.CutOffAt.Before(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

type mockSalesOrders struct {
	created map[int64]int64 // sheet id -> sales order id
	nextID  int64
	calls   int
}

func newMockSalesOrders() *mockSalesOrders {
	return &mockSalesOrders{created: make(map[int64]int64), nextID: 100}
}

func (m *mockSalesOrders) CreateFromSheet(_ context.Context, sheet OrderSheet) (int64, error) {
	m.calls++
	if id, ok := m.created[sheet.ID]; ok {
		return id, nil
	}
	id := m.nextID
	m.nextID++
	m.created[sheet.ID] = id
	return id, nil
}

type mockDeliveries struct {
	delivered map[int64]bool
}

func (m *mockDeliveries) DeliveredForSheet(_ context.Context, sheetID int64) (bool, error) {
	return m.delivered[sheetID], nil
}

// ============================================================================
// FIXTURE
// ============================================================================

type fixture struct {
	repo        *mockRepository
	salesOrders *mockSalesOrders
	deliveries  *mockDeliveries
	tokens      *InviteTokenStore
	service     *Service
	redis       *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMockRepository()
	salesOrders := newMockSalesOrders()
	deliveries := &mockDeliveries{delivered: make(map[int64]bool)}
	tokens := NewInviteTokenStore(client)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		repo:        repo,
		salesOrders: salesOrders,
		deliveries:  deliveries,
		tokens:      tokens,
		service:     NewService(repo, tokens, salesOrders, deliveries, logger),
		redis:       mr,
	}
}

var (
	opsActor       = shared.Actor{ID: 1, Name: "ops", Role: shared.RoleOperations}
	warehouseActor = shared.Actor{ID: 2, Name: "wh", Role: shared.RoleWarehouse}
)

func (f *fixture) createSheet(t *testing.T) *OrderSheet {
	t.Helper()
	sheet, err := f.service.Create(context.Background(), opsActor, CreateOrderSheetRequest{
		CustomerName: "한우식당",
		Items: []CreateSheetItemReq{
			{ProductName: "소고기", Quantity: 10, WeightKg: 25.5, UnitPrice: 12000},
		},
	})
	require.NoError(t, err)
	return sheet
}

func (f *fixture) sheetAt(t *testing.T, sheet *OrderSheet, status SheetStatus) *OrderSheet {
	t.Helper()
	ctx := context.Background()

	if status == StatusDraft {
		return sheet
	}
	sheet, err := f.service.Dispatch(ctx, sheet.ID, opsActor)
	require.NoError(t, err)
	if status == StatusSent {
		return sheet
	}

	sheet, err = f.service.SubmitViaToken(ctx, SubmitRequest{Token: *sheet.InviteTokenID})
	require.NoError(t, err)
	if status == StatusSubmitted {
		return sheet
	}

	sheet, err = f.service.Confirm(ctx, sheet.ID, opsActor)
	require.NoError(t, err)
	return sheet
}

// ============================================================================
// TESTS
// ============================================================================

func TestDispatchIssuesInviteToken(t *testing.T) {
	f := newFixture(t)
	sheet := f.createSheet(t)

	sent, err := f.service.Dispatch(context.Background(), sheet.ID, opsActor)
	require.NoError(t, err)

	assert.Equal(t, StatusSent, sent.Status)
	require.NotNil(t, sent.InviteTokenID)

	sheetID, err := f.tokens.Lookup(context.Background(), *sent.InviteTokenID)
	require.NoError(t, err)
	assert.Equal(t, sheet.ID, sheetID)
}

func TestDispatchRequiresPermission(t *testing.T) {
	f := newFixture(t)
	sheet := f.createSheet(t)

	_, err := f.service.Dispatch(context.Background(), sheet.ID, warehouseActor)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestSubmitViaToken(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheetAt(t, f.createSheet(t), StatusSent)

	submitted, err := f.service.SubmitViaToken(context.Background(), SubmitRequest{
		Token: *sheet.InviteTokenID,
		Items: &[]CreateSheetItemReq{
			{ProductName: "소고기", Quantity: 8, WeightKg: 20.0, UnitPrice: 12000},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSubmitted, submitted.Status)
	assert.NotNil(t, submitted.LastSubmittedAt)
	require.Len(t, submitted.Items, 1)
	assert.Equal(t, 8.0, submitted.Items[0].Quantity)

	// Token is single use.
	_, err = f.service.SubmitViaToken(context.Background(), SubmitRequest{Token: *sheet.InviteTokenID})
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestSubmitWithUnknownTokenFails(t *testing.T) {
	f := newFixture(t)
	f.sheetAt(t, f.createSheet(t), StatusSent)

	_, err := f.service.SubmitViaToken(context.Background(), SubmitRequest{Token: "nope"})
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestSubmitWithExpiredTokenFails(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheetAt(t, f.createSheet(t), StatusSent)

	f.redis.FastForward(defaultInviteTTL + time.Minute)

	_, err := f.service.SubmitViaToken(context.Background(), SubmitRequest{Token: *sheet.InviteTokenID})
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestReviseRequiresReason(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheetAt(t, f.createSheet(t), StatusSubmitted)

	_, err := f.service.Revise(context.Background(), sheet.ID, opsActor, "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	revised, err := f.service.Revise(context.Background(), sheet.ID, opsActor, "quantities look wrong")
	require.NoError(t, err)
	assert.Equal(t, StatusRevision, revised.Status)
	require.NotNil(t, revised.RevisionNote)
	assert.Equal(t, "quantities look wrong", *revised.RevisionNote)
}

func TestRevisionLoopBackToSent(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheetAt(t, f.createSheet(t), StatusSubmitted)

	_, err := f.service.Revise(context.Background(), sheet.ID, opsActor, "fix weights")
	require.NoError(t, err)

	resent, err := f.service.Dispatch(context.Background(), sheet.ID, opsActor)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, resent.Status)
	require.NotNil(t, resent.InviteTokenID)
	assert.NotEqual(t, *sheet.InviteTokenID, *resent.InviteTokenID)
}

func TestConfirmCreatesSalesOrderOnce(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheetAt(t, f.createSheet(t), StatusSubmitted)

	confirmed, err := f.service.Confirm(context.Background(), sheet.ID, opsActor)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	assert.Len(t, f.salesOrders.created, 1)

	// Re-confirming is a no-op, not a duplicate.
	again, err := f.service.Confirm(context.Background(), sheet.ID, opsActor)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, again.Status)
	assert.Len(t, f.salesOrders.created, 1)
	assert.Equal(t, 2, f.salesOrders.calls)
}

func TestConfirmFromDraftFails(t *testing.T) {
	f := newFixture(t)
	sheet := f.createSheet(t)

	_, err := f.service.Confirm(context.Background(), sheet.ID, opsActor)
	assert.ErrorIs(t, err, shared.ErrStaleState)
	assert.Empty(t, f.salesOrders.created)
}

func TestCloseRequiresDelivery(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheetAt(t, f.createSheet(t), StatusConfirmed)

	_, err := f.service.Close(context.Background(), sheet.ID, opsActor)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	f.deliveries.delivered[sheet.ID] = true
	closed, err := f.service.Close(context.Background(), sheet.ID, opsActor)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, closed.Status)
}

func TestRequestTransitionRejectsIllegalEdge(t *testing.T) {
	f := newFixture(t)
	sheet := f.createSheet(t)

	cases := []struct {
		from, to SheetStatus
	}{
		{StatusDraft, StatusConfirmed},
		{StatusDraft, StatusClosed},
		{StatusSent, StatusConfirmed},
		{StatusClosed, StatusDraft},
		{StatusConfirmed, StatusDraft},
	}
	for _, tc := range cases {
		_, err := f.service.RequestTransition(context.Background(), sheet.ID, tc.from, tc.to, opsActor)
		assert.ErrorIs(t, err, shared.ErrInvalidTransition, "%s -> %s", tc.from, tc.to)
	}

	// Stored status untouched.
	got, err := f.service.Get(context.Background(), sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, got.Status)
}

func TestRequestTransitionAuthorizesRole(t *testing.T) {
	f := newFixture(t)
	sheet := f.createSheet(t)

	_, err := f.service.RequestTransition(context.Background(), sheet.ID, StatusDraft, StatusSent, warehouseActor)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	sent, err := f.service.RequestTransition(context.Background(), sheet.ID, StatusDraft, StatusSent, opsActor)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sent.Status)
}

func TestStaleTransitionFails(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheetAt(t, f.createSheet(t), StatusSent)

	// Caller still believes the sheet is DRAFT.
	_, err := f.service.RequestTransition(context.Background(), sheet.ID, StatusDraft, StatusSent, opsActor)
	assert.ErrorIs(t, err, shared.ErrStaleState)
}

func TestUpdateFrozenAfterDispatch(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheetAt(t, f.createSheet(t), StatusSent)

	name := "다른식당"
	_, err := f.service.Update(context.Background(), sheet.ID, UpdateOrderSheetRequest{CustomerName: &name})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestExpireInvitesSweepsPastCutoff(t *testing.T) {
	f := newFixture(t)

	cutoff := time.Now().Add(time.Hour)
	sheet, err := f.service.Create(context.Background(), opsActor, CreateOrderSheetRequest{
		CustomerName: "한우식당",
		CutOffAt:     &cutoff,
		Items: []CreateSheetItemReq{
			{ProductName: "소고기", Quantity: 10, WeightKg: 25.5, UnitPrice: 12000},
		},
	})
	require.NoError(t, err)

	sent, err := f.service.Dispatch(context.Background(), sheet.ID, opsActor)
	require.NoError(t, err)

	expired, err := f.service.ExpireInvites(context.Background(), cutoff.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	_, err = f.tokens.Lookup(context.Background(), *sent.InviteTokenID)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}
