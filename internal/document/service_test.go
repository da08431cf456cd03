package document

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meatflow/meatflow/internal/shared"
)

// ============================================================================
// MOCKS
// ============================================================================

type mockRepository struct {
	docs   map[int64]*Document
	grids  map[int64][][]string
	lines  map[int64][]LineRecord
	nextID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		docs:   make(map[int64]*Document),
		grids:  make(map[int64][][]string),
		lines:  make(map[int64][]LineRecord),
		nextID: 1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) Create(_ context.Context, doc Document, rawGrid [][]string) (int64, error) {
	id := m.nextID
	m.nextID++
	doc.ID = id
	doc.Status = DocStatusUploaded
	doc.UploadedAt = time.Now()
	m.docs[id] = &doc
	m.grids[id] = rawGrid
	return id, nil
}

func (m *mockRepository) Get(_ context.Context, id int64) (*Document, error) {
	doc, ok := m.docs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *doc
	cp.Lines = m.lines[id]
	return &cp, nil
}

func (m *mockRepository) GetRawGrid(_ context.Context, id int64) ([][]string, error) {
	grid, ok := m.grids[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return grid, nil
}

func (m *mockRepository) ListBySalesOrder(_ context.Context, salesOrderID int64) ([]Document, error) {
	var out []Document
	for _, d := range m.docs {
		if d.SalesOrderID == salesOrderID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *mockRepository) GetBySalesOrderAndType(_ context.Context, salesOrderID int64, docType DocType) (*Document, error) {
	for _, d := range m.docs {
		if d.SalesOrderID == salesOrderID && d.DocType == docType {
			cp := *d
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepository) InsertLines(_ context.Context, documentID int64, lines []LineRecord) error {
	m.lines[documentID] = lines
	return nil
}

func (m *mockRepository) GetLines(_ context.Context, documentID int64) ([]LineRecord, error) {
	return m.lines[documentID], nil
}

func (m *mockRepository) AdvanceStatus(_ context.Context, id int64, from, to DocStatus) error {
	doc, ok := m.docs[id]
	if !ok {
		return shared.ErrNotFound
	}
	if doc.Status != from || !from.CanAdvanceTo(to) {
		return shared.ErrStaleState
	}
	doc.Status = to
	if to == DocStatusParsed {
		now := time.Now()
		doc.ParsedAt = &now
	}
	return nil
}

func (m *mockRepository) ListUnparsed(_ context.Context, uploadedBefore time.Time) ([]int64, error) {
	var out []int64
	for id, d := range m.docs {
		if d.Status == DocStatusUploaded && d.UploadedAt.Before(uploadedBefore) {
			out = append(out, id)
		}
	}
	return out, nil
}

type mockEnqueuer struct {
	enqueued []int64
	fail     bool
}

func (m *mockEnqueuer) EnqueueParse(_ context.Context, documentID int64) error {
	if m.fail {
		return assert.AnError
	}
	m.enqueued = append(m.enqueued, documentID)
	return nil
}

// ============================================================================
// FIXTURES
// ============================================================================

func newTestService(t *testing.T) (*Service, *mockRepository) {
	t.Helper()
	repo := newMockRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, logger), repo
}

func uploadGrid() [][]string {
	return [][]string{
		{"거래명세서", "", "", "", "", "", ""},
		{"품목", "원산지", "수량", "중량", "단가", "금액", "이력번호"},
		{"한우 등심", "국내산", "2", "4.8", "52000", "249600", "L123456789"},
		{"한우 안심", "국내산", "1", "2.1", "78000", "163800", "L987654321"},
	}
}

// ============================================================================
// TESTS
// ============================================================================

func TestUploadParsesInlineWithoutEnqueuer(t *testing.T) {
	svc, _ := newTestService(t)

	doc, err := svc.Upload(context.Background(), UploadRequest{
		SalesOrderID: 7,
		DocType:      DocTypeTransactionStatement,
		Rows:         uploadGrid(),
	}, 1)
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, DocStatusParsed, got.Status)
	assert.Len(t, got.Lines, 2)
	assert.Equal(t, "한우 등심", got.Lines[0].ProductName)
}

func TestUploadDefersParsingToWorker(t *testing.T) {
	svc, _ := newTestService(t)
	enq := &mockEnqueuer{}
	svc.SetEnqueuer(enq)

	doc, err := svc.Upload(context.Background(), UploadRequest{
		SalesOrderID: 7,
		DocType:      DocTypeTransactionStatement,
		Rows:         uploadGrid(),
	}, 1)
	require.NoError(t, err)

	assert.Equal(t, DocStatusUploaded, doc.Status)
	assert.Equal(t, []int64{doc.ID}, enq.enqueued)
}

func TestUploadSurvivesLostEnqueue(t *testing.T) {
	svc, repo := newTestService(t)
	svc.SetEnqueuer(&mockEnqueuer{fail: true})

	doc, err := svc.Upload(context.Background(), UploadRequest{
		SalesOrderID: 7,
		DocType:      DocTypeTransactionStatement,
		Rows:         uploadGrid(),
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, DocStatusUploaded, repo.docs[doc.ID].Status)
}

func TestUploadRejectsUnknownDocType(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Upload(context.Background(), UploadRequest{
		SalesOrderID: 7,
		DocType:      DocType("INVOICE"),
		Rows:         uploadGrid(),
	}, 1)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestUploadRejectsEmptyGrid(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Upload(context.Background(), UploadRequest{
		SalesOrderID: 7,
		DocType:      DocTypeTransactionStatement,
	}, 1)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestReparseFailsWithStaleState(t *testing.T) {
	svc, _ := newTestService(t)

	doc, err := svc.Upload(context.Background(), UploadRequest{
		SalesOrderID: 7,
		DocType:      DocTypeTransactionStatement,
		Rows:         uploadGrid(),
	}, 1)
	require.NoError(t, err)

	err = svc.Parse(context.Background(), doc.ID)
	assert.ErrorIs(t, err, shared.ErrStaleState)
}

func TestReenqueueUnparsedSweepsStragglers(t *testing.T) {
	svc, repo := newTestService(t)
	enq := &mockEnqueuer{fail: true}
	svc.SetEnqueuer(enq)

	doc, err := svc.Upload(context.Background(), UploadRequest{
		SalesOrderID: 7,
		DocType:      DocTypeTransactionStatement,
		Rows:         uploadGrid(),
	}, 1)
	require.NoError(t, err)
	repo.docs[doc.ID].UploadedAt = time.Now().Add(-time.Hour)

	enq.fail = false
	count, err := svc.ReenqueueUnparsed(context.Background(), time.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []int64{doc.ID}, enq.enqueued)
}

func TestReenqueueSkipsFreshUploads(t *testing.T) {
	svc, _ := newTestService(t)
	enq := &mockEnqueuer{}
	svc.SetEnqueuer(enq)

	_, err := svc.Upload(context.Background(), UploadRequest{
		SalesOrderID: 7,
		DocType:      DocTypeTransactionStatement,
		Rows:         uploadGrid(),
	}, 1)
	require.NoError(t, err)
	enq.enqueued = nil

	count, err := svc.ReenqueueUnparsed(context.Background(), time.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, enq.enqueued)
}

func TestMarkMatchedAdvancesBothDocuments(t *testing.T) {
	svc, repo := newTestService(t)

	stmt, err := svc.Upload(context.Background(), UploadRequest{
		SalesOrderID: 7,
		DocType:      DocTypeTransactionStatement,
		Rows:         uploadGrid(),
	}, 1)
	require.NoError(t, err)
	insp, err := svc.Upload(context.Background(), UploadRequest{
		SalesOrderID: 7,
		DocType:      DocTypeInspectionReport,
		Rows:         uploadGrid(),
	}, 1)
	require.NoError(t, err)

	require.NoError(t, svc.MarkMatched(context.Background(), stmt.ID, insp.ID, false))
	assert.Equal(t, DocStatusMatched, repo.docs[stmt.ID].Status)
	assert.Equal(t, DocStatusMatched, repo.docs[insp.ID].Status)

	// A clean re-run lifts both to verified.
	require.NoError(t, svc.MarkMatched(context.Background(), stmt.ID, insp.ID, true))
	assert.Equal(t, DocStatusVerified, repo.docs[stmt.ID].Status)
	assert.Equal(t, DocStatusVerified, repo.docs[insp.ID].Status)
}

func TestParsedPairRequiresBothDocuments(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Upload(context.Background(), UploadRequest{
		SalesOrderID: 7,
		DocType:      DocTypeTransactionStatement,
		Rows:         uploadGrid(),
	}, 1)
	require.NoError(t, err)

	_, _, err = svc.ParsedPair(context.Background(), 7)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
