package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statementGrid(dataRows ...[]string) [][]string {
	grid := [][]string{
		{"거래명세서", "", "", "", "", "", "", ""},
		{"품목", "원산지", "수량", "중량(kg)", "단가", "금액", "이력번호", "도축장"},
	}
	return append(grid, dataRows...)
}

func TestParseGrid_StatementBasic(t *testing.T) {
	grid := statementGrid(
		[]string{"소고기", "호주", "10", "25.5", "12000", "306000", "T123", "도축장A"},
	)

	lines := ParseGrid(DocTypeTransactionStatement, grid)
	require.Len(t, lines, 1)

	line := lines[0]
	assert.Equal(t, "소고기", line.ProductName)
	require.NotNil(t, line.Origin)
	assert.Equal(t, "호주", *line.Origin)
	assert.Equal(t, 10.0, line.Quantity)
	assert.Equal(t, 25.5, line.WeightKg)
	assert.Equal(t, 12000.0, line.UnitPrice)
	assert.Equal(t, 306000.0, line.Amount)
	assert.Equal(t, "T123", line.TraceNo)
	assert.Equal(t, 1, line.LineNo)
	assert.Nil(t, line.Barcode)
}

func TestParseGrid_StatementSkipsSummaryAndEmptyRows(t *testing.T) {
	grid := statementGrid(
		[]string{"돼지고기", "국내산", "5", "12.0", "8000", "96000", "T1", ""},
		[]string{"", "", "", "", "", "", "", ""},
		[]string{"합계", "", "5", "12.0", "", "96000", "", ""},
	)

	lines := ParseGrid(DocTypeTransactionStatement, grid)
	require.Len(t, lines, 1)
	assert.Equal(t, "돼지고기", lines[0].ProductName)
}

func TestParseGrid_StatementDropsNonPositiveWeight(t *testing.T) {
	grid := statementGrid(
		[]string{"소고기", "호주", "10", "0", "12000", "0", "T1", ""},
		[]string{"소고기", "호주", "10", "-1.5", "12000", "0", "T2", ""},
		[]string{"소고기", "호주", "10", "3.2", "12000", "38400", "T3", ""},
	)

	lines := ParseGrid(DocTypeTransactionStatement, grid)
	require.Len(t, lines, 1)
	assert.Equal(t, "T3", lines[0].TraceNo)
}

func TestParseGrid_TolerantNumericCoercion(t *testing.T) {
	grid := statementGrid(
		[]string{"소고기", "호주", "abc", "1,234.5", "１２０００", "306,000원", "T1", ""},
	)

	lines := ParseGrid(DocTypeTransactionStatement, grid)
	require.Len(t, lines, 1)
	assert.Equal(t, 0.0, lines[0].Quantity, "non-numeric cell coerces to zero")
	assert.Equal(t, 1234.5, lines[0].WeightKg, "thousands separators are stripped")
	assert.Equal(t, 12000.0, lines[0].UnitPrice, "full-width digits are folded")
	assert.Equal(t, 306000.0, lines[0].Amount, "currency suffix is stripped")
}

func TestParseGrid_NoHeaderMarkerFallsBackToRowZero(t *testing.T) {
	grid := [][]string{
		{"소고기", "호주", "10", "25.5", "12000", "306000", "T1", ""},
		{"돼지고기", "국내산", "2", "4.2", "9000", "37800", "T2", ""},
	}

	// Row 0 is treated as the header, so only row 1 is data.
	lines := ParseGrid(DocTypeTransactionStatement, grid)
	require.Len(t, lines, 1)
	assert.Equal(t, "T2", lines[0].TraceNo)
}

func TestParseGrid_InspectionReport(t *testing.T) {
	grid := [][]string{
		{"검수 결과"},
		{"바코드", "품명", "이력번호", "수량", "중량", "단가", "금액", "도축장", "유통기한"},
		{"880123", "소고기", "T1", "1", "10.04", "12000", "120480", "도축장A", "2025-10-01"},
		{"", "소고기", "T2", "1", "8.0", "12000", "96000", "", ""},
		{"880456", "돼지고기", "T3", "2", "6.5", "8000", "52000", "", "2025.11.15"},
	}

	lines := ParseGrid(DocTypeInspectionReport, grid)
	require.Len(t, lines, 2, "rows without a barcode are dropped")

	require.NotNil(t, lines[0].Barcode)
	assert.Equal(t, "880123", *lines[0].Barcode)
	require.NotNil(t, lines[0].ExpiresAt)
	assert.Equal(t, "2025-10-01", lines[0].ExpiresAt.Format("2006-01-02"))

	assert.Equal(t, "880456", *lines[1].Barcode)
	require.NotNil(t, lines[1].ExpiresAt)
	assert.Equal(t, "2025-11-15", lines[1].ExpiresAt.Format("2006-01-02"))
}

func TestParseGrid_Deterministic(t *testing.T) {
	grid := statementGrid(
		[]string{"소고기", "호주", "10", "25.5", "12000", "306000", "T1", ""},
		[]string{"돼지고기", "국내산", "2", "4.2", "9000", "37800", "T2", ""},
	)

	first := ParseGrid(DocTypeTransactionStatement, grid)
	second := ParseGrid(DocTypeTransactionStatement, grid)
	assert.Equal(t, first, second)

	require.Len(t, first, 2)
	assert.Equal(t, "T1", first[0].TraceNo)
	assert.Equal(t, "T2", first[1].TraceNo)
}

func TestDocStatus_Monotonic(t *testing.T) {
	assert.True(t, DocStatusUploaded.CanAdvanceTo(DocStatusParsed))
	assert.True(t, DocStatusParsed.CanAdvanceTo(DocStatusMatched))
	assert.True(t, DocStatusMatched.CanAdvanceTo(DocStatusVerified))

	assert.False(t, DocStatusParsed.CanAdvanceTo(DocStatusUploaded))
	assert.False(t, DocStatusUploaded.CanAdvanceTo(DocStatusMatched))
	assert.False(t, DocStatusVerified.CanAdvanceTo(DocStatusUploaded))
}

func TestColumnMapVersion_FallsBackToDefault(t *testing.T) {
	got := ColumnMapVersion(DocTypeTransactionStatement, 99)
	assert.Equal(t, DefaultColumnMap(DocTypeTransactionStatement), got)
}
