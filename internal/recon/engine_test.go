package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meatflow/meatflow/internal/document"
)

func stmtLine(traceNo string, weightKg, amount float64) document.LineRecord {
	return document.LineRecord{
		ProductName: "소고기",
		TraceNo:     traceNo,
		Quantity:    1,
		WeightKg:    weightKg,
		Amount:      amount,
	}
}

func TestMatch_AllWithinTolerance(t *testing.T) {
	statement := []document.LineRecord{
		stmtLine("T1", 10.0, 120000),
		stmtLine("T2", 4.2, 37800),
	}
	inspection := []document.LineRecord{
		stmtLine("T2", 4.18, 37800),
		stmtLine("T1", 10.04, 120500),
	}

	report := Match(statement, inspection, DefaultTolerance())

	require.Len(t, report.Results, 2)
	assert.True(t, report.AllMatched)
	for _, r := range report.Results {
		assert.Equal(t, VerdictMatched, r.Verdict)
	}
}

func TestMatch_WeightOutOfTolerance(t *testing.T) {
	statement := []document.LineRecord{stmtLine("T1", 10.0, 120000)}
	inspection := []document.LineRecord{stmtLine("T1", 10.10, 120000)}

	report := Match(statement, inspection, DefaultTolerance())

	require.Len(t, report.Results, 1)
	assert.Equal(t, VerdictQuantityMismatch, report.Results[0].Verdict)
	assert.InDelta(t, 0.10, report.Results[0].DeltaWeightKg, 1e-9)
	assert.False(t, report.AllMatched)
}

func TestMatch_WeightJustInsideTolerance(t *testing.T) {
	statement := []document.LineRecord{stmtLine("T1", 10.0, 120000)}
	inspection := []document.LineRecord{stmtLine("T1", 10.04, 120000)}

	report := Match(statement, inspection, DefaultTolerance())

	require.Len(t, report.Results, 1)
	assert.Equal(t, VerdictMatched, report.Results[0].Verdict)
}

func TestMatch_AmountOutOfTolerance(t *testing.T) {
	statement := []document.LineRecord{stmtLine("T1", 10.0, 100000)}
	inspection := []document.LineRecord{stmtLine("T1", 10.0, 102000)}

	report := Match(statement, inspection, DefaultTolerance())

	require.Len(t, report.Results, 1)
	assert.Equal(t, VerdictQuantityMismatch, report.Results[0].Verdict)
	assert.Equal(t, 2000.0, report.Results[0].DeltaAmount)
}

func TestMatch_TraceComparisonNormalized(t *testing.T) {
	statement := []document.LineRecord{stmtLine("  t1 ", 10.0, 100000)}
	inspection := []document.LineRecord{stmtLine("T1", 10.0, 100000)}

	report := Match(statement, inspection, DefaultTolerance())

	require.Len(t, report.Results, 1)
	assert.Equal(t, VerdictMatched, report.Results[0].Verdict)
	assert.True(t, report.AllMatched)
}

func TestMatch_UnmatchedStatement(t *testing.T) {
	statement := []document.LineRecord{stmtLine("T-MISSING", 10.0, 100000)}
	inspection := []document.LineRecord{stmtLine("T1", 10.0, 100000)}

	report := Match(statement, inspection, DefaultTolerance())

	require.Len(t, report.Results, 2)
	assert.Equal(t, VerdictUnmatchedStatement, report.Results[0].Verdict)
	assert.Equal(t, 10.0, report.Results[0].DeltaWeightKg)
	assert.Equal(t, VerdictUnmatchedInspection, report.Results[1].Verdict)
	assert.False(t, report.AllMatched)
}

func TestMatch_DuplicateTracePairsGreedilyInOrder(t *testing.T) {
	statement := []document.LineRecord{
		stmtLine("T1", 10.0, 100000),
		stmtLine("T1", 8.0, 80000),
	}
	inspection := []document.LineRecord{
		stmtLine("T1", 10.0, 100000),
		stmtLine("T1", 8.0, 80000),
		stmtLine("T1", 5.0, 50000),
	}

	report := Match(statement, inspection, DefaultTolerance())

	require.Len(t, report.Results, 3)
	assert.Equal(t, VerdictMatched, report.Results[0].Verdict)
	assert.Equal(t, VerdictMatched, report.Results[1].Verdict)
	assert.Equal(t, VerdictUnmatchedInspection, report.Results[2].Verdict)
	assert.Equal(t, 5.0, report.Results[2].DeltaWeightKg)
	assert.False(t, report.AllMatched)
}

func TestMatch_EmptyInputsNeverAllMatched(t *testing.T) {
	report := Match(nil, nil, DefaultTolerance())
	assert.Empty(t, report.Results)
	assert.False(t, report.AllMatched, "allMatched requires a non-empty result set")
}

func TestMatch_EmptyTraceStatementIsUnmatched(t *testing.T) {
	statement := []document.LineRecord{stmtLine("", 10.0, 100000)}
	inspection := []document.LineRecord{stmtLine("", 10.0, 100000)}

	report := Match(statement, inspection, DefaultTolerance())

	require.Len(t, report.Results, 2)
	assert.Equal(t, VerdictUnmatchedStatement, report.Results[0].Verdict)
	assert.Equal(t, VerdictUnmatchedInspection, report.Results[1].Verdict)
}

func TestMatch_ZeroStatementAmountRequiresZeroInspectionAmount(t *testing.T) {
	statement := []document.LineRecord{stmtLine("T1", 10.0, 0)}
	inspection := []document.LineRecord{stmtLine("T1", 10.0, 100)}

	report := Match(statement, inspection, DefaultTolerance())

	require.Len(t, report.Results, 1)
	assert.Equal(t, VerdictQuantityMismatch, report.Results[0].Verdict)
}
