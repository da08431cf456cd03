package recon

import (
	"math"
	"strings"

	"github.com/meatflow/meatflow/internal/document"
)

// Match reconciles statement lines against inspection lines. The join key is
// the trace number, compared case-insensitively after trimming whitespace.
//
// Duplicate trace numbers pair greedily in original sequence order: the first
// unconsumed inspection line with the key wins. This is a deliberate
// simplification over optimal assignment; observed duplicate frequency does
// not justify a solver.
//
// The function is pure: no I/O, no state between calls.
func Match(statement, inspection []document.LineRecord, tol Tolerance) Report {
	byKey := make(map[string][]int, len(inspection))
	for i, line := range inspection {
		key := normalizeTrace(line.TraceNo)
		if key == "" {
			continue
		}
		byKey[key] = append(byKey[key], i)
	}
	consumed := make([]bool, len(inspection))

	results := make([]MatchResult, 0, len(statement)+len(inspection))
	for i := range statement {
		stmt := &statement[i]
		key := normalizeTrace(stmt.TraceNo)

		var partner *document.LineRecord
		if key != "" {
			for _, idx := range byKey[key] {
				if !consumed[idx] {
					consumed[idx] = true
					partner = &inspection[idx]
					break
				}
			}
		}

		if partner == nil {
			results = append(results, MatchResult{
				Verdict:       VerdictUnmatchedStatement,
				TraceNo:       stmt.TraceNo,
				DeltaWeightKg: stmt.WeightKg,
				DeltaAmount:   stmt.Amount,
				Statement:     stmt,
			})
			continue
		}

		results = append(results, comparePair(stmt, partner, tol))
	}

	// Inspection lines nobody claimed, in original sequence order.
	for i := range inspection {
		if consumed[i] {
			continue
		}
		insp := &inspection[i]
		results = append(results, MatchResult{
			Verdict:       VerdictUnmatchedInspection,
			TraceNo:       insp.TraceNo,
			DeltaWeightKg: insp.WeightKg,
			DeltaAmount:   insp.Amount,
			Inspection:    insp,
		})
	}

	allMatched := len(results) > 0
	for _, r := range results {
		if r.Verdict != VerdictMatched {
			allMatched = false
			break
		}
	}

	return Report{Results: results, AllMatched: allMatched}
}

// comparePair classifies a trace-matched pair by the weight/amount check.
// There is deliberately no catch-all "everything mismatched" verdict; a
// grossly inconsistent pair still classifies by these two checks.
func comparePair(stmt, insp *document.LineRecord, tol Tolerance) MatchResult {
	deltaWeight := insp.WeightKg - stmt.WeightKg
	deltaAmount := insp.Amount - stmt.Amount

	verdict := VerdictMatched
	if math.Abs(deltaWeight) > tol.WeightKg || !amountWithin(stmt.Amount, insp.Amount, tol.AmountPct) {
		verdict = VerdictQuantityMismatch
	}

	return MatchResult{
		Verdict:       verdict,
		TraceNo:       stmt.TraceNo,
		DeltaWeightKg: deltaWeight,
		DeltaAmount:   deltaAmount,
		Statement:     stmt,
		Inspection:    insp,
	}
}

// amountWithin applies the relative tolerance against the statement amount.
// A zero statement amount only matches a zero inspection amount.
func amountWithin(stmtAmount, inspAmount, pct float64) bool {
	if stmtAmount == 0 {
		return inspAmount == 0
	}
	return math.Abs(inspAmount-stmtAmount) <= pct*math.Abs(stmtAmount)
}

func normalizeTrace(traceNo string) string {
	return strings.ToLower(strings.TrimSpace(traceNo))
}
