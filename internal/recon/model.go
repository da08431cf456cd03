package recon

import (
	"time"

	"github.com/meatflow/meatflow/internal/document"
)

// Verdict classifies one reconciliation result line.
type Verdict string

const (
	VerdictMatched             Verdict = "MATCHED"
	VerdictQuantityMismatch    Verdict = "QUANTITY_MISMATCH"
	VerdictTraceMismatch       Verdict = "TRACE_MISMATCH"
	VerdictUnmatchedStatement  Verdict = "UNMATCHED_STATEMENT"
	VerdictUnmatchedInspection Verdict = "UNMATCHED_INSPECTION"
)

// MatchResult is the outcome for one statement/inspection pairing, or for a
// line that found no counterpart. Deltas are inspection minus statement; for
// unmatched lines they carry the dangling line's own weight and amount so the
// report totals still reflect the discrepancy size.
type MatchResult struct {
	Verdict       Verdict              `json:"verdict"`
	TraceNo       string               `json:"trace_no"`
	DeltaWeightKg float64              `json:"delta_weight_kg"`
	DeltaAmount   float64              `json:"delta_amount"`
	Statement     *document.LineRecord `json:"statement,omitempty"`
	Inspection    *document.LineRecord `json:"inspection,omitempty"`
}

// Report is the full outcome of one reconciliation run.
type Report struct {
	ID              int64         `json:"id" db:"id"`
	SalesOrderID    int64         `json:"sales_order_id" db:"sales_order_id"`
	StatementDocID  int64         `json:"statement_doc_id" db:"statement_doc_id"`
	InspectionDocID int64         `json:"inspection_doc_id" db:"inspection_doc_id"`
	AllMatched      bool          `json:"all_matched" db:"all_matched"`
	Results         []MatchResult `json:"results" db:"-"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}

// Tolerance bounds how far paired lines may drift and still match.
type Tolerance struct {
	// WeightKg is the absolute weight tolerance in kilograms.
	WeightKg float64
	// AmountPct is the relative amount tolerance (0.01 = 1%).
	AmountPct float64
}

// DefaultTolerance matches the operational defaults: scales drift a few tens
// of grams per cut, prices occasionally carry rounding adjustments.
func DefaultTolerance() Tolerance {
	return Tolerance{WeightKg: 0.05, AmountPct: 0.01}
}
