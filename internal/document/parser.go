package document

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

// ParseGrid converts a raw 2-D grid of cell values into typed line records
// for the given document type using the template's current column map.
//
// Parsing is a pure function of the input grid and the column map. Malformed
// rows never raise errors; they are silently excluded and the caller observes
// only a reduced output count.
func ParseGrid(docType DocType, rows [][]string) []LineRecord {
	return ParseGridWithColumns(rows, docType, DefaultColumnMap(docType))
}

// ParseGridWithColumns parses against an explicit column map, used when a
// sales order is pinned to an older document template version.
func ParseGridWithColumns(rows [][]string, docType DocType, cols ColumnMap) []LineRecord {
	header := findHeaderRow(rows, cols.HeaderMarkers)

	var out []LineRecord
	for i := header + 1; i < len(rows); i++ {
		row := rows[i]

		var rec *LineRecord
		switch docType {
		case DocTypeInspectionReport:
			rec = parseInspectionRow(row, cols)
		default:
			rec = parseStatementRow(row, cols)
		}
		if rec == nil {
			continue
		}

		rec.LineNo = len(out) + 1
		out = append(out, *rec)
	}
	return out
}

// findHeaderRow locates the first row with a cell containing every marker.
// When no row matches, row 0 is treated as the header so a marker-less grid
// still degrades to "everything after the first row is data".
func findHeaderRow(rows [][]string, markers []string) int {
	for i, row := range rows {
		for _, cell := range row {
			if cellHasMarkers(cell, markers) {
				return i
			}
		}
	}
	return 0
}

func cellHasMarkers(cell string, markers []string) bool {
	if len(markers) == 0 {
		return false
	}
	for _, m := range markers {
		if !strings.Contains(cell, m) {
			return false
		}
	}
	return true
}

func parseStatementRow(row []string, cols ColumnMap) *LineRecord {
	first := strings.TrimSpace(cellAt(row, 0))
	if first == "" {
		return nil
	}
	if cols.SummaryMarker != "" && strings.Contains(first, cols.SummaryMarker) {
		return nil
	}

	rec := LineRecord{
		ProductName: strings.TrimSpace(cellAt(row, cols.ProductName)),
		Quantity:    coerceNumber(cellAt(row, cols.Quantity)),
		WeightKg:    coerceNumber(cellAt(row, cols.WeightKg)),
		UnitPrice:   coerceNumber(cellAt(row, cols.UnitPrice)),
		Amount:      coerceNumber(cellAt(row, cols.Amount)),
		TraceNo:     strings.TrimSpace(cellAt(row, cols.TraceNo)),
	}
	if origin := strings.TrimSpace(cellAt(row, cols.Origin)); origin != "" {
		rec.Origin = &origin
	}
	if sl := strings.TrimSpace(cellAt(row, cols.Slaughterhouse)); sl != "" {
		rec.Slaughterhouse = &sl
	}

	// Validity invariant for transaction lines.
	if rec.WeightKg <= 0 {
		return nil
	}
	return &rec
}

func parseInspectionRow(row []string, cols ColumnMap) *LineRecord {
	barcode := strings.TrimSpace(cellAt(row, cols.Barcode))
	if barcode == "" {
		return nil
	}

	rec := LineRecord{
		ProductName: strings.TrimSpace(cellAt(row, cols.ProductName)),
		Quantity:    coerceNumber(cellAt(row, cols.Quantity)),
		WeightKg:    coerceNumber(cellAt(row, cols.WeightKg)),
		UnitPrice:   coerceNumber(cellAt(row, cols.UnitPrice)),
		Amount:      coerceNumber(cellAt(row, cols.Amount)),
		TraceNo:     strings.TrimSpace(cellAt(row, cols.TraceNo)),
		Barcode:     &barcode,
	}
	if sl := strings.TrimSpace(cellAt(row, cols.Slaughterhouse)); sl != "" {
		rec.Slaughterhouse = &sl
	}
	if exp := coerceDate(cellAt(row, cols.ExpiresAt)); exp != nil {
		rec.ExpiresAt = exp
	}
	return &rec
}

// cellAt returns the cell at idx or "" when the row is short or the template
// has no such column (idx < 0).
func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// coerceNumber casts a cell to float64, yielding 0 on non-numeric input.
// Full-width digits, thousands separators, currency and unit suffixes all
// appear in real exports and are folded away before the parse.
func coerceNumber(cell string) float64 {
	s := width.Narrow.String(cell)
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "원")
	s = strings.TrimSuffix(s, "kg")
	s = strings.TrimSuffix(s, "Kg")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

var dateLayouts = []string{"2006-01-02", "2006.01.02", "2006/01/02", "20060102"}

// coerceDate parses the expiry cell, nil on any failure.
func coerceDate(cell string) *time.Time {
	s := strings.TrimSpace(width.Narrow.String(cell))
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
