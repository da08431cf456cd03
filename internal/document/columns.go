package document

// ColumnMap assigns field meanings to column offsets for one document
// template. Upstream sources occasionally reorder columns, so maps are
// versioned per template rather than hard-coded at call sites; parsing
// always runs against the map the caller selects (or the current default).
type ColumnMap struct {
	Version int

	// HeaderMarkers are substrings that identify the header row. A row is
	// the header when one of its cells contains every marker (품 and 목 for
	// statements, 바코드 for inspection reports).
	HeaderMarkers []string
	// SummaryMarker flags footer rows to skip (e.g. 합계, the total row).
	// Empty means no summary detection for this template.
	SummaryMarker string

	ProductName int
	Origin      int
	Quantity    int
	WeightKg    int
	UnitPrice   int
	Amount      int
	TraceNo     int

	// Inspection-report only offsets; -1 when the template has no such column.
	Slaughterhouse int
	Barcode        int
	ExpiresAt      int
}

// statementColumns holds every known transaction statement template,
// newest version last.
var statementColumns = []ColumnMap{
	{
		Version:       1,
		HeaderMarkers: []string{"품", "목"},
		SummaryMarker: "합계",

		ProductName: 0,
		Origin:      1,
		Quantity:    2,
		WeightKg:    3,
		UnitPrice:   4,
		Amount:      5,
		TraceNo:     6,

		Slaughterhouse: 7,
		Barcode:        -1,
		ExpiresAt:      -1,
	},
}

// inspectionColumns holds every known inspection report template.
var inspectionColumns = []ColumnMap{
	{
		Version:       1,
		HeaderMarkers: []string{"바코드"},

		Barcode:        0,
		ProductName:    1,
		TraceNo:        2,
		Quantity:       3,
		WeightKg:       4,
		UnitPrice:      5,
		Amount:         6,
		Slaughterhouse: 7,
		ExpiresAt:      8,

		Origin: -1,
	},
}

// DefaultColumnMap returns the current template for the document type.
func DefaultColumnMap(docType DocType) ColumnMap {
	switch docType {
	case DocTypeInspectionReport:
		return inspectionColumns[len(inspectionColumns)-1]
	default:
		return statementColumns[len(statementColumns)-1]
	}
}

// ColumnMapVersion returns the template with the given version, falling back
// to the default when the version is unknown.
func ColumnMapVersion(docType DocType, version int) ColumnMap {
	maps := statementColumns
	if docType == DocTypeInspectionReport {
		maps = inspectionColumns
	}
	for _, m := range maps {
		if m.Version == version {
			return m
		}
	}
	return DefaultColumnMap(docType)
}
