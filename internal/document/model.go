package document

import "time"

// DocType identifies the two known paper-document shapes.
type DocType string

const (
	// DocTypeTransactionStatement is the supplier transaction statement
	// (거래명세서) listing sold line items.
	DocTypeTransactionStatement DocType = "TRANSACTION_STATEMENT"
	// DocTypeInspectionReport is the inspection report (검수서) listing
	// barcoded packages that passed inspection.
	DocTypeInspectionReport DocType = "INSPECTION_REPORT"
)

// IsValid checks if the document type is known.
func (t DocType) IsValid() bool {
	return t == DocTypeTransactionStatement || t == DocTypeInspectionReport
}

// DocStatus tracks a document through ingestion. Forward-only.
type DocStatus string

const (
	DocStatusUploaded DocStatus = "UPLOADED"
	DocStatusParsed   DocStatus = "PARSED"
	DocStatusMatched  DocStatus = "MATCHED"
	DocStatusVerified DocStatus = "VERIFIED"
)

// rank orders statuses for the monotonic-forward rule.
func (s DocStatus) rank() int {
	switch s {
	case DocStatusUploaded:
		return 0
	case DocStatusParsed:
		return 1
	case DocStatusMatched:
		return 2
	case DocStatusVerified:
		return 3
	default:
		return -1
	}
}

// CanAdvanceTo reports whether the status may move to target. Statuses only
// move forward; skipping is not allowed.
func (s DocStatus) CanAdvanceTo(target DocStatus) bool {
	return target.rank() == s.rank()+1
}

// Document is one uploaded tabular export tied to a sales order.
type Document struct {
	ID           int64        `json:"id" db:"id"`
	SalesOrderID int64        `json:"sales_order_id" db:"sales_order_id"`
	DocType      DocType      `json:"doc_type" db:"doc_type"`
	Status       DocStatus    `json:"status" db:"status"`
	FileName     *string      `json:"file_name,omitempty" db:"file_name"`
	UploadedBy   int64        `json:"uploaded_by" db:"uploaded_by"`
	UploadedAt   time.Time    `json:"uploaded_at" db:"uploaded_at"`
	ParsedAt     *time.Time   `json:"parsed_at,omitempty" db:"parsed_at"`
	Lines        []LineRecord `json:"lines,omitempty" db:"-"`
}

// LineRecord is an immutable parsed fact from one data row. The variant is
// the owning document's DocType: statements carry product/origin pricing,
// inspection reports additionally carry barcode and expiry.
type LineRecord struct {
	ID          int64   `json:"id" db:"id"`
	DocumentID  int64   `json:"document_id" db:"document_id"`
	LineNo      int     `json:"line_no" db:"line_no"`
	ProductName string  `json:"product_name" db:"product_name"`
	Origin      *string `json:"origin,omitempty" db:"origin"`
	Quantity    float64 `json:"quantity" db:"quantity"`
	WeightKg    float64 `json:"weight_kg" db:"weight_kg"`
	UnitPrice   float64 `json:"unit_price" db:"unit_price"`
	Amount      float64 `json:"amount" db:"amount"`
	TraceNo     string  `json:"trace_no" db:"trace_no"`

	Slaughterhouse *string    `json:"slaughterhouse,omitempty" db:"slaughterhouse"`
	Barcode        *string    `json:"barcode,omitempty" db:"barcode"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty" db:"expires_at"`
}
