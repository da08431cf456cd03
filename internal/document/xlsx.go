package document

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// DecodeXLSX extracts the raw cell grid from an uploaded workbook. It is the
// only place the package touches a file format; everything downstream works
// on the returned rows. The first sheet with any rows wins since the paper
// exports this system ingests are single-sheet workbooks.
func DecodeXLSX(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("document: open workbook: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		if len(rows) > 0 {
			return rows, nil
		}
	}
	return nil, fmt.Errorf("document: workbook has no rows")
}
