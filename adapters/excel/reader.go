package excel

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"datalens/domain/dataset"
	"datalens/internal/ingest"
)

// Reader parses xlsx workbooks into datasets
type Reader struct{}

// NewReader creates an xlsx reader
func NewReader() *Reader {
	return &Reader{}
}

// Read parses the first sheet of an xlsx workbook. The first row is
// treated as the header.
func (r *Reader) Read(name string, raw []byte) (*dataset.Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet %q has no data rows", sheets[0])
	}

	return ingest.FromRows(name, rows[0], rows[1:])
}
