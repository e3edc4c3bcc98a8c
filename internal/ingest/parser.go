package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"datalens/domain/dataset"
)

// Values treated as missing regardless of column type
var naValues = map[string]struct{}{
	"":     {},
	"nan":  {},
	"NaN":  {},
	"NULL": {},
	"null": {},
}

// ParseCSV parses raw CSV bytes into a Dataset. Rows whose field count
// does not match the header are counted as malformed and skipped rather
// than failing the whole file.
func ParseCSV(name string, raw []byte) (*dataset.Dataset, error) {
	decoded := decodeBytes(raw)

	reader := csv.NewReader(strings.NewReader(decoded))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("file is empty")
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("CSV header has no columns")
	}

	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		header[i] = h
	}

	var rows [][]string
	malformed := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				malformed++
				continue
			}
			return nil, fmt.Errorf("failed to read CSV data: %w", err)
		}
		if len(record) != len(header) {
			malformed++
			continue
		}
		for i, v := range record {
			v = strings.TrimSpace(v)
			if _, na := naValues[v]; na {
				v = ""
			}
			record[i] = v
		}
		rows = append(rows, record)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV file has no data rows")
	}

	columns := make([]dataset.Column, len(header))
	for i, h := range header {
		cells := make([]string, len(rows))
		for r, row := range rows {
			cells[r] = row[i]
		}
		columns[i] = dataset.Column{
			Name:  h,
			Type:  inferColumnType(cells),
			Cells: cells,
		}
	}

	return &dataset.Dataset{
		Name:          name,
		Columns:       columns,
		RowCount:      len(rows),
		MalformedRows: malformed,
	}, nil
}

// FromRows builds a Dataset from pre-split rows, used by the xlsx reader
func FromRows(name string, header []string, rows [][]string) (*dataset.Dataset, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("no columns found")
	}
	malformed := 0
	var kept [][]string
	for _, row := range rows {
		// Trailing empty cells are common in spreadsheets; pad short rows
		if len(row) > len(header) {
			malformed++
			continue
		}
		padded := make([]string, len(header))
		for i := range header {
			v := ""
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			if _, na := naValues[v]; na {
				v = ""
			}
			padded[i] = v
		}
		kept = append(kept, padded)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("no data rows found")
	}

	columns := make([]dataset.Column, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		cells := make([]string, len(kept))
		for r, row := range kept {
			cells[r] = row[i]
		}
		columns[i] = dataset.Column{Name: h, Type: inferColumnType(cells), Cells: cells}
	}

	return &dataset.Dataset{
		Name:          name,
		Columns:       columns,
		RowCount:      len(kept),
		MalformedRows: malformed,
	}, nil
}

// decodeBytes returns a UTF-8 string, decoding Windows-1252/Latin-1
// byte-wise when the input is not valid UTF-8
func decodeBytes(raw []byte) string {
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(raw) {
		return string(raw)
	}
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, b := range raw {
		if r, ok := cp1252[b]; ok {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(rune(b))
		}
	}
	return sb.String()
}

// Windows-1252 overrides for the 0x80-0x9F range; everything else
// matches Latin-1
var cp1252 = map[byte]rune{
	0x80: '€', 0x82: '‚', 0x83: 'ƒ', 0x84: '„',
	0x85: '…', 0x86: '†', 0x87: '‡', 0x88: 'ˆ',
	0x89: '‰', 0x8A: 'Š', 0x8B: '‹', 0x8C: 'Œ',
	0x8E: 'Ž', 0x91: '‘', 0x92: '’', 0x93: '“',
	0x94: '”', 0x95: '•', 0x96: '–', 0x97: '—',
	0x98: '˜', 0x99: '™', 0x9A: 'š', 0x9B: '›',
	0x9C: 'œ', 0x9E: 'ž', 0x9F: 'Ÿ',
}
