package dataset

import (
	"strconv"
	"strings"
)

// ColumnType classifies the inferred content of a column
type ColumnType string

const (
	Numeric  ColumnType = "numeric"
	Text     ColumnType = "text"
	DateTime ColumnType = "datetime"
	Boolean  ColumnType = "boolean"
	Unknown  ColumnType = "unknown"
)

// Column holds a named column with its inferred type and raw cell values.
// Empty string cells represent missing values.
type Column struct {
	Name  string     `json:"name"`
	Type  ColumnType `json:"type"`
	Cells []string   `json:"-"`
}

// Dataset is the in-memory tabular form every stage operates on
type Dataset struct {
	Name          string   `json:"name"`
	Columns       []Column `json:"columns"`
	RowCount      int      `json:"row_count"`
	MalformedRows int      `json:"malformed_rows"`
}

// ColumnNames returns the names in declaration order
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the column with the given name, or nil
func (d *Dataset) Column(name string) *Column {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i]
		}
	}
	return nil
}

// ColumnsOfType returns all columns of the given inferred type
func (d *Dataset) ColumnsOfType(t ColumnType) []Column {
	var out []Column
	for _, c := range d.Columns {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// Clone makes a deep copy so stages can transform cells without
// mutating the caller's dataset
func (d *Dataset) Clone() *Dataset {
	cp := &Dataset{
		Name:          d.Name,
		RowCount:      d.RowCount,
		MalformedRows: d.MalformedRows,
		Columns:       make([]Column, len(d.Columns)),
	}
	for i, c := range d.Columns {
		cells := make([]string, len(c.Cells))
		copy(cells, c.Cells)
		cp.Columns[i] = Column{Name: c.Name, Type: c.Type, Cells: cells}
	}
	return cp
}

// NonEmptyCells returns the cells that carry a value
func (c *Column) NonEmptyCells() []string {
	var out []string
	for _, v := range c.Cells {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// MissingCount returns the number of empty cells
func (c *Column) MissingCount() int {
	n := 0
	for _, v := range c.Cells {
		if v == "" {
			n++
		}
	}
	return n
}

// NumericValues parses the non-empty cells as floats, skipping
// values that do not parse
func (c *Column) NumericValues() []float64 {
	var out []float64
	for _, v := range c.Cells {
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

// UniqueCount returns the distinct non-empty value count
func (c *Column) UniqueCount() int {
	seen := make(map[string]struct{}, len(c.Cells))
	for _, v := range c.Cells {
		if v == "" {
			continue
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}
