package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalens/domain/dataset"
)

func TestParseCSV(t *testing.T) {
	raw := []byte("name,age,joined\nalice,30,2023-01-15\nbob,25,2023-02-20\ncarol,,2023-03-10\n")

	ds, err := ParseCSV("people.csv", raw)
	require.NoError(t, err)

	assert.Equal(t, "people.csv", ds.Name)
	assert.Equal(t, 3, ds.RowCount)
	assert.Equal(t, []string{"name", "age", "joined"}, ds.ColumnNames())
	assert.Equal(t, dataset.Text, ds.Column("name").Type)
	assert.Equal(t, dataset.Numeric, ds.Column("age").Type)
	assert.Equal(t, dataset.DateTime, ds.Column("joined").Type)
	assert.Equal(t, 1, ds.Column("age").MissingCount())
}

func TestParseCSVSkipsMalformedRows(t *testing.T) {
	raw := []byte("a,b\n1,2\n3\n4,5,6\n7,8\n")

	ds, err := ParseCSV("ragged.csv", raw)
	require.NoError(t, err)

	assert.Equal(t, 2, ds.RowCount)
	assert.Equal(t, 2, ds.MalformedRows)
}

func TestParseCSVNAValues(t *testing.T) {
	raw := []byte("v\nnan\nNULL\nnull\nNaN\n42\n")

	ds, err := ParseCSV("na.csv", raw)
	require.NoError(t, err)

	col := ds.Column("v")
	assert.Equal(t, 4, col.MissingCount())
	assert.Equal(t, []float64{42}, col.NumericValues())
}

func TestParseCSVEmptyInputs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty file", ""},
		{"header only", "a,b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV("bad.csv", []byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestParseCSVLatin1Fallback(t *testing.T) {
	// "café,1" with é encoded as latin-1 0xE9, which is invalid UTF-8
	raw := []byte("city,n\ncaf\xe9,1\n")

	ds, err := ParseCSV("latin1.csv", raw)
	require.NoError(t, err)
	assert.Equal(t, "café", ds.Column("city").Cells[0])
}

func TestParseCSVWindows1252Fallback(t *testing.T) {
	// 0x93/0x94 are curly quotes in cp1252, undefined in latin-1
	raw := []byte("quote\n\x93hello\x94\n")

	ds, err := ParseCSV("cp1252.csv", raw)
	require.NoError(t, err)
	assert.Equal(t, "“hello”", ds.Column("quote").Cells[0])
}

func TestParseCSVStripsBOM(t *testing.T) {
	raw := []byte("\xEF\xBB\xBFa,b\n1,2\n")

	ds, err := ParseCSV("bom.csv", raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ds.ColumnNames())
}

func TestInferColumnType(t *testing.T) {
	tests := []struct {
		name  string
		cells []string
		want  dataset.ColumnType
	}{
		{"all numbers", []string{"1", "2.5", "-3"}, dataset.Numeric},
		{"mixed text", []string{"1", "x", "3"}, dataset.Text},
		{"dates", []string{"2023-01-01", "2023-06-15"}, dataset.DateTime},
		{"booleans", []string{"true", "false", "yes"}, dataset.Boolean},
		{"all empty", []string{"", ""}, dataset.Unknown},
		{"text", []string{"alpha", "beta"}, dataset.Text},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferColumnType(tt.cells))
		})
	}
}

func TestFromRowsPadsShortRows(t *testing.T) {
	ds, err := FromRows("sheet", []string{"a", "b"}, [][]string{
		{"1", "2"},
		{"3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.RowCount)
	assert.Equal(t, "", ds.Column("b").Cells[1])
}
