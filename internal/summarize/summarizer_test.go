package summarize

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalens/domain/dataset"
	"datalens/domain/report"
	"datalens/internal/logx"
)

func testSummarizer() *Summarizer {
	return NewSummarizer(logx.NewLogger(logx.LogLevelError))
}

func numericColumn(name string, cells ...string) dataset.Column {
	return dataset.Column{Name: name, Type: dataset.Numeric, Cells: cells}
}

func textColumn(name string, cells ...string) dataset.Column {
	return dataset.Column{Name: name, Type: dataset.Text, Cells: cells}
}

func TestSummarizeNumericColumn(t *testing.T) {
	s := testSummarizer()
	ds := &dataset.Dataset{
		Name:     "numbers",
		Columns:  []dataset.Column{numericColumn("v", "1", "2", "3", "4", "5")},
		RowCount: 5,
	}

	summary, err := s.Summarize(ds)
	require.NoError(t, err)

	require.Len(t, summary.Columns, 1)
	cs := summary.Columns[0]
	require.NotNil(t, cs.Min)
	require.NotNil(t, cs.Max)
	require.NotNil(t, cs.Mean)
	require.NotNil(t, cs.Median)
	assert.Equal(t, 1.0, *cs.Min)
	assert.Equal(t, 5.0, *cs.Max)
	assert.Equal(t, 3.0, *cs.Mean)
	assert.Equal(t, 3.0, *cs.Median)
	assert.Equal(t, [2]int{5, 1}, summary.Shape)
}

func TestSummarizeEmptyColumnHasNoNumericStats(t *testing.T) {
	s := testSummarizer()
	ds := &dataset.Dataset{
		Name:     "empty",
		Columns:  []dataset.Column{numericColumn("v", "", "", "")},
		RowCount: 3,
	}

	summary, err := s.Summarize(ds)
	require.NoError(t, err)

	cs := summary.Columns[0]
	assert.Nil(t, cs.Min)
	assert.Nil(t, cs.Mean)
	assert.Equal(t, 3, cs.MissingCount)
	assert.Equal(t, 0, cs.Count)
}

func TestSummarizeRejectsEmptyDataset(t *testing.T) {
	s := testSummarizer()

	_, err := s.Summarize(&dataset.Dataset{Name: "none"})
	assert.Error(t, err)
}

func TestSummarizeTopValues(t *testing.T) {
	s := testSummarizer()
	ds := &dataset.Dataset{
		Name:     "cats",
		Columns:  []dataset.Column{textColumn("c", "a", "b", "a", "c", "a", "b")},
		RowCount: 6,
	}

	summary, err := s.Summarize(ds)
	require.NoError(t, err)

	tv := summary.Columns[0].TopValues
	require.NotEmpty(t, tv)
	assert.Equal(t, "a", tv[0].Value)
	assert.Equal(t, 3, tv[0].Count)
}

func TestSummarizeDeterministic(t *testing.T) {
	s := testSummarizer()
	ds := &dataset.Dataset{
		Name: "mix",
		Columns: []dataset.Column{
			numericColumn("x", "1", "2", "100", "3", "2"),
			textColumn("c", "a", "a", "b", "", "b"),
		},
		RowCount: 5,
	}

	first, err := s.Summarize(ds)
	require.NoError(t, err)
	second, err := s.Summarize(ds)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestOutlierAnomaly(t *testing.T) {
	s := testSummarizer()
	cells := make([]string, 0, 21)
	for i := 1; i <= 20; i++ {
		cells = append(cells, fmt.Sprintf("%d", i))
	}
	cells = append(cells, "1000")
	ds := &dataset.Dataset{
		Name:     "outliers",
		Columns:  []dataset.Column{numericColumn("v", cells...)},
		RowCount: len(cells),
	}

	summary, err := s.Summarize(ds)
	require.NoError(t, err)

	found := false
	for _, a := range summary.Anomalies {
		if a.Type == "statistical_outliers" {
			found = true
			assert.Equal(t, []string{"v"}, a.AffectedColumns)
		}
	}
	assert.True(t, found, "expected a statistical_outliers anomaly")
}

func TestHighMissingColumnAnomaly(t *testing.T) {
	s := testSummarizer()
	ds := &dataset.Dataset{
		Name:     "gaps",
		Columns:  []dataset.Column{textColumn("c", "", "", "", "x")},
		RowCount: 4,
	}

	summary, err := s.Summarize(ds)
	require.NoError(t, err)

	found := false
	for _, a := range summary.Anomalies {
		if a.Type == "high_missing_data" && a.Severity == report.SeverityHigh {
			found = true
		}
	}
	assert.True(t, found, "expected a high severity high_missing_data anomaly")
}

func TestConstantColumnAnomaly(t *testing.T) {
	s := testSummarizer()
	ds := &dataset.Dataset{
		Name:     "flat",
		Columns:  []dataset.Column{textColumn("c", "same", "same", "same")},
		RowCount: 3,
	}

	summary, err := s.Summarize(ds)
	require.NoError(t, err)

	types := anomalyTypes(summary.Anomalies)
	assert.Contains(t, types, "constant_column")
}

func TestDuplicateRowsAnomaly(t *testing.T) {
	s := testSummarizer()
	ds := &dataset.Dataset{
		Name: "dups",
		Columns: []dataset.Column{
			textColumn("a", "x", "x", "y"),
			textColumn("b", "1", "1", "2"),
		},
		RowCount: 3,
	}

	summary, err := s.Summarize(ds)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Global.DuplicateRows)
	assert.Contains(t, anomalyTypes(summary.Anomalies), "duplicate_rows")
}

func TestHighCardinalityAnomaly(t *testing.T) {
	s := testSummarizer()
	cells := make([]string, 20)
	for i := range cells {
		cells[i] = string(rune('a'+i%26)) + string(rune('0'+i%10))
	}
	ds := &dataset.Dataset{
		Name:     "ids",
		Columns:  []dataset.Column{textColumn("token", cells...)},
		RowCount: len(cells),
	}

	summary, err := s.Summarize(ds)
	require.NoError(t, err)
	assert.Contains(t, anomalyTypes(summary.Anomalies), "high_cardinality")
}

func TestGlobalStatistics(t *testing.T) {
	s := testSummarizer()
	ds := &dataset.Dataset{
		Name: "global",
		Columns: []dataset.Column{
			numericColumn("n", "1", "2"),
			textColumn("t", "a", ""),
		},
		RowCount: 2,
	}

	summary, err := s.Summarize(ds)
	require.NoError(t, err)

	g := summary.Global
	assert.Equal(t, 2, g.RowCount)
	assert.Equal(t, 2, g.ColumnCount)
	assert.Equal(t, 1, g.MissingCells)
	assert.InDelta(t, 0.25, g.MissingRatio, 1e-9)
	assert.Equal(t, 1, g.NumericColumns)
	assert.Equal(t, 1, g.TextColumns)
}

func anomalyTypes(anomalies []report.Anomaly) []string {
	out := make([]string, len(anomalies))
	for i, a := range anomalies {
		out[i] = a.Type
	}
	return out
}
