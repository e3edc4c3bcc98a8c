package summarize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"datalens/domain/dataset"
	"datalens/domain/report"
	"datalens/internal/errors"
	"datalens/internal/logx"
)

const (
	highMissingColumnRatio = 0.50
	highMissingGlobalRatio = 0.10
	highCardinalityRatio   = 0.90
	iqrFenceMultiplier     = 1.5
	topValueCount          = 5
)

// Summarizer computes descriptive statistics and rule-based quality
// anomalies for a dataset. Output is deterministic: columns are
// processed in declaration order and global checks run last.
type Summarizer struct {
	logger *logx.Logger
}

// NewSummarizer creates a summarizer
func NewSummarizer(logger *logx.Logger) *Summarizer {
	return &Summarizer{logger: logger}
}

// Summarize computes the full statistical summary
func (s *Summarizer) Summarize(ds *dataset.Dataset) (*report.DataSummary, error) {
	if ds == nil || len(ds.Columns) == 0 {
		return nil, errors.StatisticsError("cannot summarize empty dataset", nil)
	}

	summary := &report.DataSummary{
		Shape: [2]int{ds.RowCount, len(ds.Columns)},
	}

	totalMissing := 0
	for i := range ds.Columns {
		col := &ds.Columns[i]
		colStats, anomalies, err := s.summarizeColumn(col, ds.RowCount)
		if err != nil {
			return nil, errors.StatisticsError(
				fmt.Sprintf("failed to summarize column %q", col.Name), err)
		}
		summary.Columns = append(summary.Columns, *colStats)
		summary.Anomalies = append(summary.Anomalies, anomalies...)
		totalMissing += colStats.MissingCount
	}

	summary.Global = s.globalStatistics(ds, totalMissing)
	summary.Anomalies = append(summary.Anomalies, s.globalAnomalies(ds, summary.Global)...)

	s.logger.Debug("[Summarizer] %s: %d columns, %d anomalies",
		ds.Name, len(summary.Columns), len(summary.Anomalies))
	return summary, nil
}

func (s *Summarizer) summarizeColumn(col *dataset.Column, rowCount int) (*report.ColumnStatistics, []report.Anomaly, error) {
	cs := &report.ColumnStatistics{
		Name:         col.Name,
		Type:         string(col.Type),
		Count:        rowCount - col.MissingCount(),
		MissingCount: col.MissingCount(),
		UniqueCount:  col.UniqueCount(),
	}

	var anomalies []report.Anomaly

	if col.Type == dataset.Numeric {
		values := col.NumericValues()
		if len(values) > 0 {
			if err := fillNumericStats(cs, values); err != nil {
				return nil, nil, err
			}
			if a, found := s.outlierAnomaly(col.Name, values); found {
				anomalies = append(anomalies, a)
			}
		}
	} else {
		cs.TopValues = topValues(col.Cells, topValueCount)
	}

	if rowCount > 0 {
		missingRatio := float64(cs.MissingCount) / float64(rowCount)
		if missingRatio > highMissingColumnRatio {
			anomalies = append(anomalies, report.Anomaly{
				Type:            "high_missing_data",
				Description:     fmt.Sprintf("Column %q is %.0f%% missing", col.Name, missingRatio*100),
				Severity:        report.SeverityHigh,
				AffectedColumns: []string{col.Name},
				SuggestedAction: "Consider dropping the column or collecting more complete data",
			})
		}
	}

	if cs.Count > 1 && cs.UniqueCount == 1 {
		anomalies = append(anomalies, report.Anomaly{
			Type:            "constant_column",
			Description:     fmt.Sprintf("Column %q holds a single value and carries no information", col.Name),
			Severity:        report.SeverityLow,
			AffectedColumns: []string{col.Name},
			SuggestedAction: "Exclude the column from analysis",
		})
	}

	if col.Type == dataset.Text && cs.Count > 10 {
		ratio := float64(cs.UniqueCount) / float64(cs.Count)
		if ratio > highCardinalityRatio {
			anomalies = append(anomalies, report.Anomaly{
				Type:            "high_cardinality",
				Description:     fmt.Sprintf("Column %q is %.0f%% unique and is likely an identifier", col.Name, ratio*100),
				Severity:        report.SeverityLow,
				AffectedColumns: []string{col.Name},
				SuggestedAction: "Treat the column as an identifier rather than a category",
			})
		}
	}

	return cs, anomalies, nil
}

func fillNumericStats(cs *report.ColumnStatistics, values []float64) error {
	min, err := stats.Min(values)
	if err != nil {
		return err
	}
	max, err := stats.Max(values)
	if err != nil {
		return err
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return err
	}
	median, err := stats.Median(values)
	if err != nil {
		return err
	}
	cs.Min, cs.Max, cs.Mean, cs.Median = &min, &max, &mean, &median

	if len(values) > 1 {
		std, err := stats.StandardDeviationSample(values)
		if err != nil {
			return err
		}
		cs.StdDev = &std
	}
	return nil
}

// outlierAnomaly flags values outside the 1.5 IQR fences. The
// description compares the observed fraction with what a normal
// distribution would produce at the same fence.
func (s *Summarizer) outlierAnomaly(name string, values []float64) (report.Anomaly, bool) {
	if len(values) < 4 {
		return report.Anomaly{}, false
	}
	quartiles, err := stats.Quartile(values)
	if err != nil {
		return report.Anomaly{}, false
	}
	iqr := quartiles.Q3 - quartiles.Q1
	if iqr == 0 {
		return report.Anomaly{}, false
	}
	lower := quartiles.Q1 - iqrFenceMultiplier*iqr
	upper := quartiles.Q3 + iqrFenceMultiplier*iqr

	outliers := 0
	for _, v := range values {
		if v < lower || v > upper {
			outliers++
		}
	}
	if outliers == 0 {
		return report.Anomaly{}, false
	}

	fraction := float64(outliers) / float64(len(values))
	severity := report.SeverityLow
	if fraction > 0.10 {
		severity = report.SeverityHigh
	} else if fraction > 0.05 {
		severity = report.SeverityMedium
	}

	expected := expectedOutlierFraction(values, lower, upper)
	return report.Anomaly{
		Type: "statistical_outliers",
		Description: fmt.Sprintf(
			"Column %q has %d outliers (%.1f%% of values, %.1f%% expected under normality)",
			name, outliers, fraction*100, expected*100),
		Severity:        severity,
		AffectedColumns: []string{name},
		SuggestedAction: "Inspect outlier rows for data entry errors or genuine extremes",
	}, true
}

// expectedOutlierFraction evaluates the standard normal tail mass
// beyond the IQR fences for this sample
func expectedOutlierFraction(values []float64, lower, upper float64) float64 {
	mean, err := stats.Mean(values)
	if err != nil {
		return 0
	}
	std, err := stats.StandardDeviationSample(values)
	if err != nil || std == 0 {
		return 0
	}
	normal := distuv.UnitNormal
	return normal.CDF((lower-mean)/std) + (1 - normal.CDF((upper-mean)/std))
}

func (s *Summarizer) globalStatistics(ds *dataset.Dataset, totalMissing int) report.GlobalStatistics {
	g := report.GlobalStatistics{
		RowCount:      ds.RowCount,
		ColumnCount:   len(ds.Columns),
		MissingCells:  totalMissing,
		DuplicateRows: duplicateRowCount(ds),
	}
	cells := ds.RowCount * len(ds.Columns)
	if cells > 0 {
		g.MissingRatio = float64(totalMissing) / float64(cells)
	}
	bytes := 0
	for _, col := range ds.Columns {
		switch col.Type {
		case dataset.Numeric:
			g.NumericColumns++
		case dataset.Text:
			g.TextColumns++
		case dataset.DateTime:
			g.DateTimeColumns++
		case dataset.Boolean:
			g.BooleanColumns++
		}
		for _, c := range col.Cells {
			bytes += len(c)
		}
	}
	g.MemoryEstimateKB = bytes / 1024
	return g
}

func (s *Summarizer) globalAnomalies(ds *dataset.Dataset, g report.GlobalStatistics) []report.Anomaly {
	var anomalies []report.Anomaly

	if g.MissingRatio > highMissingGlobalRatio {
		anomalies = append(anomalies, report.Anomaly{
			Type:            "high_missing_data",
			Description:     fmt.Sprintf("Dataset is %.1f%% missing overall", g.MissingRatio*100),
			Severity:        report.SeverityMedium,
			SuggestedAction: "Review collection process for systematic gaps",
		})
	}

	if g.DuplicateRows > 0 {
		anomalies = append(anomalies, report.Anomaly{
			Type:            "duplicate_rows",
			Description:     fmt.Sprintf("Found %d duplicate rows", g.DuplicateRows),
			Severity:        report.SeverityMedium,
			SuggestedAction: "Deduplicate before drawing frequency conclusions",
		})
	}

	if ds.MalformedRows > 0 {
		anomalies = append(anomalies, report.Anomaly{
			Type:            "malformed_rows",
			Description:     fmt.Sprintf("%d rows were skipped during parsing", ds.MalformedRows),
			Severity:        report.SeverityLow,
			SuggestedAction: "Check the source export for quoting or delimiter issues",
		})
	}

	return anomalies
}

func duplicateRowCount(ds *dataset.Dataset) int {
	if ds.RowCount == 0 {
		return 0
	}
	seen := make(map[string]int, ds.RowCount)
	dups := 0
	for r := 0; r < ds.RowCount; r++ {
		var sb strings.Builder
		for _, col := range ds.Columns {
			if r < len(col.Cells) {
				sb.WriteString(col.Cells[r])
			}
			sb.WriteByte('\x1f')
		}
		key := sb.String()
		seen[key]++
		if seen[key] > 1 {
			dups++
		}
	}
	return dups
}

// topValues returns the most frequent non-empty values, ties broken
// alphabetically for deterministic output
func topValues(cells []string, n int) []report.ValueCount {
	counts := make(map[string]int)
	for _, v := range cells {
		if v == "" {
			continue
		}
		counts[v]++
	}
	out := make([]report.ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, report.ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
