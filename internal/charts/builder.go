package charts

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"datalens/domain/dataset"
	"datalens/domain/report"
	"datalens/internal/logx"
)

const (
	defaultWidth  = 600
	defaultHeight = 400
	heatmapHeight = 500

	maxLinePoints     = 500
	maxBarCategories  = 20
	maxPieCategories  = 10
	maxHeatmapColumns = 8
	histogramBins     = 10
	minDistinctForCat = 2
)

// Builder derives chart specifications from a dataset and its
// statistical summary using deterministic rules. It needs no LLM
// output so it can run concurrently with insight generation.
type Builder struct {
	maxCharts int
	logger    *logx.Logger
}

// NewBuilder creates a chart builder capped at maxCharts specs
func NewBuilder(maxCharts int, logger *logx.Logger) *Builder {
	return &Builder{maxCharts: maxCharts, logger: logger}
}

// Result carries the built charts and the count of candidates that
// failed to build. Individual chart failures never fail the stage.
type Result struct {
	Charts []report.ChartSpec
	Failed int
}

type candidate struct {
	chartType report.ChartType
	build     func() (*report.ChartSpec, error)
}

// Build evaluates chart candidates in an order determined by the
// analysis type and returns up to the configured maximum
func (b *Builder) Build(ds *dataset.Dataset, analysisType report.AnalysisType) *Result {
	result := &Result{}
	if ds == nil || ds.RowCount == 0 || b.maxCharts == 0 {
		return result
	}

	candidates := b.candidates(ds)
	order := typePriority(analysisType)
	sort.SliceStable(candidates, func(i, j int) bool {
		return order[candidates[i].chartType] < order[candidates[j].chartType]
	})

	for _, c := range candidates {
		if len(result.Charts) >= b.maxCharts {
			break
		}
		spec, err := c.build()
		if err != nil {
			result.Failed++
			b.logger.Warn("[ChartBuilder] skipping %s chart: %v", c.chartType, err)
			continue
		}
		result.Charts = append(result.Charts, *spec)
	}
	return result
}

// candidates enumerates every chart the dataset's column types
// support, in a fixed discovery order
func (b *Builder) candidates(ds *dataset.Dataset) []candidate {
	numeric := ds.ColumnsOfType(dataset.Numeric)
	text := ds.ColumnsOfType(dataset.Text)
	datetime := ds.ColumnsOfType(dataset.DateTime)

	var out []candidate

	if len(datetime) > 0 && len(numeric) > 0 {
		dt, num := datetime[0], numeric[0]
		out = append(out, candidate{report.ChartLine, func() (*report.ChartSpec, error) {
			return buildLine(dt, num)
		}})
	}

	for _, tc := range text {
		u := tc.UniqueCount()
		if u < minDistinctForCat || u > maxBarCategories || len(numeric) == 0 {
			continue
		}
		tc, num := tc, numeric[0]
		out = append(out, candidate{report.ChartBar, func() (*report.ChartSpec, error) {
			return buildBar(tc, num)
		}})
		break
	}

	if len(numeric) >= 2 {
		x, y := numeric[0], numeric[1]
		out = append(out, candidate{report.ChartScatter, func() (*report.ChartSpec, error) {
			return buildScatter(x, y)
		}})
		cols := numeric
		if len(cols) > maxHeatmapColumns {
			cols = cols[:maxHeatmapColumns]
		}
		out = append(out, candidate{report.ChartHeatmap, func() (*report.ChartSpec, error) {
			return buildHeatmap(cols, len(cols[0].Cells))
		}})
	}

	if len(numeric) > 0 {
		num := numeric[0]
		out = append(out, candidate{report.ChartHistogram, func() (*report.ChartSpec, error) {
			return buildHistogram(num)
		}})
		out = append(out, candidate{report.ChartBox, func() (*report.ChartSpec, error) {
			return buildBox(num)
		}})
	}

	for _, tc := range text {
		u := tc.UniqueCount()
		if u < minDistinctForCat || u > maxPieCategories {
			continue
		}
		tc := tc
		out = append(out, candidate{report.ChartPie, func() (*report.ChartSpec, error) {
			return buildPie(tc)
		}})
		break
	}

	return out
}

// typePriority ranks chart types per analysis type; unranked types
// keep a stable tail position
func typePriority(analysisType report.AnalysisType) map[report.ChartType]int {
	var ranked []report.ChartType
	switch analysisType {
	case report.AnalysisTrends:
		ranked = []report.ChartType{report.ChartLine, report.ChartBar, report.ChartScatter}
	case report.AnalysisCorrelations:
		ranked = []report.ChartType{report.ChartHeatmap, report.ChartScatter, report.ChartLine}
	case report.AnalysisPredictions:
		ranked = []report.ChartType{report.ChartScatter, report.ChartLine, report.ChartHistogram}
	case report.AnalysisStatistical:
		ranked = []report.ChartType{report.ChartHistogram, report.ChartBox, report.ChartHeatmap}
	default:
		ranked = []report.ChartType{report.ChartBar, report.ChartLine, report.ChartHistogram}
	}

	order := make(map[report.ChartType]int)
	for i, t := range ranked {
		order[t] = i
	}
	next := len(ranked)
	for _, t := range report.ChartTypes() {
		if _, ok := order[t]; !ok {
			order[t] = next
			next++
		}
	}
	return order
}

func buildLine(dt, num dataset.Column) (*report.ChartSpec, error) {
	var labels []string
	var values []float64
	for i := range dt.Cells {
		if i >= len(num.Cells) || dt.Cells[i] == "" || num.Cells[i] == "" {
			continue
		}
		v, ok := parseFloat(num.Cells[i])
		if !ok {
			continue
		}
		labels = append(labels, dt.Cells[i])
		values = append(values, v)
		if len(values) >= maxLinePoints {
			break
		}
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("not enough paired points for %s over %s", num.Name, dt.Name)
	}
	return &report.ChartSpec{
		Type:        report.ChartLine,
		Title:       fmt.Sprintf("%s over %s", num.Name, dt.Name),
		Description: fmt.Sprintf("Values of %s ordered by %s", num.Name, dt.Name),
		Data:        report.ChartData{Labels: labels, Values: values, XColumn: dt.Name, YColumn: num.Name},
		Width:       defaultWidth,
		Height:      defaultHeight,
	}, nil
}

func buildBar(cat, num dataset.Column) (*report.ChartSpec, error) {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i := range cat.Cells {
		if i >= len(num.Cells) || cat.Cells[i] == "" || num.Cells[i] == "" {
			continue
		}
		v, ok := parseFloat(num.Cells[i])
		if !ok {
			continue
		}
		sums[cat.Cells[i]] += v
		counts[cat.Cells[i]]++
	}
	if len(counts) < minDistinctForCat {
		return nil, fmt.Errorf("not enough categories in %s", cat.Name)
	}

	labels := make([]string, 0, len(counts))
	for k := range counts {
		labels = append(labels, k)
	}
	sort.Strings(labels)

	values := make([]float64, len(labels))
	for i, l := range labels {
		values[i] = sums[l] / float64(counts[l])
	}
	return &report.ChartSpec{
		Type:        report.ChartBar,
		Title:       fmt.Sprintf("Average %s by %s", num.Name, cat.Name),
		Description: fmt.Sprintf("Mean of %s per %s category", num.Name, cat.Name),
		Data:        report.ChartData{Labels: labels, Values: values, XColumn: cat.Name, YColumn: num.Name},
		Width:       defaultWidth,
		Height:      defaultHeight,
	}, nil
}

func buildScatter(x, y dataset.Column) (*report.ChartSpec, error) {
	var xs, ys []float64
	for i := range x.Cells {
		if i >= len(y.Cells) || x.Cells[i] == "" || y.Cells[i] == "" {
			continue
		}
		xv, okx := parseFloat(x.Cells[i])
		yv, oky := parseFloat(y.Cells[i])
		if !okx || !oky {
			continue
		}
		xs = append(xs, xv)
		ys = append(ys, yv)
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("not enough paired points for %s vs %s", x.Name, y.Name)
	}
	return &report.ChartSpec{
		Type:        report.ChartScatter,
		Title:       fmt.Sprintf("%s vs %s", y.Name, x.Name),
		Description: fmt.Sprintf("Each point is one row's %s and %s", x.Name, y.Name),
		Data:        report.ChartData{Series: [][]float64{xs, ys}, XColumn: x.Name, YColumn: y.Name},
		Width:       defaultWidth,
		Height:      defaultHeight,
	}, nil
}

func buildHeatmap(cols []dataset.Column, rowCount int) (*report.ChartSpec, error) {
	if len(cols) < 2 {
		return nil, fmt.Errorf("need at least two numeric columns")
	}

	// Pairwise correlation over rows where both values are present
	series := make([][]float64, len(cols))
	for i, c := range cols {
		series[i] = make([]float64, rowCount)
		for r := 0; r < rowCount && r < len(c.Cells); r++ {
			v, ok := parseFloat(c.Cells[r])
			if !ok {
				v = math.NaN()
			}
			series[i][r] = v
		}
	}

	labels := make([]string, len(cols))
	matrix := make([][]float64, len(cols))
	for i := range cols {
		labels[i] = cols[i].Name
		matrix[i] = make([]float64, len(cols))
		for j := range cols {
			if i == j {
				matrix[i][j] = 1
				continue
			}
			xs, ys := pairedValues(series[i], series[j])
			if len(xs) < 2 {
				matrix[i][j] = 0
				continue
			}
			r := stat.Correlation(xs, ys, nil)
			if math.IsNaN(r) {
				r = 0
			}
			matrix[i][j] = r
		}
	}

	return &report.ChartSpec{
		Type:        report.ChartHeatmap,
		Title:       "Correlation matrix",
		Description: "Pearson correlation between numeric columns",
		Data:        report.ChartData{Labels: labels, Matrix: matrix},
		Width:       defaultWidth,
		Height:      heatmapHeight,
	}, nil
}

func buildHistogram(num dataset.Column) (*report.ChartSpec, error) {
	values := num.NumericValues()
	if len(values) < 2 {
		return nil, fmt.Errorf("not enough values in %s", num.Name)
	}
	min, _ := stats.Min(values)
	max, _ := stats.Max(values)
	if min == max {
		return nil, fmt.Errorf("%s has no spread", num.Name)
	}

	width := (max - min) / float64(histogramBins)
	labels := make([]string, histogramBins)
	counts := make([]float64, histogramBins)
	for i := 0; i < histogramBins; i++ {
		lo := min + float64(i)*width
		labels[i] = fmt.Sprintf("%.4g-%.4g", lo, lo+width)
	}
	for _, v := range values {
		bin := int((v - min) / width)
		if bin >= histogramBins {
			bin = histogramBins - 1
		}
		counts[bin]++
	}

	return &report.ChartSpec{
		Type:        report.ChartHistogram,
		Title:       fmt.Sprintf("Distribution of %s", num.Name),
		Description: fmt.Sprintf("Frequency of %s across %d bins", num.Name, histogramBins),
		Data:        report.ChartData{Labels: labels, Values: counts, XColumn: num.Name},
		Width:       defaultWidth,
		Height:      defaultHeight,
	}, nil
}

func buildBox(num dataset.Column) (*report.ChartSpec, error) {
	values := num.NumericValues()
	if len(values) < 4 {
		return nil, fmt.Errorf("not enough values in %s", num.Name)
	}
	quartiles, err := stats.Quartile(values)
	if err != nil {
		return nil, err
	}
	min, _ := stats.Min(values)
	max, _ := stats.Max(values)

	return &report.ChartSpec{
		Type:        report.ChartBox,
		Title:       fmt.Sprintf("Spread of %s", num.Name),
		Description: fmt.Sprintf("Five-number summary of %s", num.Name),
		Data: report.ChartData{
			Labels: []string{"min", "q1", "median", "q3", "max"},
			Values: []float64{min, quartiles.Q1, quartiles.Q2, quartiles.Q3, max},
			YColumn: num.Name,
		},
		Width:  defaultWidth,
		Height: defaultHeight,
	}, nil
}

func buildPie(cat dataset.Column) (*report.ChartSpec, error) {
	counts := make(map[string]int)
	for _, v := range cat.Cells {
		if v == "" {
			continue
		}
		counts[v]++
	}
	if len(counts) < minDistinctForCat {
		return nil, fmt.Errorf("not enough categories in %s", cat.Name)
	}

	labels := make([]string, 0, len(counts))
	for k := range counts {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	values := make([]float64, len(labels))
	for i, l := range labels {
		values[i] = float64(counts[l])
	}

	return &report.ChartSpec{
		Type:        report.ChartPie,
		Title:       fmt.Sprintf("Share of %s", cat.Name),
		Description: fmt.Sprintf("Row counts per %s category", cat.Name),
		Data:        report.ChartData{Labels: labels, Values: values, XColumn: cat.Name},
		Width:       defaultWidth,
		Height:      defaultHeight,
	}, nil
}

func pairedValues(a, b []float64) ([]float64, []float64) {
	var xs, ys []float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		xs = append(xs, a[i])
		ys = append(ys, b[i])
	}
	return xs, ys
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
