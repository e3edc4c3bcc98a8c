package report

import (
	"fmt"
	"strings"

	"datalens/domain/core"
)

// AnalysisType selects the prompt focus for insight generation
type AnalysisType string

const (
	AnalysisGeneral      AnalysisType = "general"
	AnalysisTrends       AnalysisType = "trends"
	AnalysisCorrelations AnalysisType = "correlations"
	AnalysisPredictions  AnalysisType = "predictions"
	AnalysisStatistical  AnalysisType = "statistical"
)

// ParseAnalysisType validates a user-supplied analysis type,
// defaulting to general for the empty string
func ParseAnalysisType(s string) (AnalysisType, error) {
	switch AnalysisType(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return AnalysisGeneral, nil
	case AnalysisGeneral:
		return AnalysisGeneral, nil
	case AnalysisTrends:
		return AnalysisTrends, nil
	case AnalysisCorrelations:
		return AnalysisCorrelations, nil
	case AnalysisPredictions:
		return AnalysisPredictions, nil
	case AnalysisStatistical:
		return AnalysisStatistical, nil
	default:
		return "", fmt.Errorf("unknown analysis type %q", s)
	}
}

// ChartType enumerates the renderable chart kinds
type ChartType string

const (
	ChartLine      ChartType = "line"
	ChartBar       ChartType = "bar"
	ChartScatter   ChartType = "scatter"
	ChartHeatmap   ChartType = "heatmap"
	ChartHistogram ChartType = "histogram"
	ChartBox       ChartType = "box"
	ChartPie       ChartType = "pie"
)

// IsValid reports whether the chart type is one of the supported kinds
func (t ChartType) IsValid() bool {
	switch t {
	case ChartLine, ChartBar, ChartScatter, ChartHeatmap, ChartHistogram, ChartBox, ChartPie:
		return true
	}
	return false
}

// ChartTypes lists every supported chart type
func ChartTypes() []ChartType {
	return []ChartType{ChartLine, ChartBar, ChartScatter, ChartHeatmap, ChartHistogram, ChartBox, ChartPie}
}

// Severity grades anomalies
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Priority grades recommendations
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Insight is a single finding produced by the insight generator
type Insight struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Confidence     float64  `json:"confidence"`
	Category       string   `json:"category"`
	SupportingData []string `json:"supporting_data,omitempty"`
}

// Anomaly flags a data quality or statistical irregularity
type Anomaly struct {
	Type            string   `json:"type"`
	Description     string   `json:"description"`
	Severity        Severity `json:"severity"`
	AffectedColumns []string `json:"affected_columns,omitempty"`
	SuggestedAction string   `json:"suggested_action,omitempty"`
}

// Recommendation is an actionable suggestion derived from the analysis
type Recommendation struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
	Impact      string   `json:"impact,omitempty"`
	Effort      string   `json:"effort,omitempty"`
	Category    string   `json:"category,omitempty"`
}

// ChartData is the declarative payload a renderer consumes
type ChartData struct {
	Labels  []string    `json:"labels,omitempty"`
	Values  []float64   `json:"values,omitempty"`
	Series  [][]float64 `json:"series,omitempty"`
	Matrix  [][]float64 `json:"matrix,omitempty"`
	XColumn string      `json:"x_column,omitempty"`
	YColumn string      `json:"y_column,omitempty"`
}

// ChartSpec describes one chart without binding to a rendering library
type ChartSpec struct {
	Type        ChartType         `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Data        ChartData         `json:"data"`
	Config      map[string]string `json:"config,omitempty"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
}

// ColumnStatistics summarizes a single column. Numeric fields are
// pointers because they only apply to numeric columns and empty
// columns carry no values at all.
type ColumnStatistics struct {
	Name         string       `json:"name"`
	Type         string       `json:"type"`
	Count        int          `json:"count"`
	MissingCount int          `json:"missing_count"`
	UniqueCount  int          `json:"unique_count"`
	Min          *float64     `json:"min,omitempty"`
	Max          *float64     `json:"max,omitempty"`
	Mean         *float64     `json:"mean,omitempty"`
	Median       *float64     `json:"median,omitempty"`
	StdDev       *float64     `json:"std_dev,omitempty"`
	TopValues    []ValueCount `json:"top_values,omitempty"`
}

// ValueCount pairs a frequent value with its occurrence count
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// GlobalStatistics covers dataset-wide measures
type GlobalStatistics struct {
	RowCount         int     `json:"row_count"`
	ColumnCount      int     `json:"column_count"`
	MissingCells     int     `json:"missing_cells"`
	MissingRatio     float64 `json:"missing_ratio"`
	DuplicateRows    int     `json:"duplicate_rows"`
	NumericColumns   int     `json:"numeric_columns"`
	TextColumns      int     `json:"text_columns"`
	DateTimeColumns  int     `json:"datetime_columns"`
	BooleanColumns   int     `json:"boolean_columns"`
	MemoryEstimateKB int     `json:"memory_estimate_kb"`
}

// DataSummary is the statistical summarizer's full output
type DataSummary struct {
	Shape     [2]int             `json:"shape"`
	Columns   []ColumnStatistics `json:"columns"`
	Global    GlobalStatistics   `json:"global"`
	Anomalies []Anomaly          `json:"anomalies,omitempty"`
}

// PerformanceMetrics records per-stage wall-clock timings in seconds
type PerformanceMetrics struct {
	ValidationTime    float64 `json:"validation_time"`
	AnonymizationTime float64 `json:"anonymization_time"`
	StatisticsTime    float64 `json:"statistics_time"`
	InsightTime       float64 `json:"insight_time"`
	ChartTime         float64 `json:"chart_time"`
	AssemblyTime      float64 `json:"assembly_time"`
	TotalTime         float64 `json:"total_time"`
	OpenAITokensUsed  int     `json:"openai_tokens_used"`
}

// ColumnAnonymization records how one flagged column was transformed
type ColumnAnonymization struct {
	Category string `json:"category"`
	Method   string `json:"method"`
}

// PrivacyReport documents what anonymization did to the dataset
type PrivacyReport struct {
	AnonymizationApplied bool                           `json:"anonymization_applied"`
	SensitiveColumns     []string                       `json:"sensitive_columns_detected"`
	Methods              map[string]ColumnAnonymization `json:"anonymization_methods,omitempty"`
	DataLossEstimate     float64                        `json:"data_loss_estimate"`
	ComplianceStatus     string                         `json:"compliance_status"`
	DataRetentionDays    int                            `json:"data_retention_days"`
	ProcessingPurpose    string                         `json:"processing_purpose"`
}

// AnalysisReport is the final assembled result for one file
type AnalysisReport struct {
	AnalysisID      string             `json:"analysis_id"`
	FileName        string             `json:"file_name"`
	Question        string             `json:"question"`
	AnalysisType    AnalysisType       `json:"analysis_type"`
	Summary         string             `json:"summary"`
	SummaryHTML     string             `json:"summary_html,omitempty"`
	Insights        []Insight          `json:"insights"`
	Anomalies       []Anomaly          `json:"anomalies"`
	Recommendations []Recommendation   `json:"recommendations"`
	Charts          []ChartSpec        `json:"charts"`
	ConfidenceScore float64            `json:"confidence_score"`
	Degraded        bool               `json:"degraded"`
	DegradedReason  string             `json:"degraded_reason,omitempty"`
	Performance     PerformanceMetrics `json:"performance"`
	Privacy         PrivacyReport      `json:"privacy"`
	DataSummary     DataSummary        `json:"data_summary"`
	CreatedAt       core.Timestamp     `json:"created_at"`
}

// FileOutcome is one entry of a batch response
type FileOutcome struct {
	FileName string          `json:"file_name"`
	Status   string          `json:"status"`
	Error    string          `json:"error,omitempty"`
	Report   *AnalysisReport `json:"report,omitempty"`
}

// BatchReport wraps per-file outcomes with envelope counts
type BatchReport struct {
	BatchID    string         `json:"batch_id"`
	Total      int            `json:"total_files"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Outcomes   []FileOutcome  `json:"results"`
	CreatedAt  core.Timestamp `json:"created_at"`
}

// ValidationPreview is the validate-only endpoint's response
type ValidationPreview struct {
	Valid             bool     `json:"valid"`
	FileName          string   `json:"file_name"`
	RowCount          int      `json:"row_count"`
	ColumnCount       int      `json:"column_count"`
	Columns           []string `json:"columns"`
	MalformedRows     int      `json:"malformed_rows"`
	EstimatedCostUSD  float64  `json:"estimated_cost_usd"`
	Warnings          []string `json:"warnings,omitempty"`
	QuestionCharCount int      `json:"question_char_count"`
}
