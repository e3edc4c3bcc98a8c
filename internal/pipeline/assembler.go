package pipeline

import (
	"fmt"

	"datalens/ai"
	"datalens/domain/core"
	"datalens/domain/dataset"
	"datalens/domain/report"
	"datalens/internal/charts"
)

// Confidence weighting. A degraded report must always score strictly
// below any full report on the same completeness, hence the smaller
// factor with no insight term.
const (
	okInsightWeight      = 0.6
	okCompletenessWeight = 0.4
	degradedWeight       = 0.3
	completenessFloor    = 0.2
)

type assembleInput struct {
	AnalysisID   core.AnalysisID
	FileName     string
	Question     string
	AnalysisType report.AnalysisType
	Summary      *report.DataSummary
	Privacy      report.PrivacyReport
	Insight      *ai.InsightResult
	Charts       *charts.Result
	Dataset      *dataset.Dataset
}

// assemble merges stage outputs into the final report. It always
// produces a report: LLM failure yields a degraded one.
func assemble(in assembleInput) *report.AnalysisReport {
	rep := &report.AnalysisReport{
		AnalysisID:      in.AnalysisID.String(),
		FileName:        in.FileName,
		Question:        in.Question,
		AnalysisType:    in.AnalysisType,
		DataSummary:     *in.Summary,
		Privacy:         in.Privacy,
		Insights:        []report.Insight{},
		Anomalies:       []report.Anomaly{},
		Recommendations: []report.Recommendation{},
		Charts:          []report.ChartSpec{},
		CreatedAt:       core.Now(),
	}

	// Statistical anomalies lead, LLM-detected ones follow
	rep.Anomalies = append(rep.Anomalies, in.Summary.Anomalies...)

	if in.Charts != nil {
		rep.Charts = append(rep.Charts, in.Charts.Charts...)
	}

	completeness := completenessFactor(in)

	switch in.Insight.Status {
	case ai.StatusOK:
		rep.Summary = in.Insight.Summary
		rep.Insights = append(rep.Insights, in.Insight.Insights...)
		rep.Anomalies = append(rep.Anomalies, in.Insight.Anomalies...)
		rep.Recommendations = append(rep.Recommendations, in.Insight.Recommendations...)
		rep.ConfidenceScore = okInsightWeight*meanInsightConfidence(in.Insight.Insights) +
			okCompletenessWeight*completeness
	case ai.StatusDegraded:
		rep.Degraded = true
		rep.DegradedReason = in.Insight.Reason
		rep.Summary = in.Insight.Summary
		rep.Insights = append(rep.Insights, in.Insight.Insights...)
		rep.Recommendations = append(rep.Recommendations, in.Insight.Recommendations...)
		rep.ConfidenceScore = degradedWeight * completeness
	default:
		rep.Degraded = true
		rep.DegradedReason = in.Insight.Reason
		rep.Summary = statisticalSummaryText(in.Dataset, in.Summary)
		rep.ConfidenceScore = degradedWeight * completeness
	}

	return rep
}

// completenessFactor reflects how much of the pipeline delivered
// cleanly, independent of the LLM outcome
func completenessFactor(in assembleInput) float64 {
	c := 1.0
	if in.Charts != nil && in.Charts.Failed > 0 {
		c -= 0.1
	}
	if in.Insight.DroppedRecords > 0 {
		c -= 0.1
	}
	if in.Dataset != nil && in.Dataset.MalformedRows > 0 {
		c -= 0.05
	}
	if in.Summary.Global.MissingRatio > 0.1 {
		c -= 0.1
	}
	if c < completenessFloor {
		c = completenessFloor
	}
	return c
}

func meanInsightConfidence(insights []report.Insight) float64 {
	if len(insights) == 0 {
		return 0
	}
	sum := 0.0
	for _, in := range insights {
		sum += in.Confidence
	}
	return sum / float64(len(insights))
}

// statisticalSummaryText builds the narrative when no LLM output is
// available at all
func statisticalSummaryText(ds *dataset.Dataset, summary *report.DataSummary) string {
	name := "the dataset"
	if ds != nil && ds.Name != "" {
		name = ds.Name
	}
	return fmt.Sprintf(
		"Statistical analysis of %s completed: %d rows across %d columns (%d numeric). "+
			"AI-generated insights are unavailable for this report; the statistical summary, anomaly checks and charts below are complete.",
		name, summary.Global.RowCount, summary.Global.ColumnCount, summary.Global.NumericColumns)
}
