package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"datalens/domain/report"
	"datalens/internal/logx"
	"datalens/ports"
)

// InsightStatus reports how insight generation ended
type InsightStatus string

const (
	StatusOK       InsightStatus = "ok"
	StatusDegraded InsightStatus = "degraded"
	StatusFailed   InsightStatus = "failed"
)

// Maximum bytes of summary JSON included in a prompt. Larger
// summaries are truncated column-wise until they fit.
const maxSummaryBytes = 8000

const fallbackConfidence = 0.3

// InsightResult carries everything the generator produced, including
// partial output when the response was only partly usable
type InsightResult struct {
	Status          InsightStatus
	Summary         string
	Insights        []report.Insight
	Anomalies       []report.Anomaly
	Recommendations []report.Recommendation
	Confidence      float64
	TokensUsed      int
	Usage           *ports.UsageData
	ResponseTime    time.Duration
	DroppedRecords  int
	Reason          string
}

// Generator turns a question plus a statistical summary into typed
// insight records via an LLM
type Generator struct {
	client    ports.LLMClient
	model     string
	maxTokens int
	logger    *logx.Logger
}

// NewGenerator creates a generator. A nil client is allowed and makes
// every generation fail fast into degraded mode.
func NewGenerator(client ports.LLMClient, model string, maxTokens int, logger *logx.Logger) *Generator {
	return &Generator{client: client, model: model, maxTokens: maxTokens, logger: logger}
}

// Generate runs one LLM round trip. It never returns an error: any
// failure is folded into the result status so the pipeline can degrade
// instead of aborting.
func (g *Generator) Generate(ctx context.Context, question string, analysisType report.AnalysisType, summary *report.DataSummary) *InsightResult {
	start := time.Now()

	if g.client == nil {
		return &InsightResult{
			Status: StatusFailed,
			Reason: "no LLM client configured",
		}
	}

	summaryJSON, err := boundedSummaryJSON(summary)
	if err != nil {
		return &InsightResult{
			Status:       StatusFailed,
			Reason:       fmt.Sprintf("failed to serialize summary: %v", err),
			ResponseTime: time.Since(start),
		}
	}

	prompt := BuildPrompt(question, analysisType, summaryJSON)
	resp, err := g.client.ChatCompletionWithUsage(ctx, g.model, prompt, g.maxTokens)
	if err != nil {
		g.logger.Warn("[InsightGenerator] LLM call failed: %v", err)
		return &InsightResult{
			Status:       StatusFailed,
			Reason:       fmt.Sprintf("LLM call failed: %v", err),
			ResponseTime: time.Since(start),
		}
	}

	result := &InsightResult{ResponseTime: time.Since(start), Usage: resp.Usage}
	if resp.Usage != nil {
		result.TokensUsed = resp.Usage.TotalTokens
	}

	p, err := parseResponse(resp.Content)
	if err != nil {
		g.logger.Warn("[InsightGenerator] unusable response: %v", err)
		result.Status = StatusDegraded
		result.Reason = fmt.Sprintf("unusable LLM response: %v", err)
		result.Summary, result.Insights, result.Recommendations = fallbackRecords(analysisType)
		result.Confidence = fallbackConfidence
		return result
	}

	result.Summary = p.Summary
	result.Insights = p.Insights
	result.Anomalies = p.Anomalies
	result.Recommendations = p.Recommendations
	result.Confidence = p.Confidence
	result.DroppedRecords = p.DroppedRecords

	if len(p.Insights) == 0 {
		result.Status = StatusDegraded
		result.Reason = "response contained no usable insights"
		result.Summary, result.Insights, result.Recommendations = fallbackRecords(analysisType)
		result.Confidence = fallbackConfidence
		return result
	}

	result.Status = StatusOK
	g.logger.Debug("[InsightGenerator] %d insights, %d dropped records, %d tokens",
		len(result.Insights), result.DroppedRecords, result.TokensUsed)
	return result
}

// fallbackRecords builds a minimal usable result when the LLM output
// could not be parsed into insights
func fallbackRecords(analysisType report.AnalysisType) (string, []report.Insight, []report.Recommendation) {
	summary := "Automated analysis completed. The language model response could not be fully interpreted, so only basic findings are reported."
	insights := []report.Insight{{
		Title:       "Analysis completed with limited interpretation",
		Description: fmt.Sprintf("A %s analysis was performed but detailed findings could not be extracted. Review the statistical summary directly.", analysisType),
		Confidence:  fallbackConfidence,
		Category:    "general",
	}}
	recommendations := []report.Recommendation{{
		Title:       "Re-run the analysis",
		Description: "Try again or rephrase the question. The statistical summary and charts remain fully usable.",
		Priority:    report.PriorityLow,
		Category:    "process",
	}}
	return summary, insights, recommendations
}

// boundedSummaryJSON serializes the summary, dropping top-value lists
// and then trailing columns until the payload fits the prompt budget
func boundedSummaryJSON(summary *report.DataSummary) (string, error) {
	raw, err := json.Marshal(summary)
	if err != nil {
		return "", err
	}
	if len(raw) <= maxSummaryBytes {
		return string(raw), nil
	}

	trimmed := *summary
	trimmed.Columns = make([]report.ColumnStatistics, len(summary.Columns))
	copy(trimmed.Columns, summary.Columns)
	for i := range trimmed.Columns {
		trimmed.Columns[i].TopValues = nil
	}
	raw, err = json.Marshal(&trimmed)
	if err != nil {
		return "", err
	}

	for len(raw) > maxSummaryBytes && len(trimmed.Columns) > 1 {
		trimmed.Columns = trimmed.Columns[:len(trimmed.Columns)-1]
		raw, err = json.Marshal(&trimmed)
		if err != nil {
			return "", err
		}
	}
	return string(raw), nil
}
