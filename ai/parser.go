package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"datalens/domain/report"
)

// llmResponse mirrors the JSON schema the prompt requests
type llmResponse struct {
	Summary     string `json:"summary"`
	KeyInsights []struct {
		Title          string   `json:"title"`
		Description    string   `json:"description"`
		Confidence     float64  `json:"confidence"`
		Category       string   `json:"category"`
		SupportingData []string `json:"supporting_data"`
	} `json:"key_insights"`
	Anomalies []struct {
		Type            string   `json:"type"`
		Description     string   `json:"description"`
		Severity        string   `json:"severity"`
		AffectedColumns []string `json:"affected_columns"`
		SuggestedAction string   `json:"suggested_action"`
	} `json:"anomalies"`
	Recommendations []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
		Impact      string `json:"impact"`
		Effort      string `json:"effort"`
		Category    string `json:"category"`
	} `json:"recommendations"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// parsed is the typed, validated form of an LLM response
type parsed struct {
	Summary         string
	Insights        []report.Insight
	Anomalies       []report.Anomaly
	Recommendations []report.Recommendation
	Confidence      float64
	DroppedRecords  int
}

// parseResponse converts raw LLM output into typed records. Records
// missing required fields are dropped and counted rather than passed
// through, and confidences are clamped to [0,1].
func parseResponse(content string) (*parsed, error) {
	cleaned := cleanJSONContent(content)

	var resp llmResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if strings.TrimSpace(resp.Summary) == "" {
		return nil, fmt.Errorf("response has no summary")
	}

	out := &parsed{
		Summary:    strings.TrimSpace(resp.Summary),
		Confidence: clamp01(resp.ConfidenceScore),
	}

	for _, in := range resp.KeyInsights {
		if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Description) == "" {
			out.DroppedRecords++
			continue
		}
		out.Insights = append(out.Insights, report.Insight{
			Title:          strings.TrimSpace(in.Title),
			Description:    strings.TrimSpace(in.Description),
			Confidence:     clamp01(in.Confidence),
			Category:       strings.TrimSpace(in.Category),
			SupportingData: in.SupportingData,
		})
	}

	for _, an := range resp.Anomalies {
		if strings.TrimSpace(an.Description) == "" {
			out.DroppedRecords++
			continue
		}
		out.Anomalies = append(out.Anomalies, report.Anomaly{
			Type:            defaultString(an.Type, "llm_detected"),
			Description:     strings.TrimSpace(an.Description),
			Severity:        parseSeverity(an.Severity),
			AffectedColumns: an.AffectedColumns,
			SuggestedAction: strings.TrimSpace(an.SuggestedAction),
		})
	}

	for _, rec := range resp.Recommendations {
		if strings.TrimSpace(rec.Title) == "" || strings.TrimSpace(rec.Description) == "" {
			out.DroppedRecords++
			continue
		}
		out.Recommendations = append(out.Recommendations, report.Recommendation{
			Title:       strings.TrimSpace(rec.Title),
			Description: strings.TrimSpace(rec.Description),
			Priority:    parsePriority(rec.Priority),
			Impact:      strings.TrimSpace(rec.Impact),
			Effort:      strings.TrimSpace(rec.Effort),
			Category:    strings.TrimSpace(rec.Category),
		})
	}

	return out, nil
}

// cleanJSONContent strips markdown code fences models sometimes wrap
// around JSON despite instructions
func cleanJSONContent(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func parseSeverity(s string) report.Severity {
	switch report.Severity(strings.ToLower(strings.TrimSpace(s))) {
	case report.SeverityHigh:
		return report.SeverityHigh
	case report.SeverityMedium:
		return report.SeverityMedium
	default:
		return report.SeverityLow
	}
}

func parsePriority(s string) report.Priority {
	switch report.Priority(strings.ToLower(strings.TrimSpace(s))) {
	case report.PriorityHigh:
		return report.PriorityHigh
	case report.PriorityLow:
		return report.PriorityLow
	default:
		return report.PriorityMedium
	}
}

func defaultString(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return s
}
