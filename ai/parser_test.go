package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalens/domain/report"
)

const goodResponse = `{
	"summary": "Sales rose steadily through the quarter.",
	"key_insights": [
		{"title": "Steady growth", "description": "Revenue grew each month.", "confidence": 0.9, "category": "trend"},
		{"title": "Regional gap", "description": "North outsells south.", "confidence": 0.7, "category": "comparison"}
	],
	"anomalies": [
		{"type": "spike", "description": "March shows an unusual jump.", "severity": "medium", "affected_columns": ["amount"]}
	],
	"recommendations": [
		{"title": "Investigate March", "description": "Check the March spike for one-off events.", "priority": "high"}
	],
	"confidence_score": 0.85
}`

func TestParseResponse(t *testing.T) {
	p, err := parseResponse(goodResponse)
	require.NoError(t, err)

	assert.Equal(t, "Sales rose steadily through the quarter.", p.Summary)
	require.Len(t, p.Insights, 2)
	assert.Equal(t, 0.9, p.Insights[0].Confidence)
	require.Len(t, p.Anomalies, 1)
	assert.Equal(t, report.SeverityMedium, p.Anomalies[0].Severity)
	require.Len(t, p.Recommendations, 1)
	assert.Equal(t, report.PriorityHigh, p.Recommendations[0].Priority)
	assert.Equal(t, 0.85, p.Confidence)
	assert.Equal(t, 0, p.DroppedRecords)
}

func TestParseResponseStripsFences(t *testing.T) {
	fenced := "```json\n" + goodResponse + "\n```"

	p, err := parseResponse(fenced)
	require.NoError(t, err)
	assert.Len(t, p.Insights, 2)
}

func TestParseResponseClampsConfidence(t *testing.T) {
	raw := `{
		"summary": "ok summary",
		"key_insights": [
			{"title": "a", "description": "b", "confidence": 1.7},
			{"title": "c", "description": "d", "confidence": -0.5}
		],
		"confidence_score": 2.0
	}`

	p, err := parseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.Insights[0].Confidence)
	assert.Equal(t, 0.0, p.Insights[1].Confidence)
	assert.Equal(t, 1.0, p.Confidence)
}

func TestParseResponseDropsInvalidRecords(t *testing.T) {
	raw := `{
		"summary": "partially usable",
		"key_insights": [
			{"title": "", "description": "missing title"},
			{"title": "valid", "description": "kept", "confidence": 0.5}
		],
		"anomalies": [
			{"type": "x", "description": ""}
		],
		"recommendations": [
			{"title": "only title", "description": ""}
		],
		"confidence_score": 0.6
	}`

	p, err := parseResponse(raw)
	require.NoError(t, err)
	assert.Len(t, p.Insights, 1)
	assert.Empty(t, p.Anomalies)
	assert.Empty(t, p.Recommendations)
	assert.Equal(t, 3, p.DroppedRecords)
}

func TestParseResponseGarbage(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "here are your insights: growth is up"},
		{"empty", ""},
		{"json without summary", `{"key_insights": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseResponse(tt.content)
			assert.Error(t, err)
		})
	}
}

func TestParseSeverityAndPriorityDefaults(t *testing.T) {
	assert.Equal(t, report.SeverityLow, parseSeverity("unknown"))
	assert.Equal(t, report.SeverityHigh, parseSeverity("HIGH"))
	assert.Equal(t, report.PriorityMedium, parsePriority(""))
	assert.Equal(t, report.PriorityLow, parsePriority("low"))
}
