package ai

import (
	"fmt"

	"datalens/domain/report"
)

// Focus blocks appended to the base prompt per analysis type
var analysisFocus = map[report.AnalysisType]string{
	report.AnalysisGeneral: `Focus on:
- Overall patterns in the data
- Notable distributions and concentrations
- Data quality observations
- The most decision-relevant findings`,
	report.AnalysisTrends: `Focus on:
- Trends and changes over time or ordered dimensions
- Growth or decline rates and turning points
- Seasonality or cyclic behavior if visible
- Whether observed trends are stable or volatile`,
	report.AnalysisCorrelations: `Focus on:
- Relationships between pairs of variables
- Strength and direction of associations
- Variables that move together or in opposition
- Potential confounders behind apparent relationships`,
	report.AnalysisPredictions: `Focus on:
- Which variables are most predictive of the outcome implied by the question
- Leading indicators visible in the data
- Ranges the data supports for forward-looking statements
- Caveats that limit extrapolation`,
	report.AnalysisStatistical: `Focus on:
- Distribution shapes, central tendency and spread
- Statistical significance of visible differences
- Outliers and their influence on the summary statistics
- Sample size limitations`,
}

const responseSchema = `Respond with a single JSON object using exactly this schema:
{
  "summary": "2-4 sentence narrative answering the question",
  "key_insights": [
    {"title": "...", "description": "...", "confidence": 0.0, "category": "...", "supporting_data": ["..."]}
  ],
  "anomalies": [
    {"type": "...", "description": "...", "severity": "low|medium|high", "affected_columns": ["..."], "suggested_action": "..."}
  ],
  "recommendations": [
    {"title": "...", "description": "...", "priority": "low|medium|high", "impact": "...", "effort": "...", "category": "..."}
  ],
  "confidence_score": 0.0
}
Confidence values are between 0 and 1. Do not include any text outside the JSON object.`

// BuildPrompt assembles the analysis prompt from the user question,
// the analysis type and the statistical summary. Only the summary is
// ever included, never raw rows.
func BuildPrompt(question string, analysisType report.AnalysisType, summaryJSON string) string {
	focus, ok := analysisFocus[analysisType]
	if !ok {
		focus = analysisFocus[report.AnalysisGeneral]
	}

	return fmt.Sprintf(`You are analyzing a dataset to answer a user's question. You receive only an anonymized statistical summary, never raw data.

User question: %s

Analysis type: %s

%s

Statistical summary of the dataset:
%s

%s`, question, analysisType, focus, summaryJSON, responseSchema)
}
