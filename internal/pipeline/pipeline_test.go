package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalens/adapters/llm"
	"datalens/ai"
	"datalens/domain/report"
	"datalens/internal/anonymize"
	"datalens/internal/charts"
	"datalens/internal/config"
	apperrors "datalens/internal/errors"
	"datalens/internal/logx"
	"datalens/internal/summarize"
	"datalens/internal/usage"
	"datalens/internal/validate"
	"datalens/ports"
)

const question = "What trends are visible in the sales data?"

const insightResponse = `{
	"summary": "Order amounts grow over the observed days.",
	"key_insights": [
		{"title": "Growth", "description": "Amounts increase day over day.", "confidence": 0.8, "category": "trend"}
	],
	"anomalies": [],
	"recommendations": [
		{"title": "Keep monitoring", "description": "Watch whether growth continues.", "priority": "medium"}
	],
	"confidence_score": 0.8
}`

func testPipeline(t *testing.T, client ports.LLMClient) *Pipeline {
	t.Helper()
	logger := logx.NewLogger(logx.LogLevelError)
	cfg := &config.Config{
		AI: config.AIConfig{OpenAIModel: "test-model", MaxTokens: 1000},
		Limits: config.LimitConfig{
			MaxFileSize:        1 << 20,
			MaxCharts:          4,
			QuestionMinLength:  10,
			QuestionMaxLength:  1000,
			AnalysisTimeout:    30 * time.Second,
			MaxConcurrentFiles: 2,
			CostPerCellUSD:     0.0000005,
		},
		Anonymize: config.AnonymizeConfig{
			EnabledByDefault:  true,
			SampleSize:        100,
			MatchThreshold:    0.30,
			DataRetentionDays: 30,
		},
	}

	anonymizer, err := anonymize.NewAnonymizer(cfg.Anonymize, logger)
	require.NoError(t, err)

	return New(
		cfg,
		validate.NewValidator(cfg, logger),
		anonymizer,
		summarize.NewSummarizer(logger),
		ai.NewGenerator(client, cfg.AI.OpenAIModel, cfg.AI.MaxTokens, logger),
		charts.NewBuilder(cfg.Limits.MaxCharts, logger),
		usage.NewRecorder(nil, logger),
		logger,
	)
}

func salesUpload() validate.Upload {
	body := strings.Join([]string{
		"order_date,email,amount,region",
		"2023-01-01,alice@example.com,100,north",
		"2023-01-02,bob@example.com,110,south",
		"2023-01-03,carol@example.com,125,north",
		"2023-01-04,dave@example.com,140,south",
	}, "\n")
	return validate.Upload{FileName: "sales.csv", ContentType: "text/csv", Data: []byte(body)}
}

func analyzeRequest(upload validate.Upload) Request {
	return Request{
		Upload:        upload,
		Question:      question,
		AnalysisType:  report.AnalysisTrends,
		IncludeCharts: true,
	}
}

func TestAnalyzeFullRun(t *testing.T) {
	p := testPipeline(t, &llm.MockLLMClient{Response: insightResponse})

	rep, err := p.Analyze(context.Background(), analyzeRequest(salesUpload()))
	require.NoError(t, err)

	assert.False(t, rep.Degraded)
	assert.NotEmpty(t, rep.AnalysisID)
	assert.Equal(t, "sales.csv", rep.FileName)
	assert.NotEmpty(t, rep.Insights)
	assert.NotEmpty(t, rep.Charts)
	assert.NotEmpty(t, rep.Summary)
	assert.Greater(t, rep.ConfidenceScore, 0.0)
	assert.Equal(t, 150, rep.Performance.OpenAITokensUsed)
	assert.GreaterOrEqual(t, rep.Performance.TotalTime, 0.0)
	assert.True(t, rep.Privacy.AnonymizationApplied)
	assert.Contains(t, rep.Privacy.SensitiveColumns, "email")
}

func TestAnalyzeNoRawSensitiveValueInReport(t *testing.T) {
	p := testPipeline(t, &llm.MockLLMClient{Response: insightResponse})

	rep, err := p.Analyze(context.Background(), analyzeRequest(salesUpload()))
	require.NoError(t, err)

	raw, err := json.Marshal(rep)
	require.NoError(t, err)
	serialized := string(raw)

	for _, sensitive := range []string{"alice@example.com", "bob@example.com", "carol@example.com", "dave@example.com"} {
		assert.NotContains(t, serialized, sensitive)
	}
}

func TestAnalyzeDegradedOnLLMFailure(t *testing.T) {
	ok := testPipeline(t, &llm.MockLLMClient{Response: insightResponse})
	failing := testPipeline(t, &llm.MockLLMClient{Error: errors.New("upstream unavailable")})

	full, err := ok.Analyze(context.Background(), analyzeRequest(salesUpload()))
	require.NoError(t, err)
	degraded, err := failing.Analyze(context.Background(), analyzeRequest(salesUpload()))
	require.NoError(t, err)

	assert.True(t, degraded.Degraded)
	assert.NotEmpty(t, degraded.DegradedReason)
	assert.NotEmpty(t, degraded.Summary)
	assert.NotEmpty(t, degraded.Charts, "charts must survive an LLM failure")
	assert.NotEmpty(t, degraded.DataSummary.Columns, "statistics must survive an LLM failure")
	assert.Less(t, degraded.ConfidenceScore, full.ConfidenceScore,
		"degraded confidence must be strictly lower")
}

func TestAnalyzeValidationFailureIsTerminal(t *testing.T) {
	p := testPipeline(t, &llm.MockLLMClient{Response: insightResponse})

	req := analyzeRequest(salesUpload())
	req.Question = "short"
	rep, err := p.Analyze(context.Background(), req)

	require.Error(t, err)
	assert.Nil(t, rep)
	assert.Equal(t, apperrors.CodeValidationError, apperrors.GetCode(err))
}

func TestAnalyzeChartsCanBeDisabled(t *testing.T) {
	p := testPipeline(t, &llm.MockLLMClient{Response: insightResponse})

	req := analyzeRequest(salesUpload())
	req.IncludeCharts = false
	rep, err := p.Analyze(context.Background(), req)

	require.NoError(t, err)
	assert.Empty(t, rep.Charts)
}

func TestAnalyzeAnonymizationCanBeDisabled(t *testing.T) {
	p := testPipeline(t, &llm.MockLLMClient{Response: insightResponse})

	off := false
	req := analyzeRequest(salesUpload())
	req.Anonymize = &off
	rep, err := p.Analyze(context.Background(), req)

	require.NoError(t, err)
	assert.False(t, rep.Privacy.AnonymizationApplied)
	assert.Equal(t, "not_applied", rep.Privacy.ComplianceStatus)
}

func TestAnalyzeBatchIsolation(t *testing.T) {
	p := testPipeline(t, &llm.MockLLMClient{Response: insightResponse})

	uploads := []validate.Upload{
		salesUpload(),
		{FileName: "broken.bin", ContentType: "application/octet-stream", Data: []byte("not a table")},
		salesUpload(),
	}
	uploads[2].FileName = "sales2.csv"

	batch, err := p.AnalyzeBatch(context.Background(), uploads, question, report.AnalysisGeneral, true, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, batch.Total)
	assert.Equal(t, 2, batch.Successful)
	assert.Equal(t, 1, batch.Failed)
	require.Len(t, batch.Outcomes, 3)
	assert.Equal(t, "ok", batch.Outcomes[0].Status)
	assert.Equal(t, "failed", batch.Outcomes[1].Status)
	assert.NotEmpty(t, batch.Outcomes[1].Error)
	assert.Nil(t, batch.Outcomes[1].Report)
	assert.Equal(t, "ok", batch.Outcomes[2].Status)
	assert.NotEmpty(t, batch.BatchID)
}

func TestAnalyzeBatchEmpty(t *testing.T) {
	p := testPipeline(t, &llm.MockLLMClient{Response: insightResponse})

	_, err := p.AnalyzeBatch(context.Background(), nil, question, report.AnalysisGeneral, true, nil)
	assert.Error(t, err)
}

func TestValidatePreviewOnly(t *testing.T) {
	p := testPipeline(t, &llm.MockLLMClient{Response: insightResponse})

	preview, err := p.Validate(salesUpload(), question)
	require.NoError(t, err)
	assert.True(t, preview.Valid)
	assert.Equal(t, 4, preview.RowCount)
	assert.Equal(t, 4, preview.ColumnCount)
}
