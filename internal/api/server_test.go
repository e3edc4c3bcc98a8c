package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalens/adapters/llm"
	"datalens/ai"
	"datalens/internal/anonymize"
	"datalens/internal/charts"
	"datalens/internal/config"
	"datalens/internal/logx"
	"datalens/internal/pipeline"
	"datalens/internal/summarize"
	"datalens/internal/usage"
	"datalens/internal/validate"
)

const testQuestion = "What trends are visible in the sales data?"

const mockResponse = `{
	"summary": "Amounts trend upward.",
	"key_insights": [
		{"title": "Upward trend", "description": "Amounts rise day over day.", "confidence": 0.8, "category": "trend"}
	],
	"confidence_score": 0.8
}`

func testServer(t *testing.T) *Server {
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
		},
		Anonymize: config.AnonymizeConfig{
			EnabledByDefault:  true,
			SampleSize:        100,
			MatchThreshold:    0.30,
			DataRetentionDays: 30,
		},
		Server: config.ServerConfig{Port: "0", GinMode: "test"},
	}

	anonymizer, err := anonymize.NewAnonymizer(cfg.Anonymize, logger)
	require.NoError(t, err)

	p := pipeline.New(
		cfg,
		validate.NewValidator(cfg, logger),
		anonymizer,
		summarize.NewSummarizer(logger),
		ai.NewGenerator(&llm.MockLLMClient{Response: mockResponse}, cfg.AI.OpenAIModel, cfg.AI.MaxTokens, logger),
		charts.NewBuilder(cfg.Limits.MaxCharts, logger),
		usage.NewRecorder(nil, logger),
		logger,
	)
	return NewServer(cfg, p, logger)
}

const csvBody = "date,amount\n2023-01-01,100\n2023-01-02,110\n2023-01-03,125\n"

func multipartRequest(t *testing.T, url string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for field, content := range files {
		fw, err := w.CreateFormFile(field, "sales.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestCapabilitiesEndpoint(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/capabilities", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "supported_formats")
	assert.Contains(t, body, "analysis_types")
	assert.Contains(t, body, "chart_types")
}

func TestAnalyzeEndpoint(t *testing.T) {
	s := testServer(t)
	req := multipartRequest(t, "/api/v1/analyze",
		map[string]string{"question": testQuestion, "analysis_type": "trends"},
		map[string]string{"files": csvBody})

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["analysis_id"])
	assert.NotEmpty(t, body["summary_html"])
	assert.Equal(t, false, body["degraded"])
}

func TestAnalyzeEndpointShortQuestion(t *testing.T) {
	s := testServer(t)
	req := multipartRequest(t, "/api/v1/analyze",
		map[string]string{"question": "short"},
		map[string]string{"files": csvBody})

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestAnalyzeEndpointMissingFiles(t *testing.T) {
	s := testServer(t)
	req := multipartRequest(t, "/api/v1/analyze",
		map[string]string{"question": testQuestion}, nil)

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeEndpointBadAnalysisType(t *testing.T) {
	s := testServer(t)
	req := multipartRequest(t, "/api/v1/analyze",
		map[string]string{"question": testQuestion, "analysis_type": "astrology"},
		map[string]string{"files": csvBody})

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateEndpoint(t *testing.T) {
	s := testServer(t)
	req := multipartRequest(t, "/api/v1/validate",
		map[string]string{"question": testQuestion},
		map[string]string{"file": csvBody})

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, float64(3), body["row_count"])
}

func TestOpsMetricsEndpoint(t *testing.T) {
	logger := logx.NewLogger(logx.LogLevelError)
	recorder := usage.NewRecorder(nil, logger)
	ops := NewOpsServer(recorder, logger)

	rec := httptest.NewRecorder()
	ops.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "datalens_analyses_total 0")
	assert.Contains(t, body, "datalens_stage_seconds_total")
	for _, stage := range []string{"validation", "anonymization", "statistics", "insight", "chart", "assembly"} {
		assert.Contains(t, body, `stage="`+stage+`"`)
	}
}

func TestOpsHealthz(t *testing.T) {
	logger := logx.NewLogger(logx.LogLevelError)
	ops := NewOpsServer(usage.NewRecorder(nil, logger), logger)

	rec := httptest.NewRecorder()
	ops.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ok"))
}
