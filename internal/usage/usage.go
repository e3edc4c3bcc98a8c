package usage

import (
	"context"
	"sync/atomic"
	"time"

	"datalens/domain/report"
	"datalens/internal/logx"
	"datalens/ports"
)

// Record is one persisted LLM usage entry. Only token accounting is
// stored, never dataset content or prompts.
type Record struct {
	AnalysisID       string    `db:"analysis_id"`
	Model            string    `db:"model"`
	Provider         string    `db:"provider"`
	PromptTokens     int       `db:"prompt_tokens"`
	CompletionTokens int       `db:"completion_tokens"`
	TotalTokens      int       `db:"total_tokens"`
	CreatedAt        time.Time `db:"created_at"`
}

// Repository persists usage records
type Repository interface {
	InsertUsage(ctx context.Context, rec Record) error
}

// Recorder keeps process-wide counters for the metrics endpoint and
// optionally audits LLM usage to a repository
type Recorder struct {
	logger *logx.Logger
	repo   Repository

	analysesTotal    atomic.Int64
	analysesFailed   atomic.Int64
	analysesDegraded atomic.Int64
	tokensTotal      atomic.Int64

	validationNanos    atomic.Int64
	anonymizationNanos atomic.Int64
	statisticsNanos    atomic.Int64
	insightNanos       atomic.Int64
	chartNanos         atomic.Int64
	assemblyNanos      atomic.Int64
}

// NewRecorder creates a recorder. repo may be nil, which disables
// persistence but keeps the in-process counters.
func NewRecorder(repo Repository, logger *logx.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// RecordAnalysis folds one finished analysis into the counters
func (r *Recorder) RecordAnalysis(perf report.PerformanceMetrics, degraded, failed bool) {
	r.analysesTotal.Add(1)
	if failed {
		r.analysesFailed.Add(1)
	}
	if degraded {
		r.analysesDegraded.Add(1)
	}
	r.tokensTotal.Add(int64(perf.OpenAITokensUsed))

	r.validationNanos.Add(secondsToNanos(perf.ValidationTime))
	r.anonymizationNanos.Add(secondsToNanos(perf.AnonymizationTime))
	r.statisticsNanos.Add(secondsToNanos(perf.StatisticsTime))
	r.insightNanos.Add(secondsToNanos(perf.InsightTime))
	r.chartNanos.Add(secondsToNanos(perf.ChartTime))
	r.assemblyNanos.Add(secondsToNanos(perf.AssemblyTime))
}

// RecordLLMUsage audits one LLM round trip. Persistence happens in a
// background goroutine with retry so request latency is unaffected.
func (r *Recorder) RecordLLMUsage(analysisID string, u *ports.UsageData) {
	if u == nil || r.repo == nil {
		return
	}

	rec := Record{
		AnalysisID:       analysisID,
		Model:            u.Model,
		Provider:         u.Provider,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		CreatedAt:        time.Now().UTC(),
	}
	go r.persistWithRetry(rec)
}

func (r *Recorder) persistWithRetry(rec Record) {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.repo.InsertUsage(ctx, rec)
		cancel()
		if err == nil {
			return
		}
		r.logger.Warn("[Usage] persist attempt %d/%d failed: %v", attempt, maxAttempts, err)
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	r.logger.Error("[Usage] dropping usage record for analysis %s after %d attempts", rec.AnalysisID, maxAttempts)
}

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	AnalysesTotal    int64
	AnalysesFailed   int64
	AnalysesDegraded int64
	TokensTotal      int64
	StageSeconds     map[string]float64
}

// Snapshot returns the current counter values
func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		AnalysesTotal:    r.analysesTotal.Load(),
		AnalysesFailed:   r.analysesFailed.Load(),
		AnalysesDegraded: r.analysesDegraded.Load(),
		TokensTotal:      r.tokensTotal.Load(),
		StageSeconds: map[string]float64{
			"validation":    nanosToSeconds(r.validationNanos.Load()),
			"anonymization": nanosToSeconds(r.anonymizationNanos.Load()),
			"statistics":    nanosToSeconds(r.statisticsNanos.Load()),
			"insight":       nanosToSeconds(r.insightNanos.Load()),
			"chart":         nanosToSeconds(r.chartNanos.Load()),
			"assembly":      nanosToSeconds(r.assemblyNanos.Load()),
		},
	}
}

func secondsToNanos(s float64) int64 {
	return int64(s * float64(time.Second))
}

func nanosToSeconds(n int64) float64 {
	return float64(n) / float64(time.Second)
}
