package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"datalens/ai"
	"datalens/domain/core"
	"datalens/domain/report"
	"datalens/internal/anonymize"
	"datalens/internal/charts"
	"datalens/internal/config"
	"datalens/internal/errors"
	"datalens/internal/logx"
	"datalens/internal/summarize"
	"datalens/internal/usage"
	"datalens/internal/validate"
)

// Request is one analysis job for a single file
type Request struct {
	Upload        validate.Upload
	Question      string
	AnalysisType  report.AnalysisType
	IncludeCharts bool
	Anonymize     *bool // nil means use the configured default
}

// Pipeline wires the five stages together and owns their execution
// order: validation, anonymization and statistics run sequentially,
// insight generation and chart building run concurrently, assembly
// runs last.
type Pipeline struct {
	cfg        *config.Config
	validator  *validate.Validator
	anonymizer *anonymize.Anonymizer
	summarizer *summarize.Summarizer
	generator  *ai.Generator
	builder    *charts.Builder
	recorder   *usage.Recorder
	logger     *logx.Logger
}

// New builds a pipeline from its stages
func New(cfg *config.Config, validator *validate.Validator, anonymizer *anonymize.Anonymizer,
	summarizer *summarize.Summarizer, generator *ai.Generator, builder *charts.Builder,
	recorder *usage.Recorder, logger *logx.Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		validator:  validator,
		anonymizer: anonymizer,
		summarizer: summarizer,
		generator:  generator,
		builder:    builder,
		recorder:   recorder,
		logger:     logger,
	}
}

// Analyze runs the full pipeline for one file. Validation,
// anonymization and statistics failures are terminal; an LLM failure
// degrades the report instead of failing it.
func (p *Pipeline) Analyze(ctx context.Context, req Request) (*report.AnalysisReport, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Limits.AnalysisTimeout)
	defer cancel()

	analysisID := core.NewAnalysisID()
	totalStart := time.Now()
	perf := report.PerformanceMetrics{}

	// Stage 1: validation
	stageStart := time.Now()
	ds, err := p.validator.Validate(req.Upload, req.Question)
	perf.ValidationTime = time.Since(stageStart).Seconds()
	if err != nil {
		p.recordOutcome(perf, totalStart, false, true)
		return nil, err
	}
	p.logger.Info("[Pipeline] %s: validated %s (%d rows)", analysisID, req.Upload.FileName, ds.RowCount)

	// Stage 2: anonymization
	stageStart = time.Now()
	anonEnabled := p.cfg.Anonymize.EnabledByDefault
	if req.Anonymize != nil {
		anonEnabled = *req.Anonymize
	}
	anonResult, err := p.anonymizer.Anonymize(ds, anonEnabled)
	perf.AnonymizationTime = time.Since(stageStart).Seconds()
	if err != nil {
		p.recordOutcome(perf, totalStart, false, true)
		return nil, errors.AssemblyError("anonymization failed, refusing to continue with raw data", err)
	}
	safe := anonResult.Dataset

	// Stage 3: statistics
	stageStart = time.Now()
	summary, err := p.summarizer.Summarize(safe)
	perf.StatisticsTime = time.Since(stageStart).Seconds()
	if err != nil {
		p.recordOutcome(perf, totalStart, false, true)
		return nil, errors.AssemblyError("statistical summary failed", err)
	}

	// Stages 4 and 5 run concurrently: the chart builder works from
	// the dataset and never waits on the LLM round trip
	var insight *ai.InsightResult
	var chartResult *charts.Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		insight = p.generator.Generate(gctx, req.Question, req.AnalysisType, summary)
		return nil
	})
	g.Go(func() error {
		chartStart := time.Now()
		defer func() { perf.ChartTime = time.Since(chartStart).Seconds() }()
		if !req.IncludeCharts {
			chartResult = &charts.Result{}
			return nil
		}
		chartResult = p.builder.Build(safe, req.AnalysisType)
		return nil
	})
	waitStart := time.Now()
	_ = g.Wait()
	perf.InsightTime = insight.ResponseTime.Seconds()
	if perf.InsightTime == 0 {
		perf.InsightTime = time.Since(waitStart).Seconds()
	}
	perf.OpenAITokensUsed = insight.TokensUsed
	if p.recorder != nil {
		p.recorder.RecordLLMUsage(analysisID.String(), insight.Usage)
	}

	// Stage 6: assembly
	stageStart = time.Now()
	rep := assemble(assembleInput{
		AnalysisID:   analysisID,
		FileName:     req.Upload.FileName,
		Question:     req.Question,
		AnalysisType: req.AnalysisType,
		Summary:      summary,
		Privacy:      anonResult.Privacy,
		Insight:      insight,
		Charts:       chartResult,
		Dataset:      safe,
	})
	perf.AssemblyTime = time.Since(stageStart).Seconds()
	perf.TotalTime = time.Since(totalStart).Seconds()
	rep.Performance = perf

	p.recordOutcome(perf, totalStart, rep.Degraded, false)
	p.logger.Info("[Pipeline] %s: done in %.2fs (degraded=%v, confidence=%.2f)",
		analysisID, perf.TotalTime, rep.Degraded, rep.ConfidenceScore)
	return rep, nil
}

// AnalyzeBatch fans out one analysis per upload with bounded
// parallelism. A failing file never affects its siblings.
func (p *Pipeline) AnalyzeBatch(ctx context.Context, uploads []validate.Upload, question string, analysisType report.AnalysisType, includeCharts bool, anonymizeData *bool) (*report.BatchReport, error) {
	if len(uploads) == 0 {
		return nil, errors.ValidationError("no files provided")
	}

	batch := &report.BatchReport{
		BatchID:   core.NewBatchID().String(),
		Total:     len(uploads),
		Outcomes:  make([]report.FileOutcome, len(uploads)),
		CreatedAt: core.Now(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Limits.MaxConcurrentFiles)
	for i, upload := range uploads {
		i, upload := i, upload
		g.Go(func() error {
			rep, err := p.Analyze(gctx, Request{
				Upload:        upload,
				Question:      question,
				AnalysisType:  analysisType,
				IncludeCharts: includeCharts,
				Anonymize:     anonymizeData,
			})
			if err != nil {
				batch.Outcomes[i] = report.FileOutcome{
					FileName: upload.FileName,
					Status:   "failed",
					Error:    err.Error(),
				}
				return nil
			}
			batch.Outcomes[i] = report.FileOutcome{
				FileName: upload.FileName,
				Status:   "ok",
				Report:   rep,
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range batch.Outcomes {
		if o.Status == "ok" {
			batch.Successful++
		} else {
			batch.Failed++
		}
	}
	return batch, nil
}

// Validate runs the validation stage only
func (p *Pipeline) Validate(upload validate.Upload, question string) (*report.ValidationPreview, error) {
	return p.validator.Preview(upload, question)
}

func (p *Pipeline) recordOutcome(perf report.PerformanceMetrics, totalStart time.Time, degraded, failed bool) {
	if p.recorder == nil {
		return
	}
	if perf.TotalTime == 0 {
		perf.TotalTime = time.Since(totalStart).Seconds()
	}
	p.recorder.RecordAnalysis(perf, degraded, failed)
}

// String implements fmt.Stringer for log lines
func (r Request) String() string {
	return fmt.Sprintf("%s (%s)", r.Upload.FileName, r.AnalysisType)
}
