package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"datalens/adapters/llm"
	"datalens/ai"
	"datalens/domain/report"
	"datalens/internal/anonymize"
	"datalens/internal/charts"
	"datalens/internal/config"
	"datalens/internal/logx"
	"datalens/internal/pipeline"
	"datalens/internal/summarize"
	"datalens/internal/usage"
	"datalens/internal/validate"
	"datalens/ports"
)

var (
	flagQuestion  string
	flagType      string
	flagCharts    bool
	flagAnonymize bool
)

func main() {
	root := &cobra.Command{
		Use:   "datalens",
		Short: "Analyze CSV and XLSX files from the command line",
		Long: `datalens runs the analysis pipeline against a local file without
starting the HTTP server. Results are printed as JSON.`,
		SilenceUsage: true,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Run a full analysis on a local file",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().StringVarP(&flagQuestion, "question", "q", "", "question to answer (required)")
	analyzeCmd.Flags().StringVarP(&flagType, "type", "t", "general", "analysis type: general, trends, correlations, predictions, statistical")
	analyzeCmd.Flags().BoolVar(&flagCharts, "charts", true, "include chart specifications")
	analyzeCmd.Flags().BoolVar(&flagAnonymize, "anonymize", true, "anonymize sensitive data before analysis")
	analyzeCmd.MarkFlagRequired("question")

	validateCmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a file and estimate analysis cost without running it",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
	validateCmd.Flags().StringVarP(&flagQuestion, "question", "q", "", "question to answer (required)")
	validateCmd.MarkFlagRequired("question")

	root.AddCommand(analyzeCmd, validateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}

	upload, err := readFile(args[0])
	if err != nil {
		return err
	}
	analysisType, err := report.ParseAnalysisType(flagType)
	if err != nil {
		return err
	}

	anonymizeData := flagAnonymize
	rep, err := p.Analyze(context.Background(), pipeline.Request{
		Upload:        upload,
		Question:      flagQuestion,
		AnalysisType:  analysisType,
		IncludeCharts: flagCharts,
		Anonymize:     &anonymizeData,
	})
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func runValidate(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline()
	if err != nil {
		return err
	}
	upload, err := readFile(args[0])
	if err != nil {
		return err
	}
	preview, err := p.Validate(upload, flagQuestion)
	if err != nil {
		return err
	}
	return printJSON(preview)
}

func buildPipeline() (*pipeline.Pipeline, error) {
	godotenv.Load()
	logger := logx.NewDefaultLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var client ports.LLMClient
	if cfg.AI.OpenAIKey != "" {
		openai, err := llm.NewOpenAIClient(cfg.AI.OpenAIKey, cfg.AI.Timeout, cfg.AI.Temperature)
		if err != nil {
			return nil, err
		}
		client = openai
	}

	anonymizer, err := anonymize.NewAnonymizer(cfg.Anonymize, logger)
	if err != nil {
		return nil, err
	}

	return pipeline.New(
		cfg,
		validate.NewValidator(cfg, logger),
		anonymizer,
		summarize.NewSummarizer(logger),
		ai.NewGenerator(client, cfg.AI.OpenAIModel, cfg.AI.MaxTokens, logger),
		charts.NewBuilder(cfg.Limits.MaxCharts, logger),
		usage.NewRecorder(nil, logger),
		logger,
	), nil
}

func readFile(path string) (validate.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return validate.Upload{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return validate.Upload{
		FileName: filepath.Base(path),
		Data:     data,
	}, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
