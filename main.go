package main

import (
	"context"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"datalens/adapters/llm"
	"datalens/adapters/postgres"
	"datalens/ai"
	"datalens/internal/anonymize"
	"datalens/internal/api"
	"datalens/internal/charts"
	"datalens/internal/config"
	"datalens/internal/logx"
	"datalens/internal/pipeline"
	"datalens/internal/summarize"
	"datalens/internal/usage"
	"datalens/internal/validate"
	"datalens/ports"
)

func main() {
	// Load .env file if present (ignore errors in production)
	if err := godotenv.Load(); err != nil {
		log.Printf("[Main] no .env file found, using environment variables")
	}

	logger := logx.NewDefaultLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Main] invalid configuration: %v", err)
	}

	// Optional usage audit database
	var repo usage.Repository
	if cfg.Database.URL != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("[Main] failed to connect to database: %v", err)
		}
		pgRepo := postgres.NewUsageRepository(db)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			cancel()
			log.Fatalf("[Main] failed to prepare usage schema: %v", err)
		}
		cancel()
		repo = pgRepo
		logger.Info("[Main] usage audit enabled")
	}
	recorder := usage.NewRecorder(repo, logger)

	// Without an API key the pipeline still runs, producing degraded
	// reports with statistics and charts only
	var client ports.LLMClient
	if cfg.AI.OpenAIKey != "" {
		openai, err := llm.NewOpenAIClient(cfg.AI.OpenAIKey, cfg.AI.Timeout, cfg.AI.Temperature)
		if err != nil {
			log.Fatalf("[Main] failed to create LLM client: %v", err)
		}
		client = openai
	} else {
		logger.Warn("[Main] OPENAI_API_KEY not set, AI insights disabled")
	}

	anonymizer, err := anonymize.NewAnonymizer(cfg.Anonymize, logger)
	if err != nil {
		log.Fatalf("[Main] failed to initialize anonymizer: %v", err)
	}

	p := pipeline.New(
		cfg,
		validate.NewValidator(cfg, logger),
		anonymizer,
		summarize.NewSummarizer(logger),
		ai.NewGenerator(client, cfg.AI.OpenAIModel, cfg.AI.MaxTokens, logger),
		charts.NewBuilder(cfg.Limits.MaxCharts, logger),
		recorder,
		logger,
	)

	ops := api.NewOpsServer(recorder, logger)
	go func() {
		if err := ops.Run(cfg.Server.OpsPort); err != nil {
			log.Fatalf("[Main] ops server failed: %v", err)
		}
	}()

	server := api.NewServer(cfg, p, logger)
	if err := server.Run(); err != nil {
		log.Fatalf("[Main] server failed: %v", err)
	}
}
