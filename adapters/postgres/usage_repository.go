package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"datalens/internal/usage"
)

const usageSchema = `
CREATE TABLE IF NOT EXISTS llm_usage (
	id BIGSERIAL PRIMARY KEY,
	analysis_id TEXT NOT NULL,
	model TEXT NOT NULL,
	provider TEXT NOT NULL,
	prompt_tokens INT NOT NULL,
	completion_tokens INT NOT NULL,
	total_tokens INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

// UsageRepository persists LLM usage records to postgres
type UsageRepository struct {
	db *sqlx.DB
}

// NewUsageRepository creates a repository on an open connection
func NewUsageRepository(db *sqlx.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// EnsureSchema creates the usage table when it does not exist
func (r *UsageRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, usageSchema); err != nil {
		return fmt.Errorf("failed to create llm_usage table: %w", err)
	}
	return nil
}

// InsertUsage stores one usage record
func (r *UsageRepository) InsertUsage(ctx context.Context, rec usage.Record) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO llm_usage (analysis_id, model, provider, prompt_tokens, completion_tokens, total_tokens, created_at)
		VALUES (:analysis_id, :model, :provider, :prompt_tokens, :completion_tokens, :total_tokens, :created_at)`,
		rec)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}
