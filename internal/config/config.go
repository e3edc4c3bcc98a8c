package config

import (
	"os"
	"strconv"
	"time"

	"datalens/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	AI        AIConfig
	Limits    LimitConfig
	Anonymize AnonymizeConfig
	Server    ServerConfig
	Database  DatabaseConfig
}

// AIConfig holds AI/LLM related settings
type AIConfig struct {
	OpenAIKey   string
	OpenAIModel string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// LimitConfig holds request and pipeline limits
type LimitConfig struct {
	MaxFileSize        int64
	MaxCharts          int
	QuestionMinLength  int
	QuestionMaxLength  int
	AnalysisTimeout    time.Duration
	MaxConcurrentFiles int
	CostPerCellUSD     float64
}

// AnonymizeConfig holds PII detection and masking settings
type AnonymizeConfig struct {
	EnabledByDefault  bool
	SampleSize        int
	MatchThreshold    float64
	RulesFile         string
	DataRetentionDays int
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	OpsPort string
	GinMode string
}

// DatabaseConfig holds the optional usage-audit database settings
type DatabaseConfig struct {
	URL string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		AI:        loadAIConfig(),
		Limits:    loadLimitConfig(),
		Anonymize: loadAnonymizeConfig(),
		Server:    loadServerConfig(),
		Database:  DatabaseConfig{URL: getEnvOrDefault("DATABASE_URL", "")},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadAIConfig() AIConfig {
	return AIConfig{
		// A missing key is allowed: the pipeline then runs in degraded
		// mode (statistics and charts only).
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
		MaxTokens:   getEnvIntOrDefault("MAX_TOKENS", 4000),
		Temperature: getEnvFloatOrDefault("TEMPERATURE", 0.7),
		Timeout:     getEnvDurationOrDefault("OPENAI_TIMEOUT", 60*time.Second),
	}
}

func loadLimitConfig() LimitConfig {
	return LimitConfig{
		MaxFileSize:        int64(getEnvIntOrDefault("MAX_FILE_SIZE", 50*1024*1024)),
		MaxCharts:          getEnvIntOrDefault("MAX_CHARTS", 4),
		QuestionMinLength:  getEnvIntOrDefault("QUESTION_MIN_LENGTH", 10),
		QuestionMaxLength:  getEnvIntOrDefault("QUESTION_MAX_LENGTH", 1000),
		AnalysisTimeout:    getEnvDurationOrDefault("ANALYSIS_TIMEOUT", 5*time.Minute),
		MaxConcurrentFiles: getEnvIntOrDefault("MAX_CONCURRENT_FILES", 4),
		CostPerCellUSD:     getEnvFloatOrDefault("COST_PER_CELL_USD", 0.0000005),
	}
}

func loadAnonymizeConfig() AnonymizeConfig {
	return AnonymizeConfig{
		EnabledByDefault:  getEnvBoolOrDefault("ANONYMIZE_BY_DEFAULT", true),
		SampleSize:        getEnvIntOrDefault("ANONYMIZE_SAMPLE_SIZE", 100),
		MatchThreshold:    getEnvFloatOrDefault("ANONYMIZE_MATCH_THRESHOLD", 0.30),
		RulesFile:         getEnvOrDefault("PATTERN_RULES_FILE", ""),
		DataRetentionDays: getEnvIntOrDefault("DATA_RETENTION_DAYS", 30),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		OpsPort: getEnvOrDefault("OPS_PORT", "9090"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func validateConfig(config *Config) error {
	if config.Limits.MaxFileSize <= 0 {
		return errors.ConfigInvalid("MAX_FILE_SIZE must be positive")
	}
	if config.Limits.QuestionMinLength < 1 || config.Limits.QuestionMaxLength <= config.Limits.QuestionMinLength {
		return errors.ConfigInvalid("question length bounds are inconsistent")
	}
	if config.Limits.MaxCharts < 0 {
		return errors.ConfigInvalid("MAX_CHARTS cannot be negative")
	}
	if config.Anonymize.MatchThreshold <= 0 || config.Anonymize.MatchThreshold > 1 {
		return errors.ConfigInvalid("ANONYMIZE_MATCH_THRESHOLD must be in (0,1]")
	}
	if config.Anonymize.SampleSize <= 0 {
		return errors.ConfigInvalid("ANONYMIZE_SAMPLE_SIZE must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
