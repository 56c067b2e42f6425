package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// LLM mode selects which completion backend the pipeline talks to.
const (
	LLMModeExternal = "external"
	LLMModeLocal    = "local"
)

// Config holds the application's configuration
type Config struct {
	WebPort                 string        `mapstructure:"WEB_PORT"`
	LogLevel                string        `mapstructure:"LOG_LEVEL"`
	LLMMode                 string        `mapstructure:"LLM_MODE"`
	ExternalAPIKey          string        `mapstructure:"EXTERNAL_API_KEY"`
	ExternalBaseURL         string        `mapstructure:"EXTERNAL_BASE_URL"`
	ExternalModel           string        `mapstructure:"EXTERNAL_MODEL"`
	LocalLLMHost            string        `mapstructure:"LOCAL_LLM_HOST"`
	LocalModel              string        `mapstructure:"LOCAL_MODEL"`
	LLMRequestTimeout       time.Duration `mapstructure:"LLM_REQUEST_TIMEOUT"`
	LocalLLMTimeout         time.Duration `mapstructure:"LOCAL_LLM_TIMEOUT"`
	MaxRetries              int           `mapstructure:"MAX_RETRIES"`
	RetryDelaySeconds       time.Duration `mapstructure:"RETRY_DELAY_SECONDS"`
	LLMBackoffMaxSeconds    time.Duration `mapstructure:"LLM_BACKOFF_MAX_SECONDS"`
	LLMBackoffJitterRatio   float64       `mapstructure:"LLM_BACKOFF_JITTER_RATIO"`
	RetrievalTopK           int           `mapstructure:"RETRIEVAL_TOP_K"`
	PagesPerChunk           int           `mapstructure:"PAGES_PER_CHUNK"`
	OverlapPages            int           `mapstructure:"OVERLAP_PAGES"`
	MaxUploadSizeMB         int64         `mapstructure:"MAX_UPLOAD_SIZE_MB"`
	MaxConcurrentJobs       int           `mapstructure:"MAX_CONCURRENT_JOBS"`
	JobTimeoutSeconds       time.Duration `mapstructure:"JOB_TIMEOUT_SECONDS"`
	ChatContextCacheSize    int           `mapstructure:"CHAT_CONTEXT_CACHE_SIZE"`
	CleanupEnabled          bool          `mapstructure:"CLEANUP_ENABLED"`
	CleanupInterval         time.Duration `mapstructure:"CLEANUP_INTERVAL"`
	JobRetentionAge         time.Duration `mapstructure:"JOB_RETENTION_AGE"`
	RateLimitUploadsPerMin  int           `mapstructure:"RATE_LIMIT_UPLOADS_PER_MIN"`
	RateLimitMessagesPerMin int           `mapstructure:"RATE_LIMIT_MESSAGES_PER_MIN"`
	RateLimitBurstSize      int           `mapstructure:"RATE_LIMIT_BURST_SIZE"`
}

func Load(logger *zap.Logger) *Config {
	var config Config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")        // For running locally
	viper.AddConfigPath("../")      // For running from docker subdir
	viper.AddConfigPath("./config") // Common config folder
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("WEB_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LLM_MODE", LLMModeExternal)
	viper.SetDefault("EXTERNAL_API_KEY", "")
	viper.SetDefault("EXTERNAL_BASE_URL", "")
	viper.SetDefault("EXTERNAL_MODEL", "gpt-4")
	viper.SetDefault("LOCAL_LLM_HOST", "http://localhost:11434")
	viper.SetDefault("LOCAL_MODEL", "llama3")
	viper.SetDefault("LLM_REQUEST_TIMEOUT", 60)
	viper.SetDefault("LOCAL_LLM_TIMEOUT", 120)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("RETRY_DELAY_SECONDS", 2)
	viper.SetDefault("LLM_BACKOFF_MAX_SECONDS", 30)
	viper.SetDefault("LLM_BACKOFF_JITTER_RATIO", 0.1)
	viper.SetDefault("RETRIEVAL_TOP_K", 5)
	viper.SetDefault("PAGES_PER_CHUNK", 1)
	viper.SetDefault("OVERLAP_PAGES", 0)
	viper.SetDefault("MAX_UPLOAD_SIZE_MB", 10)
	viper.SetDefault("MAX_CONCURRENT_JOBS", 5)
	viper.SetDefault("JOB_TIMEOUT_SECONDS", 600)
	viper.SetDefault("CHAT_CONTEXT_CACHE_SIZE", 64)
	viper.SetDefault("CLEANUP_ENABLED", true)
	viper.SetDefault("CLEANUP_INTERVAL", 1)
	viper.SetDefault("JOB_RETENTION_AGE", 24)
	viper.SetDefault("RATE_LIMIT_UPLOADS_PER_MIN", 6)
	viper.SetDefault("RATE_LIMIT_MESSAGES_PER_MIN", 20)
	viper.SetDefault("RATE_LIMIT_BURST_SIZE", 5)

	if err := viper.ReadInConfig(); err != nil {
		if logger != nil {
			logger.Warn("Could not read config file, using defaults/env vars", zap.Error(err))
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		// Config unmarshaling is critical - fail fast during bootstrap
		if logger != nil {
			logger.Fatal("Unable to decode config into struct", zap.Error(err))
		} else {
			// Fallback if logger not available (should not happen in practice)
			fmt.Fprintf(os.Stderr, "FATAL: Unable to decode config into struct: %v\n", err)
			os.Exit(1)
		}
	}

	// Normalize LLM mode, unknown values fall back to external.
	config.LLMMode = strings.ToLower(strings.TrimSpace(config.LLMMode))
	if config.LLMMode != LLMModeExternal && config.LLMMode != LLMModeLocal {
		if logger != nil {
			logger.Warn("Unknown LLM_MODE, defaulting to external", zap.String("llm_mode", config.LLMMode))
		}
		config.LLMMode = LLMModeExternal
	}

	// Convert seconds/hours to proper time.Duration
	config.RetryDelaySeconds = config.RetryDelaySeconds * time.Second
	config.LLMRequestTimeout = config.LLMRequestTimeout * time.Second
	config.LocalLLMTimeout = config.LocalLLMTimeout * time.Second
	config.LLMBackoffMaxSeconds = config.LLMBackoffMaxSeconds * time.Second
	config.JobTimeoutSeconds = config.JobTimeoutSeconds * time.Second
	config.CleanupInterval = config.CleanupInterval * time.Hour
	config.JobRetentionAge = config.JobRetentionAge * time.Hour

	return &config
}

// ModelName returns the model identifier for the active LLM mode.
func (c *Config) ModelName() string {
	if c.LLMMode == LLMModeLocal {
		return c.LocalModel
	}
	return c.ExternalModel
}
