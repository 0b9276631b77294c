// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	OpenAI     OpenAIConfig
	OpenSearch OpenSearchConfig

	// OfferMatrixPath points at the JSON rule table used by the
	// recommendation engine. The file is watched and hot-reloaded.
	OfferMatrixPath string

	// IntentThreshold is the minimum KNN similarity score accepted as an
	// intent candidate before LLM confirmation.
	IntentThreshold float64

	// RatePerMinute caps chat requests per client IP.
	RatePerMinute int
}

// OpenAIConfig configures the LLM/embeddings collaborator.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	Timeout        time.Duration
}

// OpenSearchConfig configures the vector/document search collaborator.
type OpenSearchConfig struct {
	Host               string
	User               string
	Pass               string
	IntentIndex        string
	ClarificationIndex string
	OfferIndex         string
	Timeout            time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		DBPath:          getEnv("DB_PATH", "./data/smartshopper.db"),
		OfferMatrixPath: getEnv("OFFER_MATRIX_PATH", "./data/offer_matrix.json"),
		IntentThreshold: getEnvFloat("INTENT_THRESHOLD", 0.5),
		RatePerMinute:   getEnvInt("CHAT_RATE_PER_MINUTE", 30),
		OpenAI: OpenAIConfig{
			APIKey:         os.Getenv("OPENAI_API_KEY"),
			BaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
			ChatModel:      getEnv("OPENAI_CHAT_MODEL", "gpt-3.5-turbo"),
			EmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-ada-002"),
			Timeout:        getEnvDuration("OPENAI_TIMEOUT", 30*time.Second),
		},
		OpenSearch: OpenSearchConfig{
			Host:               os.Getenv("OPENSEARCH_HOST"),
			User:               os.Getenv("OPENSEARCH_USER"),
			Pass:               os.Getenv("OPENSEARCH_PASS"),
			IntentIndex:        getEnv("OPENSEARCH_INTENT_INDEX", "smartshopper-index"),
			ClarificationIndex: getEnv("OPENSEARCH_CLARIFICATION_INDEX", "clarifications"),
			OfferIndex:         getEnv("OPENSEARCH_OFFER_INDEX", "btl-offers"),
			Timeout:            getEnvDuration("OPENSEARCH_TIMEOUT", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
// Missing collaborator credentials are fatal at startup, never mid-conversation.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.OfferMatrixPath == "" {
		return fmt.Errorf("OFFER_MATRIX_PATH cannot be empty")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.OpenSearch.Host == "" {
		return fmt.Errorf("OPENSEARCH_HOST is required")
	}
	if c.OpenSearch.User == "" || c.OpenSearch.Pass == "" {
		return fmt.Errorf("OPENSEARCH_USER and OPENSEARCH_PASS are required")
	}
	if c.IntentThreshold < 0 || c.IntentThreshold > 1 {
		return fmt.Errorf("INTENT_THRESHOLD must be within [0, 1]")
	}
	if c.RatePerMinute <= 0 {
		return fmt.Errorf("CHAT_RATE_PER_MINUTE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
