package ai

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config represents AI provider configuration.
type Config struct {
	Embedding EmbeddingConfig
	Reranker  RerankerConfig
	LLM       LLMConfig
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string // openai, siliconflow, ollama
	Model      string // text-embedding-3-small
	Dimensions int    // 1536
	APIKey     string
	BaseURL    string

	// BatchSize caps how many texts go into a single provider request.
	BatchSize int
	// MaxAttempts bounds how often a failed provider call is retried.
	MaxAttempts int
	// RetryBaseDelay is the backoff unit, doubled on each retry.
	RetryBaseDelay time.Duration
	// RateLimit caps provider requests per second, 0 disables limiting.
	RateLimit float64
}

// RerankerConfig represents reranker configuration.
type RerankerConfig struct {
	Enabled  bool
	Provider string // siliconflow
	Model    string // BAAI/bge-reranker-v2-m3
	APIKey   string
	BaseURL  string
}

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Provider    string  // openai, deepseek, ollama
	Model       string  // gpt-4o-mini
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.7
}

// NewConfigFromEnv creates AI config from GRANARY_* environment variables.
func NewConfigFromEnv() *Config {
	cfg := &Config{}

	cfg.Embedding = EmbeddingConfig{
		Provider:       getEnv("GRANARY_EMBEDDING_PROVIDER", "openai"),
		Model:          getEnv("GRANARY_EMBEDDING_MODEL", "text-embedding-3-small"),
		Dimensions:     getEnvInt("GRANARY_EMBEDDING_DIMENSIONS", 1536),
		BatchSize:      getEnvInt("GRANARY_EMBEDDING_BATCH_SIZE", 64),
		MaxAttempts:    getEnvInt("GRANARY_EMBEDDING_MAX_ATTEMPTS", 3),
		RetryBaseDelay: time.Second,
		RateLimit:      getEnvFloat("GRANARY_EMBEDDING_RATE_LIMIT", 5),
	}

	switch cfg.Embedding.Provider {
	case "siliconflow":
		cfg.Embedding.APIKey = os.Getenv("GRANARY_SILICONFLOW_API_KEY")
		cfg.Embedding.BaseURL = getEnv("GRANARY_SILICONFLOW_BASE_URL", "https://api.siliconflow.cn/v1")
	case "openai":
		cfg.Embedding.APIKey = os.Getenv("GRANARY_OPENAI_API_KEY")
		cfg.Embedding.BaseURL = os.Getenv("GRANARY_OPENAI_BASE_URL")
	case "ollama":
		cfg.Embedding.BaseURL = getEnv("GRANARY_OLLAMA_BASE_URL", "http://localhost:11434")
	}

	cfg.Reranker = RerankerConfig{
		Enabled:  os.Getenv("GRANARY_SILICONFLOW_API_KEY") != "",
		Provider: "siliconflow",
		Model:    getEnv("GRANARY_RERANK_MODEL", "BAAI/bge-reranker-v2-m3"),
		APIKey:   os.Getenv("GRANARY_SILICONFLOW_API_KEY"),
		BaseURL:  getEnv("GRANARY_SILICONFLOW_BASE_URL", "https://api.siliconflow.cn/v1"),
	}

	cfg.LLM = LLMConfig{
		Provider:    getEnv("GRANARY_LLM_PROVIDER", "openai"),
		Model:       getEnv("GRANARY_LLM_MODEL", "gpt-4o-mini"),
		MaxTokens:   getEnvInt("GRANARY_LLM_MAX_TOKENS", 2048),
		Temperature: float32(getEnvFloat("GRANARY_LLM_TEMPERATURE", 0.7)),
	}

	switch cfg.LLM.Provider {
	case "deepseek":
		cfg.LLM.APIKey = os.Getenv("GRANARY_DEEPSEEK_API_KEY")
		cfg.LLM.BaseURL = getEnv("GRANARY_DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1")
	case "openai":
		cfg.LLM.APIKey = os.Getenv("GRANARY_OPENAI_API_KEY")
		cfg.LLM.BaseURL = os.Getenv("GRANARY_OPENAI_BASE_URL")
	case "ollama":
		cfg.LLM.BaseURL = getEnv("GRANARY_OLLAMA_BASE_URL", "http://localhost:11434")
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Embedding.Provider == "" {
		return errors.New("embedding provider is required")
	}
	if c.Embedding.Provider != "ollama" && c.Embedding.APIKey == "" {
		return errors.New("embedding API key is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return errors.New("embedding dimensions must be positive")
	}
	if c.Embedding.BatchSize <= 0 {
		return errors.New("embedding batch size must be positive")
	}
	if c.Embedding.MaxAttempts <= 0 {
		return errors.New("embedding max attempts must be positive")
	}

	if c.LLM.Provider == "" {
		return errors.New("LLM provider is required")
	}
	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		return errors.New("LLM API key is required")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
