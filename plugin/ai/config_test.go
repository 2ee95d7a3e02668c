package ai

import (
	"testing"
)

// TestNewConfigFromEnv_Defaults tests default configuration values.
func TestNewConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("GRANARY_OPENAI_API_KEY", "test-key")

	cfg := NewConfigFromEnv()

	if cfg.Embedding.Provider != "openai" {
		t.Errorf("Expected Embedding.Provider=openai, got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("Expected Embedding.Model=text-embedding-3-small, got %s", cfg.Embedding.Model)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("Expected Embedding.Dimensions=1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.APIKey != "test-key" {
		t.Errorf("Expected Embedding.APIKey=test-key, got %s", cfg.Embedding.APIKey)
	}
	if cfg.Embedding.BatchSize != 64 {
		t.Errorf("Expected Embedding.BatchSize=64, got %d", cfg.Embedding.BatchSize)
	}
	if cfg.Embedding.MaxAttempts != 3 {
		t.Errorf("Expected Embedding.MaxAttempts=3, got %d", cfg.Embedding.MaxAttempts)
	}

	if cfg.LLM.Provider != "openai" {
		t.Errorf("Expected LLM.Provider=openai, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("Expected LLM.Model=gpt-4o-mini, got %s", cfg.LLM.Model)
	}
	if cfg.LLM.MaxTokens != 2048 {
		t.Errorf("Expected LLM.MaxTokens=2048, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Errorf("Expected LLM.APIKey=test-key, got %s", cfg.LLM.APIKey)
	}
}

// TestNewConfigFromEnv_SiliconFlow tests SiliconFlow configuration.
func TestNewConfigFromEnv_SiliconFlow(t *testing.T) {
	t.Setenv("GRANARY_EMBEDDING_PROVIDER", "siliconflow")
	t.Setenv("GRANARY_EMBEDDING_MODEL", "BAAI/bge-m3")
	t.Setenv("GRANARY_EMBEDDING_DIMENSIONS", "1024")
	t.Setenv("GRANARY_SILICONFLOW_API_KEY", "sf-key")
	t.Setenv("GRANARY_LLM_PROVIDER", "deepseek")
	t.Setenv("GRANARY_LLM_MODEL", "deepseek-chat")
	t.Setenv("GRANARY_DEEPSEEK_API_KEY", "deepseek-key")

	cfg := NewConfigFromEnv()

	if cfg.Embedding.Provider != "siliconflow" {
		t.Errorf("Expected Embedding.Provider=siliconflow, got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.APIKey != "sf-key" {
		t.Errorf("Expected Embedding.APIKey=sf-key, got %s", cfg.Embedding.APIKey)
	}
	if cfg.Embedding.BaseURL != "https://api.siliconflow.cn/v1" {
		t.Errorf("Expected SiliconFlow default BaseURL, got %s", cfg.Embedding.BaseURL)
	}
	if cfg.Embedding.Dimensions != 1024 {
		t.Errorf("Expected Embedding.Dimensions=1024, got %d", cfg.Embedding.Dimensions)
	}

	if cfg.LLM.Provider != "deepseek" {
		t.Errorf("Expected LLM.Provider=deepseek, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey != "deepseek-key" {
		t.Errorf("Expected LLM.APIKey=deepseek-key, got %s", cfg.LLM.APIKey)
	}
	if cfg.LLM.BaseURL != "https://api.deepseek.com/v1" {
		t.Errorf("Expected DeepSeek default BaseURL, got %s", cfg.LLM.BaseURL)
	}

	// Reranker piggybacks on the SiliconFlow key.
	if !cfg.Reranker.Enabled {
		t.Errorf("Expected Reranker.Enabled=true, got false")
	}
	if cfg.Reranker.Model != "BAAI/bge-reranker-v2-m3" {
		t.Errorf("Expected default rerank model, got %s", cfg.Reranker.Model)
	}
}

// TestNewConfigFromEnv_Ollama tests Ollama configuration.
func TestNewConfigFromEnv_Ollama(t *testing.T) {
	t.Setenv("GRANARY_EMBEDDING_PROVIDER", "ollama")
	t.Setenv("GRANARY_EMBEDDING_MODEL", "nomic-embed-text")
	t.Setenv("GRANARY_LLM_PROVIDER", "ollama")
	t.Setenv("GRANARY_LLM_MODEL", "llama3")

	cfg := NewConfigFromEnv()

	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("Expected Embedding.Provider=ollama, got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.BaseURL != "http://localhost:11434" {
		t.Errorf("Expected Ollama default BaseURL, got %s", cfg.Embedding.BaseURL)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("Expected LLM.Provider=ollama, got %s", cfg.LLM.Provider)
	}
	if cfg.Reranker.Enabled {
		t.Errorf("Expected Reranker.Enabled=false without SiliconFlow key")
	}
}

// TestValidate tests configuration validation.
func TestValidate(t *testing.T) {
	valid := EmbeddingConfig{
		Provider:    "openai",
		APIKey:      "key",
		Dimensions:  1536,
		BatchSize:   64,
		MaxAttempts: 3,
	}

	tests := []struct {
		name        string
		cfg         *Config
		expectError bool
	}{
		{
			name: "Valid OpenAI config",
			cfg: &Config{
				Embedding: valid,
				LLM:       LLMConfig{Provider: "openai", APIKey: "key"},
			},
			expectError: false,
		},
		{
			name: "Valid Ollama config (no API key required)",
			cfg: &Config{
				Embedding: EmbeddingConfig{
					Provider:    "ollama",
					Dimensions:  768,
					BatchSize:   16,
					MaxAttempts: 3,
				},
				LLM: LLMConfig{Provider: "ollama"},
			},
			expectError: false,
		},
		{
			name: "Missing embedding provider",
			cfg: &Config{
				LLM: LLMConfig{Provider: "openai", APIKey: "key"},
			},
			expectError: true,
		},
		{
			name: "Missing embedding API key for non-Ollama",
			cfg: &Config{
				Embedding: EmbeddingConfig{
					Provider:    "openai",
					Dimensions:  1536,
					BatchSize:   64,
					MaxAttempts: 3,
				},
				LLM: LLMConfig{Provider: "openai", APIKey: "key"},
			},
			expectError: true,
		},
		{
			name: "Zero dimensions",
			cfg: &Config{
				Embedding: EmbeddingConfig{
					Provider:    "openai",
					APIKey:      "key",
					BatchSize:   64,
					MaxAttempts: 3,
				},
				LLM: LLMConfig{Provider: "openai", APIKey: "key"},
			},
			expectError: true,
		},
		{
			name: "Missing LLM provider",
			cfg: &Config{
				Embedding: valid,
			},
			expectError: true,
		},
		{
			name: "Missing LLM API key for non-Ollama",
			cfg: &Config{
				Embedding: valid,
				LLM:       LLMConfig{Provider: "deepseek"},
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.expectError {
				t.Errorf("Validate() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}
