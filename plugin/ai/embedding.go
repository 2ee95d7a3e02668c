package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates a vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts, preserving input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int
}

// UsageReporter receives provider token usage for accounting.
type UsageReporter interface {
	ReportEmbedding(model string, promptTokens int, latency time.Duration)
	ReportGeneration(model string, promptTokens, completionTokens int, latency time.Duration)
}

type embeddingService struct {
	client      *openai.Client
	model       string
	dimensions  int
	batchSize   int
	maxAttempts int
	baseDelay   time.Duration
	limiter     *rate.Limiter
	reporter    UsageReporter
}

// NewEmbeddingService creates a new EmbeddingService. The reporter may be nil.
func NewEmbeddingService(cfg *EmbeddingConfig, reporter UsageReporter) (EmbeddingService, error) {
	var clientConfig openai.ClientConfig

	switch cfg.Provider {
	case "siliconflow", "openai":
		// SiliconFlow is compatible with the OpenAI API.
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}

	case "ollama":
		clientConfig = openai.DefaultConfig("ollama")
		clientConfig.BaseURL = cfg.BaseURL + "/v1"

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	client := openai.NewClientWithConfig(clientConfig)

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	return &embeddingService{
		client:      client,
		model:       cfg.Model,
		dimensions:  cfg.Dimensions,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   baseDelay,
		limiter:     limiter,
		reporter:    reporter,
	}, nil
}

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}

func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	batchSize := s.batchSize
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := s.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// embedOnce sends a single provider request with retry and validates the result.
func (s *embeddingService) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
	}

	var resp openai.EmbeddingResponse
	started := time.Now()
	err := doWithRetry(ctx, s.maxAttempts, s.baseDelay, func() error {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var callErr error
		resp, callErr = s.client.CreateEmbeddings(ctx, req)
		return callErr
	})
	providerMetrics.RecordCall(CallEmbedding, time.Since(started), err)
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed after %d attempts: %w", s.maxAttempts, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		if len(data.Embedding) != s.dimensions {
			return nil, fmt.Errorf("embedding vector %d has %d dimensions, expected %d", i, len(data.Embedding), s.dimensions)
		}
		vectors[i] = data.Embedding
	}

	if s.reporter != nil {
		s.reporter.ReportEmbedding(s.model, resp.Usage.PromptTokens, time.Since(started))
	}

	return vectors, nil
}

func (s *embeddingService) Dimensions() int {
	return s.dimensions
}
