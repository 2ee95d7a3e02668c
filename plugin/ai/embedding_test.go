package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// TestNewEmbeddingService tests service creation.
func TestNewEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *EmbeddingConfig
		expectError bool
	}{
		{
			name: "SiliconFlow config",
			cfg: &EmbeddingConfig{
				Provider:   "siliconflow",
				Model:      "BAAI/bge-m3",
				Dimensions: 1024,
				APIKey:     "test-key",
				BaseURL:    "https://api.siliconflow.cn/v1",
			},
			expectError: false,
		},
		{
			name: "OpenAI config",
			cfg: &EmbeddingConfig{
				Provider:   "openai",
				Model:      "text-embedding-3-small",
				Dimensions: 1536,
				APIKey:     "test-key",
			},
			expectError: false,
		},
		{
			name: "Ollama config",
			cfg: &EmbeddingConfig{
				Provider:   "ollama",
				Model:      "nomic-embed-text",
				Dimensions: 768,
				BaseURL:    "http://localhost:11434",
			},
			expectError: false,
		},
		{
			name: "Unsupported provider",
			cfg: &EmbeddingConfig{
				Provider: "unsupported",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEmbeddingService(tt.cfg, nil)
			if (err != nil) != tt.expectError {
				t.Errorf("NewEmbeddingService() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}

// TestEmbeddingService_Dimensions tests Dimensions method.
func TestEmbeddingService_Dimensions(t *testing.T) {
	cfg := &EmbeddingConfig{
		Provider:   "openai",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		APIKey:     "test-key",
	}

	service, err := NewEmbeddingService(cfg, nil)
	if err != nil {
		t.Fatalf("NewEmbeddingService() error = %v", err)
	}

	if service.Dimensions() != 1536 {
		t.Errorf("Dimensions() = %d, want 1536", service.Dimensions())
	}
}

// fakeEmbeddingServer serves the OpenAI embeddings wire format. Each input
// text gets a distinct vector so ordering bugs surface.
type fakeEmbeddingServer struct {
	mu         sync.Mutex
	requests   int
	failBefore int // fail requests until this many have been made
	dimensions int
	dropOne    bool // return one vector fewer than requested
}

func (f *fakeEmbeddingServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests++
		n := f.requests
		f.mu.Unlock()

		if n <= f.failBefore {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}

		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode embedding request: %v", err)
		}

		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, 0, len(req.Input))
		for i := range req.Input {
			if f.dropOne && i == len(req.Input)-1 {
				break
			}
			vec := make([]float32, f.dimensions)
			for j := range vec {
				vec[j] = float32(i + 1)
			}
			data = append(data, item{Object: "embedding", Index: i, Embedding: vec})
		}

		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  "test-model",
			"usage":  map[string]int{"prompt_tokens": 7, "total_tokens": 7},
		})
		if err != nil {
			t.Fatalf("encode embedding response: %v", err)
		}
	}
}

func (f *fakeEmbeddingServer) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func newTestEmbeddingService(t *testing.T, fake *fakeEmbeddingServer, batchSize int, reporter UsageReporter) EmbeddingService {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	service, err := NewEmbeddingService(&EmbeddingConfig{
		Provider:       "openai",
		Model:          "test-model",
		Dimensions:     fake.dimensions,
		APIKey:         "test-key",
		BaseURL:        srv.URL + "/v1",
		BatchSize:      batchSize,
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
	}, reporter)
	if err != nil {
		t.Fatalf("NewEmbeddingService() error = %v", err)
	}
	return service
}

// TestEmbeddingService_EmbedBatch_Order tests that vectors come back in input order.
func TestEmbeddingService_EmbedBatch_Order(t *testing.T) {
	fake := &fakeEmbeddingServer{dimensions: 4}
	service := newTestEmbeddingService(t, fake, 64, nil)

	vectors, err := service.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("EmbedBatch() returned %d vectors, want 3", len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != 4 {
			t.Errorf("Vector %d has length %d, want 4", i, len(vec))
		}
		if vec[0] != float32(i+1) {
			t.Errorf("Vector %d out of order: first element = %f", i, vec[0])
		}
	}
}

// TestEmbeddingService_EmbedBatch_Splitting tests batch size splitting.
func TestEmbeddingService_EmbedBatch_Splitting(t *testing.T) {
	fake := &fakeEmbeddingServer{dimensions: 4}
	service := newTestEmbeddingService(t, fake, 2, nil)

	texts := []string{"one", "two", "three", "four", "five"}
	vectors, err := service.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vectors) != 5 {
		t.Errorf("EmbedBatch() returned %d vectors, want 5", len(vectors))
	}
	if got := fake.requestCount(); got != 3 {
		t.Errorf("Expected 3 provider requests for 5 texts at batch size 2, got %d", got)
	}
}

// TestEmbeddingService_EmbedBatch_Empty tests empty batch input.
func TestEmbeddingService_EmbedBatch_Empty(t *testing.T) {
	fake := &fakeEmbeddingServer{dimensions: 4}
	service := newTestEmbeddingService(t, fake, 64, nil)

	if _, err := service.EmbedBatch(context.Background(), nil); err == nil {
		t.Error("Expected error for empty batch, got nil")
	}
	if got := fake.requestCount(); got != 0 {
		t.Errorf("Expected no provider requests for empty batch, got %d", got)
	}
}

// TestEmbeddingService_RetryRecovers tests recovery from transient provider failures.
func TestEmbeddingService_RetryRecovers(t *testing.T) {
	fake := &fakeEmbeddingServer{dimensions: 4, failBefore: 2}
	service := newTestEmbeddingService(t, fake, 64, nil)

	vector, err := service.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vector) != 4 {
		t.Errorf("Embed() returned vector of length %d, want 4", len(vector))
	}
	if got := fake.requestCount(); got != 3 {
		t.Errorf("Expected 3 provider requests, got %d", got)
	}
}

// TestEmbeddingService_RetryExhausted tests that persistent failures surface.
func TestEmbeddingService_RetryExhausted(t *testing.T) {
	fake := &fakeEmbeddingServer{dimensions: 4, failBefore: 100}
	service := newTestEmbeddingService(t, fake, 64, nil)

	if _, err := service.Embed(context.Background(), "hello"); err == nil {
		t.Error("Expected error after exhausting retries, got nil")
	}
	if got := fake.requestCount(); got != 3 {
		t.Errorf("Expected 3 provider requests, got %d", got)
	}
}

// TestEmbeddingService_CountMismatch tests validation of the response vector count.
func TestEmbeddingService_CountMismatch(t *testing.T) {
	fake := &fakeEmbeddingServer{dimensions: 4, dropOne: true}
	service := newTestEmbeddingService(t, fake, 64, nil)

	if _, err := service.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("Expected error for vector count mismatch, got nil")
	}
}

// recordingReporter captures usage reports for assertions.
type recordingReporter struct {
	mu               sync.Mutex
	embeddingTokens  int
	embeddingCalls   int
	generationCalls  int
	generationTokens int
}

func (r *recordingReporter) ReportEmbedding(model string, promptTokens int, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddingCalls++
	r.embeddingTokens += promptTokens
}

func (r *recordingReporter) ReportGeneration(model string, promptTokens, completionTokens int, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generationCalls++
	r.generationTokens += promptTokens + completionTokens
}

// TestEmbeddingService_UsageReported tests that token usage reaches the reporter.
func TestEmbeddingService_UsageReported(t *testing.T) {
	fake := &fakeEmbeddingServer{dimensions: 4}
	reporter := &recordingReporter{}
	service := newTestEmbeddingService(t, fake, 2, reporter)

	if _, err := service.EmbedBatch(context.Background(), []string{"a", "b", "c"}); err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	if reporter.embeddingCalls != 2 {
		t.Errorf("Expected 2 usage reports, got %d", reporter.embeddingCalls)
	}
	if reporter.embeddingTokens != 14 {
		t.Errorf("Expected 14 prompt tokens reported, got %d", reporter.embeddingTokens)
	}
}
