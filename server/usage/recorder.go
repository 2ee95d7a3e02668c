// Package usage tracks provider token consumption. Every embedding and
// generation call lands in an in-memory aggregate and, best effort, in the
// usage_record table; a per-model price table turns tokens into an
// estimated spend.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/granary-ai/granary/plugin/ai"
	"github.com/granary-ai/granary/store"
)

// persistTimeout bounds the best-effort usage insert.
const persistTimeout = 5 * time.Second

// modelPrice is USD per one million tokens.
type modelPrice struct {
	Prompt     float64
	Completion float64
}

// modelPrices lists the providers the engine is commonly configured with.
// Unknown models fall back to defaultPrice.
var modelPrices = map[string]modelPrice{
	"text-embedding-3-small": {Prompt: 0.02},
	"text-embedding-3-large": {Prompt: 0.13},
	"BAAI/bge-m3":            {Prompt: 0.0001},
	"nomic-embed-text":       {},
	"deepseek-chat":          {Prompt: 0.14, Completion: 0.28},
	"gpt-4o-mini":            {Prompt: 0.15, Completion: 0.60},
	"gpt-4o":                 {Prompt: 2.50, Completion: 10.00},
}

var defaultPrice = modelPrice{Prompt: 0.10, Completion: 0.30}

// EstimateCost converts token counts into an estimated USD spend.
func EstimateCost(model string, promptTokens, completionTokens int) float64 {
	price, ok := modelPrices[model]
	if !ok {
		price = defaultPrice
	}
	return float64(promptTokens)*price.Prompt/1e6 + float64(completionTokens)*price.Completion/1e6
}

// Totals aggregates one usage kind.
type Totals struct {
	Calls            int64
	PromptTokens     int64
	CompletionTokens int64
	TotalLatencyMs   int64
	EstimatedCost    float64
}

// Summary is a point-in-time view of everything recorded since startup.
type Summary struct {
	Embedding  Totals
	Generation Totals
}

// TotalCost is the combined estimated spend.
func (s Summary) TotalCost() float64 {
	return s.Embedding.EstimatedCost + s.Generation.EstimatedCost
}

// Recorder implements ai.UsageReporter. The store may be nil, in which case
// only the in-memory aggregates are kept.
type Recorder struct {
	store  *store.Store
	logger *slog.Logger

	mu     sync.RWMutex
	totals map[store.UsageKind]*Totals
}

var _ ai.UsageReporter = (*Recorder)(nil)

// NewRecorder creates a usage recorder.
func NewRecorder(st *store.Store) *Recorder {
	return &Recorder{
		store:  st,
		logger: slog.Default().With("component", "usage"),
		totals: make(map[store.UsageKind]*Totals),
	}
}

// ReportEmbedding records one embedding call.
func (r *Recorder) ReportEmbedding(model string, promptTokens int, latency time.Duration) {
	r.record(store.UsageKindEmbedding, model, promptTokens, 0, latency)
}

// ReportGeneration records one generation call.
func (r *Recorder) ReportGeneration(model string, promptTokens, completionTokens int, latency time.Duration) {
	r.record(store.UsageKindGeneration, model, promptTokens, completionTokens, latency)
}

// Summary returns the aggregates recorded since startup.
func (r *Recorder) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := Summary{}
	if t, ok := r.totals[store.UsageKindEmbedding]; ok {
		summary.Embedding = *t
	}
	if t, ok := r.totals[store.UsageKindGeneration]; ok {
		summary.Generation = *t
	}
	return summary
}

func (r *Recorder) record(kind store.UsageKind, model string, promptTokens, completionTokens int, latency time.Duration) {
	cost := EstimateCost(model, promptTokens, completionTokens)

	r.mu.Lock()
	totals, ok := r.totals[kind]
	if !ok {
		totals = &Totals{}
		r.totals[kind] = totals
	}
	totals.Calls++
	totals.PromptTokens += int64(promptTokens)
	totals.CompletionTokens += int64(completionTokens)
	totals.TotalLatencyMs += latency.Milliseconds()
	totals.EstimatedCost += cost
	r.mu.Unlock()

	if r.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if _, err := r.store.CreateUsageRecord(ctx, &store.UsageRecord{
		CreatedTs:        time.Now().Unix(),
		Kind:             kind,
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		LatencyMs:        latency.Milliseconds(),
	}); err != nil {
		// Usage accounting never fails the call that produced it.
		r.logger.Warn("failed to persist usage record",
			"kind", string(kind),
			"model", model,
			"error", err)
	}
}
