// Package stats aggregates corpus, cache, provider and usage statistics
// into a single snapshot for the CLI and the long-running server.
package stats

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/granary-ai/granary/plugin/ai"
	"github.com/granary-ai/granary/server/internal/observability"
	"github.com/granary-ai/granary/server/usage"
	"github.com/granary-ai/granary/store"
)

// CacheSizer reports how many answers are currently cached.
type CacheSizer interface {
	Size() int
}

// Indexer reports the size and shape of the vector index.
type Indexer interface {
	Count(ctx context.Context) (int, error)
	Dimensions() int
}

// Stats represents engine statistics.
type Stats struct {
	// Document stats
	DocumentsTotal      int64
	DocumentsPending    int64
	DocumentsProcessing int64
	DocumentsCompleted  int64
	DocumentsFailed     int64

	// Corpus stats
	ChunksTotal     int64
	IndexVectors    int64
	IndexDimensions int

	// Cache stats
	CacheEntries int64
	CacheHits    int64

	// Engine stats
	AnswersTotal    int64
	AnswersFailed   int64
	AverageAnswerMs int64
	IngestsTotal    int64
	IngestsFailed   int64

	// Provider stats per call kind
	Provider map[ai.CallKind]ai.CallSnapshot

	// Usage totals since startup
	Usage usage.Summary

	// Timestamp
	LastUpdated time.Time
}

// Collector collects and manages engine statistics.
type Collector struct {
	store   *store.Store
	index   Indexer
	cache   CacheSizer
	usage   *usage.Recorder
	metrics *observability.Metrics

	stats    *Stats
	mu       sync.Mutex
	tickStop chan struct{}
}

// NewCollector creates a new statistics collector. The index, cache and
// usage recorder may be nil when the corresponding subsystem is absent.
func NewCollector(st *store.Store, index Indexer, cache CacheSizer, recorder *usage.Recorder) *Collector {
	return &Collector{
		store:   st,
		index:   index,
		cache:   cache,
		usage:   recorder,
		metrics: observability.GlobalMetrics(),
		stats: &Stats{
			LastUpdated: time.Now(),
		},
		tickStop: make(chan struct{}),
	}
}

// Start begins periodic statistics collection.
// Updates every hour.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)

	// Initial collection
	c.Collect(ctx)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Collect(ctx)
			case <-ctx.Done():
				return
			case <-c.tickStop:
				return
			}
		}
	}()
}

// Stop stops the statistics collector.
func (c *Collector) Stop() {
	select {
	case <-c.tickStop:
		// Already closed
	default:
		close(c.tickStop)
	}
}

// GetStats returns a copy of current statistics.
func (c *Collector) GetStats() *Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := *c.stats
	out.Provider = make(map[ai.CallKind]ai.CallSnapshot, len(c.stats.Provider))
	for kind, snap := range c.stats.Provider {
		out.Provider[kind] = snap
	}
	return &out
}

// Collect gathers current statistics from the store, the index, the cache
// and the in-process counters. Store failures leave the previous values in
// place.
func (c *Collector) Collect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	if total, err := c.store.CountDocuments(ctx, &store.FindDocument{}); err == nil {
		c.stats.DocumentsTotal = int64(total)
	}
	byStatus := []struct {
		status store.DocumentStatus
		target *int64
	}{
		{store.DocumentStatusPending, &c.stats.DocumentsPending},
		{store.DocumentStatusProcessing, &c.stats.DocumentsProcessing},
		{store.DocumentStatusCompleted, &c.stats.DocumentsCompleted},
		{store.DocumentStatusFailed, &c.stats.DocumentsFailed},
	}
	for _, s := range byStatus {
		count, err := c.store.CountDocuments(ctx, &store.FindDocument{
			Statuses: []store.DocumentStatus{s.status},
		})
		if err == nil {
			*s.target = int64(count)
		}
	}

	if count, err := c.store.CountChunks(ctx, &store.FindChunk{}); err == nil {
		c.stats.ChunksTotal = int64(count)
	}

	if c.index != nil {
		if count, err := c.index.Count(ctx); err == nil {
			c.stats.IndexVectors = int64(count)
		}
		c.stats.IndexDimensions = c.index.Dimensions()
	}
	if c.cache != nil {
		c.stats.CacheEntries = int64(c.cache.Size())
	}

	snap := c.metrics.Snapshot()
	c.stats.CacheHits = snap.CacheHits
	if om, ok := snap.OperationMetrics["answer"]; ok {
		c.stats.AnswersTotal = om.ExecutionCount
		c.stats.AnswersFailed = om.ErrorCount
		c.stats.AverageAnswerMs = om.AverageDuration
	}
	if om, ok := snap.OperationMetrics["ingest"]; ok {
		c.stats.IngestsTotal = om.ExecutionCount
		c.stats.IngestsFailed = om.ErrorCount
	}

	c.stats.Provider = ai.Metrics().Snapshot()
	if c.usage != nil {
		c.stats.Usage = c.usage.Summary()
	}

	c.stats.LastUpdated = now
}

// GetSummary returns a human-readable summary.
func (s *Stats) GetSummary() string {
	return fmt.Sprintf(
		`📊 Engine statistics (updated: %s)

📄 Documents
  total: %d
  completed: %d | pending: %d | processing: %d | failed: %d

🧱 Corpus
  chunks: %d
  index vectors: %d (%d dimensions)

⚡ Cache
  entries: %d
  hits: %d

💬 Operations
  answers: %d (%d failed, avg %d ms)
  ingests: %d (%d failed)

🔌 Provider calls
%s
💰 Usage
  embedding: %d calls, %d tokens
  generation: %d calls, %d prompt + %d completion tokens
  estimated cost: $%.4f`,
		s.LastUpdated.Format("2006-01-02 15:04"),
		s.DocumentsTotal,
		s.DocumentsCompleted,
		s.DocumentsPending,
		s.DocumentsProcessing,
		s.DocumentsFailed,
		s.ChunksTotal,
		s.IndexVectors,
		s.IndexDimensions,
		s.CacheEntries,
		s.CacheHits,
		s.AnswersTotal,
		s.AnswersFailed,
		s.AverageAnswerMs,
		s.IngestsTotal,
		s.IngestsFailed,
		s.providerLines(),
		s.Usage.Embedding.Calls,
		s.Usage.Embedding.PromptTokens,
		s.Usage.Generation.Calls,
		s.Usage.Generation.PromptTokens,
		s.Usage.Generation.CompletionTokens,
		s.Usage.TotalCost(),
	)
}

func (s *Stats) providerLines() string {
	var b strings.Builder
	for _, kind := range []ai.CallKind{ai.CallEmbedding, ai.CallGeneration, ai.CallRerank} {
		snap, ok := s.Provider[kind]
		if !ok || snap.Calls == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %s: %d calls (%d failed, avg %d ms)\n",
			kind, snap.Calls, snap.Failures, snap.AverageLatencyMs)
	}
	if b.Len() == 0 {
		return "  none yet\n"
	}
	return b.String()
}
