package stats

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/granary-ai/granary/plugin/ai"
	"github.com/granary-ai/granary/server/internal/observability"
	"github.com/granary-ai/granary/server/usage"
	"github.com/granary-ai/granary/store"
	"github.com/granary-ai/granary/store/test"
)

type fakeIndex struct {
	count int
	dims  int
}

func (f *fakeIndex) Count(context.Context) (int, error) { return f.count, nil }
func (f *fakeIndex) Dimensions() int                    { return f.dims }

type fakeCache struct {
	entries int
}

func (f *fakeCache) Size() int { return f.entries }

func seedDocument(t *testing.T, ts *store.Store, uid string, status store.DocumentStatus) *store.Document {
	t.Helper()
	now := time.Now().Unix()
	doc, err := ts.CreateDocument(context.Background(), &store.Document{
		UID:         uid,
		CreatedTs:   now,
		UpdatedTs:   now,
		Title:       "doc " + uid,
		Filename:    uid + ".txt",
		ContentType: "text/plain",
		Status:      status,
	})
	if err != nil {
		t.Fatalf("Failed to seed document: %v", err)
	}
	return doc
}

func TestCollector_Collect(t *testing.T) {
	ctx := context.Background()
	ts := test.NewTestingStore(ctx, t)
	defer ts.Close()

	observability.GlobalMetrics().Reset()
	ai.Metrics().Reset()

	completed := seedDocument(t, ts, "stats-a", store.DocumentStatusCompleted)
	seedDocument(t, ts, "stats-b", store.DocumentStatusCompleted)
	seedDocument(t, ts, "stats-c", store.DocumentStatusPending)
	seedDocument(t, ts, "stats-d", store.DocumentStatusFailed)

	if _, err := ts.CreateChunks(ctx, []*store.Chunk{
		{DocumentID: completed.ID, CreatedTs: time.Now().Unix(), Ordinal: 0, Text: "grain in silos", CharEnd: 14},
		{DocumentID: completed.ID, CreatedTs: time.Now().Unix(), Ordinal: 1, Text: "dried and sealed", CharStart: 14, CharEnd: 30},
	}); err != nil {
		t.Fatalf("Failed to seed chunks: %v", err)
	}

	recorder := usage.NewRecorder(nil)
	recorder.ReportGeneration("deepseek-chat", 1000, 500, 80*time.Millisecond)

	observability.GlobalMetrics().RecordOperation("answer")
	observability.GlobalMetrics().RecordDuration("answer", 40*time.Millisecond)
	ai.Metrics().RecordCall(ai.CallGeneration, 80*time.Millisecond, nil)

	collector := NewCollector(ts, &fakeIndex{count: 2, dims: 8}, &fakeCache{entries: 3}, recorder)
	collector.Collect(ctx)
	stats := collector.GetStats()

	if stats.DocumentsTotal != 4 {
		t.Errorf("DocumentsTotal should be 4, got %d", stats.DocumentsTotal)
	}
	if stats.DocumentsCompleted != 2 {
		t.Errorf("DocumentsCompleted should be 2, got %d", stats.DocumentsCompleted)
	}
	if stats.DocumentsPending != 1 {
		t.Errorf("DocumentsPending should be 1, got %d", stats.DocumentsPending)
	}
	if stats.DocumentsFailed != 1 {
		t.Errorf("DocumentsFailed should be 1, got %d", stats.DocumentsFailed)
	}
	if stats.ChunksTotal != 2 {
		t.Errorf("ChunksTotal should be 2, got %d", stats.ChunksTotal)
	}
	if stats.IndexVectors != 2 || stats.IndexDimensions != 8 {
		t.Errorf("Index stats should be 2 vectors with 8 dimensions, got %d/%d", stats.IndexVectors, stats.IndexDimensions)
	}
	if stats.CacheEntries != 3 {
		t.Errorf("CacheEntries should be 3, got %d", stats.CacheEntries)
	}
	if stats.AnswersTotal != 1 {
		t.Errorf("AnswersTotal should be 1, got %d", stats.AnswersTotal)
	}
	if stats.Provider[ai.CallGeneration].Calls != 1 {
		t.Errorf("Generation provider calls should be 1, got %d", stats.Provider[ai.CallGeneration].Calls)
	}
	if stats.Usage.Generation.PromptTokens != 1000 {
		t.Errorf("Generation prompt tokens should be 1000, got %d", stats.Usage.Generation.PromptTokens)
	}
	if stats.LastUpdated.IsZero() {
		t.Error("LastUpdated should be set")
	}
}

func TestCollector_NilSubsystems(t *testing.T) {
	ctx := context.Background()
	ts := test.NewTestingStore(ctx, t)
	defer ts.Close()

	collector := NewCollector(ts, nil, nil, nil)
	collector.Collect(ctx)

	stats := collector.GetStats()
	if stats.IndexVectors != 0 || stats.CacheEntries != 0 {
		t.Errorf("Expected zero index and cache stats, got %d/%d", stats.IndexVectors, stats.CacheEntries)
	}
}

func TestCollector_GetStatsReturnsCopy(t *testing.T) {
	ctx := context.Background()
	ts := test.NewTestingStore(ctx, t)
	defer ts.Close()

	collector := NewCollector(ts, &fakeIndex{count: 1, dims: 4}, nil, nil)
	collector.Collect(ctx)

	first := collector.GetStats()
	first.DocumentsTotal = 999
	first.Provider[ai.CallEmbedding] = ai.CallSnapshot{Calls: 999}

	second := collector.GetStats()
	if second.DocumentsTotal == 999 {
		t.Error("Mutating the returned stats should not affect the collector")
	}
	if second.Provider[ai.CallEmbedding].Calls == 999 {
		t.Error("Mutating the returned provider map should not affect the collector")
	}
}

func TestStats_GetSummary(t *testing.T) {
	stats := &Stats{
		DocumentsTotal:     12,
		DocumentsCompleted: 10,
		DocumentsFailed:    2,
		ChunksTotal:        240,
		IndexVectors:       240,
		IndexDimensions:    1024,
		CacheEntries:       5,
		CacheHits:          17,
		AnswersTotal:       42,
		AverageAnswerMs:    350,
		Provider: map[ai.CallKind]ai.CallSnapshot{
			ai.CallEmbedding:  {Calls: 30, TotalLatencyMs: 900, AverageLatencyMs: 30},
			ai.CallGeneration: {Calls: 42, Failures: 1, TotalLatencyMs: 8400, AverageLatencyMs: 200},
		},
		Usage: usage.Summary{
			Embedding:  usage.Totals{Calls: 30, PromptTokens: 60000},
			Generation: usage.Totals{Calls: 42, PromptTokens: 84000, CompletionTokens: 21000, EstimatedCost: 0.0176},
		},
		LastUpdated: time.Now(),
	}

	summary := stats.GetSummary()

	if len(summary) == 0 {
		t.Error("Summary should not be empty")
	}

	sections := []string{
		"📄 Documents", "🧱 Corpus", "⚡ Cache",
		"💬 Operations", "🔌 Provider calls", "💰 Usage",
	}
	for _, section := range sections {
		if !strings.Contains(summary, section) {
			t.Errorf("Summary should contain section: %s", section)
		}
	}

	if !strings.Contains(summary, "embedding: 30 calls") {
		t.Errorf("Summary should include embedding provider line, got:\n%s", summary)
	}
}

func TestStats_GetSummaryNoProviderCalls(t *testing.T) {
	stats := &Stats{LastUpdated: time.Now()}

	if summary := stats.GetSummary(); !strings.Contains(summary, "none yet") {
		t.Errorf("Summary without provider calls should say none yet, got:\n%s", summary)
	}
}
