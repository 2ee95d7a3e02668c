package retrieval

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/stretchr/testify/require"

	"github.com/granary-ai/granary/internal/profile"
	"github.com/granary-ai/granary/plugin/ai"
	"github.com/granary-ai/granary/internal/errors"
	"github.com/granary-ai/granary/server/querycache"
	"github.com/granary-ai/granary/server/vector"
	"github.com/granary-ai/granary/store"
	"github.com/granary-ai/granary/store/test"
)

// mapEmbedder returns fixed vectors for known texts and an orthogonal
// default for everything else.
type mapEmbedder struct {
	dims    int
	vectors map[string][]float32
	fail    bool
}

var _ ai.EmbeddingService = (*mapEmbedder)(nil)

func newMapEmbedder(dims int) *mapEmbedder {
	return &mapEmbedder{dims: dims, vectors: map[string][]float32{}}
}

func (m *mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.fail {
		return nil, stderrors.New("embedding provider is down")
	}
	if vec, ok := m.vectors[text]; ok {
		return vec, nil
	}
	vec := make([]float32, m.dims)
	vec[m.dims-1] = 1
	return vec, nil
}

func (m *mapEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (m *mapEmbedder) Dimensions() int {
	return m.dims
}

// fakeLLM returns a canned answer, optionally failing the first calls or
// blocking on a gate.
type fakeLLM struct {
	mu           sync.Mutex
	calls        int
	answer       string
	failures     int
	gate         chan struct{}
	lastMessages []ai.Message
}

var _ ai.LLMService = (*fakeLLM)(nil)

func (f *fakeLLM) Chat(_ context.Context, messages []ai.Message, _ ...ai.ChatOption) (string, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastMessages = messages
	if f.calls <= f.failures {
		return "", stderrors.New("generation provider is down")
	}
	return f.answer, nil
}

func (f *fakeLLM) ChatStream(context.Context, []ai.Message) (<-chan string, <-chan error) {
	content := make(chan string)
	errs := make(chan error, 1)
	close(content)
	close(errs)
	return content, errs
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeReranker reverses the given order, or fails on demand.
type fakeReranker struct {
	enabled bool
	fail    bool
}

var _ ai.RerankerService = (*fakeReranker)(nil)

func (f *fakeReranker) IsEnabled() bool {
	return f.enabled
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, documents []string, _ int) ([]ai.RerankResult, error) {
	if f.fail {
		return nil, stderrors.New("reranker is down")
	}
	results := make([]ai.RerankResult, len(documents))
	for i := range documents {
		results[i] = ai.RerankResult{
			Index: len(documents) - 1 - i,
			Score: float32(len(documents) - i),
		}
	}
	return results, nil
}

type engineFixture struct {
	engine   *Engine
	store    *store.Store
	index    *vector.MemoryIndex
	embedder *mapEmbedder
	llm      *fakeLLM
}

func newEngineFixture(t *testing.T, reranker ai.RerankerService, cache Cache) *engineFixture {
	ctx := context.Background()
	st := test.NewTestingStore(ctx, t)

	index, err := vector.NewMemoryIndex(3, filepath.Join(t.TempDir(), "test.index"))
	require.NoError(t, err)

	p := &profile.Profile{
		MaxChunks:       5,
		SimilarityFloor: 0.30,
		ContextBudget:   6000,
	}
	embedder := newMapEmbedder(3)
	llm := &fakeLLM{answer: "Grain is kept in sealed silos."}

	return &engineFixture{
		engine:   NewEngine(p, st, index, embedder, llm, reranker, cache),
		store:    st,
		index:    index,
		embedder: embedder,
		llm:      llm,
	}
}

// seed inserts a completed document with one chunk and one index entry per
// text/vector pair.
func (f *engineFixture) seed(t *testing.T, title string, texts []string, vectors [][]float32) *store.Document {
	ctx := context.Background()
	now := time.Now().Unix()

	doc, err := f.store.CreateDocument(ctx, &store.Document{
		UID:         shortuuid.New(),
		CreatedTs:   now,
		UpdatedTs:   now,
		Title:       title,
		Filename:    title + ".txt",
		ContentType: "text/plain",
		Status:      store.DocumentStatusCompleted,
		ChunkCount:  int32(len(texts)),
	})
	require.NoError(t, err)

	creates := make([]*store.Chunk, len(texts))
	for i, text := range texts {
		creates[i] = &store.Chunk{
			DocumentID:    doc.ID,
			CreatedTs:     now,
			Ordinal:       int32(i),
			Text:          text,
			CharEnd:       len(text),
			TokenEstimate: len(text)/4 + 1,
		}
	}
	rows, err := f.store.CreateChunks(ctx, creates)
	require.NoError(t, err)

	entries := make([]vector.Entry, len(rows))
	for i, row := range rows {
		entries[i] = vector.Entry{
			ChunkID:    row.ID,
			DocumentID: doc.ID,
			Ordinal:    row.Ordinal,
			Vector:     vectors[i],
		}
	}
	require.NoError(t, f.index.Insert(ctx, entries))
	return doc
}

const grainQuestion = "How is grain stored?"

// seedGrain sets up a document where the question matches the first chunk
// exactly, the second partially, and the third not at all.
func (f *engineFixture) seedGrain(t *testing.T) *store.Document {
	doc := f.seed(t, "Grain Storage", []string{
		"Grain is stored in sealed silos.",
		"Moisture must stay below fourteen percent.",
		"Tractors are serviced in spring.",
	}, [][]float32{
		{1, 0, 0},
		{1, 1, 0},
		{0, 1, 0},
	})
	f.embedder.vectors[grainQuestion] = []float32{1, 0, 0}
	return doc
}

func TestAnswer(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil, nil)
	f.seedGrain(t)

	result, err := f.engine.Answer(ctx, grainQuestion, nil)
	require.NoError(t, err)
	require.Equal(t, "Grain is kept in sealed silos.", result.Answer)
	require.False(t, result.Cached)
	require.False(t, result.NoMatch)
	require.Len(t, result.Fingerprint, fingerprintLength)

	// The orthogonal chunk sits below the similarity floor.
	require.Len(t, result.Sources, 2)
	require.Equal(t, "Grain Storage", result.Sources[0].DocumentTitle)
	require.Equal(t, int32(0), result.Sources[0].Ordinal)
	require.InDelta(t, 1.0, result.Sources[0].Similarity, 1e-6)
	require.Equal(t, int32(1), result.Sources[1].Ordinal)
	require.InDelta(t, 0.70710678, result.Sources[1].Similarity, 1e-4)

	expected := 0.7*1.0 + 0.3*(1.0+0.70710678)/2
	require.InDelta(t, expected, result.Confidence, 1e-4)

	// The grounded prompt carries provenance and the question.
	require.Len(t, f.llm.lastMessages, 2)
	require.Equal(t, "system", f.llm.lastMessages[0].Role)
	require.Contains(t, f.llm.lastMessages[1].Content, "[Grain Storage #0]")
	require.Contains(t, f.llm.lastMessages[1].Content, grainQuestion)

	records, err := f.store.ListQueryRecords(ctx, &store.FindQueryRecord{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, grainQuestion, records[0].Query)
	require.False(t, records[0].CacheHit)
	require.False(t, records[0].NoMatch)
	require.Contains(t, records[0].Sources, "Grain Storage")
}

func TestAnswerEmptyQuestion(t *testing.T) {
	f := newEngineFixture(t, nil, nil)

	for _, question := range []string{"", "   ", "\n\t"} {
		_, err := f.engine.Answer(context.Background(), question, nil)
		require.Error(t, err)
		require.True(t, errors.IsCode(err, errors.ErrCodeEmptyInput))
	}
}

func TestAnswerNoDocuments(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil, nil)

	_, err := f.engine.Answer(ctx, "anything ingested?", nil)
	require.Error(t, err)
	require.True(t, errors.IsCode(err, errors.ErrCodeNoDocuments))

	// Documents that never completed do not count as corpus.
	now := time.Now().Unix()
	_, err = f.store.CreateDocument(ctx, &store.Document{
		UID:         shortuuid.New(),
		CreatedTs:   now,
		UpdatedTs:   now,
		Title:       "Pending",
		Filename:    "pending.txt",
		ContentType: "text/plain",
		Status:      store.DocumentStatusPending,
	})
	require.NoError(t, err)

	_, err = f.engine.Answer(ctx, "anything ingested?", nil)
	require.Error(t, err)
	require.True(t, errors.IsCode(err, errors.ErrCodeNoDocuments))
}

func TestAnswerNoMatch(t *testing.T) {
	ctx := context.Background()
	cache := querycache.NewService(querycache.DefaultServiceConfig())
	t.Cleanup(cache.Close)
	f := newEngineFixture(t, nil, cache)
	f.seedGrain(t)

	// The default embedding is orthogonal to every seeded chunk.
	result, err := f.engine.Answer(ctx, "What about beekeeping?", nil)
	require.NoError(t, err)
	require.True(t, result.NoMatch)
	require.Equal(t, FallbackAnswer, result.Answer)
	require.Empty(t, result.Sources)
	require.Zero(t, result.Confidence)
	require.Zero(t, f.llm.callCount())

	// No-match outcomes are never cached, the corpus may grow.
	require.Zero(t, cache.Size())

	records, err := f.store.ListQueryRecords(ctx, &store.FindQueryRecord{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.True(t, records[0].NoMatch)
}

func TestAnswerUsesCache(t *testing.T) {
	ctx := context.Background()
	cache := querycache.NewService(querycache.DefaultServiceConfig())
	t.Cleanup(cache.Close)
	f := newEngineFixture(t, nil, cache)
	f.seedGrain(t)

	first, err := f.engine.Answer(ctx, grainQuestion, nil)
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Equal(t, 1, f.llm.callCount())

	second, err := f.engine.Answer(ctx, grainQuestion, nil)
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, first.Answer, second.Answer)
	require.Equal(t, first.Fingerprint, second.Fingerprint)
	require.Equal(t, first.Confidence, second.Confidence)
	// The cached path makes no provider calls.
	require.Equal(t, 1, f.llm.callCount())

	records, err := f.store.ListQueryRecords(ctx, &store.FindQueryRecord{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.True(t, records[0].CacheHit)
	require.False(t, records[1].CacheHit)
}

func TestAnswerBypassCache(t *testing.T) {
	ctx := context.Background()
	cache := querycache.NewService(querycache.DefaultServiceConfig())
	t.Cleanup(cache.Close)
	f := newEngineFixture(t, nil, cache)
	f.seedGrain(t)

	opts := &Options{BypassCache: true}
	_, err := f.engine.Answer(ctx, grainQuestion, opts)
	require.NoError(t, err)
	_, err = f.engine.Answer(ctx, grainQuestion, opts)
	require.NoError(t, err)

	require.Equal(t, 2, f.llm.callCount())
	require.Zero(t, cache.Size())
}

func TestAnswerMaxChunksOption(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil, nil)
	f.seedGrain(t)

	result, err := f.engine.Answer(ctx, grainQuestion, &Options{MaxChunks: 1})
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	require.InDelta(t, 1.0, result.Confidence, 1e-6)
}

func TestAnswerEmbeddingUnavailable(t *testing.T) {
	f := newEngineFixture(t, nil, nil)
	f.seedGrain(t)
	f.embedder.fail = true

	_, err := f.engine.Answer(context.Background(), grainQuestion, nil)
	require.Error(t, err)
	require.True(t, errors.IsCode(err, errors.ErrCodeEmbeddingUnavailable))
}

func TestAnswerGenerationRetries(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil, nil)
	f.seedGrain(t)
	f.llm.failures = 1

	result, err := f.engine.Answer(ctx, grainQuestion, nil)
	require.NoError(t, err)
	require.Equal(t, "Grain is kept in sealed silos.", result.Answer)
	require.Equal(t, 2, f.llm.callCount())
}

func TestAnswerGenerationUnavailable(t *testing.T) {
	ctx := context.Background()
	cache := querycache.NewService(querycache.DefaultServiceConfig())
	t.Cleanup(cache.Close)
	f := newEngineFixture(t, nil, cache)
	f.seedGrain(t)
	f.llm.failures = 10

	result, err := f.engine.Answer(ctx, grainQuestion, nil)
	require.Error(t, err)
	require.True(t, errors.IsCode(err, errors.ErrCodeGenerationUnavailable))
	// One retry, then give up.
	require.Equal(t, 2, f.llm.callCount())

	// The partial result still carries what retrieval found.
	require.NotNil(t, result)
	require.Len(t, result.Sources, 2)
	require.Empty(t, result.Answer)

	require.Zero(t, cache.Size())
}

func TestAnswerReranker(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, &fakeReranker{enabled: true}, nil)
	f.seedGrain(t)

	result, err := f.engine.Answer(ctx, grainQuestion, nil)
	require.NoError(t, err)
	require.Len(t, result.Sources, 2)
	// The reranker reversed the similarity order.
	require.Equal(t, int32(1), result.Sources[0].Ordinal)
	require.Equal(t, int32(0), result.Sources[1].Ordinal)

	// Confidence still derives from similarities, not the rerank order.
	expected := 0.7*1.0 + 0.3*(1.0+0.70710678)/2
	require.InDelta(t, expected, result.Confidence, 1e-4)
}

func TestAnswerRerankerDegrades(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, &fakeReranker{enabled: true, fail: true}, nil)
	f.seedGrain(t)

	result, err := f.engine.Answer(ctx, grainQuestion, nil)
	require.NoError(t, err)
	require.Len(t, result.Sources, 2)
	// Reranker failure falls back to similarity order.
	require.Equal(t, int32(0), result.Sources[0].Ordinal)
}

func TestAnswerDeduplicatesConcurrentQueries(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil, nil)
	f.seedGrain(t)
	f.llm.gate = make(chan struct{})

	var wg sync.WaitGroup
	answers := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.engine.Answer(ctx, grainQuestion, nil)
			errs[i] = err
			if result != nil {
				answers[i] = result.Answer
			}
		}(i)
		// Let the first call reach generation before the second joins.
		time.Sleep(100 * time.Millisecond)
	}
	close(f.llm.gate)
	wg.Wait()

	for i := 0; i < 2; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "Grain is kept in sealed silos.", answers[i])
	}
	require.Equal(t, 1, f.llm.callCount())
}

func TestComputeConfidence(t *testing.T) {
	tests := []struct {
		name         string
		similarities []float64
		expected     float64
	}{
		{"empty", nil, 0},
		{"single perfect", []float64{1.0}, 1.0},
		{"single moderate", []float64{0.5}, 0.5},
		{"top dominates", []float64{0.9, 0.3}, 0.7*0.9 + 0.3*0.6},
		{"unsorted input", []float64{0.3, 0.9}, 0.7*0.9 + 0.3*0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.expected, computeConfidence(tt.similarities), 1e-9)
		})
	}

	// Raising the top similarity alone must raise confidence.
	low := computeConfidence([]float64{0.5, 0.4})
	high := computeConfidence([]float64{0.6, 0.4})
	require.Greater(t, high, low)
}
