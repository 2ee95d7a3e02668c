// Package retrieval answers questions over the ingested corpus: embed the
// question, search the vector index, assemble a grounded prompt and pass it
// to generation. Identical concurrent queries collapse into one retrieval
// via singleflight, and finished answers land in the query cache.
package retrieval

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/granary-ai/granary/internal/profile"
	"github.com/granary-ai/granary/plugin/ai"
	"github.com/granary-ai/granary/internal/errors"
	"github.com/granary-ai/granary/server/internal/observability"
	"github.com/granary-ai/granary/server/vector"
	"github.com/granary-ai/granary/store"
)

const (
	operationAnswer = "answer"

	// defaultContextBudget guards against a zero profile value.
	defaultContextBudget = 6000
	// sourceSnippetLimit bounds snippet length in source references.
	sourceSnippetLimit = 200
)

// Options tune a single Answer call. Zero values fall back to the profile.
type Options struct {
	// MaxChunks caps how many chunks are retrieved.
	MaxChunks int
	// Temperature overrides the provider sampling temperature when positive.
	Temperature float64
	// BypassCache skips both the cache lookup and the cache write.
	BypassCache bool
}

// Source is one chunk reference that grounded an answer.
type Source struct {
	DocumentID    int32   `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	Ordinal       int32   `json:"ordinal"`
	Similarity    float64 `json:"similarity"`
	Snippet       string  `json:"snippet"`
}

// Result is the outcome of one answered question.
type Result struct {
	Answer      string   `json:"answer"`
	Sources     []Source `json:"sources"`
	Confidence  float64  `json:"confidence"`
	Cached      bool     `json:"cached"`
	NoMatch     bool     `json:"no_match"`
	Fingerprint string   `json:"fingerprint"`
}

// Cache is the slice of the query cache the engine needs.
type Cache interface {
	Get(ctx context.Context, fingerprint string) ([]byte, bool)
	Put(ctx context.Context, fingerprint string, payload []byte, documentIDs []int32) error
}

// Engine orchestrates retrieval and generation.
type Engine struct {
	profile  *profile.Profile
	store    *store.Store
	index    vector.Index
	embedder ai.EmbeddingService
	llm      ai.LLMService
	reranker ai.RerankerService
	cache    Cache
	logger   *slog.Logger

	group singleflight.Group
}

// NewEngine creates a retrieval engine. The reranker and the cache may be
// nil, which disables reranking respectively caching.
func NewEngine(
	p *profile.Profile,
	st *store.Store,
	index vector.Index,
	embedder ai.EmbeddingService,
	llm ai.LLMService,
	reranker ai.RerankerService,
	cache Cache,
) *Engine {
	return &Engine{
		profile:  p,
		store:    st,
		index:    index,
		embedder: embedder,
		llm:      llm,
		reranker: reranker,
		cache:    cache,
		logger:   slog.Default().With("component", "retrieval"),
	}
}

// Answer answers a question grounded in the ingested documents.
func (e *Engine) Answer(ctx context.Context, question string, opts *Options) (*Result, error) {
	rc := observability.NewRequestContext(e.logger, operationAnswer)
	metrics := observability.GlobalMetrics()
	metrics.RecordOperation(operationAnswer)

	result, err := e.answer(ctx, rc, question, opts)
	metrics.RecordDuration(operationAnswer, rc.Duration())
	if err != nil {
		metrics.RecordFailure(operationAnswer)
		rc.Error("query failed", err,
			slog.Int64(observability.LogFieldDuration, rc.DurationMs()),
			slog.String(observability.LogFieldErrorCode, string(errors.GetCodeFromError(err, errors.ErrCodeInternal))))
		return result, err
	}

	rc.Info("query answered",
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()),
		slog.String(observability.LogFieldFingerprint, result.Fingerprint),
		slog.Bool("cached", result.Cached),
		slog.Int(observability.LogFieldChunkCount, len(result.Sources)))
	return result, nil
}

func (e *Engine) answer(ctx context.Context, rc *observability.RequestContext, question string, opts *Options) (*Result, error) {
	normalized := NormalizeQuestion(question)
	if normalized == "" {
		return nil, errors.EmptyInput("question is empty")
	}

	options := e.resolveOptions(opts)
	fingerprint := Fingerprint(normalized, options.MaxChunks, options.Temperature)

	if e.cache != nil && !options.BypassCache {
		if payload, ok := e.cache.Get(ctx, fingerprint); ok {
			cached := &Result{}
			if err := json.Unmarshal(payload, cached); err == nil {
				cached.Cached = true
				cached.Fingerprint = fingerprint
				observability.GlobalMetrics().RecordCacheHit()
				rc.Info("cache hit", slog.String(observability.LogFieldFingerprint, fingerprint))
				e.recordQuery(ctx, rc, normalized, cached)
				return cached, nil
			}
			rc.Warn("dropping undecodable cache entry",
				slog.String(observability.LogFieldFingerprint, fingerprint))
		}
	}

	// Concurrent identical queries share one retrieval and one generation.
	value, err, shared := e.group.Do(fingerprint, func() (any, error) {
		return e.retrieveAndGenerate(ctx, rc, normalized, fingerprint, options)
	})
	if shared {
		rc.Debug("query shared an in-flight retrieval",
			slog.String(observability.LogFieldFingerprint, fingerprint))
	}

	result, _ := value.(*Result)
	return result, err
}

// retrieveAndGenerate runs the uncached flow. On generation failure the
// partial result still carries the retrieved sources so callers can show
// what was found.
func (e *Engine) retrieveAndGenerate(
	ctx context.Context,
	rc *observability.RequestContext,
	question, fingerprint string,
	options Options,
) (*Result, error) {
	completed, err := e.store.CountDocuments(ctx, &store.FindDocument{
		Statuses: []store.DocumentStatus{store.DocumentStatusCompleted},
	})
	if err != nil {
		return nil, errors.Internal("failed to count documents", err)
	}
	if completed == 0 {
		return nil, errors.NoDocuments("no documents have been ingested yet")
	}

	queryVector, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, errors.EmbeddingUnavailable("failed to embed question", err)
	}

	matches, err := e.index.Search(ctx, queryVector, options.MaxChunks)
	if err != nil {
		return nil, errors.Internal("vector search failed", err)
	}

	retained := filterByScore(matches, e.profile.SimilarityFloor)
	if len(retained) == 0 {
		rc.Info("no chunk cleared the similarity floor",
			slog.Int("retrieved", len(matches)),
			slog.Float64("floor", e.profile.SimilarityFloor))
		result := &Result{
			Answer:      FallbackAnswer,
			Sources:     []Source{},
			NoMatch:     true,
			Fingerprint: fingerprint,
		}
		// The corpus may change; a no-match outcome is never cached.
		e.recordQuery(ctx, rc, question, result)
		return result, nil
	}

	items, err := e.resolveMatches(ctx, rc, retained)
	if err != nil {
		return nil, err
	}

	items = e.maybeRerank(ctx, rc, question, items)

	similarities := make([]float64, len(items))
	sources := make([]Source, len(items))
	chunks := make([]contextChunk, len(items))
	for i, item := range items {
		similarities[i] = item.match.Score
		sources[i] = Source{
			DocumentID:    item.match.DocumentID,
			DocumentTitle: item.title,
			Ordinal:       item.match.Ordinal,
			Similarity:    item.match.Score,
			Snippet:       snippet(item.chunk.Text, sourceSnippetLimit),
		}
		chunks[i] = contextChunk{
			Title:   item.title,
			Ordinal: item.match.Ordinal,
			Text:    item.chunk.Text,
		}
	}

	budget := e.profile.ContextBudget
	if budget <= 0 {
		budget = defaultContextBudget
	}
	contextBlock := buildContext(chunks, budget)
	confidence := computeConfidence(similarities)

	messages := ai.FormatMessages(groundingSystemPrompt, buildUserPrompt(contextBlock, question))
	var chatOpts []ai.ChatOption
	if options.Temperature > 0 {
		chatOpts = append(chatOpts, ai.WithChatTemperature(options.Temperature))
	}

	answer, err := e.llm.Chat(ctx, messages, chatOpts...)
	if err != nil {
		rc.Warn("generation failed, retrying once", slog.String("error", err.Error()))
		answer, err = e.llm.Chat(ctx, messages, chatOpts...)
	}
	if err != nil {
		partial := &Result{
			Sources:     sources,
			Confidence:  confidence,
			Fingerprint: fingerprint,
		}
		return partial, errors.GenerationUnavailable("failed to generate answer", err)
	}

	result := &Result{
		Answer:      answer,
		Sources:     sources,
		Confidence:  confidence,
		Fingerprint: fingerprint,
	}

	e.recordQuery(ctx, rc, question, result)
	if e.cache != nil && !options.BypassCache {
		e.cacheResult(ctx, rc, result)
	}
	return result, nil
}

// retrieved pairs a search hit with its chunk row and document title.
type retrieved struct {
	match vector.Match
	chunk *store.Chunk
	title string
}

// resolveMatches loads chunk rows and document titles for the search hits.
// Hits whose chunk or document vanished between search and load are dropped.
func (e *Engine) resolveMatches(ctx context.Context, rc *observability.RequestContext, matches []vector.Match) ([]retrieved, error) {
	ids := make([]int32, len(matches))
	for i, match := range matches {
		ids[i] = match.ChunkID
	}
	chunks, err := e.store.ListChunks(ctx, &store.FindChunk{IDs: ids})
	if err != nil {
		return nil, errors.Internal("failed to load chunks", err)
	}
	chunkByID := make(map[int32]*store.Chunk, len(chunks))
	for _, chunk := range chunks {
		chunkByID[chunk.ID] = chunk
	}

	titles := make(map[int32]string)
	items := make([]retrieved, 0, len(matches))
	for _, match := range matches {
		chunk, ok := chunkByID[match.ChunkID]
		if !ok {
			rc.Warn("index references a missing chunk",
				slog.Int("chunkID", int(match.ChunkID)),
				slog.Int("documentID", int(match.DocumentID)))
			continue
		}

		title, ok := titles[match.DocumentID]
		if !ok {
			doc, err := e.store.GetDocument(ctx, &store.FindDocument{ID: &match.DocumentID})
			if err != nil {
				return nil, errors.Internal("failed to load document", err)
			}
			if doc == nil {
				continue
			}
			title = doc.Title
			titles[match.DocumentID] = title
		}

		items = append(items, retrieved{match: match, chunk: chunk, title: title})
	}

	if len(items) == 0 {
		return nil, errors.IndexCorruption("index references chunks missing from the store", nil)
	}
	return items, nil
}

// maybeRerank reorders the retrieved chunks through the reranker. Any
// reranker problem degrades to the original similarity order.
func (e *Engine) maybeRerank(ctx context.Context, rc *observability.RequestContext, question string, items []retrieved) []retrieved {
	if e.reranker == nil || !e.reranker.IsEnabled() || len(items) < 2 {
		return items
	}

	documents := make([]string, len(items))
	for i, item := range items {
		documents[i] = item.chunk.Text
	}

	ranked, err := e.reranker.Rerank(ctx, question, documents, len(items))
	if err != nil {
		rc.Warn("reranker failed, keeping similarity order", slog.String("error", err.Error()))
		return items
	}

	reordered := make([]retrieved, 0, len(items))
	for _, r := range ranked {
		if r.Index >= 0 && r.Index < len(items) {
			reordered = append(reordered, items[r.Index])
		}
	}
	if len(reordered) != len(items) {
		rc.Warn("reranker returned an incomplete ranking, keeping similarity order",
			slog.Int("ranked", len(reordered)),
			slog.Int("expected", len(items)))
		return items
	}
	return reordered
}

// recordQuery persists one history row. History is best effort and never
// fails the query; the write survives context cancellation.
func (e *Engine) recordQuery(ctx context.Context, rc *observability.RequestContext, question string, result *Result) {
	sourcesJSON, err := json.Marshal(result.Sources)
	if err != nil {
		sourcesJSON = []byte("[]")
	}

	if _, err := e.store.CreateQueryRecord(context.WithoutCancel(ctx), &store.QueryRecord{
		CreatedTs:   time.Now().Unix(),
		Query:       question,
		Fingerprint: result.Fingerprint,
		Answer:      result.Answer,
		Confidence:  result.Confidence,
		CacheHit:    result.Cached,
		NoMatch:     result.NoMatch,
		LatencyMs:   rc.DurationMs(),
		Sources:     string(sourcesJSON),
	}); err != nil {
		rc.Warn("failed to record query history", slog.String("error", err.Error()))
	}
}

// cacheResult stores the finished answer keyed by fingerprint, remembering
// the documents it drew from so ingestion can invalidate it.
func (e *Engine) cacheResult(ctx context.Context, rc *observability.RequestContext, result *Result) {
	payload, err := json.Marshal(result)
	if err != nil {
		rc.Warn("failed to encode cache entry", slog.String("error", err.Error()))
		return
	}

	seen := make(map[int32]struct{}, len(result.Sources))
	documentIDs := make([]int32, 0, len(result.Sources))
	for _, source := range result.Sources {
		if _, ok := seen[source.DocumentID]; ok {
			continue
		}
		seen[source.DocumentID] = struct{}{}
		documentIDs = append(documentIDs, source.DocumentID)
	}

	if err := e.cache.Put(ctx, result.Fingerprint, payload, documentIDs); err != nil {
		rc.Warn("failed to cache result", slog.String("error", err.Error()))
	}
}

func (e *Engine) resolveOptions(opts *Options) Options {
	resolved := Options{}
	if opts != nil {
		resolved = *opts
	}
	if resolved.MaxChunks <= 0 {
		resolved.MaxChunks = e.profile.MaxChunks
	}
	if resolved.Temperature < 0 {
		resolved.Temperature = 0
	}
	return resolved
}

// filterByScore drops matches scoring below the floor.
func filterByScore(matches []vector.Match, floor float64) []vector.Match {
	if floor <= 0 {
		return matches
	}
	filtered := make([]vector.Match, 0, len(matches))
	for _, match := range matches {
		if match.Score >= floor {
			filtered = append(filtered, match)
		}
	}
	return filtered
}

// computeConfidence blends the best similarity with the mean of all
// retained similarities, weighted to the top score so one strong match
// outweighs a crowd of mediocre ones. The result is clamped to [0, 1].
func computeConfidence(similarities []float64) float64 {
	if len(similarities) == 0 {
		return 0
	}

	top := similarities[0]
	sum := 0.0
	for _, s := range similarities {
		if s > top {
			top = s
		}
		sum += s
	}
	confidence := 0.7*top + 0.3*sum/float64(len(similarities))

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
