// Package server assembles the engine subsystems into one process: the
// metadata store, the vector index, the AI providers, the ingestion
// pipeline, the retrieval engine and the background runners.
package server

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/granary-ai/granary/internal/profile"
	"github.com/granary-ai/granary/plugin/ai"
	"github.com/granary-ai/granary/plugin/extract"
	"github.com/granary-ai/granary/server/chunker"
	"github.com/granary-ai/granary/server/ingest"
	"github.com/granary-ai/granary/server/querycache"
	"github.com/granary-ai/granary/server/retrieval"
	"github.com/granary-ai/granary/server/runner/reprocess"
	"github.com/granary-ai/granary/server/service/knowledge"
	"github.com/granary-ai/granary/server/stats"
	"github.com/granary-ai/granary/server/usage"
	"github.com/granary-ai/granary/server/vector"
	"github.com/granary-ai/granary/store"
	"github.com/granary-ai/granary/store/db"
)

// snapshotFlushInterval paces the periodic snapshot flush in run mode.
const snapshotFlushInterval = 5 * time.Minute

// Server owns every subsystem of the engine. CLI commands construct one, use
// the Knowledge service and call Shutdown; run mode additionally calls Start
// to launch the background loops.
type Server struct {
	Profile   *profile.Profile
	Store     *store.Store
	Knowledge *knowledge.Service
	Runner    *reprocess.Runner
	AIConfig  *ai.Config

	index     vector.Index
	cache     *querycache.Service
	collector *stats.Collector
	logger    *slog.Logger

	stopLoops context.CancelFunc
	wg        sync.WaitGroup
}

// NewServer wires the engine from the profile and the GRANARY_* provider
// environment. Provider credentials are not checked here so that commands
// which never call a provider keep working without them; callers that do
// need providers validate AIConfig first.
func NewServer(ctx context.Context, p *profile.Profile) (*Server, error) {
	driver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create database driver")
	}
	st := store.New(driver, p)
	if err := st.Migrate(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	aiCfg := ai.NewConfigFromEnv()
	recorder := usage.NewRecorder(st)
	embedder, err := ai.NewEmbeddingService(&aiCfg.Embedding, recorder)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embedding service")
	}
	llm, err := ai.NewLLMService(&aiCfg.LLM, recorder)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create LLM service")
	}
	reranker := ai.NewRerankerService(&aiCfg.Reranker)

	index, err := newIndex(p, st, aiCfg)
	if err != nil {
		return nil, err
	}

	chk, err := chunker.New(p.ChunkSize, p.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	var tika *extract.TikaClient
	if os.Getenv("GRANARY_TIKA_URL") != "" || os.Getenv("GRANARY_TIKA_JAR") != "" {
		tika = extract.NewTikaClient(extract.TikaConfigFromEnv())
	}

	cache := querycache.NewService(querycache.ServiceConfig{
		Capacity:   p.CacheCapacity,
		DefaultTTL: time.Duration(p.CacheTTL) * time.Second,
	})

	pipeline := ingest.NewPipeline(st, index, extract.NewExtractor(tika), chk, embedder, cache, p.IngestConcurrency)
	engine := retrieval.NewEngine(p, st, index, embedder, llm, reranker, cache)
	collector := stats.NewCollector(st, index, cache, recorder)
	runner := reprocess.NewRunner(st, pipeline, index, time.Duration(p.ReprocessInterval)*time.Second)

	return &Server{
		Profile:   p,
		Store:     st,
		Knowledge: knowledge.NewService(p, st, pipeline, engine, cache, collector),
		Runner:    runner,
		AIConfig:  aiCfg,
		index:     index,
		cache:     cache,
		collector: collector,
		logger:    slog.Default().With("component", "server"),
	}, nil
}

// newIndex selects the vector backend: the default in-memory index with its
// snapshot file, or pgvector inside the metadata store. A damaged snapshot
// surfaces as an index corruption error; `granary reprocess --rebuild` is
// the recovery path.
func newIndex(p *profile.Profile, st *store.Store, cfg *ai.Config) (vector.Index, error) {
	if p.VectorBackend == "postgres" {
		return vector.NewPostgresIndex(st, cfg.Embedding.Dimensions, cfg.Embedding.Model)
	}
	index, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions, p.IndexSnapshotPath())
	if err != nil {
		return nil, err
	}
	if err := index.Load(); err != nil {
		return nil, err
	}
	return index, nil
}

// Start launches the background loops: statistics collection, periodic
// snapshot flushing, and the reprocess runner when the profile enables it.
func (s *Server) Start(ctx context.Context) {
	ctx, s.stopLoops = context.WithCancel(ctx)

	s.collector.Start(ctx)

	if s.Profile.ReprocessInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Runner.Run(ctx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.flushLoop(ctx)
	}()

	s.logger.Info("granary started",
		"version", s.Profile.Version,
		"driver", s.Profile.Driver,
		"vectorBackend", s.Profile.VectorBackend,
		"reprocessInterval", s.Profile.ReprocessInterval)
}

func (s *Server) flushLoop(ctx context.Context) {
	snap, ok := s.index.(ingest.Snapshotter)
	if !ok {
		return
	}

	ticker := time.NewTicker(snapshotFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := snap.Flush(); err != nil {
				s.logger.Error("periodic snapshot flush failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown stops the background loops, flushes the snapshot and closes the
// store. It is safe to call without a prior Start.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if s.stopLoops != nil {
		s.stopLoops()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("background loops did not stop in time")
	}

	s.collector.Stop()
	s.cache.Close()

	if snap, ok := s.index.(ingest.Snapshotter); ok {
		if err := snap.Flush(); err != nil {
			s.logger.Error("final snapshot flush failed", "error", err)
		}
	}
	if err := s.Store.Close(); err != nil {
		s.logger.Error("failed to close store", "error", err)
	}
	s.logger.Info("granary stopped properly")
}
