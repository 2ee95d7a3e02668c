// Package knowledge is the facade over ingestion, retrieval and corpus
// administration. An outer transport layer or CLI calls this service
// instead of wiring the pipeline, orchestrator and cache individually.
//
// Key operations:
//   - Ingest files, directories, or raw content
//   - Answer grounded questions against the corpus
//   - List documents with an optional CEL filter
//   - Query history, cache administration, statistics
package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/granary-ai/granary/internal/profile"
	"github.com/granary-ai/granary/server/ingest"
	"github.com/granary-ai/granary/internal/errors"
	"github.com/granary-ai/granary/server/querycache"
	"github.com/granary-ai/granary/server/retrieval"
	"github.com/granary-ai/granary/server/stats"
	"github.com/granary-ai/granary/store"
)

// Service bundles the engine's subsystems behind corpus-level operations.
type Service struct {
	profile  *profile.Profile
	store    *store.Store
	pipeline *ingest.Pipeline
	engine   *retrieval.Engine
	cache    *querycache.Service
	stats    *stats.Collector
	logger   *slog.Logger
}

// NewService creates the knowledge service.
func NewService(
	p *profile.Profile,
	st *store.Store,
	pipeline *ingest.Pipeline,
	engine *retrieval.Engine,
	cache *querycache.Service,
	collector *stats.Collector,
) *Service {
	return &Service{
		profile:  p,
		store:    st,
		pipeline: pipeline,
		engine:   engine,
		cache:    cache,
		stats:    collector,
		logger:   slog.Default().With("component", "knowledge"),
	}
}

// IngestFile reads one file and drives it through the ingestion pipeline.
// An empty title is inferred from the filename or the extracted content.
func (s *Service) IngestFile(ctx context.Context, path, title string) (*store.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.InvalidArgument(fmt.Sprintf("cannot read %s: %v", path, err))
	}
	return s.pipeline.Ingest(ctx, &ingest.Request{
		Title:    title,
		Filename: filepath.Base(path),
		Data:     data,
	})
}

// IngestContent ingests raw content without a backing file.
func (s *Service) IngestContent(ctx context.Context, title, filename, contentType string, data []byte) (*store.Document, error) {
	return s.pipeline.Ingest(ctx, &ingest.Request{
		Title:       title,
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
	})
}

// IngestPaths expands files and directories into individual files and
// ingests them concurrently. Each file succeeds or fails on its own; the
// returned results are ordered by file.
func (s *Service) IngestPaths(ctx context.Context, paths []string) ([]ingest.BatchResult, error) {
	files, err := expandPaths(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.InvalidArgument("no ingestable files found")
	}

	s.logger.Debug("bulk ingest starting", "files", len(files))

	results := make([]ingest.BatchResult, len(files))
	reqs := make([]*ingest.Request, 0, len(files))
	slots := make([]int, 0, len(files))
	for i, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			results[i] = ingest.BatchResult{
				Filename: filepath.Base(path),
				Err:      errors.InvalidArgument(fmt.Sprintf("cannot read %s: %v", path, err)),
			}
			continue
		}
		reqs = append(reqs, &ingest.Request{Filename: filepath.Base(path), Data: data})
		slots = append(slots, i)
	}

	for j, result := range s.pipeline.IngestBatch(ctx, reqs) {
		results[slots[j]] = result
	}
	return results, nil
}

// Answer runs a grounded retrieval query against the corpus.
func (s *Service) Answer(ctx context.Context, question string, opts *retrieval.Options) (*retrieval.Result, error) {
	return s.engine.Answer(ctx, question, opts)
}

// GetDocument resolves a document by numeric id or uid.
func (s *Service) GetDocument(ctx context.Context, ref string) (*store.Document, error) {
	return s.resolveDocument(ctx, ref)
}

// ListDocuments returns documents, newest first, optionally narrowed by a
// CEL filter over {uid, title, filename, mime, status}.
func (s *Service) ListDocuments(ctx context.Context, filter string) ([]*store.Document, error) {
	list, err := s.store.ListDocuments(ctx, &store.FindDocument{})
	if err != nil {
		return nil, errors.Internal("failed to list documents", err)
	}
	if strings.TrimSpace(filter) == "" {
		return list, nil
	}

	compiled, err := compileFilter(filter)
	if err != nil {
		return nil, err
	}
	matched := make([]*store.Document, 0, len(list))
	for _, doc := range list {
		ok, err := compiled.Matches(doc)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, doc)
		}
	}
	return matched, nil
}

// DeleteDocument removes a document with its chunks, vectors and cached
// answers.
func (s *Service) DeleteDocument(ctx context.Context, ref string) error {
	doc, err := s.resolveDocument(ctx, ref)
	if err != nil {
		return err
	}
	return s.pipeline.Delete(ctx, doc.ID)
}

// Reprocess re-chunks and re-embeds a document from its stored content.
func (s *Service) Reprocess(ctx context.Context, ref string) (*store.Document, error) {
	doc, err := s.resolveDocument(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Reingest(ctx, doc.ID)
}

// History returns the most recent query records, newest first. A
// non-positive limit falls back to the configured history limit.
func (s *Service) History(ctx context.Context, limit int) ([]*store.QueryRecord, error) {
	if limit <= 0 {
		limit = s.profile.HistoryLimit
	}
	if limit <= 0 {
		limit = 50
	}
	records, err := s.store.ListQueryRecords(ctx, &store.FindQueryRecord{Limit: &limit})
	if err != nil {
		return nil, errors.Internal("failed to list query history", err)
	}
	return records, nil
}

// ClearCache drops every cached answer and returns the removed count.
func (s *Service) ClearCache(ctx context.Context) int {
	removed := s.cache.Clear(ctx)
	s.logger.Info("query cache cleared", "removed", removed)
	return removed
}

// Stats refreshes and returns engine statistics.
func (s *Service) Stats(ctx context.Context) *stats.Stats {
	s.stats.Collect(ctx)
	return s.stats.GetStats()
}

// resolveDocument interprets ref as a numeric id first, then as a uid.
func (s *Service) resolveDocument(ctx context.Context, ref string) (*store.Document, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.InvalidArgument("document reference is empty")
	}

	find := &store.FindDocument{}
	if id, err := strconv.ParseInt(ref, 10, 32); err == nil {
		id32 := int32(id)
		find.ID = &id32
	} else {
		find.UID = &ref
	}

	doc, err := s.store.GetDocument(ctx, find)
	if err != nil {
		return nil, errors.Internal("failed to load document", err)
	}
	if doc == nil {
		return nil, errors.DocumentNotFound(ref)
	}
	return doc, nil
}

// expandPaths resolves files and directories into a flat file list. Files
// keep their argument order; directories are walked lexically. Hidden files
// and directories are skipped.
func expandPaths(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	files := []string{}

	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, errors.InvalidArgument(fmt.Sprintf("cannot access %s: %v", path, err))
		}
		if !info.IsDir() {
			add(path)
			continue
		}

		root := path
		err = filepath.WalkDir(root, func(entry string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry != root && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			add(entry)
			return nil
		})
		if err != nil {
			return nil, errors.Internal(fmt.Sprintf("failed to walk %s", root), err)
		}
	}

	return files, nil
}
