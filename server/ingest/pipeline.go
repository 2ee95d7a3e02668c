// Package ingest drives documents through extraction, chunking, embedding
// and indexing while keeping the store and the vector index consistent.
// A document is only searchable in the COMPLETED state; any failure rolls
// back every chunk row and vector already written for it.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/sync/errgroup"

	"github.com/granary-ai/granary/plugin/ai"
	"github.com/granary-ai/granary/plugin/extract"
	"github.com/granary-ai/granary/server/chunker"
	"github.com/granary-ai/granary/internal/errors"
	"github.com/granary-ai/granary/server/internal/observability"
	"github.com/granary-ai/granary/server/vector"
	"github.com/granary-ai/granary/store"
)

const (
	operationIngest   = "ingest"
	operationReingest = "reingest"
	operationDelete   = "delete"

	// failureReasonLimit caps how much of an error message is persisted on
	// the document row.
	failureReasonLimit = 500
)

// Request describes one document to ingest.
type Request struct {
	// Title is optional; it falls back to the filename, then to a title
	// found during extraction.
	Title       string
	Filename    string
	ContentType string // detected from the filename and data when empty
	Data        []byte
}

// BatchResult pairs one batch request with its outcome.
type BatchResult struct {
	Filename string
	Document *store.Document
	Err      error
}

// CacheInvalidator drops cached answers grounded on a document.
type CacheInvalidator interface {
	InvalidateDocument(ctx context.Context, documentID int32) int
}

// Snapshotter is implemented by index backends that persist through an
// on-disk snapshot.
type Snapshotter interface {
	Flush() error
}

// Pipeline is the ingestion pipeline.
type Pipeline struct {
	store       *store.Store
	index       vector.Index
	extractor   *extract.Extractor
	chunker     *chunker.Chunker
	embedder    ai.EmbeddingService
	cache       CacheInvalidator
	concurrency int
	logger      *slog.Logger

	locks *documentLocks
}

// NewPipeline creates an ingestion pipeline. The cache may be nil.
func NewPipeline(
	st *store.Store,
	index vector.Index,
	extractor *extract.Extractor,
	chk *chunker.Chunker,
	embedder ai.EmbeddingService,
	cache CacheInvalidator,
	concurrency int,
) *Pipeline {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pipeline{
		store:       st,
		index:       index,
		extractor:   extractor,
		chunker:     chk,
		embedder:    embedder,
		cache:       cache,
		concurrency: concurrency,
		logger:      slog.Default().With("component", "ingest"),
		locks:       newDocumentLocks(),
	}
}

// Ingest stores a new document and processes it to the COMPLETED state.
// Processing failures mark the document FAILED and are returned together
// with the failed document row.
func (p *Pipeline) Ingest(ctx context.Context, req *Request) (*store.Document, error) {
	return p.instrument(operationIngest, func() (*store.Document, error) {
		return p.ingest(ctx, req)
	})
}

func (p *Pipeline) ingest(ctx context.Context, req *Request) (*store.Document, error) {
	if req == nil || len(req.Data) == 0 {
		return nil, errors.EmptyInput("document content is empty")
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = extract.DetectContentType(req.Filename, req.Data)
	}
	if !p.extractor.IsSupported(contentType) {
		return nil, errors.InvalidArgument(fmt.Sprintf("unsupported content type: %s", contentType))
	}

	title := strings.TrimSpace(req.Title)
	inferTitle := title == ""
	if title == "" {
		base := filepath.Base(req.Filename)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if title == "" || title == "." {
		title = "untitled"
	}

	now := time.Now().Unix()
	doc, err := p.store.CreateDocument(ctx, &store.Document{
		UID:         shortuuid.New(),
		CreatedTs:   now,
		UpdatedTs:   now,
		Title:       title,
		Filename:    req.Filename,
		ContentType: contentType,
		Status:      store.DocumentStatusPending,
		SizeBytes:   int64(len(req.Data)),
	})
	if err != nil {
		return nil, errors.Internal("failed to create document", err)
	}

	p.locks.lock(doc.ID)
	defer p.locks.unlock(doc.ID)

	return p.process(ctx, doc, req.Data, inferTitle)
}

// IngestBatch ingests documents concurrently, at most p.concurrency at a
// time. Each request succeeds or fails on its own.
func (p *Pipeline) IngestBatch(ctx context.Context, reqs []*Request) []BatchResult {
	results := make([]BatchResult, len(reqs))

	var group errgroup.Group
	group.SetLimit(p.concurrency)
	for i, req := range reqs {
		i, req := i, req
		group.Go(func() error {
			result := BatchResult{}
			if req != nil {
				result.Filename = req.Filename
			}
			result.Document, result.Err = p.Ingest(ctx, req)
			results[i] = result
			return nil
		})
	}
	_ = group.Wait()

	return results
}

// Reingest re-chunks and re-embeds a document from its stored extracted
// content. The old chunks and vectors are fully removed before the new ones
// become visible, so searches observe the old version or the new one but
// never a mixture.
func (p *Pipeline) Reingest(ctx context.Context, documentID int32) (*store.Document, error) {
	return p.instrument(operationReingest, func() (*store.Document, error) {
		return p.reingest(ctx, documentID)
	})
}

func (p *Pipeline) reingest(ctx context.Context, documentID int32) (*store.Document, error) {
	p.locks.lock(documentID)
	defer p.locks.unlock(documentID)

	doc, err := p.store.GetDocument(ctx, &store.FindDocument{ID: &documentID})
	if err != nil {
		return nil, errors.Internal("failed to load document", err)
	}
	if doc == nil {
		return nil, errors.DocumentNotFound(fmt.Sprintf("%d", documentID))
	}
	if strings.TrimSpace(doc.Content) == "" {
		return p.fail(ctx, doc.ID, errors.EmptyInput("document has no extracted content to reprocess"))
	}

	if err := p.markProcessing(ctx, doc.ID); err != nil {
		return doc, err
	}
	if _, err := p.index.DeleteByDocument(ctx, documentID); err != nil {
		return p.fail(ctx, doc.ID, errors.Internal("failed to clear old index entries", err))
	}
	if err := p.store.DeleteChunks(ctx, &store.DeleteChunk{DocumentID: documentID}); err != nil {
		return p.fail(ctx, doc.ID, errors.Internal("failed to delete old chunks", err))
	}
	p.invalidate(ctx, documentID)

	return p.chunkAndIndex(ctx, doc, doc.Content)
}

// Delete synchronously removes a document with its chunks, vectors and
// cached answers.
func (p *Pipeline) Delete(ctx context.Context, documentID int32) error {
	_, err := p.instrument(operationDelete, func() (*store.Document, error) {
		return nil, p.delete(ctx, documentID)
	})
	return err
}

func (p *Pipeline) delete(ctx context.Context, documentID int32) error {
	p.locks.lock(documentID)
	defer p.locks.unlock(documentID)

	doc, err := p.store.GetDocument(ctx, &store.FindDocument{ID: &documentID})
	if err != nil {
		return errors.Internal("failed to load document", err)
	}
	if doc == nil {
		return errors.DocumentNotFound(fmt.Sprintf("%d", documentID))
	}

	if _, err := p.index.DeleteByDocument(ctx, documentID); err != nil {
		return errors.Internal("failed to delete index entries", err)
	}
	if err := p.store.DeleteChunks(ctx, &store.DeleteChunk{DocumentID: documentID}); err != nil {
		return errors.Internal("failed to delete chunks", err)
	}
	if err := p.store.DeleteDocument(ctx, &store.DeleteDocument{ID: documentID}); err != nil {
		return errors.Internal("failed to delete document", err)
	}
	removed := p.invalidate(ctx, documentID)
	p.flushIndex()

	p.logger.Info("document deleted",
		"documentID", documentID,
		"uid", doc.UID,
		"invalidatedCacheEntries", removed)
	return nil
}

// process runs extraction and hands the text to chunkAndIndex.
func (p *Pipeline) process(ctx context.Context, doc *store.Document, data []byte, inferTitle bool) (*store.Document, error) {
	if err := p.markProcessing(ctx, doc.ID); err != nil {
		return doc, err
	}

	extracted, err := p.extractor.Extract(ctx, data, doc.ContentType)
	if err != nil {
		return p.fail(ctx, doc.ID, errors.Wrap(err, errors.ErrCodeInternal, "text extraction failed"))
	}

	// The extracted text is persisted so the document can be reprocessed
	// without the original bytes.
	now := time.Now().Unix()
	update := &store.UpdateDocument{
		ID:        doc.ID,
		UpdatedTs: &now,
		Content:   &extracted.Text,
		WordCount: &extracted.WordCount,
	}
	if inferTitle && extracted.Title != "" {
		update.Title = &extracted.Title
	}
	doc, err = p.store.UpdateDocument(ctx, update)
	if err != nil {
		return p.fail(ctx, doc.ID, errors.Internal("failed to store extracted content", err))
	}

	return p.chunkAndIndex(ctx, doc, extracted.Text)
}

// chunkAndIndex chunks the text, embeds the chunks, and makes the document
// searchable. Embedding runs before any row or vector is written, so an
// unavailable provider leaves nothing to roll back.
func (p *Pipeline) chunkAndIndex(ctx context.Context, doc *store.Document, text string) (*store.Document, error) {
	chunks, err := p.chunker.Split(text)
	if err != nil {
		return p.fail(ctx, doc.ID, err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return p.fail(ctx, doc.ID, errors.EmbeddingUnavailable("failed to embed document chunks", err))
	}
	if len(vectors) != len(chunks) {
		return p.fail(ctx, doc.ID, errors.EmbeddingUnavailable(
			fmt.Sprintf("embedding returned %d vectors for %d chunks", len(vectors), len(chunks)), nil))
	}

	now := time.Now().Unix()
	creates := make([]*store.Chunk, len(chunks))
	for i, c := range chunks {
		creates[i] = &store.Chunk{
			DocumentID:    doc.ID,
			CreatedTs:     now,
			Ordinal:       c.Ordinal,
			Text:          c.Text,
			CharStart:     c.CharStart,
			CharEnd:       c.CharEnd,
			TokenEstimate: len(c.Text)/4 + 1,
		}
	}
	rows, err := p.store.CreateChunks(ctx, creates)
	if err != nil {
		return p.fail(ctx, doc.ID, errors.Internal("failed to store chunks", err))
	}

	entries := make([]vector.Entry, len(rows))
	for i, row := range rows {
		entries[i] = vector.Entry{
			ChunkID:    row.ID,
			DocumentID: doc.ID,
			Ordinal:    row.Ordinal,
			Vector:     vectors[i],
		}
	}
	if err := p.index.Insert(ctx, entries); err != nil {
		p.rollback(ctx, doc.ID)
		return p.fail(ctx, doc.ID, errors.Internal("failed to index document vectors", err))
	}

	completedTs := time.Now().Unix()
	status := store.DocumentStatusCompleted
	chunkCount := int32(len(rows))
	noReason := ""
	updated, err := p.store.UpdateDocument(ctx, &store.UpdateDocument{
		ID:            doc.ID,
		UpdatedTs:     &completedTs,
		Status:        &status,
		FailureReason: &noReason,
		ChunkCount:    &chunkCount,
	})
	if err != nil {
		p.rollback(ctx, doc.ID)
		return p.fail(ctx, doc.ID, errors.Internal("failed to mark document completed", err))
	}

	removed := p.invalidate(ctx, doc.ID)
	p.flushIndex()

	p.logger.Info("document ingested",
		"documentID", updated.ID,
		"uid", updated.UID,
		"chunks", len(rows),
		"invalidatedCacheEntries", removed)
	return updated, nil
}

func (p *Pipeline) markProcessing(ctx context.Context, documentID int32) error {
	now := time.Now().Unix()
	status := store.DocumentStatusProcessing
	if _, err := p.store.UpdateDocument(ctx, &store.UpdateDocument{
		ID:        documentID,
		UpdatedTs: &now,
		Status:    &status,
	}); err != nil {
		return errors.Internal("failed to mark document processing", err)
	}
	return nil
}

// fail marks the document FAILED with a bounded reason and passes the cause
// through. The mark survives context cancellation so an aborted ingest is
// never left PROCESSING.
func (p *Pipeline) fail(ctx context.Context, documentID int32, cause error) (*store.Document, error) {
	reason := cause.Error()
	if len(reason) > failureReasonLimit {
		reason = reason[:failureReasonLimit]
	}

	now := time.Now().Unix()
	status := store.DocumentStatusFailed
	doc, err := p.store.UpdateDocument(context.WithoutCancel(ctx), &store.UpdateDocument{
		ID:            documentID,
		UpdatedTs:     &now,
		Status:        &status,
		FailureReason: &reason,
	})
	if err != nil {
		p.logger.Error("failed to mark document failed", "documentID", documentID, "error", err)
	}

	p.logger.Warn("document ingestion failed", "documentID", documentID, "reason", reason)
	return doc, cause
}

// rollback removes every vector and chunk row of the document so a failed
// ingest leaves no partial state behind.
func (p *Pipeline) rollback(ctx context.Context, documentID int32) {
	ctx = context.WithoutCancel(ctx)
	if _, err := p.index.DeleteByDocument(ctx, documentID); err != nil {
		p.logger.Error("rollback failed to clear index entries", "documentID", documentID, "error", err)
	}
	if err := p.store.DeleteChunks(ctx, &store.DeleteChunk{DocumentID: documentID}); err != nil {
		p.logger.Error("rollback failed to delete chunks", "documentID", documentID, "error", err)
	}
}

// instrument records operation counters and duration around fn.
func (p *Pipeline) instrument(operation string, fn func() (*store.Document, error)) (*store.Document, error) {
	metrics := observability.GlobalMetrics()
	metrics.RecordOperation(operation)
	started := time.Now()

	doc, err := fn()

	metrics.RecordDuration(operation, time.Since(started))
	if err != nil {
		metrics.RecordFailure(operation)
	}
	return doc, err
}

func (p *Pipeline) invalidate(ctx context.Context, documentID int32) int {
	if p.cache == nil {
		return 0
	}
	return p.cache.InvalidateDocument(ctx, documentID)
}

func (p *Pipeline) flushIndex() {
	snap, ok := p.index.(Snapshotter)
	if !ok {
		return
	}
	if err := snap.Flush(); err != nil {
		p.logger.Error("failed to flush index snapshot", "error", err)
	}
}
