// Package reprocess re-drives documents that never reached the COMPLETED
// state and keeps the index snapshot fresh while the server runs.
package reprocess

import (
	"context"
	"log/slog"
	"time"

	"github.com/granary-ai/granary/server/ingest"
	"github.com/granary-ai/granary/server/vector"
	"github.com/granary-ai/granary/store"
)

const (
	// DefaultInterval applies when the profile does not set one.
	DefaultInterval = 5 * time.Minute

	// batchLimit caps how many documents a single pass picks up. Anything
	// beyond the cap is handled on the next tick.
	batchLimit = 64
)

// Runner retries pending and failed documents in the background. It is also
// the recovery path after a corrupt index snapshot: reingesting rebuilds the
// vectors from the stored extracted content.
type Runner struct {
	store    *store.Store
	pipeline *ingest.Pipeline
	index    vector.Index
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner creates a reprocess runner.
func NewRunner(st *store.Store, pipeline *ingest.Pipeline, index vector.Index, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{
		store:    st,
		pipeline: pipeline,
		index:    index,
		interval: interval,
		logger:   slog.Default().With("component", "reprocess"),
	}
}

// Run starts the background task.
func (r *Runner) Run(ctx context.Context) {
	// Process once on startup
	r.pass(ctx, false)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.pass(ctx, false)
		case <-ctx.Done():
			r.logger.Info("reprocess runner stopped")
			return
		}
	}
}

// RunOnce executes a single recovery pass (for manual trigger). It returns
// how many documents recovered and how many failed again.
func (r *Runner) RunOnce(ctx context.Context, failedOnly bool) (recovered, failed int) {
	return r.pass(ctx, failedOnly)
}

func (r *Runner) pass(ctx context.Context, failedOnly bool) (recovered, failed int) {
	statuses := []store.DocumentStatus{store.DocumentStatusPending, store.DocumentStatusFailed}
	if failedOnly {
		statuses = []store.DocumentStatus{store.DocumentStatusFailed}
	}

	limit := batchLimit
	docs, err := r.store.ListDocuments(ctx, &store.FindDocument{
		Statuses:  statuses,
		Limit:     &limit,
		Ascending: true,
	})
	if err != nil {
		r.logger.Error("failed to list documents for reprocessing", "error", err)
		return 0, 0
	}
	if len(docs) == 0 {
		r.flushSnapshot()
		return 0, 0
	}

	r.logger.Info("reprocessing documents", "count", len(docs))

	for _, doc := range docs {
		// Check for context cancellation between documents
		select {
		case <-ctx.Done():
			r.logger.Info("reprocess pass cancelled", "recovered", recovered, "failed", failed)
			return recovered, failed
		default:
		}

		if _, err := r.pipeline.Reingest(ctx, doc.ID); err != nil {
			r.logger.Warn("document did not recover",
				"documentID", doc.ID,
				"uid", doc.UID,
				"error", err)
			failed++
			continue
		}
		recovered++
	}

	r.logger.Info("reprocess pass finished", "recovered", recovered, "failed", failed)
	r.flushSnapshot()
	return recovered, failed
}

// Rebuild reingests every document from its stored extracted content,
// replacing all vectors, then rewrites the snapshot. This is the manual
// recovery path after a corrupt or lost snapshot.
func (r *Runner) Rebuild(ctx context.Context) (rebuilt, failed int) {
	docs, err := r.store.ListDocuments(ctx, &store.FindDocument{Ascending: true})
	if err != nil {
		r.logger.Error("failed to list documents for rebuild", "error", err)
		return 0, 0
	}

	r.logger.Info("rebuilding index", "documents", len(docs))

	for _, doc := range docs {
		select {
		case <-ctx.Done():
			r.logger.Info("rebuild cancelled", "rebuilt", rebuilt, "failed", failed)
			return rebuilt, failed
		default:
		}

		if _, err := r.pipeline.Reingest(ctx, doc.ID); err != nil {
			r.logger.Warn("document failed to rebuild",
				"documentID", doc.ID,
				"uid", doc.UID,
				"error", err)
			failed++
			continue
		}
		rebuilt++
	}

	r.logger.Info("index rebuilt", "rebuilt", rebuilt, "failed", failed)
	r.flushSnapshot()
	return rebuilt, failed
}

// flushSnapshot keeps the on-disk snapshot current even when no ingest ran
// since the last flush.
func (r *Runner) flushSnapshot() {
	snap, ok := r.index.(ingest.Snapshotter)
	if !ok {
		return
	}
	if err := snap.Flush(); err != nil {
		r.logger.Error("failed to flush index snapshot", "error", err)
	}
}
