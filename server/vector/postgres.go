package vector

import (
	"context"
	"time"

	"github.com/granary-ai/granary/internal/errors"
	"github.com/granary-ai/granary/store"
)

// PostgresIndex backs the Index interface with the pgvector column of the
// metadata store. Vectors live next to the chunk rows, so the ivfflat index
// created by the schema serves approximate search without any snapshot file.
type PostgresIndex struct {
	store      *store.Store
	dimensions int
	model      string
}

var _ Index = (*PostgresIndex)(nil)

// NewPostgresIndex creates a pgvector-backed index. The model name is
// recorded on every stored embedding.
func NewPostgresIndex(st *store.Store, dimensions int, model string) (*PostgresIndex, error) {
	if dimensions <= 0 {
		return nil, errors.InvalidArgument("index dimensions must be positive")
	}
	return &PostgresIndex{
		store:      st,
		dimensions: dimensions,
		model:      model,
	}, nil
}

// Insert normalizes and upserts the entries into the chunk_embedding table.
func (idx *PostgresIndex) Insert(ctx context.Context, entries []Entry) error {
	now := time.Now().Unix()
	for _, entry := range entries {
		if len(entry.Vector) != idx.dimensions {
			return errors.InvalidArgument("vector dimensionality does not match the index").
				WithContext("expected", idx.dimensions).
				WithContext("got", len(entry.Vector))
		}
		normalized, err := Normalize(entry.Vector)
		if err != nil {
			return err
		}
		if err := idx.store.UpsertChunkEmbedding(ctx, &store.ChunkEmbedding{
			ChunkID:    entry.ChunkID,
			DocumentID: entry.DocumentID,
			Embedding:  normalized,
			Model:      idx.model,
			CreatedTs:  now,
			UpdatedTs:  now,
		}); err != nil {
			return errors.Internal("failed to store chunk embedding", err)
		}
	}
	return nil
}

// DeleteByDocument removes every embedding of the document.
func (idx *PostgresIndex) DeleteByDocument(ctx context.Context, documentID int32) (int, error) {
	removed, err := idx.store.DeleteChunkEmbeddings(ctx, documentID)
	if err != nil {
		return 0, errors.Internal("failed to delete chunk embeddings", err)
	}
	return int(removed), nil
}

// Search delegates to the store's pgvector similarity search. The query is
// normalized first so cosine distances match the unit vectors stored at
// insert time.
func (idx *PostgresIndex) Search(ctx context.Context, query []float32, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, errors.InvalidArgument("search limit must be positive")
	}
	if len(query) != idx.dimensions {
		return nil, errors.InvalidArgument("query dimensionality does not match the index").
			WithContext("expected", idx.dimensions).
			WithContext("got", len(query))
	}
	normalized, err := Normalize(query)
	if err != nil {
		return nil, err
	}

	found, err := idx.store.SearchChunksByVector(ctx, &store.VectorSearch{
		Vector: normalized,
		Limit:  limit,
	})
	if err != nil {
		return nil, errors.Internal("failed to search chunks by vector", err)
	}

	matches := make([]Match, len(found))
	for i, m := range found {
		matches[i] = Match{
			ChunkID:    m.ChunkID,
			DocumentID: m.DocumentID,
			Ordinal:    m.Ordinal,
			Score:      m.Score,
		}
	}
	return matches, nil
}

// Count returns the number of stored embeddings.
func (idx *PostgresIndex) Count(ctx context.Context) (int, error) {
	count, err := idx.store.CountChunkEmbeddings(ctx)
	if err != nil {
		return 0, errors.Internal("failed to count chunk embeddings", err)
	}
	return count, nil
}

func (idx *PostgresIndex) Dimensions() int {
	return idx.dimensions
}
