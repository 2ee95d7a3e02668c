package sqlite

import (
	"context"
	"errors"

	"github.com/granary-ai/granary/store"
)

// Embedding persistence is NOT supported on SQLite. The sqlite driver pairs
// with the in-memory vector index, which persists through its own snapshot
// file. Use PostgreSQL with the pgvector extension for database-backed
// similarity search.

var (
	// ErrSQLiteVectorNotSupported is returned when pgvector-backed operations
	// are requested on SQLite.
	ErrSQLiteVectorNotSupported = errors.New("embedding persistence is not supported on SQLite, use the in-memory vector index or PostgreSQL")
)

func (*DB) UpsertChunkEmbedding(_ context.Context, _ *store.ChunkEmbedding) error {
	return ErrSQLiteVectorNotSupported
}

func (*DB) SearchChunksByVector(_ context.Context, _ *store.VectorSearch) ([]*store.ChunkMatch, error) {
	return nil, ErrSQLiteVectorNotSupported
}

func (*DB) DeleteChunkEmbeddings(_ context.Context, _ int32) (int64, error) {
	return 0, ErrSQLiteVectorNotSupported
}

func (*DB) CountChunkEmbeddings(_ context.Context) (int, error) {
	return 0, ErrSQLiteVectorNotSupported
}
