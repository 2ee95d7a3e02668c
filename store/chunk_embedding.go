package store

import "context"

// ChunkEmbedding represents the vector embedding of a chunk. Only the
// postgres driver persists embeddings; the sqlite driver pairs with the
// in-memory index instead.
type ChunkEmbedding struct {
	ChunkID    int32
	DocumentID int32
	Embedding  []float32
	Model      string
	CreatedTs  int64
	UpdatedTs  int64
}

// VectorSearch represents the options for vector similarity search.
type VectorSearch struct {
	Vector []float32
	Limit  int
}

// ChunkMatch is a vector search hit with its cosine similarity score.
type ChunkMatch struct {
	ChunkID    int32
	DocumentID int32
	Ordinal    int32
	Score      float64
}

// UpsertChunkEmbedding inserts or updates a chunk embedding.
func (s *Store) UpsertChunkEmbedding(ctx context.Context, upsert *ChunkEmbedding) error {
	return s.driver.UpsertChunkEmbedding(ctx, upsert)
}

// SearchChunksByVector performs similarity search over completed documents.
func (s *Store) SearchChunksByVector(ctx context.Context, find *VectorSearch) ([]*ChunkMatch, error) {
	return s.driver.SearchChunksByVector(ctx, find)
}

// DeleteChunkEmbeddings deletes all embeddings of a document and returns
// how many rows were removed.
func (s *Store) DeleteChunkEmbeddings(ctx context.Context, documentID int32) (int64, error) {
	return s.driver.DeleteChunkEmbeddings(ctx, documentID)
}

// CountChunkEmbeddings counts the stored embeddings.
func (s *Store) CountChunkEmbeddings(ctx context.Context) (int, error) {
	return s.driver.CountChunkEmbeddings(ctx)
}
