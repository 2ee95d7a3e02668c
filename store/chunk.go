package store

import "context"

// Chunk is one retrieval unit cut from a document.
type Chunk struct {
	ID         int32
	DocumentID int32

	// Standard fields
	CreatedTs int64

	// Domain specific fields
	Ordinal       int32
	Text          string
	CharStart     int
	CharEnd       int
	TokenEstimate int
}

// FindChunk is the find condition for chunks.
type FindChunk struct {
	ID         *int32
	IDs        []int32
	DocumentID *int32

	Limit *int
}

// DeleteChunk is the delete descriptor for chunks.
type DeleteChunk struct {
	DocumentID int32
}

// CreateChunks inserts the chunks of one document in a single transaction.
func (s *Store) CreateChunks(ctx context.Context, creates []*Chunk) ([]*Chunk, error) {
	return s.driver.CreateChunks(ctx, creates)
}

// ListChunks lists chunks matching the find condition, ordered by
// (document_id, ordinal).
func (s *Store) ListChunks(ctx context.Context, find *FindChunk) ([]*Chunk, error) {
	return s.driver.ListChunks(ctx, find)
}

// GetChunk gets a chunk, returning nil when none matches.
func (s *Store) GetChunk(ctx context.Context, find *FindChunk) (*Chunk, error) {
	list, err := s.driver.ListChunks(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// DeleteChunks deletes all chunks of a document.
func (s *Store) DeleteChunks(ctx context.Context, delete *DeleteChunk) error {
	return s.driver.DeleteChunks(ctx, delete)
}

// CountChunks counts chunks matching the find condition.
func (s *Store) CountChunks(ctx context.Context, find *FindChunk) (int, error) {
	return s.driver.CountChunks(ctx, find)
}
