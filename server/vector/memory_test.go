package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/granary-ai/granary/internal/errors"
)

func TestNewMemoryIndexValidation(t *testing.T) {
	_, err := NewMemoryIndex(0, "")
	require.Error(t, err)
	require.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))

	_, err = NewMemoryIndex(-3, "")
	require.Error(t, err)

	idx, err := NewMemoryIndex(3, "")
	require.NoError(t, err)
	require.Equal(t, 3, idx.Dimensions())
}

func TestInsertAndSearchOrdersByScore(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(3, "")
	require.NoError(t, err)

	err = idx.Insert(ctx, []Entry{
		{ChunkID: 1, DocumentID: 10, Ordinal: 0, Vector: []float32{0, 1, 0}},
		{ChunkID: 2, DocumentID: 10, Ordinal: 1, Vector: []float32{1, 1, 0}},
		{ChunkID: 3, DocumentID: 11, Ordinal: 0, Vector: []float32{1, 0, 0}},
	})
	require.NoError(t, err)

	matches, err := idx.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	require.Equal(t, int32(3), matches[0].ChunkID)
	require.InDelta(t, 1.0, matches[0].Score, 1e-6)
	require.Equal(t, int32(2), matches[1].ChunkID)
	require.InDelta(t, 0.7071, matches[1].Score, 1e-3)
	require.Equal(t, int32(1), matches[2].ChunkID)
	require.InDelta(t, 0.0, matches[2].Score, 1e-6)
}

func TestInsertNormalizesVectors(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(3, "")
	require.NoError(t, err)

	// A non-unit vector must still score 1.0 against itself.
	err = idx.Insert(ctx, []Entry{{ChunkID: 1, DocumentID: 1, Vector: []float32{3, 4, 0}}})
	require.NoError(t, err)

	matches, err := idx.Search(ctx, []float32{3, 4, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(3, "")
	require.NoError(t, err)

	err = idx.Insert(ctx, []Entry{{ChunkID: 1, DocumentID: 1, Vector: []float32{1, 0}}})
	require.Error(t, err)
	require.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestInsertRejectsZeroVector(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(3, "")
	require.NoError(t, err)

	err = idx.Insert(ctx, []Entry{{ChunkID: 1, DocumentID: 1, Vector: []float32{0, 0, 0}}})
	require.Error(t, err)
	require.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
}

func TestSearchEmptyIndex(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(3, "")
	require.NoError(t, err)

	matches, err := idx.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestSearchValidation(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(3, "")
	require.NoError(t, err)

	_, err = idx.Search(ctx, []float32{1, 0, 0}, 0)
	require.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))

	_, err = idx.Search(ctx, []float32{1, 0}, 5)
	require.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))

	_, err = idx.Search(ctx, []float32{0, 0, 0}, 5)
	require.True(t, errors.IsCode(err, errors.ErrCodeInvalidArgument))
}

func TestSearchTruncatesToLimit(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(2, "")
	require.NoError(t, err)

	entries := make([]Entry, 0, 8)
	for i := 0; i < 8; i++ {
		entries = append(entries, Entry{
			ChunkID:    int32(i + 1),
			DocumentID: 1,
			Ordinal:    int32(i),
			Vector:     []float32{1, float32(i)},
		})
	}
	require.NoError(t, idx.Insert(ctx, entries))

	matches, err := idx.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	// (1, 0) is closest to itself, then increasingly tilted vectors.
	require.Equal(t, int32(1), matches[0].ChunkID)
	require.Equal(t, int32(2), matches[1].ChunkID)
	require.Equal(t, int32(3), matches[2].ChunkID)
}

func TestSearchTieBreaksOnDocumentThenOrdinal(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(3, "")
	require.NoError(t, err)

	// Identical vectors produce identical scores; insertion order is
	// deliberately shuffled so only the tie-break can explain the order.
	err = idx.Insert(ctx, []Entry{
		{ChunkID: 7, DocumentID: 2, Ordinal: 0, Vector: []float32{1, 0, 0}},
		{ChunkID: 8, DocumentID: 1, Ordinal: 5, Vector: []float32{1, 0, 0}},
		{ChunkID: 9, DocumentID: 1, Ordinal: 2, Vector: []float32{1, 0, 0}},
	})
	require.NoError(t, err)

	matches, err := idx.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	require.Equal(t, []int32{9, 8, 7}, []int32{matches[0].ChunkID, matches[1].ChunkID, matches[2].ChunkID})
}

func TestDeleteByDocument(t *testing.T) {
	ctx := context.Background()
	idx, err := NewMemoryIndex(2, "")
	require.NoError(t, err)

	err = idx.Insert(ctx, []Entry{
		{ChunkID: 1, DocumentID: 1, Ordinal: 0, Vector: []float32{1, 0}},
		{ChunkID: 2, DocumentID: 1, Ordinal: 1, Vector: []float32{0, 1}},
		{ChunkID: 3, DocumentID: 2, Ordinal: 0, Vector: []float32{1, 1}},
	})
	require.NoError(t, err)

	removed, err := idx.DeleteByDocument(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	matches, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, int32(3), matches[0].ChunkID)

	removed, err = idx.DeleteByDocument(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 0, removed)
}
