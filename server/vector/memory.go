package vector

import (
	"context"
	"sort"
	"sync"

	"github.com/granary-ai/granary/internal/errors"
)

// MemoryIndex is an exact brute-force index. Vectors are normalized once at
// insert time so search reduces to dot products.
type MemoryIndex struct {
	mu         sync.RWMutex
	dimensions int
	entries    []Entry
	path       string
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty index for vectors of the given
// dimensionality. path is where snapshots are written; empty disables
// persistence.
func NewMemoryIndex(dimensions int, path string) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, errors.InvalidArgument("vector dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		entries:    make([]Entry, 0),
		path:       path,
	}, nil
}

func (idx *MemoryIndex) Dimensions() int {
	return idx.dimensions
}

func (idx *MemoryIndex) Insert(_ context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	normalized := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if len(entry.Vector) != idx.dimensions {
			return errors.InvalidArgument("vector dimensions do not match index").
				WithContext("expected", idx.dimensions).
				WithContext("got", len(entry.Vector))
		}
		vec, err := Normalize(entry.Vector)
		if err != nil {
			return err
		}
		entry.Vector = vec
		normalized = append(normalized, entry)
	}

	idx.mu.Lock()
	idx.entries = append(idx.entries, normalized...)
	idx.mu.Unlock()
	return nil
}

func (idx *MemoryIndex) DeleteByDocument(_ context.Context, documentID int32) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	kept := idx.entries[:0]
	removed := 0
	for _, entry := range idx.entries {
		if entry.DocumentID == documentID {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	idx.entries = kept
	return removed, nil
}

func (idx *MemoryIndex) Search(_ context.Context, query []float32, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, errors.InvalidArgument("search limit must be positive")
	}
	if len(query) != idx.dimensions {
		return nil, errors.InvalidArgument("query vector dimensions do not match index").
			WithContext("expected", idx.dimensions).
			WithContext("got", len(query))
	}
	normalized, err := Normalize(query)
	if err != nil {
		return nil, err
	}

	idx.mu.RLock()
	matches := make([]Match, 0, len(idx.entries))
	for _, entry := range idx.entries {
		matches = append(matches, Match{
			ChunkID:    entry.ChunkID,
			DocumentID: entry.DocumentID,
			Ordinal:    entry.Ordinal,
			Score:      Dot(normalized, entry.Vector),
		})
	}
	idx.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].DocumentID != matches[j].DocumentID {
			return matches[i].DocumentID < matches[j].DocumentID
		}
		return matches[i].Ordinal < matches[j].Ordinal
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (idx *MemoryIndex) Count(_ context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries), nil
}
