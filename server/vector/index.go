// Package vector provides the chunk embedding index used for similarity
// search. The default backend keeps unit-normalized vectors in memory and
// persists them through checksummed snapshots; a postgres backend delegates
// to pgvector.
package vector

import (
	"context"
	"math"

	"github.com/granary-ai/granary/internal/errors"
)

// Entry is one indexed chunk embedding.
type Entry struct {
	ChunkID    int32
	DocumentID int32
	Ordinal    int32
	Vector     []float32
}

// Match is a search hit with its cosine similarity score.
type Match struct {
	ChunkID    int32
	DocumentID int32
	Ordinal    int32
	Score      float64
}

// Index stores chunk embeddings and answers nearest-neighbor queries.
type Index interface {
	// Insert adds entries, normalizing each vector to unit length.
	Insert(ctx context.Context, entries []Entry) error

	// DeleteByDocument removes every entry of a document and returns
	// how many were removed.
	DeleteByDocument(ctx context.Context, documentID int32) (int, error)

	// Search returns up to limit matches ordered by descending score.
	// Equal scores tie-break on ascending (document, ordinal).
	Search(ctx context.Context, query []float32, limit int) ([]Match, error)

	// Count returns the number of indexed entries.
	Count(ctx context.Context) (int, error)

	// Dimensions returns the configured vector dimensionality.
	Dimensions() int
}

// Normalize returns a unit-length copy of vec. Zero vectors are rejected
// because they have no direction to compare against.
func Normalize(vec []float32) ([]float32, error) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil, errors.InvalidArgument("cannot index or search a zero vector")
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / norm)
	}
	return normalized, nil
}

// Dot computes the inner product with float64 accumulation. For unit
// vectors this equals their cosine similarity.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
