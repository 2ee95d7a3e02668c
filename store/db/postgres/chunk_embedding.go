package postgres

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/granary-ai/granary/store"
)

// UpsertChunkEmbedding inserts or updates a chunk embedding.
func (d *DB) UpsertChunkEmbedding(ctx context.Context, upsert *store.ChunkEmbedding) error {
	stmt := `
		INSERT INTO chunk_embedding (chunk_id, document_id, embedding, model, created_ts, updated_ts)
		VALUES (` + placeholders(6) + `)
		ON CONFLICT (chunk_id)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			updated_ts = EXCLUDED.updated_ts
	`

	vector := pgvector.NewVector(upsert.Embedding)
	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.ChunkID,
		upsert.DocumentID,
		vector,
		upsert.Model,
		upsert.CreatedTs,
		upsert.UpdatedTs,
	); err != nil {
		return errors.Wrap(err, "failed to upsert chunk embedding")
	}

	return nil
}

// SearchChunksByVector performs similarity search with pgvector.
// The <=> operator computes cosine distance, so 1 - distance is the
// cosine similarity and ordering by distance returns the closest first.
func (d *DB) SearchChunksByVector(ctx context.Context, find *store.VectorSearch) ([]*store.ChunkMatch, error) {
	limit := find.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT
			c.id, c.document_id, c.ordinal,
			1 - (e.embedding <=> ` + placeholder(1) + `) AS score
		FROM chunk c
		INNER JOIN chunk_embedding e ON c.id = e.chunk_id
		INNER JOIN document d ON c.document_id = d.id
		WHERE d.status = 'COMPLETED'
		ORDER BY e.embedding <=> ` + placeholder(2) + `, c.document_id, c.ordinal
		LIMIT ` + placeholder(3)

	vector := pgvector.NewVector(find.Vector)
	rows, err := d.db.QueryContext(ctx, query, vector, vector, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search chunks by vector")
	}
	defer rows.Close()

	results := []*store.ChunkMatch{}
	for rows.Next() {
		match := &store.ChunkMatch{}
		if err := rows.Scan(
			&match.ChunkID,
			&match.DocumentID,
			&match.Ordinal,
			&match.Score,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan chunk match")
		}
		results = append(results, match)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// DeleteChunkEmbeddings deletes all embeddings of a document and returns
// how many rows were removed.
func (d *DB) DeleteChunkEmbeddings(ctx context.Context, documentID int32) (int64, error) {
	stmt := `DELETE FROM chunk_embedding WHERE document_id = ` + placeholder(1)
	result, err := d.db.ExecContext(ctx, stmt, documentID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete chunk embeddings")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get affected rows")
	}
	return affected, nil
}

// CountChunkEmbeddings counts the stored embeddings.
func (d *DB) CountChunkEmbeddings(ctx context.Context) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_embedding`).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count chunk embeddings")
	}
	return count, nil
}
