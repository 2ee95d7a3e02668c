package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/granary-ai/granary/store"
)

func (d *DB) CreateChunks(ctx context.Context, creates []*store.Chunk) ([]*store.Chunk, error) {
	if len(creates) == 0 {
		return creates, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := `INSERT INTO chunk (document_id, created_ts, ordinal, text, char_start, char_end, token_estimate)
		VALUES (` + placeholders(7) + `)
		RETURNING id`
	for _, create := range creates {
		if err := tx.QueryRowContext(ctx, stmt,
			create.DocumentID,
			create.CreatedTs,
			create.Ordinal,
			create.Text,
			create.CharStart,
			create.CharEnd,
			create.TokenEstimate,
		).Scan(&create.ID); err != nil {
			return nil, fmt.Errorf("failed to create chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chunks: %w", err)
	}
	return creates, nil
}

func (d *DB) ListChunks(ctx context.Context, find *store.FindChunk) ([]*store.Chunk, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if len(find.IDs) > 0 {
		list := []string{}
		for _, id := range find.IDs {
			list = append(list, placeholder(len(args)+1))
			args = append(args, id)
		}
		where = append(where, "id IN ("+strings.Join(list, ", ")+")")
	}
	if find.DocumentID != nil {
		where, args = append(where, "document_id = "+placeholder(len(args)+1)), append(args, *find.DocumentID)
	}

	query := `SELECT id, document_id, created_ts, ordinal, text, char_start, char_end, token_estimate
		FROM chunk
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY document_id, ordinal`
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Chunk, 0)
	for rows.Next() {
		chunk := &store.Chunk{}
		if err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.CreatedTs,
			&chunk.Ordinal,
			&chunk.Text,
			&chunk.CharStart,
			&chunk.CharEnd,
			&chunk.TokenEstimate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		list = append(list, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	return list, nil
}

func (d *DB) DeleteChunks(ctx context.Context, delete *store.DeleteChunk) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM chunk WHERE document_id = `+placeholder(1), delete.DocumentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (d *DB) CountChunks(ctx context.Context, find *store.FindChunk) (int, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.DocumentID != nil {
		where, args = append(where, "document_id = "+placeholder(len(args)+1)), append(args, *find.DocumentID)
	}

	var count int
	query := `SELECT COUNT(*) FROM chunk WHERE ` + strings.Join(where, " AND ")
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}
