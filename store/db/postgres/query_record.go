package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/granary-ai/granary/store"
)

func (d *DB) CreateQueryRecord(ctx context.Context, create *store.QueryRecord) (*store.QueryRecord, error) {
	fields := []string{"created_ts", "query", "fingerprint", "answer", "confidence", "cache_hit", "no_match", "latency_ms", "sources"}
	args := []any{create.CreatedTs, create.Query, create.Fingerprint, create.Answer, create.Confidence, create.CacheHit, create.NoMatch, create.LatencyMs, create.Sources}

	stmt := `INSERT INTO query_record (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create query record: %w", err)
	}

	return create, nil
}

func (d *DB) ListQueryRecords(ctx context.Context, find *store.FindQueryRecord) ([]*store.QueryRecord, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.Fingerprint != nil {
		where, args = append(where, "fingerprint = "+placeholder(len(args)+1)), append(args, *find.Fingerprint)
	}

	query := `SELECT id, created_ts, query, fingerprint, answer, confidence, cache_hit, no_match, latency_ms, sources
		FROM query_record
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, id DESC`
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
		if find.Offset != nil {
			query += fmt.Sprintf(" OFFSET %d", *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list query records: %w", err)
	}
	defer rows.Close()

	list := make([]*store.QueryRecord, 0)
	for rows.Next() {
		record := &store.QueryRecord{}
		if err := rows.Scan(
			&record.ID,
			&record.CreatedTs,
			&record.Query,
			&record.Fingerprint,
			&record.Answer,
			&record.Confidence,
			&record.CacheHit,
			&record.NoMatch,
			&record.LatencyMs,
			&record.Sources,
		); err != nil {
			return nil, fmt.Errorf("failed to scan query record: %w", err)
		}
		list = append(list, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate query records: %w", err)
	}

	return list, nil
}

func (d *DB) DeleteQueryRecords(ctx context.Context, delete *store.DeleteQueryRecord) error {
	where, args := []string{}, []any{}

	if delete.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *delete.ID)
	}
	if delete.BeforeTs != nil {
		where, args = append(where, "created_ts < "+placeholder(len(args)+1)), append(args, *delete.BeforeTs)
	}

	stmt := `DELETE FROM query_record`
	if len(where) > 0 {
		stmt += ` WHERE ` + strings.Join(where, " AND ")
	}
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to delete query records: %w", err)
	}

	return nil
}
