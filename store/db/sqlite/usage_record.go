package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/granary-ai/granary/store"
)

func (d *DB) CreateUsageRecord(ctx context.Context, create *store.UsageRecord) (*store.UsageRecord, error) {
	fields := []string{"created_ts", "kind", "model", "prompt_tokens", "completion_tokens", "latency_ms"}
	args := []any{create.CreatedTs, string(create.Kind), create.Model, create.PromptTokens, create.CompletionTokens, create.LatencyMs}

	stmt := `INSERT INTO usage_record (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create usage record: %w", err)
	}

	return create, nil
}

func (d *DB) ListUsageRecords(ctx context.Context, find *store.FindUsageRecord) ([]*store.UsageRecord, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.Kind != nil {
		where, args = append(where, "kind = "+placeholder(len(args)+1)), append(args, string(*find.Kind))
	}
	if find.Model != nil {
		where, args = append(where, "model = "+placeholder(len(args)+1)), append(args, *find.Model)
	}
	if find.AfterTs != nil {
		where, args = append(where, "created_ts >= "+placeholder(len(args)+1)), append(args, *find.AfterTs)
	}

	query := `SELECT id, created_ts, kind, model, prompt_tokens, completion_tokens, latency_ms
		FROM usage_record
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, id DESC`
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	defer rows.Close()

	list := make([]*store.UsageRecord, 0)
	for rows.Next() {
		record := &store.UsageRecord{}
		var kind string
		if err := rows.Scan(
			&record.ID,
			&record.CreatedTs,
			&kind,
			&record.Model,
			&record.PromptTokens,
			&record.CompletionTokens,
			&record.LatencyMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		record.Kind = store.UsageKind(kind)
		list = append(list, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage records: %w", err)
	}

	return list, nil
}
