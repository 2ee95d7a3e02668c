package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/granary-ai/granary/store"
)

func (d *DB) UpsertMigrationHistory(ctx context.Context, upsert *store.UpsertMigrationHistory) (*store.MigrationHistory, error) {
	stmt := `INSERT INTO migration_history (version)
		VALUES (` + placeholder(1) + `)
		ON CONFLICT (version) DO UPDATE SET version = EXCLUDED.version
		RETURNING version, created_ts`
	history := &store.MigrationHistory{}
	if err := d.db.QueryRowContext(ctx, stmt, upsert.Version).Scan(&history.Version, &history.CreatedTs); err != nil {
		return nil, fmt.Errorf("failed to upsert migration history: %w", err)
	}

	return history, nil
}

func (d *DB) ListMigrationHistories(ctx context.Context, find *store.FindMigrationHistory) ([]*store.MigrationHistory, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.Version != nil {
		where, args = append(where, "version = "+placeholder(len(args)+1)), append(args, *find.Version)
	}

	query := `SELECT version, created_ts FROM migration_history WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration histories: %w", err)
	}
	defer rows.Close()

	list := make([]*store.MigrationHistory, 0)
	for rows.Next() {
		history := &store.MigrationHistory{}
		if err := rows.Scan(&history.Version, &history.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan migration history: %w", err)
		}
		list = append(list, history)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate migration histories: %w", err)
	}

	return list, nil
}
