package store

import "context"

// MigrationHistory records an applied schema version.
type MigrationHistory struct {
	Version   string
	CreatedTs int64
}

// UpsertMigrationHistory is the upsert descriptor for migration history.
type UpsertMigrationHistory struct {
	Version string
}

// FindMigrationHistory is the find condition for migration history.
type FindMigrationHistory struct {
	Version *string
}

// UpsertMigrationHistory records that a schema version has been applied.
func (s *Store) UpsertMigrationHistory(ctx context.Context, upsert *UpsertMigrationHistory) (*MigrationHistory, error) {
	return s.driver.UpsertMigrationHistory(ctx, upsert)
}

// ListMigrationHistories lists applied schema versions, newest first.
func (s *Store) ListMigrationHistories(ctx context.Context, find *FindMigrationHistory) ([]*MigrationHistory, error) {
	return s.driver.ListMigrationHistories(ctx, find)
}
