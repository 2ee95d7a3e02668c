package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// MigrationHistory model related methods.
	UpsertMigrationHistory(ctx context.Context, upsert *UpsertMigrationHistory) (*MigrationHistory, error)
	ListMigrationHistories(ctx context.Context, find *FindMigrationHistory) ([]*MigrationHistory, error)

	// Document model related methods.
	CreateDocument(ctx context.Context, create *Document) (*Document, error)
	ListDocuments(ctx context.Context, find *FindDocument) ([]*Document, error)
	UpdateDocument(ctx context.Context, update *UpdateDocument) (*Document, error)
	DeleteDocument(ctx context.Context, delete *DeleteDocument) error
	CountDocuments(ctx context.Context, find *FindDocument) (int, error)

	// Chunk model related methods.
	CreateChunks(ctx context.Context, creates []*Chunk) ([]*Chunk, error)
	ListChunks(ctx context.Context, find *FindChunk) ([]*Chunk, error)
	DeleteChunks(ctx context.Context, delete *DeleteChunk) error
	CountChunks(ctx context.Context, find *FindChunk) (int, error)

	// ChunkEmbedding model related methods, backed by pgvector on postgres.
	UpsertChunkEmbedding(ctx context.Context, upsert *ChunkEmbedding) error
	SearchChunksByVector(ctx context.Context, find *VectorSearch) ([]*ChunkMatch, error)
	DeleteChunkEmbeddings(ctx context.Context, documentID int32) (int64, error)
	CountChunkEmbeddings(ctx context.Context) (int, error)

	// QueryRecord model related methods.
	CreateQueryRecord(ctx context.Context, create *QueryRecord) (*QueryRecord, error)
	ListQueryRecords(ctx context.Context, find *FindQueryRecord) ([]*QueryRecord, error)
	DeleteQueryRecords(ctx context.Context, delete *DeleteQueryRecord) error

	// UsageRecord model related methods.
	CreateUsageRecord(ctx context.Context, create *UsageRecord) (*UsageRecord, error)
	ListUsageRecords(ctx context.Context, find *FindUsageRecord) ([]*UsageRecord, error)
}
