package store

import "context"

// UsageKind distinguishes what a model call was spent on.
type UsageKind string

const (
	// UsageKindEmbedding is token usage of embedding calls.
	UsageKindEmbedding UsageKind = "EMBEDDING"
	// UsageKindGeneration is token usage of generation calls.
	UsageKindGeneration UsageKind = "GENERATION"
)

// UsageRecord is one provider call with its token counts.
type UsageRecord struct {
	ID int32

	// Standard fields
	CreatedTs int64

	// Domain specific fields
	Kind             UsageKind
	Model            string
	PromptTokens     int
	CompletionTokens int
	LatencyMs        int64
}

// FindUsageRecord is the find condition for usage records.
type FindUsageRecord struct {
	Kind    *UsageKind
	Model   *string
	AfterTs *int64

	Limit *int
}

// CreateUsageRecord creates a usage record.
func (s *Store) CreateUsageRecord(ctx context.Context, create *UsageRecord) (*UsageRecord, error) {
	return s.driver.CreateUsageRecord(ctx, create)
}

// ListUsageRecords lists usage records, most recent first.
func (s *Store) ListUsageRecords(ctx context.Context, find *FindUsageRecord) ([]*UsageRecord, error) {
	return s.driver.ListUsageRecords(ctx, find)
}
