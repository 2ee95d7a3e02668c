package store

import "context"

// QueryRecord is one entry of the query history.
type QueryRecord struct {
	ID int32

	// Standard fields
	CreatedTs int64

	// Domain specific fields
	Query       string
	Fingerprint string
	Answer      string
	Confidence  float64
	CacheHit    bool
	NoMatch     bool
	LatencyMs   int64
	// Sources holds the JSON-encoded source references of the answer.
	Sources string
}

// FindQueryRecord is the find condition for query records.
type FindQueryRecord struct {
	ID          *int32
	Fingerprint *string

	Limit  *int
	Offset *int
}

// DeleteQueryRecord is the delete descriptor for query records.
type DeleteQueryRecord struct {
	ID *int32
	// BeforeTs deletes records created strictly before the timestamp.
	BeforeTs *int64
}

// CreateQueryRecord creates a query record.
func (s *Store) CreateQueryRecord(ctx context.Context, create *QueryRecord) (*QueryRecord, error) {
	return s.driver.CreateQueryRecord(ctx, create)
}

// ListQueryRecords lists query records, most recent first.
func (s *Store) ListQueryRecords(ctx context.Context, find *FindQueryRecord) ([]*QueryRecord, error) {
	return s.driver.ListQueryRecords(ctx, find)
}

// DeleteQueryRecords deletes query records matching the descriptor.
func (s *Store) DeleteQueryRecords(ctx context.Context, delete *DeleteQueryRecord) error {
	return s.driver.DeleteQueryRecords(ctx, delete)
}
