package store

import "context"

// DocumentStatus is the lifecycle state of a document.
type DocumentStatus string

const (
	// DocumentStatusPending means the document is stored but not processed yet.
	DocumentStatusPending DocumentStatus = "PENDING"
	// DocumentStatusProcessing means an ingest run currently owns the document.
	DocumentStatusProcessing DocumentStatus = "PROCESSING"
	// DocumentStatusCompleted means the document is chunked, embedded and searchable.
	DocumentStatusCompleted DocumentStatus = "COMPLETED"
	// DocumentStatusFailed means the last ingest attempt failed.
	DocumentStatusFailed DocumentStatus = "FAILED"
)

func (s DocumentStatus) String() string {
	return string(s)
}

// Document represents a source document of the retrieval corpus.
type Document struct {
	ID  int32
	UID string

	// Standard fields
	CreatedTs int64
	UpdatedTs int64

	// Domain specific fields
	Title         string
	Filename      string
	ContentType   string
	Content       string // extracted plain text, kept for reprocessing
	Status        DocumentStatus
	FailureReason string
	SizeBytes     int64
	WordCount     int
	ChunkCount    int32
}

// FindDocument is the find condition for documents.
type FindDocument struct {
	ID          *int32
	UID         *string
	Statuses    []DocumentStatus
	ContentType *string

	Limit  *int
	Offset *int

	// Ascending orders by created_ts ASC instead of the default DESC.
	Ascending bool
}

// UpdateDocument is the update descriptor for a document.
type UpdateDocument struct {
	ID            int32
	UpdatedTs     *int64
	Title         *string
	Content       *string
	Status        *DocumentStatus
	FailureReason *string
	WordCount     *int
	ChunkCount    *int32
}

// DeleteDocument is the delete descriptor for a document.
type DeleteDocument struct {
	ID int32
}

// CreateDocument creates a document.
func (s *Store) CreateDocument(ctx context.Context, create *Document) (*Document, error) {
	return s.driver.CreateDocument(ctx, create)
}

// ListDocuments lists documents matching the find condition.
func (s *Store) ListDocuments(ctx context.Context, find *FindDocument) ([]*Document, error) {
	return s.driver.ListDocuments(ctx, find)
}

// GetDocument gets a document, returning nil when none matches.
func (s *Store) GetDocument(ctx context.Context, find *FindDocument) (*Document, error) {
	list, err := s.driver.ListDocuments(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdateDocument updates a document and returns the stored row.
func (s *Store) UpdateDocument(ctx context.Context, update *UpdateDocument) (*Document, error) {
	return s.driver.UpdateDocument(ctx, update)
}

// DeleteDocument deletes a document.
func (s *Store) DeleteDocument(ctx context.Context, delete *DeleteDocument) error {
	return s.driver.DeleteDocument(ctx, delete)
}

// CountDocuments counts documents matching the find condition.
func (s *Store) CountDocuments(ctx context.Context, find *FindDocument) (int, error) {
	return s.driver.CountDocuments(ctx, find)
}
