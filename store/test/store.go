package test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/granary-ai/granary/internal/profile"
	"github.com/granary-ai/granary/internal/version"
	"github.com/granary-ai/granary/store"
	"github.com/granary-ai/granary/store/db"
)

// NewTestingStore creates a migrated store backed by a throwaway database.
// The driver is sqlite unless the DRIVER environment variable says otherwise.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	testingProfile := GetTestingProfile(t)
	dbDriver, err := db.NewDBDriver(testingProfile)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}

	st := store.New(dbDriver, testingProfile)
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// GetTestingProfile returns a profile pointing at a per-test data directory
// and database.
func GetTestingProfile(t *testing.T) *profile.Profile {
	dir := t.TempDir()
	mode := "prod"
	driver := getDriverFromEnv()
	testingProfile := &profile.Profile{
		Mode:              mode,
		Data:              dir,
		DSN:               fmt.Sprintf("%s/granary_%s.db", dir, mode),
		Driver:            driver,
		Version:           version.GetCurrentVersion(mode),
		ChunkSize:         200,
		ChunkOverlap:      20,
		MaxChunks:         5,
		SimilarityFloor:   0.30,
		ContextBudget:     6000,
		CacheTTL:          3600,
		HistoryLimit:      50,
		IngestConcurrency: 2,
		VectorBackend:     "memory",
	}
	if driver == "postgres" {
		testingProfile.DSN = getPostgresDSN(t)
	}
	if err := testingProfile.Validate(); err != nil {
		t.Fatalf("invalid testing profile: %v", err)
	}
	return testingProfile
}

func getDriverFromEnv() string {
	driver := os.Getenv("DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	return driver
}

// getPostgresDSN returns the DSN for PostgreSQL testing. Tests that need
// PostgreSQL are skipped unless POSTGRES_TEST_DSN points at a live instance
// with the pgvector extension available.
func getPostgresDSN(t *testing.T) string {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN is not set; skipping PostgreSQL test")
	}
	return dsn
}
