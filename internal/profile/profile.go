package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/granary-ai/granary/internal/version"
)

// Profile is the runtime configuration of the engine.
type Profile struct {
	// Mode can be "prod" or "dev".
	Mode string
	// Data is the directory that holds the database and index snapshot.
	Data string
	// DSN points to the database, filepath for sqlite or connection string for postgres.
	DSN string
	// Driver is the database driver, sqlite or postgres.
	Driver string
	// Version is the current engine version.
	Version string

	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int
	// ChunkOverlap is the number of tail characters repeated at the head of the next chunk.
	ChunkOverlap int
	// MaxChunks is the default number of chunks retrieved per query.
	MaxChunks int
	// SimilarityFloor drops retrieved chunks scoring below it.
	SimilarityFloor float64
	// ContextBudget caps the total characters of context handed to generation.
	ContextBudget int
	// CacheTTL is the query cache entry lifetime in seconds.
	CacheTTL int
	// CacheCapacity bounds the query cache entry count, 0 means unbounded.
	CacheCapacity int
	// HistoryLimit is the default page size for query history.
	HistoryLimit int
	// IngestConcurrency bounds how many documents ingest in parallel.
	IngestConcurrency int
	// VectorBackend selects the vector index, "memory" or "postgres".
	VectorBackend string
	// ReprocessInterval is the background reprocess period in seconds, 0 disables it.
	ReprocessInterval int
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IndexSnapshotPath returns where the in-memory vector index persists itself.
func (p *Profile) IndexSnapshotPath() string {
	return filepath.Join(p.Data, fmt.Sprintf("granary_%s.index", p.Mode))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// FromEnv builds a profile from GRANARY_* environment variables.
func FromEnv() *Profile {
	return &Profile{
		Mode:              getEnvOrDefault("GRANARY_MODE", "dev"),
		Data:              getEnvOrDefault("GRANARY_DATA", ""),
		DSN:               getEnvOrDefault("GRANARY_DSN", ""),
		Driver:            getEnvOrDefault("GRANARY_DRIVER", "sqlite"),
		Version:           version.GetCurrentVersion(getEnvOrDefault("GRANARY_MODE", "dev")),
		ChunkSize:         getEnvIntOrDefault("GRANARY_CHUNK_SIZE", 500),
		ChunkOverlap:      getEnvIntOrDefault("GRANARY_CHUNK_OVERLAP", 50),
		MaxChunks:         getEnvIntOrDefault("GRANARY_MAX_CHUNKS", 5),
		SimilarityFloor:   getEnvFloatOrDefault("GRANARY_SIMILARITY_FLOOR", 0.30),
		ContextBudget:     getEnvIntOrDefault("GRANARY_CONTEXT_BUDGET", 6000),
		CacheTTL:          getEnvIntOrDefault("GRANARY_CACHE_TTL", 3600),
		CacheCapacity:     getEnvIntOrDefault("GRANARY_CACHE_CAPACITY", 0),
		HistoryLimit:      getEnvIntOrDefault("GRANARY_HISTORY_LIMIT", 50),
		IngestConcurrency: getEnvIntOrDefault("GRANARY_INGEST_CONCURRENCY", 3),
		VectorBackend:     getEnvOrDefault("GRANARY_VECTOR_BACKEND", "memory"),
		ReprocessInterval: getEnvIntOrDefault("GRANARY_REPROCESS_INTERVAL", 0),
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}
	// Trim trailing "/" in case user supplies
	dataDir = filepath.Clean(dataDir)

	// Check if the directory exists
	_, err := os.Stat(dataDir)
	if err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "prod" && p.Mode != "dev" {
		p.Mode = "dev"
	}

	if p.Data == "" {
		if p.Mode == "prod" {
			p.Data = "/var/opt/granary"
		} else {
			p.Data = "."
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported database driver %q", p.Driver)
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("granary_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for postgres driver")
	}

	if p.ChunkSize <= 0 {
		return errors.Errorf("chunk size must be positive, got %d", p.ChunkSize)
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkSize {
		return errors.Errorf("chunk overlap %d must be non-negative and smaller than chunk size %d", p.ChunkOverlap, p.ChunkSize)
	}
	if p.SimilarityFloor < 0 || p.SimilarityFloor > 1 {
		return errors.Errorf("similarity floor %f must be within [0, 1]", p.SimilarityFloor)
	}
	if p.MaxChunks <= 0 {
		return errors.Errorf("max chunks must be positive, got %d", p.MaxChunks)
	}
	if p.IngestConcurrency <= 0 {
		p.IngestConcurrency = 1
	}

	switch p.VectorBackend {
	case "memory":
	case "postgres":
		if p.Driver != "postgres" {
			return errors.New("postgres vector backend requires the postgres database driver")
		}
	default:
		return errors.Errorf("unsupported vector backend %q", p.VectorBackend)
	}

	p.Version = version.GetCurrentVersion(p.Mode)
	return nil
}
