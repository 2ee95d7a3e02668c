package querycache

import (
	"context"
	"sync"
	"time"
)

// ServiceConfig configures the query cache service.
type ServiceConfig struct {
	Capacity        int           // Maximum number of entries, 0 means unbounded
	DefaultTTL      time.Duration // Entry lifetime (default: 1 hour)
	CleanupInterval time.Duration // Interval for expired entry cleanup (default: 1 minute)
}

// DefaultServiceConfig returns default cache service configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Capacity:        0,
		DefaultTTL:      time.Hour,
		CleanupInterval: time.Minute,
	}
}

// Service wraps the LRU cache with background expiry cleanup.
type Service struct {
	lru *LRUCache

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cleanupInterval time.Duration
}

// NewService creates a new query cache service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		lru:             NewLRUCache(cfg.Capacity, cfg.DefaultTTL),
		ctx:             ctx,
		cancel:          cancel,
		cleanupInterval: cfg.CleanupInterval,
	}

	// Start background cleanup
	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

// Close stops the cache service.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Get retrieves a cached payload by fingerprint.
func (s *Service) Get(_ context.Context, fingerprint string) ([]byte, bool) {
	return s.lru.Get(fingerprint)
}

// Put stores a payload under the fingerprint, remembering the documents
// that grounded it.
func (s *Service) Put(_ context.Context, fingerprint string, payload []byte, documentIDs []int32) error {
	s.lru.Set(fingerprint, payload, documentIDs, 0)
	return nil
}

// InvalidateDocument drops every cached answer grounded on the document
// and returns how many entries were removed.
func (s *Service) InvalidateDocument(_ context.Context, documentID int32) int {
	return s.lru.InvalidateDocument(documentID)
}

// Clear removes all entries and returns how many were dropped.
func (s *Service) Clear(_ context.Context) int {
	return s.lru.Clear()
}

// Size returns the number of entries in the cache.
func (s *Service) Size() int {
	return s.lru.Size()
}

// cleanupLoop periodically removes expired entries.
func (s *Service) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.lru.CleanupExpired()
		}
	}
}
