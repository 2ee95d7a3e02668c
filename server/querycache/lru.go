// Package querycache caches serialized query results keyed by fingerprint.
// Entries remember which documents grounded them so document mutations can
// invalidate exactly the answers they may have influenced.
package querycache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache implements an LRU cache with TTL support and a reverse index
// from document ID to the fingerprints grounded on it.
type LRUCache struct {
	capacity   int // 0 means unbounded
	defaultTTL time.Duration
	mu         sync.RWMutex

	cache map[string]*entry
	order *list.List // Doubly linked list for LRU ordering
	byDoc map[int32]map[string]struct{}
}

type entry struct {
	key         string
	payload     []byte
	documentIDs []int32
	expiresAt   time.Time
	element     *list.Element
}

// NewLRUCache creates a new LRU cache. A capacity of zero disables
// eviction; entries then leave only through TTL expiry or invalidation.
func NewLRUCache(capacity int, defaultTTL time.Duration) *LRUCache {
	if capacity < 0 {
		capacity = 0
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}

	return &LRUCache{
		capacity:   capacity,
		defaultTTL: defaultTTL,
		cache:      make(map[string]*entry),
		order:      list.New(),
		byDoc:      make(map[int32]map[string]struct{}),
	}
}

// Get retrieves a copy of the cached payload.
func (c *LRUCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache[key]
	if !ok {
		return nil, false
	}

	// Check expiration
	if time.Now().After(e.expiresAt) {
		c.removeEntry(e)
		return nil, false
	}

	// Move to front (most recently used)
	c.order.MoveToFront(e.element)
	out := make([]byte, len(e.payload))
	copy(out, e.payload)
	return out, true
}

// Set stores a payload along with the documents it was grounded on. The
// payload is copied so later caller mutations cannot reach cached state.
func (c *LRUCache) Set(key string, payload []byte, documentIDs []int32, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	stored := make([]byte, len(payload))
	copy(stored, payload)
	docs := make([]int32, len(documentIDs))
	copy(docs, documentIDs)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Update existing entry
	if e, ok := c.cache[key]; ok {
		c.unlinkDocs(e)
		e.payload = stored
		e.documentIDs = docs
		e.expiresAt = time.Now().Add(ttl)
		c.order.MoveToFront(e.element)
		c.linkDocs(e)
		return
	}

	// Evict if at capacity
	for c.capacity > 0 && len(c.cache) >= c.capacity {
		c.evictOldest()
	}

	// Create new entry
	e := &entry{
		key:         key,
		payload:     stored,
		documentIDs: docs,
		expiresAt:   time.Now().Add(ttl),
	}
	e.element = c.order.PushFront(e)
	c.cache[key] = e
	c.linkDocs(e)
}

// InvalidateDocument removes every entry grounded on the document.
// Returns the number of entries removed.
func (c *LRUCache) InvalidateDocument(documentID int32) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, ok := c.byDoc[documentID]
	if !ok {
		return 0
	}

	count := 0
	for key := range keys {
		if e, ok := c.cache[key]; ok {
			c.removeEntry(e)
			count++
		}
	}
	return count
}

// Size returns the number of entries in the cache.
func (c *LRUCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Clear removes all entries and returns how many were dropped.
func (c *LRUCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := len(c.cache)
	c.cache = make(map[string]*entry)
	c.order.Init()
	c.byDoc = make(map[int32]map[string]struct{})
	return count
}

// CleanupExpired removes all expired entries.
// Returns the number of entries removed.
func (c *LRUCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Collect expired entries first to avoid modifying map during iteration
	var toDelete []*entry
	now := time.Now()

	for _, e := range c.cache {
		if now.After(e.expiresAt) {
			toDelete = append(toDelete, e)
		}
	}

	for _, e := range toDelete {
		c.removeEntry(e)
	}

	return len(toDelete)
}

// evictOldest removes the least recently used entry.
// Must be called with lock held.
func (c *LRUCache) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.removeEntry(oldest.Value.(*entry))
}

// removeEntry removes an entry and its reverse index links.
// Must be called with lock held.
func (c *LRUCache) removeEntry(e *entry) {
	c.order.Remove(e.element)
	delete(c.cache, e.key)
	c.unlinkDocs(e)
}

// linkDocs registers the entry under each of its documents.
// Must be called with lock held.
func (c *LRUCache) linkDocs(e *entry) {
	for _, id := range e.documentIDs {
		keys, ok := c.byDoc[id]
		if !ok {
			keys = make(map[string]struct{})
			c.byDoc[id] = keys
		}
		keys[e.key] = struct{}{}
	}
}

// unlinkDocs removes the entry from the reverse index.
// Must be called with lock held.
func (c *LRUCache) unlinkDocs(e *entry) {
	for _, id := range e.documentIDs {
		keys, ok := c.byDoc[id]
		if !ok {
			continue
		}
		delete(keys, e.key)
		if len(keys) == 0 {
			delete(c.byDoc, id)
		}
	}
}
