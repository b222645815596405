package linkcheck

import (
	"context"
	"sync"
	"time"
)

// CacheEntry represents a cached external link verification result.
type CacheEntry struct {
	URL         string    `json:"url"`
	Status      int       `json:"status"`
	IsValid     bool      `json:"is_valid"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// BrokenLinkEvent is published when a broken link is discovered.
type BrokenLinkEvent struct {
	URL        string    `json:"url"`
	Status     int       `json:"status"` // HTTP status code (0 for non-HTTP errors)
	Error      string    `json:"error"`
	IsInternal bool      `json:"is_internal"`
	SourcePage string    `json:"source_page"` // page path relative to the build output
	RunID      string    `json:"run_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Cache abstracts the external link result cache. Get returns (nil, nil) on a
// miss. PublishBrokenLink is a no-op for purely local caches.
type Cache interface {
	Get(ctx context.Context, url string) (*CacheEntry, error)
	Set(ctx context.Context, entry *CacheEntry) error
	Valid(entry *CacheEntry) bool
	PublishBrokenLink(ctx context.Context, event *BrokenLinkEvent) error
	Close() error
}

// MemoryCache is the default process-local cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*CacheEntry
	ttl     time.Duration
}

// NewMemoryCache creates an in-memory cache with the given TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*CacheEntry),
		ttl:     ttl,
	}
}

// Get returns a cached entry or (nil, nil) on a miss.
func (c *MemoryCache) Get(_ context.Context, url string) (*CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[url]; ok {
		cp := *entry
		return &cp, nil
	}
	return nil, nil
}

// Set stores an entry.
func (c *MemoryCache) Set(_ context.Context, entry *CacheEntry) error {
	if entry == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.LastChecked = time.Now()
	cp := *entry
	c.entries[entry.URL] = &cp
	return nil
}

// Valid reports whether the entry is still within TTL.
func (c *MemoryCache) Valid(entry *CacheEntry) bool {
	if entry == nil {
		return false
	}
	return time.Since(entry.LastChecked) < c.ttl
}

// PublishBrokenLink is a no-op for the local cache.
func (c *MemoryCache) PublishBrokenLink(context.Context, *BrokenLinkEvent) error { return nil }

// Close is a no-op for the local cache.
func (c *MemoryCache) Close() error { return nil }
