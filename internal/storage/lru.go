package storage

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/maneesh/docsync/internal/models"
)

// LRUEntryCache is an in-process entry cache used when Redis is disabled
type LRUEntryCache struct {
	cache *expirable.LRU[string, []models.IndexEntry]
}

// NewLRUEntryCache keeps at most size owners for ttl each
func NewLRUEntryCache(size int, ttl time.Duration) *LRUEntryCache {
	if size <= 0 {
		size = 1024
	}
	return &LRUEntryCache{
		cache: expirable.NewLRU[string, []models.IndexEntry](size, nil, ttl),
	}
}

// GetEntries returns a copy of the cached entries
func (c *LRUEntryCache) GetEntries(_ context.Context, ownerID string) ([]models.IndexEntry, bool, error) {
	entries, ok := c.cache.Get(ownerID)
	if !ok {
		return nil, false, nil
	}
	return append([]models.IndexEntry(nil), entries...), true, nil
}

// SetEntries stores a copy of entries
func (c *LRUEntryCache) SetEntries(_ context.Context, ownerID string, entries []models.IndexEntry) error {
	c.cache.Add(ownerID, append([]models.IndexEntry(nil), entries...))
	return nil
}

// Invalidate drops the owner's entries
func (c *LRUEntryCache) Invalidate(_ context.Context, ownerID string) error {
	c.cache.Remove(ownerID)
	return nil
}

// Close is a no-op
func (c *LRUEntryCache) Close() error {
	return nil
}
