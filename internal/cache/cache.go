// Package cache keeps recent search results in memory so repeated queries are
// answered without driving a browser session.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xkilldash9x/markasorgu/api/schemas"
	"github.com/xkilldash9x/markasorgu/internal/config"
	"github.com/xkilldash9x/markasorgu/internal/observability"
)

type key struct {
	text  string
	limit int
}

// SearchCache is a size bounded, TTL expiring cache of search results.
// A nil *SearchCache is valid and never hits.
type SearchCache struct {
	lru *expirable.LRU[key, []schemas.BrandRecord]
}

// New returns a cache for cfg, or nil when caching is disabled.
func New(cfg config.CacheConfig) *SearchCache {
	if !cfg.Enabled || cfg.Size <= 0 {
		return nil
	}
	return &SearchCache{lru: expirable.NewLRU[key, []schemas.BrandRecord](cfg.Size, nil, cfg.TTL)}
}

// NewWithTTL returns an enabled cache with the given bounds.
func NewWithTTL(size int, ttl time.Duration) *SearchCache {
	return New(config.CacheConfig{Enabled: true, Size: size, TTL: ttl})
}

// Get returns a copy of the cached records for q.
func (c *SearchCache) Get(q schemas.SearchQuery) ([]schemas.BrandRecord, bool) {
	if c == nil {
		return nil, false
	}
	records, ok := c.lru.Get(key{text: q.Text, limit: q.Limit})
	if !ok {
		observability.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	observability.CacheLookups.WithLabelValues("hit").Inc()
	out := make([]schemas.BrandRecord, len(records))
	copy(out, records)
	return out, true
}

// Add stores a copy of records for q.
func (c *SearchCache) Add(q schemas.SearchQuery, records []schemas.BrandRecord) {
	if c == nil {
		return
	}
	c.lru.Add(key{text: q.Text, limit: q.Limit}, append([]schemas.BrandRecord{}, records...))
}

// Len returns the number of live entries.
func (c *SearchCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Purge drops every entry.
func (c *SearchCache) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}
