package source

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/paveg/pivotgrid/internal/dataframe"
)

// CacheObserver is notified of every cache lookup.
type CacheObserver func(hit bool)

// Cache memoizes a Source by exact query text. Entries never expire; use
// Invalidate or Reset to drop them. Failed fetches are not stored.
//
// Cached frames are shared by every caller and must not be released.
type Cache struct {
	src      Source
	observer CacheObserver

	mu      sync.Mutex
	entries map[string]*dataframe.DataFrame

	hits   atomic.Uint64
	misses atomic.Uint64
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithObserver registers fn to be called on every lookup.
func WithObserver(fn CacheObserver) CacheOption {
	return func(c *Cache) {
		c.observer = fn
	}
}

// NewCache wraps src.
func NewCache(src Source, opts ...CacheOption) *Cache {
	c := &Cache{
		src:     src,
		entries: make(map[string]*dataframe.DataFrame),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the cached result for query, fetching it on first use.
func (c *Cache) Fetch(ctx context.Context, query string) (*dataframe.DataFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if df, ok := c.entries[query]; ok {
		c.hits.Add(1)
		c.notify(true)
		return df, nil
	}

	c.misses.Add(1)
	c.notify(false)

	df, err := c.src.Fetch(ctx, query)
	if err != nil {
		return nil, err
	}
	c.entries[query] = df
	return df, nil
}

func (c *Cache) notify(hit bool) {
	if c.observer != nil {
		c.observer(hit)
	}
}

// Invalidate drops the entry for query, if any.
func (c *Cache) Invalidate(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, query)
}

// Reset drops every entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len returns the number of cached queries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the lookup counters.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

var _ Source = (*Cache)(nil)
var _ Source = (*SQLSource)(nil)
