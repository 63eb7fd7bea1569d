package bundler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CachedGrouper wraps a Grouper and remembers grouped stations in a JSON
// file, so re-ingesting an unchanged station costs no model call.
type CachedGrouper struct {
	next          Grouper
	cache         map[string]StationMenu
	cacheFilePath string
	onLookup      func(hit bool)
	mu            sync.Mutex
}

// CacheOption configures a CachedGrouper.
type CacheOption func(*CachedGrouper)

// WithLookupHook registers fn to be called on every cache lookup.
func WithLookupHook(fn func(hit bool)) CacheOption {
	return func(c *CachedGrouper) { c.onLookup = fn }
}

// NewCachedGrouper creates a CachedGrouper, loading cacheFilePath if it exists.
func NewCachedGrouper(next Grouper, cacheFilePath string, opts ...CacheOption) (*CachedGrouper, error) {
	c := &CachedGrouper{
		next:          next,
		cache:         make(map[string]StationMenu),
		cacheFilePath: cacheFilePath,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := os.MkdirAll(filepath.Dir(cacheFilePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := os.ReadFile(cacheFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read cache file %s: %w", cacheFilePath, err)
	}
	if err := json.Unmarshal(data, &c.cache); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data from %s: %w", cacheFilePath, err)
	}
	return c, nil
}

func cacheKey(station string, items []string) string {
	return station + "\x1f" + strings.Join(items, "\x1e")
}

// GroupStation serves from the cache when the same station and item list
// were grouped before. Cached results carry no usage metadata.
func (c *CachedGrouper) GroupStation(ctx context.Context, station string, items []string) (Result, error) {
	key := cacheKey(station, items)

	c.mu.Lock()
	cached, ok := c.cache[key]
	c.mu.Unlock()
	if c.onLookup != nil {
		c.onLookup(ok)
	}
	if ok {
		return Result{Menu: cached}, nil
	}

	res, err := c.next.GroupStation(ctx, station, items)
	if err != nil {
		return Result{}, err
	}

	c.mu.Lock()
	c.cache[key] = res.Menu
	c.mu.Unlock()
	return res, nil
}

// Len returns the number of cached stations.
func (c *CachedGrouper) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// SaveCache persists the in-memory cache.
func (c *CachedGrouper) SaveCache() error {
	c.mu.Lock()
	data, err := json.MarshalIndent(c.cache, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	tmp := c.cacheFilePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file %s: %w", c.cacheFilePath, err)
	}
	if err := os.Rename(tmp, c.cacheFilePath); err != nil {
		return fmt.Errorf("failed to finalize cache file %s: %w", c.cacheFilePath, err)
	}
	return nil
}
