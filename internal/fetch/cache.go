package fetch

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"intel-mcp/internal/mcp"
)

type cacheItem struct {
	value      *mcp.FetchResponse
	expiration time.Time
}

// Cache is a minimal in-memory TTL cache of upstream responses safe for concurrent access.
type Cache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	now   func() time.Time
}

// NewCache constructs an empty Cache instance.
func NewCache() *Cache { return &Cache{items: make(map[string]cacheItem), now: time.Now} }

// Set stores a value with a time-to-live for the given key.
func (c *Cache) Set(key string, value *mcp.FetchResponse, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheItem{value: value, expiration: c.now().Add(ttl)}
}

// Get retrieves a non-expired value for the key, returning false if missing or expired.
func (c *Cache) Get(key string) (*mcp.FetchResponse, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(it.expiration) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return nil, false
	}
	return it.value, true
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Caching wraps a fetcher and keeps successful responses for a TTL.
type Caching struct {
	next  mcp.RemoteFetcher
	cache *Cache
	ttl   time.Duration
}

// WithCache returns next unchanged when ttl is not positive.
func WithCache(next mcp.RemoteFetcher, ttl time.Duration) mcp.RemoteFetcher {
	if ttl <= 0 {
		return next
	}
	return &Caching{next: next, cache: NewCache(), ttl: ttl}
}

// Get implements mcp.RemoteFetcher.
func (f *Caching) Get(ctx context.Context, url string, headers map[string]string) (*mcp.FetchResponse, error) {
	key := cacheKey(url, headers)
	if v, ok := f.cache.Get(key); ok {
		return v, nil
	}
	resp, err := f.next.Get(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	if resp.OK() {
		f.cache.Set(key, resp, f.ttl)
	}
	return resp, nil
}

func cacheKey(url string, headers map[string]string) string {
	if len(headers) == 0 {
		return url
	}
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(url)
	for _, k := range names {
		b.WriteString("\n")
		b.WriteString(strings.ToLower(k))
		b.WriteString("=")
		b.WriteString(headers[k])
	}
	return b.String()
}
