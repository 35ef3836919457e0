package nominatim

import (
	"container/list"
	"context"
	"strings"
	"sync"

	"github.com/jobrunner/geosight/internal/domain"
	"github.com/jobrunner/geosight/internal/ports/output"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache. Only
// successful lookups are cached so that failures can be retried.
type CachedGeocoder struct {
	inner output.Geocoder
	cache *lruCache
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner output.Geocoder, maxEntries int) *CachedGeocoder {
	return &CachedGeocoder{inner: inner, cache: newLRUCache(maxEntries)}
}

// Resolve implements output.Geocoder.
func (c *CachedGeocoder) Resolve(ctx context.Context, name string) (domain.GeoPoint, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if p, ok := c.cache.get(key); ok {
		return p, nil
	}
	p, err := c.inner.Resolve(ctx, name)
	if err != nil {
		return p, err
	}
	c.cache.put(key, p)
	return p, nil
}

// lruCache is a thread-safe LRU cache of resolved places.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	order      *list.List // front is most recently used
	entries    map[string]*list.Element
}

type entry struct {
	key   string
	value domain.GeoPoint
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) (domain.GeoPoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return domain.GeoPoint{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

func (c *lruCache) put(key string, value domain.GeoPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).value = value
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&entry{key: key, value: value})
	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
