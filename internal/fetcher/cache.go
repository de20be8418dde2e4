package fetcher

import "sync"

// Cache is a concurrency-safe memo keyed by string. Values are never evicted
// during a run.
type Cache[V any] struct {
	data sync.Map
}

func NewCache[V any]() *Cache[V] {
	return &Cache[V]{}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.data.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (c *Cache[V]) Set(key string, value V) {
	c.data.Store(key, value)
}
