package fetcher

import (
	"golang.org/x/sync/singleflight"
)

// Group de-duplicates concurrent calls for the same key.
type Group[V any] struct {
	g singleflight.Group
}

func (g *Group[V]) Do(key string, fn func() (V, error)) (V, error, bool) {
	v, err, shared := g.g.Do(key, func() (interface{}, error) {
		return fn()
	})
	out, _ := v.(V)
	return out, err, shared
}

// Memo returns the cached value for key, or computes it once across
// concurrent callers and caches it on success.
func Memo[V any](c *Cache[V], g *Group[V], key string, fn func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := g.Do(key, func() (V, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		return fn()
	})
	if err == nil {
		c.Set(key, v)
	}
	return v, err
}
