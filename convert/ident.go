package convert

import "sync"

// ident memoises one value per key. The first caller for a key computes
// it; concurrent callers for the same key wait for that result.
type ident[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*identEntry[V]
}

type identEntry[V any] struct {
	once sync.Once
	val  V
}

func newIdent[K comparable, V any]() *ident[K, V] {
	return &ident[K, V]{entries: make(map[K]*identEntry[V])}
}

// Do returns the value for key, calling fn if no value exists yet. hit
// reports whether the value came from an earlier call.
func (c *ident[K, V]) Do(key K, fn func() V) (val V, hit bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &identEntry[V]{}
		c.entries[key] = e
	}
	c.mu.Unlock()
	hit = true
	e.once.Do(func() {
		hit = false
		e.val = fn()
	})
	return e.val, hit
}

func (c *ident[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
