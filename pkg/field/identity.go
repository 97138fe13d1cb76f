package field

import (
	"sync"
	"sync/atomic"
)

// MappingCache memoizes identity mappings by spatial size. Identity
// mappings are pure functions of their size, so cache writes are
// idempotent: two goroutines racing to populate the same size publish
// identical entries. Entries are immutable once stored; lookups return
// defensive copies so callers can mutate their result freely.
//
// The cache is bounded: once maxEntries sizes are resident, further sizes
// are computed on demand without being stored. A maxEntries of zero
// disables caching entirely, which tests use to exercise the uncached
// path.
type MappingCache struct {
	mu         sync.RWMutex
	entries    map[int]*Field
	maxEntries int

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMappingCache returns a cache holding at most maxEntries identity
// mappings.
func NewMappingCache(maxEntries int) *MappingCache {
	return &MappingCache{
		entries:    make(map[int]*Field),
		maxEntries: maxEntries,
	}
}

// defaultMappingCache serves IdentityMapping. Identity mappings are
// reused constantly during sampling and composition, so a modest number
// of distinct tile sizes covers a whole alignment run.
var defaultMappingCache = NewMappingCache(16)

// IdentityMapping returns the absolute coordinate grid of the given size
// as a (1, 2, size, size) field-shaped tensor: the value of pixel i along
// each axis is (2i+1)/size - 1, placing -1 and +1 at the true image edges.
//
// Note this is not an identity displacement field; sampling with it will
// not return the input. Use Identity for the zero displacement field.
// Results come from a process-wide cache; use a MappingCache directly for
// an isolated or disabled cache.
func IdentityMapping(size int) *Field {
	return defaultMappingCache.IdentityMapping(size)
}

// IdentityMapping returns the identity mapping for the given size,
// serving it from the cache when resident.
func (c *MappingCache) IdentityMapping(size int) *Field {
	c.mu.RLock()
	cached, ok := c.entries[size]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return cached.Clone()
	}
	c.misses.Add(1)

	id := makeIdentityMapping(size)
	c.mu.Lock()
	if _, ok := c.entries[size]; !ok && len(c.entries) < c.maxEntries {
		c.entries[size] = id.Clone()
	}
	c.mu.Unlock()
	return id
}

// Stats returns the number of cache hits and misses so far.
func (c *MappingCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of resident entries.
func (c *MappingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func makeIdentityMapping(size int) *Field {
	f := New(1, size)
	plane := size * size
	inv := 1 / float64(size)
	for y := 0; y < size; y++ {
		cy := float64(2*y+1)*inv - 1
		for x := 0; x < size; x++ {
			cx := float64(2*x+1)*inv - 1
			f.t.data[y*size+x] = cx         // channel 0: column coordinate
			f.t.data[plane+y*size+x] = cy   // channel 1: row coordinate
		}
	}
	return f
}
