package cache

import (
	"time"

	"github.com/vnykmshr/obmemo-go/internal/entry"
)

// LUCache counts uses per key. Once a miss brings it to limit entries, every
// other key sharing the lowest use count is evicted together.
type LUCache struct {
	transition
	table  table
	counts marks // key -> uses
	order  index // uses -> key
	limit  int
}

// NewLU creates an empty least-used cache with the given limit
func NewLU(limit int) *LUCache {
	return &LUCache{
		table:  newTable(),
		counts: newMarks(),
		order:  newIndex(),
		limit:  limit,
	}
}

func (c *LUCache) clone() *LUCache {
	return &LUCache{
		table:  c.table,
		counts: c.counts,
		order:  c.order,
		limit:  c.limit,
	}
}

func (c *LUCache) setCount(key string, n uint64) {
	if old, ok := c.counts.get(key); ok {
		c.order = c.order.remove(old, key)
	}
	c.counts = c.counts.set(key, n)
	c.order = c.order.add(n, key)
}

// Has reports whether key is cached
func (c *LUCache) Has(key string) bool {
	_, ok := c.table.get(key)
	return ok
}

// Hit adds one use to key
func (c *LUCache) Hit(key string) Cache {
	next := c.clone()
	if n, ok := next.counts.get(key); ok {
		next.setCount(key, n+1)
	}
	return next
}

// Miss inserts e with one use, then evicts the least used keys while at or over limit
func (c *LUCache) Miss(e *entry.Entry) Cache {
	next := c.clone()
	next.setCount(e.Key, 1)
	next.table = next.table.put(e)

	for next.table.len() >= next.limit {
		if !next.evictFloor(e.Key) {
			break
		}
	}
	return next
}

// evictFloor removes every key except keep that has the lowest use count
func (c *LUCache) evictFloor(keep string) bool {
	floor, _, ok := c.order.firstExcept(keep)
	if !ok {
		return false
	}

	var victims []string
	c.order.walk(func(n uint64, key string) bool {
		if n > floor {
			return false
		}
		if n == floor && key != keep {
			victims = append(victims, key)
		}
		return true
	})

	for _, key := range victims {
		c.drop(floor, key, ReasonCapacity)
	}
	return len(victims) > 0
}

func (c *LUCache) drop(n uint64, key string, reason Reason) {
	var old *entry.Entry
	c.table, old = c.table.mustRemove(key, LU)
	c.counts = c.counts.remove(key)
	c.order = c.order.remove(n, key)
	c.record(old, reason)
}

// Lookup returns the entry for key without counting a use
func (c *LUCache) Lookup(key string) (*entry.Entry, bool) {
	return c.table.get(key)
}

// Seed replaces all entries, each starting with no uses
func (c *LUCache) Seed(entries []*entry.Entry) Cache {
	next := NewLU(c.limit)
	next.table = seedTable(entries)
	for _, e := range entries {
		next.setCount(e.Key, 0)
	}
	return next
}

// Evict removes key
func (c *LUCache) Evict(key string, reason Reason) Cache {
	next := c.clone()
	if n, ok := next.counts.get(key); ok {
		next.drop(n, key, reason)
	}
	return next
}

// Uses returns how many times key has been used
func (c *LUCache) Uses(key string) (uint64, bool) {
	return c.counts.get(key)
}

// Len returns the number of entries
func (c *LUCache) Len() int { return c.table.len() }

// Walk visits entries least used first
func (c *LUCache) Walk(fn func(e *entry.Entry) bool) {
	c.order.walk(func(_ uint64, key string) bool {
		e, ok := c.table.get(key)
		if !ok {
			panic("cache: lu order references missing key " + key)
		}
		return fn(e)
	})
}

// Policy returns LU
func (c *LUCache) Policy() Policy { return LU }

// Limit returns the capacity
func (c *LUCache) Limit() int { return c.limit }

// TTL returns 0; LU entries never expire
func (c *LUCache) TTL() time.Duration { return 0 }

var _ Cache = (*LUCache)(nil)
