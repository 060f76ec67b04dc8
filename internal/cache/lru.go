package cache

import (
	"time"

	"github.com/vnykmshr/obmemo-go/internal/entry"
)

// LRUCache evicts the least recently touched key once it holds more than limit entries.
// A logical clock ticks on every hit and miss; each key remembers the tick of its last touch.
type LRUCache struct {
	transition
	table table
	ticks marks // key -> last touch
	order index // last touch -> key
	clock uint64
	limit int
}

// NewLRU creates an empty LRU cache holding at most limit entries
func NewLRU(limit int) *LRUCache {
	return &LRUCache{
		table: newTable(),
		ticks: newMarks(),
		order: newIndex(),
		limit: limit,
	}
}

func (c *LRUCache) clone() *LRUCache {
	return &LRUCache{
		table: c.table,
		ticks: c.ticks,
		order: c.order,
		clock: c.clock,
		limit: c.limit,
	}
}

func (c *LRUCache) touch(key string) {
	c.clock++
	if old, ok := c.ticks.get(key); ok {
		c.order = c.order.remove(old, key)
	}
	c.ticks = c.ticks.set(key, c.clock)
	c.order = c.order.add(c.clock, key)
}

// Has reports whether key is cached
func (c *LRUCache) Has(key string) bool {
	_, ok := c.table.get(key)
	return ok
}

// Hit marks key as most recently used
func (c *LRUCache) Hit(key string) Cache {
	next := c.clone()
	if _, ok := next.table.get(key); ok {
		next.touch(key)
	}
	return next
}

// Miss inserts e as most recently used and evicts the least recently used keys while over limit
func (c *LRUCache) Miss(e *entry.Entry) Cache {
	next := c.clone()
	next.touch(e.Key)
	next.table = next.table.put(e)

	for next.table.len() > next.limit {
		tick, victim, ok := next.order.firstExcept(e.Key)
		if !ok {
			break
		}
		next.drop(tick, victim, ReasonCapacity)
	}
	return next
}

func (c *LRUCache) drop(tick uint64, key string, reason Reason) {
	var old *entry.Entry
	c.table, old = c.table.mustRemove(key, LRU)
	c.ticks = c.ticks.remove(key)
	c.order = c.order.remove(tick, key)
	c.record(old, reason)
}

// Lookup returns the entry for key without touching it
func (c *LRUCache) Lookup(key string) (*entry.Entry, bool) {
	return c.table.get(key)
}

// Seed replaces all entries; earlier entries count as less recently used
func (c *LRUCache) Seed(entries []*entry.Entry) Cache {
	next := NewLRU(c.limit)
	next.table = seedTable(entries)
	for _, e := range entries {
		next.touch(e.Key)
	}
	return next
}

// Evict removes key
func (c *LRUCache) Evict(key string, reason Reason) Cache {
	next := c.clone()
	if tick, ok := next.ticks.get(key); ok {
		next.drop(tick, key, reason)
	}
	return next
}

// Len returns the number of entries
func (c *LRUCache) Len() int { return c.table.len() }

// Walk visits entries least recently used first
func (c *LRUCache) Walk(fn func(e *entry.Entry) bool) {
	c.order.walk(func(_ uint64, key string) bool {
		e, ok := c.table.get(key)
		if !ok {
			panic("cache: lru order references missing key " + key)
		}
		return fn(e)
	})
}

// Policy returns LRU
func (c *LRUCache) Policy() Policy { return LRU }

// Limit returns the capacity
func (c *LRUCache) Limit() int { return c.limit }

// TTL returns 0; LRU entries never expire
func (c *LRUCache) TTL() time.Duration { return 0 }

var _ Cache = (*LRUCache)(nil)
