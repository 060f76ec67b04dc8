package cache

import (
	"time"

	"github.com/vnykmshr/obmemo-go/internal/entry"
)

// FIFOCache evicts in insertion order once it holds more than limit entries.
// Hits never reorder keys.
type FIFOCache struct {
	transition
	table table
	seqs  marks // key -> insertion sequence
	order index // insertion sequence -> key
	next  uint64
	limit int
}

// NewFIFO creates an empty FIFO cache holding at most limit entries
func NewFIFO(limit int) *FIFOCache {
	return &FIFOCache{
		table: newTable(),
		seqs:  newMarks(),
		order: newIndex(),
		limit: limit,
	}
}

func (c *FIFOCache) clone() *FIFOCache {
	return &FIFOCache{
		table: c.table,
		seqs:  c.seqs,
		order: c.order,
		next:  c.next,
		limit: c.limit,
	}
}

// Has reports whether key is cached
func (c *FIFOCache) Has(key string) bool {
	_, ok := c.table.get(key)
	return ok
}

// Hit returns an equivalent cache; FIFO order ignores accesses
func (c *FIFOCache) Hit(string) Cache {
	return c.clone()
}

// Miss inserts e at the back of the queue and evicts from the front while over limit.
// Re-inserting a queued key keeps its position.
func (c *FIFOCache) Miss(e *entry.Entry) Cache {
	next := c.clone()
	if _, queued := next.seqs.get(e.Key); !queued {
		next.seqs = next.seqs.set(e.Key, next.next)
		next.order = next.order.add(next.next, e.Key)
		next.next++
	}
	next.table = next.table.put(e)

	for next.table.len() > next.limit {
		seq, victim, ok := next.order.firstExcept(e.Key)
		if !ok {
			break
		}
		next.drop(seq, victim, ReasonCapacity)
	}
	return next
}

func (c *FIFOCache) drop(seq uint64, key string, reason Reason) {
	var old *entry.Entry
	c.table, old = c.table.mustRemove(key, FIFO)
	c.seqs = c.seqs.remove(key)
	c.order = c.order.remove(seq, key)
	c.record(old, reason)
}

// Lookup returns the entry for key
func (c *FIFOCache) Lookup(key string) (*entry.Entry, bool) {
	return c.table.get(key)
}

// Seed replaces all entries, queueing them in the given order
func (c *FIFOCache) Seed(entries []*entry.Entry) Cache {
	next := NewFIFO(c.limit)
	next.table = seedTable(entries)
	for _, e := range entries {
		if _, ok := next.seqs.get(e.Key); ok {
			continue
		}
		next.seqs = next.seqs.set(e.Key, next.next)
		next.order = next.order.add(next.next, e.Key)
		next.next++
	}
	return next
}

// Evict removes key
func (c *FIFOCache) Evict(key string, reason Reason) Cache {
	next := c.clone()
	if seq, ok := next.seqs.get(key); ok {
		next.drop(seq, key, reason)
	}
	return next
}

// Len returns the number of entries
func (c *FIFOCache) Len() int { return c.table.len() }

// Walk visits entries oldest insertion first
func (c *FIFOCache) Walk(fn func(e *entry.Entry) bool) {
	c.order.walk(func(_ uint64, key string) bool {
		e, ok := c.table.get(key)
		if !ok {
			panic("cache: fifo order references missing key " + key)
		}
		return fn(e)
	})
}

// Policy returns FIFO
func (c *FIFOCache) Policy() Policy { return FIFO }

// Limit returns the capacity
func (c *FIFOCache) Limit() int { return c.limit }

// TTL returns 0; FIFO entries never expire
func (c *FIFOCache) TTL() time.Duration { return 0 }

var _ Cache = (*FIFOCache)(nil)
