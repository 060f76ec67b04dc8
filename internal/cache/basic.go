package cache

import (
	"time"

	"github.com/vnykmshr/obmemo-go/internal/entry"
)

// BasicCache is an unbounded cache that never evicts on its own
type BasicCache struct {
	transition
	table table
}

// NewBasic creates an empty unbounded cache
func NewBasic() *BasicCache {
	return &BasicCache{table: newTable()}
}

// Has reports whether key is cached
func (c *BasicCache) Has(key string) bool {
	_, ok := c.table.get(key)
	return ok
}

// Hit returns an equivalent cache; basic caches keep no access bookkeeping
func (c *BasicCache) Hit(string) Cache {
	return &BasicCache{table: c.table}
}

// Miss inserts e
func (c *BasicCache) Miss(e *entry.Entry) Cache {
	return &BasicCache{table: c.table.put(e)}
}

// Lookup returns the entry for key
func (c *BasicCache) Lookup(key string) (*entry.Entry, bool) {
	return c.table.get(key)
}

// Seed replaces all entries
func (c *BasicCache) Seed(entries []*entry.Entry) Cache {
	return &BasicCache{table: seedTable(entries)}
}

// Evict removes key
func (c *BasicCache) Evict(key string, reason Reason) Cache {
	next := &BasicCache{table: c.table}
	if t, old, ok := c.table.remove(key); ok {
		next.table = t
		next.record(old, reason)
	}
	return next
}

// Len returns the number of entries
func (c *BasicCache) Len() int { return c.table.len() }

// Walk visits entries in key order
func (c *BasicCache) Walk(fn func(e *entry.Entry) bool) { c.table.walk(fn) }

// Policy returns Basic
func (c *BasicCache) Policy() Policy { return Basic }

// Limit returns 0; basic caches are unbounded
func (c *BasicCache) Limit() int { return 0 }

// TTL returns 0; basic entries never expire
func (c *BasicCache) TTL() time.Duration { return 0 }

var _ Cache = (*BasicCache)(nil)
