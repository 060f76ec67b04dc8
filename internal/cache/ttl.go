package cache

import (
	"time"

	"github.com/vnykmshr/obmemo-go/internal/entry"
)

// TTLCache drops entries ttl after they were inserted.
// Expiry is checked on access; every miss sweeps all expired entries before inserting.
type TTLCache struct {
	transition
	table    table
	expiries index // expiry instant -> key
	ttl      time.Duration
	clock    Clock
}

// NewTTL creates an empty TTL cache. A nil clock means time.Now.
func NewTTL(ttl time.Duration, clock Clock) *TTLCache {
	if clock == nil {
		clock = time.Now
	}
	return &TTLCache{
		table:    newTable(),
		expiries: newIndex(),
		ttl:      ttl,
		clock:    clock,
	}
}

func (c *TTLCache) clone() *TTLCache {
	return &TTLCache{
		table:    c.table,
		expiries: c.expiries,
		ttl:      c.ttl,
		clock:    c.clock,
	}
}

// instant maps t onto an unsigned number with the same ordering
func instant(t time.Time) uint64 {
	return uint64(t.UnixNano()) ^ (1 << 63)
}

func (c *TTLCache) live(key string, now time.Time) (*entry.Entry, bool) {
	e, ok := c.table.get(key)
	if !ok || e.IsExpired(now) {
		return nil, false
	}
	return e, true
}

// Has reports whether key has an unexpired entry
func (c *TTLCache) Has(key string) bool {
	_, ok := c.live(key, c.clock())
	return ok
}

// Hit returns an equivalent cache; accesses do not extend an entry's life
func (c *TTLCache) Hit(string) Cache {
	return c.clone()
}

// Miss sweeps every expired entry, then inserts e expiring ttl from now
func (c *TTLCache) Miss(e *entry.Entry) Cache {
	now := c.clock()
	next := c.clone()
	next.sweep(now)

	if old, ok := next.table.get(e.Key); ok {
		next.expiries = next.expiries.remove(instant(*old.ExpiresAt), old.Key)
	}
	fresh := e.WithExpiry(now, next.ttl)
	next.table = next.table.put(fresh)
	next.expiries = next.expiries.add(instant(*fresh.ExpiresAt), fresh.Key)
	return next
}

func (c *TTLCache) sweep(now time.Time) {
	limit := instant(now)
	var expired []string
	var at []uint64
	c.expiries.walk(func(n uint64, key string) bool {
		if n > limit {
			return false
		}
		expired = append(expired, key)
		at = append(at, n)
		return true
	})

	for i, key := range expired {
		var old *entry.Entry
		c.table, old = c.table.mustRemove(key, TTL)
		c.expiries = c.expiries.remove(at[i], key)
		c.record(old, ReasonExpired)
	}
}

// Lookup returns the unexpired entry for key
func (c *TTLCache) Lookup(key string) (*entry.Entry, bool) {
	return c.live(key, c.clock())
}

// Seed replaces all entries, each expiring ttl from now
func (c *TTLCache) Seed(entries []*entry.Entry) Cache {
	now := c.clock()
	next := NewTTL(c.ttl, c.clock)
	fresh := make([]*entry.Entry, 0, len(entries))
	for _, e := range entries {
		fresh = append(fresh, e.WithExpiry(now, c.ttl))
	}
	next.table = seedTable(fresh)
	next.table.walk(func(e *entry.Entry) bool {
		next.expiries = next.expiries.add(instant(*e.ExpiresAt), e.Key)
		return true
	})
	return next
}

// Evict removes key
func (c *TTLCache) Evict(key string, reason Reason) Cache {
	next := c.clone()
	if old, ok := next.table.get(key); ok {
		next.table, _ = next.table.mustRemove(key, TTL)
		next.expiries = next.expiries.remove(instant(*old.ExpiresAt), key)
		next.record(old, reason)
	}
	return next
}

// Len returns the number of unexpired entries
func (c *TTLCache) Len() int {
	n := 0
	c.Walk(func(*entry.Entry) bool {
		n++
		return true
	})
	return n
}

// Walk visits unexpired entries soonest expiry first
func (c *TTLCache) Walk(fn func(e *entry.Entry) bool) {
	limit := instant(c.clock())
	c.expiries.walk(func(n uint64, key string) bool {
		if n <= limit {
			return true
		}
		e, ok := c.table.get(key)
		if !ok {
			panic("cache: ttl index references missing key " + key)
		}
		return fn(e)
	})
}

// Policy returns TTL
func (c *TTLCache) Policy() Policy { return TTL }

// Limit returns 0; TTL caches have no capacity bound
func (c *TTLCache) Limit() int { return 0 }

// TTL returns the entry lifetime
func (c *TTLCache) TTL() time.Duration { return c.ttl }

var _ Cache = (*TTLCache)(nil)
