package cache

import (
	"runtime"
	"sync/atomic"
	"time"
	"weak"

	iradix "github.com/hashicorp/go-immutable-radix"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vnykmshr/obmemo-go/internal/entry"
	"github.com/vnykmshr/obmemo-go/internal/lazy"
)

// SoftCache holds its deferred values through weak pointers. Once the garbage
// collector reclaims a value its key reads as absent, and the runtime cleanup
// registered for it advances a shared reclaim counter. The next Hit or Miss
// that sees the counter moved sweeps its own tree for dead pointers, so a
// transition that is discarded after a failed swap leaves nothing behind.
//
// The retention window keeps the most recently touched values strongly
// reachable so that they survive collections; a window of zero leaves every
// value to the collector.
type SoftCache struct {
	transition
	refs     *iradix.Tree // key -> *softRef
	reclaims *reclaimCounter
	swept    uint64 // reclaims seen when refs was last swept
	retained *lru.Cache[string, *lazy.Value]
	retain   int
}

type softRef struct {
	key       string
	args      []any
	createdAt time.Time
	ref       weak.Pointer[lazy.Value]
}

func (r *softRef) entry() (*entry.Entry, bool) {
	v := r.ref.Value()
	if v == nil {
		return nil, false
	}
	return entry.New(r.key, r.args, v, r.createdAt), true
}

func (r *softRef) dead() *entry.Entry {
	return &entry.Entry{Key: r.key, Args: r.args, CreatedAt: r.createdAt}
}

// reclaimCounter counts values reclaimed by the collector. It is shared by
// every cache value derived from the same empty cache.
type reclaimCounter struct {
	n atomic.Uint64
}

func (rc *reclaimCounter) reclaimed(string) {
	rc.n.Add(1)
}

// NewSoft creates an empty soft cache keeping up to retain values strongly reachable
func NewSoft(retain int) *SoftCache {
	return &SoftCache{
		refs:     iradix.New(),
		reclaims: &reclaimCounter{},
		retained: newRetention(retain),
		retain:   retain,
	}
}

func newRetention(size int) *lru.Cache[string, *lazy.Value] {
	if size <= 0 {
		return nil
	}
	retained, err := lru.New[string, *lazy.Value](size)
	if err != nil {
		panic("cache: soft retention: " + err.Error())
	}
	return retained
}

func (c *SoftCache) clone() *SoftCache {
	return &SoftCache{
		refs:     c.refs,
		reclaims: c.reclaims,
		swept:    c.swept,
		retained: c.retained,
		retain:   c.retain,
	}
}

func (c *SoftCache) get(key string) (*softRef, bool) {
	v, ok := c.refs.Get([]byte(key))
	if !ok {
		return nil, false
	}
	return v.(*softRef), true
}

// reclaimed returns the refs of this value whose values have been collected
func (c *SoftCache) reclaimed() []*softRef {
	var dead []*softRef
	c.refs.Root().Walk(func(_ []byte, v interface{}) bool {
		if r := v.(*softRef); r.ref.Value() == nil {
			dead = append(dead, r)
		}
		return false
	})
	return dead
}

// Pending returns how many reclaimed entries the next Hit or Miss will purge
func (c *SoftCache) Pending() int {
	if c.reclaims.n.Load() == c.swept {
		return 0
	}
	return len(c.reclaimed())
}

// purge removes the entries whose values have been reclaimed since this
// value's tree was last swept. It only touches the receiver.
func (c *SoftCache) purge() {
	seen := c.reclaims.n.Load()
	if seen == c.swept {
		return
	}
	for _, r := range c.reclaimed() {
		c.refs, _, _ = c.refs.Delete([]byte(r.key))
		c.record(r.dead(), ReasonReclaimed)
	}
	c.swept = seen
}

func (c *SoftCache) retainValue(key string, v *lazy.Value) {
	if c.retained != nil {
		c.retained.Add(key, v)
	}
}

func (c *SoftCache) track(e *entry.Entry) *softRef {
	runtime.AddCleanup(e.Value, c.reclaims.reclaimed, e.Key)
	return &softRef{
		key:       e.Key,
		args:      e.Args,
		createdAt: e.CreatedAt,
		ref:       weak.Make(e.Value),
	}
}

// Has reports whether key's value is still reachable
func (c *SoftCache) Has(key string) bool {
	r, ok := c.get(key)
	return ok && r.ref.Value() != nil
}

// Hit purges reclaimed keys and refreshes key in the retention window
func (c *SoftCache) Hit(key string) Cache {
	next := c.clone()
	next.purge()
	if r, ok := next.get(key); ok {
		if v := r.ref.Value(); v != nil {
			next.retainValue(key, v)
		}
	}
	return next
}

// Miss purges reclaimed keys and inserts e
func (c *SoftCache) Miss(e *entry.Entry) Cache {
	next := c.clone()
	next.purge()
	next.refs, _, _ = next.refs.Insert([]byte(e.Key), next.track(e))
	next.retainValue(e.Key, e.Value)
	return next
}

// Lookup returns the entry for key if its value is still reachable
func (c *SoftCache) Lookup(key string) (*entry.Entry, bool) {
	r, ok := c.get(key)
	if !ok {
		return nil, false
	}
	return r.entry()
}

// Seed replaces all entries with a fresh retention window
func (c *SoftCache) Seed(entries []*entry.Entry) Cache {
	next := &SoftCache{
		reclaims: c.reclaims,
		swept:    c.reclaims.n.Load(),
		retained: newRetention(c.retain),
		retain:   c.retain,
	}
	txn := iradix.New().Txn()
	for _, e := range entries {
		txn.Insert([]byte(e.Key), next.track(e))
		next.retainValue(e.Key, e.Value)
	}
	next.refs = txn.Commit()
	return next
}

// Evict removes key and releases it from the retention window
func (c *SoftCache) Evict(key string, reason Reason) Cache {
	next := c.clone()
	if r, ok := next.get(key); ok {
		next.refs, _, _ = next.refs.Delete([]byte(key))
		if next.retained != nil {
			next.retained.Remove(key)
		}
		e, live := r.entry()
		if !live {
			e = r.dead()
		}
		next.record(e, reason)
	}
	return next
}

// Len returns the number of reachable entries
func (c *SoftCache) Len() int {
	n := 0
	c.Walk(func(*entry.Entry) bool {
		n++
		return true
	})
	return n
}

// Walk visits reachable entries in key order
func (c *SoftCache) Walk(fn func(e *entry.Entry) bool) {
	c.refs.Root().Walk(func(_ []byte, v interface{}) bool {
		e, ok := v.(*softRef).entry()
		if !ok {
			return false
		}
		return !fn(e)
	})
}

// Policy returns Soft
func (c *SoftCache) Policy() Policy { return Soft }

// Limit returns 0; soft caches are bounded only by memory
func (c *SoftCache) Limit() int { return 0 }

// TTL returns 0; soft entries never expire
func (c *SoftCache) TTL() time.Duration { return 0 }

var _ Cache = (*SoftCache)(nil)
