package obmemo

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/obmemo-go/internal/entry"
	"github.com/vnykmshr/obmemo-go/pkg/metrics"
)

// Snapshot is an immutable, fully computed copy of a memoizer's cache
type Snapshot struct {
	keyFunc KeyFunc
	index   map[string]int
	entries []Seed
}

// Len returns the number of entries
func (s Snapshot) Len() int {
	return len(s.entries)
}

// Get returns the value stored for args
func (s Snapshot) Get(args ...any) (any, bool) {
	if s.keyFunc == nil {
		return nil, false
	}
	key, err := s.keyFunc(args)
	if err != nil {
		return nil, false
	}
	i, ok := s.index[key]
	if !ok {
		return nil, false
	}
	return s.entries[i].Value, true
}

// Entries returns the entries in the cache's policy order.
// The result can be passed to Swap or WithBase.
func (s Snapshot) Entries() []Seed {
	out := make([]Seed, len(s.entries))
	copy(out, s.entries)
	return out
}

// Snapshot forces every live entry of the current cache and returns the results.
// Entries whose computation fails are left out and evicted, as a call would.
// The snapshot reflects one cache value; calls made while it is taken may or
// may not be included.
func (m *Memoizer) Snapshot() Snapshot {
	start := time.Now()
	live := m.state.Load().entries()

	values := make([]any, len(live))
	errs := make([]error, len(live))

	var g errgroup.Group
	g.SetLimit(m.snapshotLimit)
	for i, e := range live {
		g.Go(func() error {
			values[i], errs[i] = e.Value.Force()
			return nil
		})
	}
	_ = g.Wait()

	for i, e := range live {
		if errs[i] != nil {
			m.evictFailed(context.Background(), e, errs[i])
		}
	}

	snap := Snapshot{
		keyFunc: m.keyFunc,
		index:   make(map[string]int, len(live)),
		entries: make([]Seed, 0, len(live)),
	}
	for i, e := range live {
		if errs[i] != nil {
			continue
		}
		snap.index[e.Key] = len(snap.entries)
		snap.entries = append(snap.entries, Seed{Args: e.Args, Value: values[i]})
	}

	m.recordOperation(metrics.OperationSnapshot, metrics.ResultOK, time.Since(start))
	return snap
}

// Clear removes every entry. The policy and its parameters are kept.
func (m *Memoizer) Clear() {
	start := time.Now()
	removed := m.reseed(nil)
	m.logger.Info("Memoizer cleared", F("removed", removed))
	m.recordOperation(metrics.OperationClear, metrics.ResultOK, time.Since(start))
}

// Swap replaces every entry with the given known results. Later calls with
// those arguments return the swapped values without calling the function.
func (m *Memoizer) Swap(base []Seed) error {
	start := time.Now()
	if m.checkSeeds != nil {
		if err := m.checkSeeds(base); err != nil {
			m.recordOperation(metrics.OperationSwap, metrics.ResultError, time.Since(start))
			return err
		}
	}
	entries, err := seedEntries(base, m.keyFunc, m.clock())
	if err != nil {
		m.recordOperation(metrics.OperationSwap, metrics.ResultError, time.Since(start))
		return err
	}

	removed := m.reseed(entries)
	m.logger.Info("Memoizer swapped", F("removed", removed), F("added", len(entries)))
	m.recordOperation(metrics.OperationSwap, metrics.ResultOK, time.Since(start))
	return nil
}

// reseed atomically replaces the cache contents and reports the removed
// entries as invalidations
func (m *Memoizer) reseed(entries []*entry.Entry) int {
	for {
		cur := m.state.Load()
		next := cur.seed(entries)
		if !m.state.CompareAndSwap(cur, next) {
			continue
		}

		old := cur.entries()
		m.stats.addInvalidations(int64(len(old)))
		for _, e := range old {
			m.hooks.invokeOnInvalidate(context.Background(), e.Key, e.Args)
		}
		return len(old)
	}
}

// Forget removes the entry for args, if any, so the next call recomputes it
func (m *Memoizer) Forget(args ...any) bool {
	start := time.Now()
	key, err := m.keyFunc(args)
	if err != nil {
		m.recordOperation(metrics.OperationForget, metrics.ResultError, time.Since(start))
		return false
	}

	for {
		cur := m.state.Load()
		if _, ok := cur.lookup(key); !ok {
			m.recordOperation(metrics.OperationForget, metrics.ResultMiss, time.Since(start))
			return false
		}
		next := cur.evict(key, EvictReasonInvalidated)
		if !m.state.CompareAndSwap(cur, next) {
			continue
		}
		m.evicted(context.Background(), next.cache.Evicted())
		m.recordOperation(metrics.OperationForget, metrics.ResultOK, time.Since(start))
		return true
	}
}

// Unwrap returns the function the memoizer was built from
func (m *Memoizer) Unwrap() any {
	if m == nil {
		return nil
	}
	return m.original
}

// IsMemoized reports whether v is a memoizer built by this package
func IsMemoized(v any) bool {
	m, ok := v.(*Memoizer)
	return ok && m != nil
}

func asMemoizer(v any) (*Memoizer, bool) {
	m, ok := v.(*Memoizer)
	if !ok || m == nil {
		return nil, false
	}
	return m, true
}

// SnapshotOf returns the snapshot of v if v is a memoizer
func SnapshotOf(v any) (Snapshot, bool) {
	m, ok := asMemoizer(v)
	if !ok {
		return Snapshot{}, false
	}
	return m.Snapshot(), true
}

// Clear empties v if v is a memoizer and reports whether it did
func Clear(v any) bool {
	m, ok := asMemoizer(v)
	if ok {
		m.Clear()
	}
	return ok
}

// Swap replaces the contents of v if v is a memoizer. It reports whether v
// was a memoizer and any error from validating base.
func Swap(v any, base []Seed) (bool, error) {
	m, ok := asMemoizer(v)
	if !ok {
		return false, nil
	}
	return true, m.Swap(base)
}

// Forget removes the entry for args from v if v is a memoizer
func Forget(v any, args ...any) bool {
	m, ok := asMemoizer(v)
	if !ok {
		return false
	}
	return m.Forget(args...)
}

// Unwrap returns the original function of v if v is a memoizer, nil otherwise
func Unwrap(v any) any {
	m, ok := asMemoizer(v)
	if !ok {
		return nil
	}
	return m.Unwrap()
}
