package obmemo

import (
	"sync/atomic"
)

// Stats counts what a memoizer has done since it was built or last Reset.
// Every call is either a hit or a miss; a miss is the call that starts a
// computation, so Misses also counts computations started. All methods are
// safe for concurrent use.
type Stats struct {
	hits          atomic.Int64
	misses        atomic.Int64
	evictions     atomic.Int64
	invalidations atomic.Int64
	failures      atomic.Int64

	// gauges, kept across Reset
	keyCount atomic.Int64
	inFlight atomic.Int64
}

// Hits returns the number of calls that found an entry for their key and
// shared its value, whether or not the computation had finished.
func (s *Stats) Hits() int64 {
	return s.hits.Load()
}

// Misses returns the number of calls that inserted an entry and so started
// a computation.
func (s *Stats) Misses() int64 {
	return s.misses.Load()
}

// Evictions returns the number of entries the policy dropped: over the
// limit, past their TTL, reclaimed by the collector, or holding a failed
// computation.
func (s *Stats) Evictions() int64 {
	return s.evictions.Load()
}

// Invalidations returns the number of entries dropped by Forget, Clear or Swap.
func (s *Stats) Invalidations() int64 {
	return s.invalidations.Load()
}

// Failures returns the number of computations that returned an error or panicked.
func (s *Stats) Failures() int64 {
	return s.failures.Load()
}

// KeyCount returns the number of entries in the cache value committed last.
func (s *Stats) KeyCount() int64 {
	return s.keyCount.Load()
}

// InFlight returns the number of computations started and not yet finished.
func (s *Stats) InFlight() int64 {
	return s.inFlight.Load()
}

// HitRate returns hits as a percentage of calls, 0 before the first call.
func (s *Stats) HitRate() float64 {
	hits := s.Hits()
	total := hits + s.Misses()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Total returns the number of calls.
func (s *Stats) Total() int64 {
	return s.Hits() + s.Misses()
}

// Reset zeroes the call, eviction and failure counters. KeyCount and
// InFlight describe current state and are left alone.
func (s *Stats) Reset() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.evictions.Store(0)
	s.invalidations.Store(0)
	s.failures.Store(0)
}

func (s *Stats) incHits() { s.hits.Add(1) }
func (s *Stats) incMisses() { s.misses.Add(1) }
func (s *Stats) incEvictions() { s.evictions.Add(1) }
func (s *Stats) addInvalidations(n int64) { s.invalidations.Add(n) }
func (s *Stats) incFailures() { s.failures.Add(1) }
func (s *Stats) setKeyCount(count int64) { s.keyCount.Store(count) }
func (s *Stats) computationStarted() { s.inFlight.Add(1) }
func (s *Stats) computationFinished() { s.inFlight.Add(-1) }
