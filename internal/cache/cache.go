// Package cache implements the immutable cache values behind a memoizer.
//
// Every Cache is a value: Hit, Miss, Seed and Evict never modify the
// receiver, they return a new Cache that shares structure with it. This is
// what lets a memoizer publish caches through a single atomic pointer and
// retry a transition from the latest value when it loses a race.
package cache

import (
	"fmt"
	"time"

	"github.com/vnykmshr/obmemo-go/internal/entry"
)

// Cache defines the capability set shared by every eviction policy
type Cache interface {
	// Has reports whether key has a live entry (not expired, not reclaimed)
	Has(key string) bool

	// Hit records an access to key for the policy's bookkeeping
	Hit(key string) Cache

	// Miss inserts e and then applies the policy's eviction rule
	Miss(e *entry.Entry) Cache

	// Lookup returns the live entry for key
	Lookup(key string) (*entry.Entry, bool)

	// Seed replaces all entries, keeping the policy parameters
	Seed(entries []*entry.Entry) Cache

	// Evict removes key, recording reason in Evicted
	Evict(key string, reason Reason) Cache

	// Len returns the number of live entries
	Len() int

	// Walk calls fn for every live entry until fn returns false
	Walk(fn func(e *entry.Entry) bool)

	// Evicted returns the entries removed by the transition that produced this value
	Evicted() []Eviction

	// Policy returns the eviction policy of this cache
	Policy() Policy

	// Limit returns the capacity limit, or 0 when the policy is unbounded
	Limit() int

	// TTL returns the entry lifetime, or 0 when entries never expire
	TTL() time.Duration
}

// Policy identifies an eviction policy
type Policy string

const (
	// Basic never evicts
	Basic Policy = "basic"

	// FIFO evicts the oldest insertion once the limit is exceeded
	FIFO Policy = "fifo"

	// LRU evicts the least recently touched key once the limit is exceeded
	LRU Policy = "lru"

	// LU evicts every least used key once the limit is reached
	LU Policy = "lu"

	// TTL drops entries older than a fixed lifetime
	TTL Policy = "ttl"

	// Soft holds values weakly and drops them once the garbage collector reclaims them
	Soft Policy = "soft"
)

// Reason explains why an entry left a cache
type Reason int

const (
	// ReasonCapacity indicates the entry was evicted to respect the limit
	ReasonCapacity Reason = iota

	// ReasonExpired indicates the entry outlived its TTL
	ReasonExpired

	// ReasonReclaimed indicates the garbage collector reclaimed the value
	ReasonReclaimed

	// ReasonFailed indicates the entry's computation returned an error
	ReasonFailed

	// ReasonInvalidated indicates the entry was removed on request
	ReasonInvalidated
)

func (r Reason) String() string {
	switch r {
	case ReasonCapacity:
		return "Capacity"
	case ReasonExpired:
		return "Expired"
	case ReasonReclaimed:
		return "Reclaimed"
	case ReasonFailed:
		return "Failed"
	case ReasonInvalidated:
		return "Invalidated"
	default:
		return "Unknown"
	}
}

// Eviction records one entry removed by a transition
type Eviction struct {
	Entry  *entry.Entry
	Reason Reason
}

// Clock returns the current time
type Clock func() time.Time

// Config holds the parameters needed to build a cache
type Config struct {
	Policy Policy

	// Limit is the capacity of FIFO, LRU and LU caches
	Limit int

	// TTL is the entry lifetime of TTL caches
	TTL time.Duration

	// Clock drives TTL expiry; time.Now when nil
	Clock Clock

	// Retain is how many recently touched values a Soft cache keeps strongly reachable
	Retain int
}

// New creates an empty cache for the given config
func New(config Config) (Cache, error) {
	switch config.Policy {
	case Basic, "":
		return NewBasic(), nil
	case FIFO:
		if config.Limit <= 0 {
			return nil, fmt.Errorf("fifo limit must be positive, got %d", config.Limit)
		}
		return NewFIFO(config.Limit), nil
	case LRU:
		if config.Limit <= 0 {
			return nil, fmt.Errorf("lru limit must be positive, got %d", config.Limit)
		}
		return NewLRU(config.Limit), nil
	case LU:
		if config.Limit <= 0 {
			return nil, fmt.Errorf("lu limit must be positive, got %d", config.Limit)
		}
		return NewLU(config.Limit), nil
	case TTL:
		if config.TTL <= 0 {
			return nil, fmt.Errorf("ttl must be positive, got %v", config.TTL)
		}
		return NewTTL(config.TTL, config.Clock), nil
	case Soft:
		if config.Retain < 0 {
			return nil, fmt.Errorf("soft retention must not be negative, got %d", config.Retain)
		}
		return NewSoft(config.Retain), nil
	default:
		return nil, fmt.Errorf("unsupported policy: %q", config.Policy)
	}
}

// transition carries the evictions produced by the transition that built a value
type transition struct {
	evicted []Eviction
}

func (t transition) Evicted() []Eviction {
	return t.evicted
}

func (t *transition) record(e *entry.Entry, reason Reason) {
	t.evicted = append(t.evicted, Eviction{Entry: e, Reason: reason})
}
