package entry

import (
	"time"

	"github.com/vnykmshr/obmemo-go/internal/lazy"
)

// Entry represents one memoized call: its argument key and deferred result.
// An Entry is immutable once it has been published into a cache.
type Entry struct {
	// Key is the canonical id of the argument tuple
	Key string

	// Args is the argument tuple the key was derived from
	Args []any

	// Value is the deferred result of calling the target with Args
	Value *lazy.Value

	// CreatedAt is when this entry was created
	CreatedAt time.Time

	// ExpiresAt indicates when this entry expires (nil means no expiration)
	ExpiresAt *time.Time
}

// New creates an entry whose value is computed on first force.
func New(key string, args []any, value *lazy.Value, now time.Time) *Entry {
	return &Entry{
		Key:       key,
		Args:      args,
		Value:     value,
		CreatedAt: now,
	}
}

// NewForced creates an entry holding an already known result.
func NewForced(key string, args []any, result any, now time.Time) *Entry {
	return New(key, args, lazy.Forced(result), now)
}

// WithExpiry returns a copy of e that expires ttl after now.
// A non-positive ttl yields a copy without expiration.
func (e *Entry) WithExpiry(now time.Time, ttl time.Duration) *Entry {
	c := *e
	if ttl > 0 {
		expiry := now.Add(ttl)
		c.ExpiresAt = &expiry
	} else {
		c.ExpiresAt = nil
	}
	return &c
}

// IsExpired returns true if the entry has expired at now
func (e *Entry) IsExpired(now time.Time) bool {
	if e.ExpiresAt == nil {
		return false
	}
	return !now.Before(*e.ExpiresAt)
}

// TTL returns the time remaining until expiration at now
// Returns 0 if the entry has no expiration or has already expired
func (e *Entry) TTL(now time.Time) time.Duration {
	if e.ExpiresAt == nil {
		return 0
	}

	remaining := e.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}

	return remaining
}

// Age returns how long before now this entry was created
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// HasExpiry returns true if the entry has an expiration time set
func (e *Entry) HasExpiry() bool {
	return e.ExpiresAt != nil
}

// String returns a string representation of the entry (for debugging)
func (e *Entry) String() string {
	status := "Entry{" + e.Key + ", "
	if e.Value != nil && e.Value.Realized() {
		status += "realized, "
	}
	if e.ExpiresAt == nil {
		status += "no-expiry}"
	} else {
		status += "expires: " + e.ExpiresAt.Format(time.RFC3339) + "}"
	}
	return status
}
