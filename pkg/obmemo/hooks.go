package obmemo

import (
	"context"

	"github.com/vnykmshr/obmemo-go/internal/cache"
)

// Hooks defines event callbacks for memoizer operations.
// Hooks run synchronously on the calling goroutine, after the cache change
// they describe has been committed.
type Hooks struct {
	// OnHit is called when a call is answered by an existing entry
	OnHit []OnHitHook

	// OnMiss is called when a call inserts a new entry
	OnMiss []OnMissHook

	// OnEvict is called when an entry is removed by the eviction policy or
	// because its computation failed
	OnEvict []OnEvictHook

	// OnInvalidate is called for every entry removed by Clear, Swap or Forget
	OnInvalidate []OnInvalidateHook
}

// Hook function type definitions
type (
	// OnHitHook is called when a call is answered by an existing entry
	OnHitHook func(ctx context.Context, key string, args []any)

	// OnMissHook is called when a call inserts a new entry
	OnMissHook func(ctx context.Context, key string, args []any)

	// OnEvictHook is called when an entry is evicted
	OnEvictHook func(ctx context.Context, key string, args []any, reason EvictReason)

	// OnInvalidateHook is called when an entry is removed on request
	OnInvalidateHook func(ctx context.Context, key string, args []any)
)

// EvictReason indicates why an entry left the cache
type EvictReason = cache.Reason

const (
	// EvictReasonCapacity indicates a FIFO, LRU or LU limit was exceeded
	EvictReasonCapacity = cache.ReasonCapacity

	// EvictReasonExpired indicates a TTL entry outlived its lifetime
	EvictReasonExpired = cache.ReasonExpired

	// EvictReasonReclaimed indicates the garbage collector reclaimed a Soft entry's value
	EvictReasonReclaimed = cache.ReasonReclaimed

	// EvictReasonFailed indicates the entry's computation failed
	EvictReasonFailed = cache.ReasonFailed

	// EvictReasonInvalidated indicates the entry was removed on request
	EvictReasonInvalidated = cache.ReasonInvalidated
)

// AddOnHit adds an OnHit hook
func (h *Hooks) AddOnHit(hook OnHitHook) {
	h.OnHit = append(h.OnHit, hook)
}

// AddOnMiss adds an OnMiss hook
func (h *Hooks) AddOnMiss(hook OnMissHook) {
	h.OnMiss = append(h.OnMiss, hook)
}

// AddOnEvict adds an OnEvict hook
func (h *Hooks) AddOnEvict(hook OnEvictHook) {
	h.OnEvict = append(h.OnEvict, hook)
}

// AddOnInvalidate adds an OnInvalidate hook
func (h *Hooks) AddOnInvalidate(hook OnInvalidateHook) {
	h.OnInvalidate = append(h.OnInvalidate, hook)
}

// Merge appends every hook of other to h
func (h *Hooks) Merge(other *Hooks) *Hooks {
	if other == nil {
		return h
	}
	h.OnHit = append(h.OnHit, other.OnHit...)
	h.OnMiss = append(h.OnMiss, other.OnMiss...)
	h.OnEvict = append(h.OnEvict, other.OnEvict...)
	h.OnInvalidate = append(h.OnInvalidate, other.OnInvalidate...)
	return h
}

func (h *Hooks) invokeOnHit(ctx context.Context, key string, args []any) {
	if h == nil {
		return
	}
	for _, hook := range h.OnHit {
		if hook != nil {
			hook(ctx, key, args)
		}
	}
}

func (h *Hooks) invokeOnMiss(ctx context.Context, key string, args []any) {
	if h == nil {
		return
	}
	for _, hook := range h.OnMiss {
		if hook != nil {
			hook(ctx, key, args)
		}
	}
}

func (h *Hooks) invokeOnEvict(ctx context.Context, key string, args []any, reason EvictReason) {
	if h == nil {
		return
	}
	for _, hook := range h.OnEvict {
		if hook != nil {
			hook(ctx, key, args, reason)
		}
	}
}

func (h *Hooks) invokeOnInvalidate(ctx context.Context, key string, args []any) {
	if h == nil {
		return
	}
	for _, hook := range h.OnInvalidate {
		if hook != nil {
			hook(ctx, key, args)
		}
	}
}
