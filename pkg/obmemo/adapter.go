package obmemo

import (
	"context"

	"github.com/vnykmshr/obmemo-go/internal/cache"
	"github.com/vnykmshr/obmemo-go/internal/entry"
)

// target is the function a memoizer computes results with
type target func(ctx context.Context, args []any) (any, error)

// adapter binds a target to one immutable cache value. Transitions return a
// new adapter around the new cache value; the target never changes.
type adapter struct {
	target target
	cache  cache.Cache
}

func (a *adapter) lookup(key string) (*entry.Entry, bool) {
	return a.cache.Lookup(key)
}

func (a *adapter) hit(key string) *adapter {
	return &adapter{target: a.target, cache: a.cache.Hit(key)}
}

func (a *adapter) miss(e *entry.Entry) *adapter {
	return &adapter{target: a.target, cache: a.cache.Miss(e)}
}

func (a *adapter) seed(entries []*entry.Entry) *adapter {
	return &adapter{target: a.target, cache: a.cache.Seed(entries)}
}

func (a *adapter) evict(key string, reason cache.Reason) *adapter {
	return &adapter{target: a.target, cache: a.cache.Evict(key, reason)}
}

func (a *adapter) entries() []*entry.Entry {
	var out []*entry.Entry
	a.cache.Walk(func(e *entry.Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}
