package obmemo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type factory func(fn Func, opts ...Option) (*Memoizer, error)

var factories = map[string]factory{
	"basic": Memo,
	"fifo":  MemoFIFO,
	"lru":   MemoLRU,
	"lu":    MemoLU,
	"ttl":   MemoTTL,
	"soft":  MemoSoft,
}

func TestSeedingRoundTrip(t *testing.T) {
	for name, newMemo := range factories {
		t.Run(name, func(t *testing.T) {
			fn, calls := counted()
			m, err := newMemo(fn, WithBase(Seed{Args: []any{1}, Value: 1}))
			require.NoError(t, err)

			assert.Equal(t, map[int]any{1: 1}, snapshotInts(t, m))
			assert.Equal(t, int64(0), atomic.LoadInt64(calls))

			v, err := m.Call(1)
			require.NoError(t, err)
			assert.Equal(t, 1, v)
			assert.Equal(t, int64(0), atomic.LoadInt64(calls))
		})
	}
}

func TestBaseOf(t *testing.T) {
	fn, calls := counted()
	m, err := Memo(fn, WithBase(BaseOf(map[string]int{"one": 1, "two": 2})...))
	require.NoError(t, err)

	v, err := m.Call("two")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, int64(0), atomic.LoadInt64(calls))
}

func TestClearKeepsParameters(t *testing.T) {
	clock := newFakeClock()
	cases := map[string]struct {
		newMemo factory
		opts    []Option
	}{
		"fifo": {MemoFIFO, []Option{WithLimit(2)}},
		"lru":  {MemoLRU, []Option{WithLimit(2)}},
		"lu":   {MemoLU, []Option{WithLimit(2)}},
		"ttl":  {MemoTTL, []Option{WithTTL(time.Second), WithClock(clock.Now)}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fn, _ := counted()
			m, err := tc.newMemo(fn, tc.opts...)
			require.NoError(t, err)

			limit, ttl := m.Limit(), m.TTL()
			_, _ = m.Call(1)
			_, _ = m.Call(2)

			m.Clear()
			assert.Equal(t, 0, m.Snapshot().Len())
			assert.Equal(t, limit, m.Limit())
			assert.Equal(t, ttl, m.TTL())

			for i := 0; i < 5; i++ {
				_, _ = m.Call(i)
			}
			if limit > 0 {
				assert.LessOrEqual(t, m.Len(), limit)
			}
		})
	}
}

func TestClearCountsInvalidations(t *testing.T) {
	var invalidated []string
	hooks := &Hooks{}
	hooks.AddOnInvalidate(func(_ context.Context, key string, _ []any) {
		invalidated = append(invalidated, key)
	})

	fn, calls := counted()
	m, err := Memo(fn, WithHooks(hooks))
	require.NoError(t, err)

	_, _ = m.Call(1)
	_, _ = m.Call(2)
	m.Clear()

	assert.ElementsMatch(t, []string{"int(1)", "int(2)"}, invalidated)
	assert.Equal(t, int64(2), m.Stats().Invalidations())
	assert.Equal(t, int64(0), m.Stats().KeyCount())

	_, _ = m.Call(1)
	assert.Equal(t, int64(3), atomic.LoadInt64(calls))
}

func TestSwap(t *testing.T) {
	for name, newMemo := range factories {
		t.Run(name, func(t *testing.T) {
			fn, calls := counted()
			m, err := newMemo(fn)
			require.NoError(t, err)
			_, _ = m.Call(1)

			require.NoError(t, m.Swap([]Seed{{Args: []any{13}, Value: "omg"}}))
			assert.Equal(t, map[int]any{13: "omg"}, snapshotInts(t, m))

			v, err := m.Call(13)
			require.NoError(t, err)
			assert.Equal(t, "omg", v)
			assert.Equal(t, int64(1), atomic.LoadInt64(calls))
		})
	}
}

func TestSwapRejectsInvalidBase(t *testing.T) {
	fn, _ := counted()
	m, err := Memo(fn)
	require.NoError(t, err)
	_, _ = m.Call(1)

	err = m.Swap([]Seed{{Args: []any{1}, Value: "a"}, {Args: []any{1}, Value: "b"}})
	require.ErrorIs(t, err, ErrInvalidConfig)

	err = m.Swap([]Seed{{Args: []any{make(chan int)}, Value: "a"}})
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.ErrorIs(t, err, ErrUnsupportedKey)

	// the cache is untouched by a rejected swap
	assert.Equal(t, map[int]any{1: 1}, snapshotInts(t, m))
}

func TestSnapshotOmitsFailedEntries(t *testing.T) {
	m, err := Memo(func(args ...any) (any, error) {
		if args[0] == "bad" {
			return nil, errors.New("bad")
		}
		return args[0], nil
	})
	require.NoError(t, err)

	_, _ = m.Call("good")
	_, _ = m.Call("bad")

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.Len())
	v, ok := snap.Get("good")
	assert.True(t, ok)
	assert.Equal(t, "good", v)
	_, ok = snap.Get("bad")
	assert.False(t, ok)
}

func TestSnapshotEvictsFailedEntries(t *testing.T) {
	// hold the caller after its miss is published and before it forces
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	hold := &Hooks{OnMiss: []OnMissHook{func(context.Context, string, []any) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}}}

	var calls int64
	m, err := Memo(func(args ...any) (any, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			return nil, errors.New("first attempt fails")
		}
		return "ok", nil
	}, WithHooks(hold))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Call("k")
		done <- err
	}()
	<-entered

	snap := m.Snapshot()
	assert.Equal(t, 0, snap.Len())
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, int64(1), m.Stats().Failures())

	close(release)
	require.Error(t, <-done)
	assert.Equal(t, int64(1), m.Stats().Failures())

	v, err := m.Call("k")
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestSnapshotIsImmutable(t *testing.T) {
	fn, _ := counted()
	m, err := Memo(fn)
	require.NoError(t, err)
	_, _ = m.Call(1)

	snap := m.Snapshot()
	_, _ = m.Call(2)
	m.Clear()

	assert.Equal(t, 1, snap.Len())
	v, ok := snap.Get(1)
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	entries := snap.Entries()
	entries[0].Value = "changed"
	v, _ = snap.Get(1)
	assert.Equal(t, 1, v)
}

func TestSnapshotForcesPendingEntries(t *testing.T) {
	release := make(chan struct{})
	m, err := Memo(func(args ...any) (any, error) {
		<-release
		return args[0], nil
	})
	require.NoError(t, err)

	go func() { _, _ = m.Call("slow") }()
	require.Eventually(t, func() bool { return m.Len() == 1 }, time.Second, time.Millisecond)

	done := make(chan Snapshot)
	go func() { done <- m.Snapshot() }()
	close(release)

	snap := <-done
	v, ok := snap.Get("slow")
	assert.True(t, ok)
	assert.Equal(t, "slow", v)
}

func TestForget(t *testing.T) {
	var evicted []EvictReason
	var invalidated int
	hooks := &Hooks{}
	hooks.AddOnEvict(func(_ context.Context, _ string, _ []any, reason EvictReason) {
		evicted = append(evicted, reason)
	})
	hooks.AddOnInvalidate(func(context.Context, string, []any) { invalidated++ })

	fn, calls := counted()
	m, err := MemoLRU(fn, WithHooks(hooks))
	require.NoError(t, err)

	_, _ = m.Call(1)
	assert.True(t, m.Forget(1))
	assert.False(t, m.Forget(1))
	assert.False(t, m.Forget(func() {}))

	assert.Empty(t, evicted)
	assert.Equal(t, 1, invalidated)
	assert.Equal(t, int64(1), m.Stats().Invalidations())

	_, _ = m.Call(1)
	assert.Equal(t, int64(2), atomic.LoadInt64(calls))
}

func TestUnwrapReturnsOriginal(t *testing.T) {
	var calls int64
	fn := Func(func(args ...any) (any, error) {
		atomic.AddInt64(&calls, 1)
		return "raw", nil
	})
	m, err := Memo(fn)
	require.NoError(t, err)

	original, ok := Unwrap(m).(Func)
	require.True(t, ok)
	_, _ = original()
	_, _ = original()
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestAdminOnForeignValuesIsNoOp(t *testing.T) {
	foreign := []any{
		nil,
		42,
		"memo",
		func(x int) int { return x },
		(*Memoizer)(nil),
	}

	for _, v := range foreign {
		assert.False(t, IsMemoized(v))

		_, ok := SnapshotOf(v)
		assert.False(t, ok)
		assert.False(t, Clear(v))
		assert.False(t, Forget(v, 1))
		assert.Nil(t, Unwrap(v))

		swapped, err := Swap(v, []Seed{{Args: []any{1}, Value: 1}})
		assert.False(t, swapped)
		assert.NoError(t, err)
	}
}

func TestAdminOnMemoizer(t *testing.T) {
	fn, _ := counted()
	m, err := Memo(fn)
	require.NoError(t, err)
	_, _ = m.Call(1)

	assert.True(t, IsMemoized(m))

	snap, ok := SnapshotOf(m)
	require.True(t, ok)
	assert.Equal(t, 1, snap.Len())

	swapped, err := Swap(m, []Seed{{Args: []any{2}, Value: 2}})
	assert.True(t, swapped)
	require.NoError(t, err)
	assert.True(t, Forget(m, 2))

	assert.True(t, Clear(m))
	assert.Equal(t, 0, m.Len())
}

func TestZeroSnapshot(t *testing.T) {
	var snap Snapshot
	assert.Equal(t, 0, snap.Len())
	_, ok := snap.Get(1)
	assert.False(t, ok)
	assert.Empty(t, snap.Entries())
}
