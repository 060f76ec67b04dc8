package obmemo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapSimpleFunction(t *testing.T) {
	var calls int64
	square := func(x int) int {
		atomic.AddInt64(&calls, 1)
		return x * x
	}

	memoized, m, err := Wrap(square, WithName("square"))
	require.NoError(t, err)

	assert.Equal(t, 25, memoized(5))
	assert.Equal(t, 25, memoized(5))
	assert.Equal(t, 36, memoized(6))
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))

	assert.Equal(t, "square", m.Name())
	assert.Equal(t, 2, m.Len())
	assert.True(t, IsMemoized(m))

	original, ok := m.Unwrap().(func(int) int)
	require.True(t, ok)
	assert.Equal(t, 49, original(7))
}

func TestWrapWithError(t *testing.T) {
	var calls int64
	lookup := func(id string) (string, error) {
		atomic.AddInt64(&calls, 1)
		if id == "" {
			return "", errors.New("empty id")
		}
		return "user-" + id, nil
	}

	memoized, m, err := Wrap(lookup)
	require.NoError(t, err)

	v, err := memoized("1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", v)

	_, err = memoized("")
	require.EqualError(t, err, "empty id")
	_, err = memoized("")
	require.Error(t, err)

	// failures are not cached
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
	assert.Equal(t, 1, m.Len())
}

func TestWrapContextIsNotPartOfKey(t *testing.T) {
	type ctxKey struct{}
	var seen []any
	fetch := func(ctx context.Context, id int) (string, error) {
		seen = append(seen, ctx.Value(ctxKey{}))
		return fmt.Sprintf("item-%d", id), nil
	}

	memoized, _, err := Wrap(fetch)
	require.NoError(t, err)

	first := context.WithValue(context.Background(), ctxKey{}, "first")
	second := context.WithValue(context.Background(), ctxKey{}, "second")

	v, err := memoized(first, 1)
	require.NoError(t, err)
	assert.Equal(t, "item-1", v)

	v, err = memoized(second, 1)
	require.NoError(t, err)
	assert.Equal(t, "item-1", v)

	_, err = memoized(second, 2)
	require.NoError(t, err)

	assert.Equal(t, []any{"first", "second"}, seen)
}

func TestWrapNilContext(t *testing.T) {
	fetch := func(ctx context.Context, id int) int {
		if ctx == nil {
			panic("nil context")
		}
		return id
	}

	memoized, _, err := Wrap(fetch)
	require.NoError(t, err)
	//nolint:staticcheck // a nil context falls back to context.Background
	assert.Equal(t, 3, memoized(nil, 3))
}

func TestWrapMultipleResults(t *testing.T) {
	var calls int64
	split := func(s string) (string, int, error) {
		atomic.AddInt64(&calls, 1)
		return s + "!", len(s), nil
	}

	memoized, _, err := Wrap(split)
	require.NoError(t, err)

	a, n, err := memoized("hey")
	require.NoError(t, err)
	assert.Equal(t, "hey!", a)
	assert.Equal(t, 3, n)

	a, n, err = memoized("hey")
	require.NoError(t, err)
	assert.Equal(t, "hey!", a)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestWrapNilResults(t *testing.T) {
	find := func(id int) (*point, error) {
		if id == 0 {
			return nil, nil
		}
		return &point{X: id}, nil
	}

	memoized, _, err := Wrap(find)
	require.NoError(t, err)

	p, err := memoized(0)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = memoized(4)
	require.NoError(t, err)
	assert.Equal(t, 4, p.X)
}

func TestWrapPanicsWithoutErrorResult(t *testing.T) {
	var calls int64
	explode := func(x int) int {
		atomic.AddInt64(&calls, 1)
		panic("nope")
	}

	memoized, m, err := Wrap(explode)
	require.NoError(t, err)

	assert.Panics(t, func() { memoized(1) })
	assert.Panics(t, func() { memoized(1) })
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
	assert.Equal(t, int64(2), m.Stats().Failures())
}

func TestWrapWithPolicyOptions(t *testing.T) {
	double := func(x int) int { return x * 2 }

	memoized, m, err := Wrap(double, WithPolicy(PolicyFIFO), WithLimit(2))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		memoized(i)
	}
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, PolicyFIFO, m.Policy())
}

func TestWrapWithBase(t *testing.T) {
	var calls int64
	double := func(x int) int {
		atomic.AddInt64(&calls, 1)
		return x * 2
	}

	memoized, _, err := Wrap(double, WithBase(Seed{Args: []any{21}, Value: 0}))
	require.NoError(t, err)

	assert.Equal(t, 0, memoized(21))
	assert.Equal(t, int64(0), atomic.LoadInt64(&calls))
}

func TestWrapRejectsMistypedBase(t *testing.T) {
	double := func(x int) int { return x * 2 }
	lookup := func(ctx context.Context, id string) (int, string, error) { return 0, id, nil }

	testCases := []struct {
		name string
		err  func() error
	}{
		{"value type", func() error {
			_, _, err := Wrap(double, WithBase(Seed{Args: []any{1}, Value: "two"}))
			return err
		}},
		{"nil value for int", func() error {
			_, _, err := Wrap(double, WithBase(Seed{Args: []any{1}, Value: nil}))
			return err
		}},
		{"argument type", func() error {
			_, _, err := Wrap(double, WithBase(Seed{Args: []any{"1"}, Value: 2}))
			return err
		}},
		{"argument count", func() error {
			_, _, err := Wrap(double, WithBase(Seed{Args: []any{1, 2}, Value: 2}))
			return err
		}},
		{"multiple results not a tuple", func() error {
			_, _, err := Wrap(lookup, WithBase(Seed{Args: []any{"a"}, Value: 1}))
			return err
		}},
		{"multiple results wrong type", func() error {
			_, _, err := Wrap(lookup, WithBase(Seed{Args: []any{"a"}, Value: []any{1, 2}}))
			return err
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.err(), ErrInvalidConfig)
		})
	}
}

func TestWrapBaseWithContextAndTuple(t *testing.T) {
	lookup := func(ctx context.Context, id string) (int, string, error) {
		return 0, "", errors.New("not seeded")
	}

	memoized, _, err := Wrap(lookup, WithBase(Seed{Args: []any{"a"}, Value: []any{7, "seven"}}))
	require.NoError(t, err)

	n, s, err := memoized(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "seven", s)
}

func TestWrapSwapChecksTypes(t *testing.T) {
	memoized, m, err := Wrap(func(x int) int { return x * 2 })
	require.NoError(t, err)

	err = m.Swap([]Seed{{Args: []any{1}, Value: "two"}})
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 2, memoized(1))

	require.NoError(t, m.Swap([]Seed{{Args: []any{1}, Value: 5}}))
	assert.Equal(t, 5, memoized(1))
}

func TestWrapSharesMemoizerWithCall(t *testing.T) {
	var calls int64
	add := func(a, b int) int {
		atomic.AddInt64(&calls, 1)
		return a + b
	}

	memoized, m, err := Wrap(add)
	require.NoError(t, err)

	assert.Equal(t, 5, memoized(2, 3))
	v, err := m.Call(2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	_, err = m.Call(2)
	require.Error(t, err)
}

func TestWrapRejectsInvalidFunctions(t *testing.T) {
	_, _, err := Wrap(42)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, _, err = Wrap(func(xs ...int) int { return len(xs) })
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, _, err = Wrap(func(int) {})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, _, err = Wrap(func(int) (int, string) { return 0, "" })
	require.ErrorIs(t, err, ErrInvalidConfig)

	var nilFn func(int) int
	_, _, err = Wrap(nilFn)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, _, err = Wrap(func(x int) int { return x }, WithPolicy(PolicyLRU), WithLimit(0))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTypedWrappers(t *testing.T) {
	upper, _, err := WrapFunc1(func(s string) int { return len(s) })
	require.NoError(t, err)
	assert.Equal(t, 3, upper("abc"))

	join, _, err := WrapFunc2(func(a, b string) string { return a + b })
	require.NoError(t, err)
	assert.Equal(t, "ab", join("a", "b"))

	parse, _, err := WrapFunc1WithError(func(s string) (int, error) {
		if s == "" {
			return 0, errors.New("empty")
		}
		return len(s), nil
	})
	require.NoError(t, err)
	n, err := parse("four")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	_, err = parse("")
	require.Error(t, err)

	div, _, err := WrapFunc2WithError(func(a, b int) (int, error) {
		if b == 0 {
			return 0, errors.New("division by zero")
		}
		return a / b, nil
	})
	require.NoError(t, err)
	q, err := div(10, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, q)
	_, err = div(1, 0)
	require.EqualError(t, err, "division by zero")
}

func TestValidateWrappableFunction(t *testing.T) {
	valid := []any{
		func() int { return 0 },
		func(int) int { return 0 },
		func(context.Context, string) (int, error) { return 0, nil },
		func(int) (int, string, error) { return 0, "", nil },
	}
	for _, fn := range valid {
		assert.NoError(t, ValidateWrappableFunction(fn), "%T", fn)
	}

	invalid := []any{
		nil,
		"not a function",
		func(...int) int { return 0 },
		func() {},
		func() (int, int) { return 0, 0 },
	}
	for _, fn := range invalid {
		assert.Error(t, ValidateWrappableFunction(fn), "%T", fn)
	}
}
