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
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// counted returns an identity function and the number of times it ran
func counted() (Func, *int64) {
	var calls int64
	return func(args ...any) (any, error) {
		atomic.AddInt64(&calls, 1)
		if len(args) == 0 {
			return nil, nil
		}
		return args[0], nil
	}, &calls
}

// snapshotInts returns the integer arguments present in m's snapshot
func snapshotInts(t *testing.T, m *Memoizer) map[int]any {
	t.Helper()
	out := make(map[int]any)
	for _, s := range m.Snapshot().Entries() {
		require.Len(t, s.Args, 1)
		out[s.Args[0].(int)] = s.Value
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSingleEvaluationSequential(t *testing.T) {
	fn, calls := counted()
	m, err := Memo(fn)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		v, err := m.Call(42)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}

	assert.Equal(t, int64(1), atomic.LoadInt64(calls))
	assert.Equal(t, int64(1), m.Stats().Misses())
	assert.Equal(t, int64(9), m.Stats().Hits())
}

func TestSingleEvaluationConcurrent(t *testing.T) {
	policies := []Policy{PolicyBasic, PolicyFIFO, PolicyLRU, PolicyLU, PolicyTTL, PolicySoft}

	for _, policy := range policies {
		t.Run(string(policy), func(t *testing.T) {
			var calls int64
			release := make(chan struct{})
			m, err := New(func(args ...any) (any, error) {
				atomic.AddInt64(&calls, 1)
				<-release
				return args[0], nil
			}, NewDefaultConfig().WithPolicy(policy).WithTTL(time.Hour))
			require.NoError(t, err)

			const callers = 50
			results := make([]any, callers)
			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					v, err := m.Call("shared")
					assert.NoError(t, err)
					results[i] = v
				}(i)
			}

			time.Sleep(20 * time.Millisecond)
			close(release)
			wg.Wait()

			assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
			for _, v := range results {
				assert.Equal(t, "shared", v)
			}
		})
	}
}

func TestDistinctArgumentsComputeSeparately(t *testing.T) {
	fn, calls := counted()
	m, err := Memo(fn)
	require.NoError(t, err)

	_, _ = m.Call(1)
	_, _ = m.Call(int64(1))
	_, _ = m.Call("1")
	_, _ = m.Call([]int{1, 2})
	_, _ = m.Call([]int{1, 2})

	assert.Equal(t, int64(4), atomic.LoadInt64(calls))
	assert.Equal(t, 4, m.Len())
}

func TestNoArguments(t *testing.T) {
	fn, calls := counted()
	m, err := Memo(fn)
	require.NoError(t, err)

	_, err = m.Call()
	require.NoError(t, err)
	_, err = m.Call()
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(calls))
}

func TestFIFOEviction(t *testing.T) {
	fn, _ := counted()
	m, err := MemoFIFO(fn, WithLimit(2))
	require.NoError(t, err)

	_, _ = m.Call(42)
	_, _ = m.Call(43)
	assert.Equal(t, map[int]any{42: 42, 43: 43}, snapshotInts(t, m))

	_, _ = m.Call(44)
	assert.Equal(t, map[int]any{43: 43, 44: 44}, snapshotInts(t, m))
	assert.Equal(t, int64(1), m.Stats().Evictions())
}

func TestLRUEviction(t *testing.T) {
	fn, _ := counted()
	m, err := MemoLRU(fn, WithLimit(2))
	require.NoError(t, err)

	_, _ = m.Call(42)
	_, _ = m.Call(43)
	_, _ = m.Call(44)
	assert.Equal(t, map[int]any{43: 43, 44: 44}, snapshotInts(t, m))

	_, _ = m.Call(43)
	_, _ = m.Call(0)
	assert.Equal(t, map[int]any{0: 0, 43: 43}, snapshotInts(t, m))
}

func TestLUEviction(t *testing.T) {
	fn, _ := counted()
	m, err := MemoLU(fn, WithLimit(3))
	require.NoError(t, err)

	_, _ = m.Call(42)
	_, _ = m.Call(42)
	_, _ = m.Call(43)
	_, _ = m.Call(44)

	assert.Equal(t, map[int]any{42: 42, 44: 44}, snapshotInts(t, m))
}

func TestTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	fn, calls := counted()
	m, err := MemoTTL(fn, WithTTL(5000*time.Millisecond), WithClock(clock.Now))
	require.NoError(t, err)

	_, _ = m.Call(42)
	assert.Equal(t, map[int]any{42: 42}, snapshotInts(t, m))

	clock.Advance(5001 * time.Millisecond)
	_, _ = m.Call(43)
	assert.Equal(t, map[int]any{43: 43}, snapshotInts(t, m))
	assert.Equal(t, int64(1), m.Stats().Evictions())

	_, _ = m.Call(42)
	assert.Equal(t, int64(3), atomic.LoadInt64(calls))
}

func TestTTLExpiredEntryIsRecomputed(t *testing.T) {
	clock := newFakeClock()
	fn, calls := counted()
	m, err := MemoTTL(fn, WithTTL(time.Second), WithClock(clock.Now))
	require.NoError(t, err)

	_, _ = m.Call("a")
	clock.Advance(500 * time.Millisecond)
	_, _ = m.Call("a")
	assert.Equal(t, int64(1), atomic.LoadInt64(calls))

	clock.Advance(500 * time.Millisecond)
	_, _ = m.Call("a")
	assert.Equal(t, int64(2), atomic.LoadInt64(calls))
}

// callWithin fails the test if m.Call(arg) does not return within a few seconds
func callWithin(t *testing.T, m *Memoizer, arg any) any {
	t.Helper()
	type result struct {
		v   any
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := m.Call(arg)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		return r.v
	case <-time.After(5 * time.Second):
		require.FailNowf(t, "call did not return", "Call(%v)", arg)
		return nil
	}
}

func TestTTLShorterThanCallReturns(t *testing.T) {
	fn, calls := counted()
	m, err := MemoTTL(fn, WithTTL(time.Nanosecond))
	require.NoError(t, err)

	assert.Equal(t, 42, callWithin(t, m, 42))
	assert.Equal(t, 42, callWithin(t, m, 42))

	// every call counts once, and a miss computes exactly once
	stats := m.Stats()
	assert.Equal(t, int64(2), stats.Total())
	assert.Equal(t, stats.Misses(), atomic.LoadInt64(calls))
}

func TestTTLWithClockAdvancingOnEveryRead(t *testing.T) {
	clock := newFakeClock()
	ticking := func() time.Time {
		clock.Advance(time.Second)
		return clock.Now()
	}

	fn, calls := counted()
	m, err := MemoTTL(fn, WithTTL(time.Second), WithClock(ticking))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Equal(t, "x", callWithin(t, m, "x"))
	}
	assert.Equal(t, int64(3), atomic.LoadInt64(calls))
	assert.Equal(t, int64(3), m.Stats().Total())
}

func TestSoftMemoizes(t *testing.T) {
	fn, calls := counted()
	m, err := MemoSoft(fn)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		v, err := m.Call("value")
		require.NoError(t, err)
		assert.Equal(t, "value", v)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(calls))
	assert.Equal(t, PolicySoft, m.Policy())
}

func TestFailedComputationIsEvicted(t *testing.T) {
	var calls int64
	boom := errors.New("boom")
	m, err := Memo(func(args ...any) (any, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			return nil, boom
		}
		return "ok", nil
	})
	require.NoError(t, err)

	_, err = m.Call("k")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, int64(1), m.Stats().Failures())

	v, err := m.Call("k")
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
	assert.Equal(t, 1, m.Len())
}

func TestConcurrentCallersShareFailure(t *testing.T) {
	var calls int64
	release := make(chan struct{})
	boom := errors.New("boom")
	m, err := Memo(func(args ...any) (any, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return nil, boom
	})
	require.NoError(t, err)

	const callers = 10
	var wg sync.WaitGroup
	var failed int64
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Call("k"); errors.Is(err, boom) {
				atomic.AddInt64(&failed, 1)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(callers), atomic.LoadInt64(&failed))
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	assert.Equal(t, int64(1), m.Stats().Failures())
	assert.Equal(t, 0, m.Len())
}

func TestPanicBecomesError(t *testing.T) {
	m, err := Memo(func(args ...any) (any, error) {
		panic("kaboom")
	})
	require.NoError(t, err)

	_, err = m.Call(1)
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "kaboom", panicErr.Recovered)
	assert.Equal(t, 0, m.Len())
}

func TestUnkeyableArguments(t *testing.T) {
	fn, calls := counted()
	m, err := Memo(fn)
	require.NoError(t, err)

	_, err = m.Call(func() {})
	require.ErrorIs(t, err, ErrUnsupportedKey)
	assert.Equal(t, int64(0), atomic.LoadInt64(calls))
	assert.Equal(t, 0, m.Len())
}

func TestArgumentsAreCopied(t *testing.T) {
	fn, _ := counted()
	m, err := Memo(fn)
	require.NoError(t, err)

	args := []any{"a", "b"}
	_, err = m.Call(args...)
	require.NoError(t, err)
	args[0] = "mutated"

	entries := m.Snapshot().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, []any{"a", "b"}, entries[0].Args)
}

func TestNewRejectsNilFunction(t *testing.T) {
	_, err := New(nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMemoizerIdentity(t *testing.T) {
	fn, _ := counted()

	named, err := Memo(fn, WithName("squares"))
	require.NoError(t, err)
	assert.Equal(t, "squares", named.Name())
	assert.NotEmpty(t, named.ID())

	anonymous, err := Memo(fn)
	require.NoError(t, err)
	assert.Equal(t, anonymous.ID(), anonymous.Name())
	assert.NotEqual(t, named.ID(), anonymous.ID())
}

func TestFuncStandsInForTarget(t *testing.T) {
	fn, calls := counted()
	m, err := Memo(fn)
	require.NoError(t, err)

	var f Func = m.Func()
	_, _ = f(7)
	_, _ = f(7)
	assert.Equal(t, int64(1), atomic.LoadInt64(calls))
}

func TestComputationLogsAndTraces(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := Memo(func(args ...any) (any, error) {
		if args[0] == "bad" {
			return nil, errors.New("bad input")
		}
		return args[0], nil
	},
		WithName("traced"),
		WithLogger(NewZapLogger(zap.New(core))),
		WithTracer(provider.Tracer("test")),
	)
	require.NoError(t, err)

	_, err = m.Call("good")
	require.NoError(t, err)
	_, err = m.Call("bad")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	for _, span := range spans {
		assert.Equal(t, "obmemo.compute", span.Name())
	}
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	failed := logs.FilterMessage("Computation failed, entry evicted")
	require.Equal(t, 1, failed.Len())
	fields := failed.All()[0].ContextMap()
	assert.Equal(t, "traced", fields["memoizer"])
	assert.Equal(t, false, fields["panic"])
	assert.Equal(t, 2, logs.FilterMessage("Computing").Len())
}

func TestStatsKeyCountAndInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	m, err := Memo(func(args ...any) (any, error) {
		if args[0] == "slow" {
			close(started)
			<-release
		}
		return args[0], nil
	})
	require.NoError(t, err)

	_, _ = m.Call("a")
	_, _ = m.Call("b")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Call("slow")
	}()
	<-started

	stats := m.Stats()
	assert.Equal(t, int64(3), stats.KeyCount())
	assert.Equal(t, int64(1), stats.InFlight())

	close(release)
	<-done
	assert.Equal(t, int64(0), m.Stats().InFlight())
}

func TestCloseIsIdempotent(t *testing.T) {
	fn, _ := counted()
	m, err := Memo(fn)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	var nilMemoizer *Memoizer
	assert.NoError(t, nilMemoizer.Close())
}
