// Package obmemo memoizes functions behind a cache whose eviction policy is
// chosen at construction time.
//
// # Overview
//
// A Memoizer wraps a function and remembers its results by argument list.
// Concurrent callers never run the function twice for the same live entry:
// the first caller inserts a deferred computation and every caller forces the
// same one. The cache itself is an immutable value published through a single
// atomic pointer, so there are no locks on the call path.
//
// # Policies
//
//   - Memo: unbounded, never evicts
//   - MemoFIFO: evicts the oldest insertion once more than Limit entries are cached
//   - MemoLRU: evicts the least recently used entry once more than Limit entries are cached
//   - MemoLU: once Limit entries are cached, evicts every entry tied at the lowest use count
//   - MemoTTL: entries expire TTL after they were computed; expired entries are
//     purged by the next miss, there is no background sweeper
//   - MemoSoft: values are held weakly and dropped once the garbage collector
//     reclaims them; the most recently used values are kept reachable
//
// Limit defaults to 32 and TTL to 3 seconds.
//
// # Basic Usage
//
//	fib, err := obmemo.MemoLRU(func(args ...any) (any, error) {
//	    return slowFib(args[0].(int)), nil
//	}, obmemo.WithLimit(128))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	v, err := fib.Call(40) // computed
//	v, err = fib.Call(40)  // cached
//
// # Typed Functions
//
// Wrap memoizes an ordinary Go function through reflection. A leading
// context.Context is passed through but is not part of the key, and a
// trailing error result is returned instead of cached:
//
//	fetchUser, m, err := obmemo.Wrap(func(ctx context.Context, id int) (*User, error) {
//	    return db.LoadUser(ctx, id)
//	}, obmemo.WithPolicy(obmemo.PolicyTTL), obmemo.WithTTL(time.Minute))
//
//	user, err := fetchUser(ctx, 42)
//	defer m.Close()
//
// # Errors
//
// A computation that returns an error, or panics, is not cached: every caller
// that was waiting on it receives the error (a *PanicError for panics) and the
// entry is evicted so the next call retries. Invalid configuration is rejected
// by the constructors with an error wrapping ErrInvalidConfig; arguments that
// cannot be keyed yield ErrUnsupportedKey.
//
// # Administration
//
// Snapshot returns the computed contents, Clear empties the cache, Swap
// replaces it with known results and Forget drops one entry. The package-level
// SnapshotOf, Clear, Swap, Forget and Unwrap accept any value and do nothing
// for values that are not memoizers.
//
//	m.Swap([]obmemo.Seed{{Args: []any{13}, Value: "omg"}})
//	v, _ := m.Call(13) // "omg", the function is not called
//
// # Observability
//
// Hooks receive hit, miss, eviction and invalidation events. Logging goes
// through the Logger interface, backed by zap (NewZapLogger,
// NewDefaultLogger). Every computation runs inside an OpenTelemetry span named
// "obmemo.compute", and pkg/metrics exporters (Prometheus, OpenTelemetry)
// receive per-call metrics and periodic statistics. DebugHandler serves the
// statistics and entries as JSON.
package obmemo
