package obmemo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnykmshr/obmemo-go/internal/cache"
	"github.com/vnykmshr/obmemo-go/internal/entry"
	"github.com/vnykmshr/obmemo-go/internal/lazy"
	"github.com/vnykmshr/obmemo-go/pkg/metrics"
)

const tracerName = "github.com/vnykmshr/obmemo-go"

// Func is a function that can be memoized
type Func func(args ...any) (any, error)

// Memoizer caches the results of a function by argument list.
//
// The current cache value lives in a single atomic cell. Every call computes
// the next cache value from the one it observed and publishes it with a
// compare-and-swap, retrying from the latest value when another call won.
// The result for a key is a deferred value evaluated at most once, so callers
// racing on the same key share one computation.
type Memoizer struct {
	id       string
	name     string
	original any
	state    atomic.Pointer[adapter]

	keyFunc       KeyFunc
	checkSeeds    func([]Seed) error
	clock         func() time.Time
	snapshotLimit int

	stats  *Stats
	hooks  *Hooks
	logger Logger
	tracer trace.Tracer

	metricsExporter metrics.Exporter
	metricsLabels   metrics.Labels
	metricsStop     chan struct{}
	metricsWg       sync.WaitGroup
	closeOnce       sync.Once
}

// New creates a memoizer for fn with the given configuration
func New(fn Func, config *Config) (*Memoizer, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: function is nil", ErrInvalidConfig)
	}
	return newMemoizer(func(_ context.Context, args []any) (any, error) {
		return fn(args...)
	}, fn, config)
}

func newMemoizer(fn target, original any, config *Config) (*Memoizer, error) {
	if config == nil {
		config = NewDefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	empty, err := config.newCache()
	if err != nil {
		return nil, err
	}
	base, err := seedEntries(config.Base, config.keyFunc(), config.now())
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	name := config.Name
	if name == "" {
		name = id
	}

	m := &Memoizer{
		id:            id,
		name:          name,
		original:      original,
		keyFunc:       config.keyFunc(),
		clock:         config.Clock,
		snapshotLimit: config.SnapshotConcurrency,
		stats:         &Stats{},
		hooks:         config.Hooks,
		logger:        config.Logger,
		tracer:        config.Tracer,
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.snapshotLimit == 0 {
		m.snapshotLimit = DefaultSnapshotConcurrency
	}
	if m.logger == nil {
		m.logger = NewNoOpLogger()
	}
	m.logger = m.logger.With(F("memoizer", name))
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}

	initial := &adapter{target: fn, cache: empty}
	if len(base) > 0 {
		initial = initial.seed(base)
	}
	m.state.Store(initial)

	m.initializeMetrics(config.Metrics)

	m.logger.Debug("Memoizer created",
		F("policy", string(empty.Policy())),
		F("limit", empty.Limit()),
		F("ttl", empty.TTL()),
		F("base", len(base)))

	return m, nil
}

// ID returns the unique id generated for this memoizer
func (m *Memoizer) ID() string { return m.id }

// Name returns the configured name, or the id when none was set
func (m *Memoizer) Name() string { return m.name }

// Policy returns the eviction policy, fixed for the memoizer's lifetime
func (m *Memoizer) Policy() Policy { return m.state.Load().cache.Policy() }

// Limit returns the capacity limit, or 0 for unbounded policies
func (m *Memoizer) Limit() int { return m.state.Load().cache.Limit() }

// TTL returns the entry lifetime, or 0 for policies without expiry
func (m *Memoizer) TTL() time.Duration { return m.state.Load().cache.TTL() }

// Len returns the number of live entries
func (m *Memoizer) Len() int { return m.state.Load().cache.Len() }

// Stats returns the memoizer statistics with a fresh key count
func (m *Memoizer) Stats() *Stats {
	m.stats.setKeyCount(int64(m.Len()))
	return m.stats
}

// Func returns Call as a Func, so a memoizer can stand in for the function it wraps
func (m *Memoizer) Func() Func {
	return m.Call
}

// Call returns the result for args, computing it at most once per live entry
func (m *Memoizer) Call(args ...any) (any, error) {
	return m.CallContext(context.Background(), args...)
}

// CallContext is Call with a context for hooks and tracing. When this call
// computes the result, ctx is also the parent of the computation span and is
// passed to a target built by Wrap.
func (m *Memoizer) CallContext(ctx context.Context, args ...any) (any, error) {
	start := time.Now()

	key, err := m.keyFunc(args)
	if err != nil {
		m.recordOperation(metrics.OperationCall, metrics.ResultError, time.Since(start))
		return nil, err
	}
	args = append([]any(nil), args...)

	e, hit := m.through(ctx, key, args)

	value, err := e.Value.Force()
	if err != nil {
		m.evictFailed(ctx, e, err)
		m.recordOperation(metrics.OperationCall, metrics.ResultError, time.Since(start))
		return nil, err
	}

	result := metrics.ResultMiss
	if hit {
		result = metrics.ResultHit
	}
	m.recordOperation(metrics.OperationCall, result, time.Since(start))
	return value, nil
}

// through applies a hit or a miss for key to the current cache, publishes it
// and returns the entry the committed transition hit or inserted. The entry is
// held directly, so a later expiry or reclamation cannot take it from this call.
func (m *Memoizer) through(ctx context.Context, key string, args []any) (*entry.Entry, bool) {
	var fresh *entry.Entry
	for {
		cur := m.state.Load()

		e, hit := cur.lookup(key)
		var next *adapter
		if hit {
			next = cur.hit(key)
		} else {
			if fresh == nil {
				fn := cur.target
				fresh = entry.New(key, args, lazy.New(func() (any, error) {
					return m.compute(ctx, fn, key, args)
				}), m.clock())
			}
			e = fresh
			next = cur.miss(fresh)
		}

		if !m.state.CompareAndSwap(cur, next) {
			continue
		}

		if hit {
			m.stats.incHits()
			m.hooks.invokeOnHit(ctx, key, args)
		} else {
			m.stats.incMisses()
			m.hooks.invokeOnMiss(ctx, key, args)
		}
		m.evicted(ctx, next.cache.Evicted())
		return e, hit
	}
}

// compute runs the target for one deferred value
func (m *Memoizer) compute(ctx context.Context, fn target, key string, args []any) (any, error) {
	ctx, span := m.tracer.Start(ctx, "obmemo.compute", trace.WithAttributes(
		attribute.String("obmemo.memoizer", m.name),
		attribute.String("obmemo.key", key),
		attribute.Int("obmemo.args", len(args)),
	))
	defer span.End()

	m.stats.computationStarted()
	defer m.stats.computationFinished()

	m.logger.Debug("Computing", F("key", key))

	start := time.Now()
	value, err := m.guard(ctx, fn, args)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.recordOperation(metrics.OperationCompute, metrics.ResultError, duration)
		return nil, err
	}
	m.recordOperation(metrics.OperationCompute, metrics.ResultOK, duration)
	return value, nil
}

// guard converts a panic in fn into a PanicError so the span and
// in-flight gauge still see the failure
func (m *Memoizer) guard(ctx context.Context, fn target, args []any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Recovered: r}
		}
	}()
	return fn(ctx, args)
}

// evictFailed removes the entry holding a failed computation so the next call
// retries it. Entries replaced since the failure are left alone.
func (m *Memoizer) evictFailed(ctx context.Context, failed *entry.Entry, cause error) {
	for {
		cur := m.state.Load()
		e, ok := cur.lookup(failed.Key)
		if !ok || e.Value != failed.Value {
			return
		}

		next := cur.evict(failed.Key, cache.ReasonFailed)
		if !m.state.CompareAndSwap(cur, next) {
			continue
		}

		var panicErr *PanicError
		m.logger.Warn("Computation failed, entry evicted",
			F("key", failed.Key),
			F("panic", errors.As(cause, &panicErr)),
			F("error", cause))
		m.evicted(ctx, next.cache.Evicted())
		return
	}
}

// evicted accounts for the entries a committed transition removed
func (m *Memoizer) evicted(ctx context.Context, evictions []cache.Eviction) {
	for _, ev := range evictions {
		switch ev.Reason {
		case cache.ReasonFailed:
			m.stats.incFailures()
		case cache.ReasonInvalidated:
			m.stats.addInvalidations(1)
		default:
			m.stats.incEvictions()
		}

		if ev.Reason == cache.ReasonInvalidated {
			m.hooks.invokeOnInvalidate(ctx, ev.Entry.Key, ev.Entry.Args)
		} else {
			m.hooks.invokeOnEvict(ctx, ev.Entry.Key, ev.Entry.Args, ev.Reason)
		}
		if m.metricsExporter != nil {
			_ = m.metricsExporter.RecordEviction(ev.Reason.String(), m.metricsLabels)
		}
	}
}

// Close stops the metrics reporter and closes the metrics exporter.
// The memoizer stays usable; Close only releases reporting resources.
func (m *Memoizer) Close() error {
	if m == nil {
		return nil
	}
	var err error
	m.closeOnce.Do(func() {
		if m.metricsStop != nil {
			close(m.metricsStop)
			m.metricsWg.Wait()
		}
		if m.metricsExporter != nil {
			err = m.metricsExporter.Close()
		}
	})
	return err
}

// initializeMetrics sets up metrics collection if configured
func (m *Memoizer) initializeMetrics(config *MetricsConfig) {
	if config == nil || config.Exporter == nil {
		return
	}

	m.metricsExporter = config.Exporter
	m.metricsLabels = metrics.Labels{metrics.LabelMemoizer: m.name}
	for k, v := range config.Labels {
		m.metricsLabels[k] = v
	}

	if config.ReportingInterval > 0 {
		m.metricsStop = make(chan struct{})
		m.metricsWg.Add(1)
		go m.metricsReporter(config.ReportingInterval)
	}
}

// metricsReporter periodically exports memoizer statistics
func (m *Memoizer) metricsReporter(interval time.Duration) {
	defer m.metricsWg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.exportCurrentStats()
		case <-m.metricsStop:
			// Final stats export before shutting down
			m.exportCurrentStats()
			return
		}
	}
}

func (m *Memoizer) exportCurrentStats() {
	if err := m.metricsExporter.ExportStats(m.Stats(), m.metricsLabels); err != nil {
		m.logger.Warn("Metrics export failed", F("error", err))
	}
}

func (m *Memoizer) recordOperation(operation metrics.Operation, result metrics.Result, duration time.Duration) {
	if m.metricsExporter != nil {
		_ = m.metricsExporter.RecordOperation(operation, result, duration, m.metricsLabels) //nolint:errcheck // best effort
	}
}
