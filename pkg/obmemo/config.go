package obmemo

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vnykmshr/obmemo-go/internal/cache"
	"github.com/vnykmshr/obmemo-go/internal/entry"
	"github.com/vnykmshr/obmemo-go/pkg/metrics"
)

// Policy selects how a memoizer's cache evicts entries
type Policy = cache.Policy

const (
	// PolicyBasic never evicts
	PolicyBasic = cache.Basic

	// PolicyFIFO evicts the oldest insertion once Limit is exceeded
	PolicyFIFO = cache.FIFO

	// PolicyLRU evicts the least recently used entry once Limit is exceeded
	PolicyLRU = cache.LRU

	// PolicyLU evicts every least used entry once Limit is reached
	PolicyLU = cache.LU

	// PolicyTTL drops entries TTL after they were computed
	PolicyTTL = cache.TTL

	// PolicySoft drops entries once the garbage collector reclaims their values
	PolicySoft = cache.Soft
)

const (
	// DefaultLimit is the capacity of FIFO, LRU and LU memoizers
	DefaultLimit = 32

	// DefaultTTL is the entry lifetime of TTL memoizers
	DefaultTTL = 3000 * time.Millisecond

	// DefaultSoftRetention is how many recently used values a Soft memoizer
	// keeps strongly reachable
	DefaultSoftRetention = 64

	// DefaultSnapshotConcurrency bounds how many entries Snapshot forces at once
	DefaultSnapshotConcurrency = 8
)

// Seed is one known result: calling the target with Args returns Value.
// A list of seeds is the base mapping a memoizer starts from or is swapped to.
type Seed struct {
	Args  []any
	Value any
}

// BaseOf builds a base mapping for a single-argument function
func BaseOf[K comparable, V any](m map[K]V) []Seed {
	base := make([]Seed, 0, len(m))
	for k, v := range m {
		base = append(base, Seed{Args: []any{k}, Value: v})
	}
	return base
}

// MetricsConfig holds metrics exporter configuration
type MetricsConfig struct {
	// Exporter is the metrics exporter to use
	Exporter metrics.Exporter

	// ReportingInterval determines how often to export stats automatically
	// Set to 0 to disable automatic reporting
	ReportingInterval time.Duration

	// Labels are additional labels applied to all metrics
	Labels metrics.Labels
}

// Config defines the configuration options for a Memoizer
type Config struct {
	// Policy selects the eviction policy
	// Default: PolicyBasic
	Policy Policy

	// Limit is the capacity of FIFO, LRU and LU memoizers
	// Default: 32
	Limit int

	// TTL is the entry lifetime of TTL memoizers
	// Default: 3 seconds
	TTL time.Duration

	// Base holds results the memoizer starts with, without calling the target
	Base []Seed

	// Name identifies the memoizer in logs, metrics and traces
	// If empty, the generated id is used
	Name string

	// KeyFunc encodes call arguments into cache keys
	// If nil, DefaultKeyFunc will be used
	KeyFunc KeyFunc

	// Hooks defines event callbacks for memoizer operations
	Hooks *Hooks

	// Logger receives memoizer log messages
	// If nil, logging is disabled
	Logger Logger

	// Tracer creates a span for every computation
	// If nil, the global OpenTelemetry tracer provider is used
	Tracer trace.Tracer

	// Metrics holds metrics exporter configuration
	// If nil, no metrics will be exported
	Metrics *MetricsConfig

	// Clock drives TTL expiry and entry timestamps
	// If nil, time.Now is used
	Clock func() time.Time

	// SoftRetention is how many recently used values a Soft memoizer keeps
	// strongly reachable; 0 leaves every value to the garbage collector
	// Default: 64
	SoftRetention int

	// SnapshotConcurrency bounds how many entries Snapshot forces at once
	// Default: 8
	SnapshotConcurrency int
}

// NewDefaultConfig returns a Config with the default parameters of every policy
func NewDefaultConfig() *Config {
	return &Config{
		Policy:              PolicyBasic,
		Limit:               DefaultLimit,
		TTL:                 DefaultTTL,
		Hooks:               &Hooks{},
		SoftRetention:       DefaultSoftRetention,
		SnapshotConcurrency: DefaultSnapshotConcurrency,
	}
}

// WithPolicy sets the eviction policy
func (c *Config) WithPolicy(policy Policy) *Config {
	c.Policy = policy
	return c
}

// WithLimit sets the capacity of FIFO, LRU and LU memoizers
func (c *Config) WithLimit(limit int) *Config {
	c.Limit = limit
	return c
}

// WithTTL sets the entry lifetime of TTL memoizers
func (c *Config) WithTTL(ttl time.Duration) *Config {
	c.TTL = ttl
	return c
}

// WithBase sets the results the memoizer starts with
func (c *Config) WithBase(base ...Seed) *Config {
	c.Base = base
	return c
}

// WithName sets the memoizer name
func (c *Config) WithName(name string) *Config {
	c.Name = name
	return c
}

// WithKeyFunc sets a custom key generation function
func (c *Config) WithKeyFunc(fn KeyFunc) *Config {
	c.KeyFunc = fn
	return c
}

// WithHooks sets the event hooks
func (c *Config) WithHooks(hooks *Hooks) *Config {
	c.Hooks = hooks
	return c
}

// WithLogger sets the logger
func (c *Config) WithLogger(logger Logger) *Config {
	c.Logger = logger
	return c
}

// WithTracer sets the tracer used for computation spans
func (c *Config) WithTracer(tracer trace.Tracer) *Config {
	c.Tracer = tracer
	return c
}

// WithMetrics configures metrics export
func (c *Config) WithMetrics(metricsConfig *MetricsConfig) *Config {
	c.Metrics = metricsConfig
	return c
}

// WithMetricsExporter configures metrics with the given exporter and a 30 second reporting interval
func (c *Config) WithMetricsExporter(exporter metrics.Exporter) *Config {
	c.Metrics = &MetricsConfig{
		Exporter:          exporter,
		ReportingInterval: 30 * time.Second,
		Labels:            make(metrics.Labels),
	}
	return c
}

// WithClock sets the clock used for TTL expiry and entry timestamps
func (c *Config) WithClock(clock func() time.Time) *Config {
	c.Clock = clock
	return c
}

// WithSoftRetention sets how many recently used values a Soft memoizer keeps reachable
func (c *Config) WithSoftRetention(n int) *Config {
	c.SoftRetention = n
	return c
}

// WithSnapshotConcurrency bounds how many entries Snapshot forces at once
func (c *Config) WithSnapshotConcurrency(n int) *Config {
	c.SnapshotConcurrency = n
	return c
}

// Validate reports the first problem that would make the configuration unusable.
// Every error wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if _, err := c.newCache(); err != nil {
		return err
	}
	if c.SnapshotConcurrency < 0 {
		return fmt.Errorf("%w: snapshot concurrency must not be negative, got %d", ErrInvalidConfig, c.SnapshotConcurrency)
	}
	if c.Metrics != nil && c.Metrics.ReportingInterval < 0 {
		return fmt.Errorf("%w: metrics reporting interval must not be negative, got %v", ErrInvalidConfig, c.Metrics.ReportingInterval)
	}
	if _, err := seedEntries(c.Base, c.keyFunc(), c.now()); err != nil {
		return err
	}
	return nil
}

// newCache builds the empty cache for this configuration, which checks
// every policy parameter
func (c *Config) newCache() (cache.Cache, error) {
	policy := c.Policy
	if policy == "" {
		policy = PolicyBasic
	}
	empty, err := cache.New(cache.Config{
		Policy: policy,
		Limit:  c.Limit,
		TTL:    c.TTL,
		Clock:  c.Clock,
		Retain: c.SoftRetention,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return empty, nil
}

func (c *Config) keyFunc() KeyFunc {
	if c.KeyFunc != nil {
		return c.KeyFunc
	}
	return DefaultKeyFunc
}

func (c *Config) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

// seedEntries converts a base mapping into pre-forced entries, rejecting
// arguments that cannot be keyed and arguments listed twice.
func seedEntries(base []Seed, keyFunc KeyFunc, now time.Time) ([]*entry.Entry, error) {
	entries := make([]*entry.Entry, 0, len(base))
	seen := make(map[string]int, len(base))
	for i, s := range base {
		key, err := keyFunc(s.Args)
		if err != nil {
			return nil, fmt.Errorf("%w: base entry %d: %w", ErrInvalidConfig, i, err)
		}
		if j, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: base entries %d and %d have the same arguments", ErrInvalidConfig, j, i)
		}
		seen[key] = i
		entries = append(entries, entry.NewForced(key, append([]any(nil), s.Args...), s.Value, now))
	}
	return entries, nil
}

// Option configures a memoizer built by one of the factory functions
type Option func(*Config)

// WithPolicy sets the eviction policy; the Memo* factories set it for you
func WithPolicy(policy Policy) Option {
	return func(c *Config) { c.Policy = policy }
}

// WithLimit sets the capacity of FIFO, LRU and LU memoizers
func WithLimit(limit int) Option {
	return func(c *Config) { c.Limit = limit }
}

// WithTTL sets the entry lifetime of TTL memoizers
func WithTTL(ttl time.Duration) Option {
	return func(c *Config) { c.TTL = ttl }
}

// WithBase sets the results the memoizer starts with
func WithBase(base ...Seed) Option {
	return func(c *Config) { c.Base = base }
}

// WithName sets the memoizer name
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithKeyFunc sets a custom key generation function
func WithKeyFunc(fn KeyFunc) Option {
	return func(c *Config) { c.KeyFunc = fn }
}

// WithHooks sets the event hooks
func WithHooks(hooks *Hooks) Option {
	return func(c *Config) { c.Hooks = hooks }
}

// WithLogger sets the logger
func WithLogger(logger Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithTracer sets the tracer used for computation spans
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Config) { c.Tracer = tracer }
}

// WithMetrics configures metrics export
func WithMetrics(metricsConfig *MetricsConfig) Option {
	return func(c *Config) { c.Metrics = metricsConfig }
}

// WithClock sets the clock used for TTL expiry and entry timestamps
func WithClock(clock func() time.Time) Option {
	return func(c *Config) { c.Clock = clock }
}

// WithSoftRetention sets how many recently used values a Soft memoizer keeps reachable
func WithSoftRetention(n int) Option {
	return func(c *Config) { c.SoftRetention = n }
}
