package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusExporter implements the Exporter interface for Prometheus metrics
type PrometheusExporter struct {
	config   *Config
	registry prometheus.Registerer

	// Counters
	hitsTotal       *prometheus.CounterVec
	missesTotal     *prometheus.CounterVec
	evictionsTotal  *prometheus.CounterVec
	operationsTotal *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec

	// Histograms
	operationDuration *prometheus.HistogramVec

	// Gauges
	keysCount        *prometheus.GaugeVec
	inFlightComputes *prometheus.GaugeVec
	hitRate          *prometheus.GaugeVec
}

// PrometheusConfig holds Prometheus-specific configuration
type PrometheusConfig struct {
	// Registry is the Prometheus registry to use (optional, uses default if nil)
	Registry prometheus.Registerer

	// DefaultLabels are applied to all metrics
	DefaultLabels prometheus.Labels

	// Buckets for histogram metrics
	DurationBuckets []float64
}

// NewPrometheusExporter creates a new Prometheus metrics exporter
func NewPrometheusExporter(config *Config, promConfig *PrometheusConfig) (*PrometheusExporter, error) {
	if config == nil {
		config = NewDefaultConfig()
	}

	if promConfig == nil {
		promConfig = &PrometheusConfig{}
	}

	registry := promConfig.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	durationBuckets := promConfig.DurationBuckets
	if durationBuckets == nil {
		durationBuckets = []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
	}

	defaultLabels := make(prometheus.Labels)
	for k, v := range promConfig.DefaultLabels {
		defaultLabels[k] = v
	}
	for k, v := range config.Labels {
		defaultLabels[k] = v
	}

	exporter := &PrometheusExporter{
		config:   config,
		registry: registry,
	}

	if err := exporter.createStandardMetrics(defaultLabels, durationBuckets); err != nil {
		return nil, fmt.Errorf("failed to create standard metrics: %w", err)
	}

	return exporter, nil
}

// createStandardMetrics creates and registers all the standard memoizer metrics
func (p *PrometheusExporter) createStandardMetrics(defaultLabels prometheus.Labels, durationBuckets []float64) error {
	names := p.config.MetricNames
	base := []string{LabelMemoizer}

	p.hitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: names.HitsTotal, Help: "Total number of memoized calls served from the cache", ConstLabels: defaultLabels,
	}, base)
	p.missesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: names.MissesTotal, Help: "Total number of memoized calls that inserted a new entry", ConstLabels: defaultLabels,
	}, base)
	p.evictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: names.EvictionsTotal, Help: "Total number of entries removed from the cache", ConstLabels: defaultLabels,
	}, append(base, "reason"))
	p.operationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: names.OperationsTotal, Help: "Total number of memoizer operations", ConstLabels: defaultLabels,
	}, append(base, "operation", "result"))
	p.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: names.ErrorsTotal, Help: "Total number of failed memoizer operations", ConstLabels: defaultLabels,
	}, append(base, "operation"))

	p.keysCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: names.KeysCount, Help: "Current number of live entries", ConstLabels: defaultLabels,
	}, base)
	p.inFlightComputes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: names.InFlightComputes, Help: "Current number of running computations", ConstLabels: defaultLabels,
	}, base)
	p.hitRate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: names.HitRate, Help: "Cache hit rate as a percentage", ConstLabels: defaultLabels,
	}, base)

	collectors := []prometheus.Collector{
		p.hitsTotal, p.missesTotal, p.evictionsTotal, p.operationsTotal, p.errorsTotal,
		p.keysCount, p.inFlightComputes, p.hitRate,
	}

	if p.config.IncludeDetailedTimings {
		p.operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: names.OperationDuration, Help: "Memoizer operation duration in seconds", ConstLabels: defaultLabels, Buckets: durationBuckets,
		}, append(base, "operation"))
		collectors = append(collectors, p.operationDuration)
	}

	for _, c := range collectors {
		if err := p.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ExportStats updates the gauges from the current memoizer statistics.
// Counters are driven by RecordOperation and RecordEviction.
func (p *PrometheusExporter) ExportStats(stats Stats, labels Labels) error {
	base := prometheus.Labels{LabelMemoizer: memoizerName(labels)}

	p.keysCount.With(base).Set(float64(stats.KeyCount()))
	p.inFlightComputes.With(base).Set(float64(stats.InFlight()))
	p.hitRate.With(base).Set(stats.HitRate())

	return nil
}

// RecordOperation records a memoizer operation with timing
func (p *PrometheusExporter) RecordOperation(operation Operation, result Result, duration time.Duration, labels Labels) error {
	name := memoizerName(labels)

	p.operationsTotal.WithLabelValues(name, string(operation), string(result)).Inc()

	switch result {
	case ResultHit:
		p.hitsTotal.WithLabelValues(name).Inc()
	case ResultMiss:
		p.missesTotal.WithLabelValues(name).Inc()
	case ResultError:
		p.errorsTotal.WithLabelValues(name, string(operation)).Inc()
	}

	if p.operationDuration != nil {
		p.operationDuration.WithLabelValues(name, string(operation)).Observe(duration.Seconds())
	}

	return nil
}

// RecordEviction counts an eviction by reason
func (p *PrometheusExporter) RecordEviction(reason string, labels Labels) error {
	p.evictionsTotal.WithLabelValues(memoizerName(labels), reason).Inc()
	return nil
}

// Close shuts down the exporter
func (p *PrometheusExporter) Close() error {
	// Prometheus metrics don't need explicit cleanup
	return nil
}

func memoizerName(labels Labels) string {
	if name, ok := labels[LabelMemoizer]; ok && name != "" {
		return name
	}
	return "default"
}

// Ensure interface is implemented
var _ Exporter = (*PrometheusExporter)(nil)
