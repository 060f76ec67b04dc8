package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OpenTelemetryExporter implements the Exporter interface for OpenTelemetry metrics
type OpenTelemetryExporter struct {
	config *Config
	meter  metric.Meter
	ctx    context.Context

	hitsCounter       metric.Int64Counter
	missesCounter     metric.Int64Counter
	evictionsCounter  metric.Int64Counter
	operationsCounter metric.Int64Counter
	errorsCounter     metric.Int64Counter

	operationDuration metric.Float64Histogram

	keysGauge     metric.Int64Gauge
	inFlightGauge metric.Int64Gauge
	hitRateGauge  metric.Float64Gauge
}

// OpenTelemetryConfig holds OpenTelemetry-specific configuration
type OpenTelemetryConfig struct {
	// Meter is the OpenTelemetry meter to use
	Meter metric.Meter

	// Context is the context to use for metric operations
	Context context.Context
}

// NewOpenTelemetryExporter creates a new OpenTelemetry metrics exporter
func NewOpenTelemetryExporter(config *Config, otelConfig *OpenTelemetryConfig) (*OpenTelemetryExporter, error) {
	if config == nil {
		config = NewDefaultConfig()
	}

	if otelConfig == nil {
		return nil, fmt.Errorf("OpenTelemetry configuration is required")
	}

	if otelConfig.Meter == nil {
		return nil, fmt.Errorf("OpenTelemetry meter is required")
	}

	ctx := otelConfig.Context
	if ctx == nil {
		ctx = context.Background()
	}

	exporter := &OpenTelemetryExporter{
		config: config,
		meter:  otelConfig.Meter,
		ctx:    ctx,
	}

	if err := exporter.createStandardMetrics(); err != nil {
		return nil, fmt.Errorf("failed to create standard metrics: %w", err)
	}

	return exporter, nil
}

// createStandardMetrics creates all the standard memoizer instruments
func (o *OpenTelemetryExporter) createStandardMetrics() error {
	names := o.config.MetricNames
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&o.hitsCounter, names.HitsTotal, "Total number of memoized calls served from the cache"},
		{&o.missesCounter, names.MissesTotal, "Total number of memoized calls that inserted a new entry"},
		{&o.evictionsCounter, names.EvictionsTotal, "Total number of entries removed from the cache"},
		{&o.operationsCounter, names.OperationsTotal, "Total number of memoizer operations"},
		{&o.errorsCounter, names.ErrorsTotal, "Total number of failed memoizer operations"},
	}
	for _, c := range counters {
		*c.dst, err = o.meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1"))
		if err != nil {
			return fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
	}

	if o.config.IncludeDetailedTimings {
		o.operationDuration, err = o.meter.Float64Histogram(
			names.OperationDuration,
			metric.WithDescription("Memoizer operation duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			return fmt.Errorf("failed to create operation duration histogram: %w", err)
		}
	}

	o.keysGauge, err = o.meter.Int64Gauge(
		names.KeysCount,
		metric.WithDescription("Current number of live entries"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create keys gauge: %w", err)
	}

	o.inFlightGauge, err = o.meter.Int64Gauge(
		names.InFlightComputes,
		metric.WithDescription("Current number of running computations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create in-flight gauge: %w", err)
	}

	o.hitRateGauge, err = o.meter.Float64Gauge(
		names.HitRate,
		metric.WithDescription("Cache hit rate as a percentage"),
		metric.WithUnit("%"),
	)
	if err != nil {
		return fmt.Errorf("failed to create hit rate gauge: %w", err)
	}

	return nil
}

// ExportStats records the gauges from the current memoizer statistics
func (o *OpenTelemetryExporter) ExportStats(stats Stats, labels Labels) error {
	attrs := metric.WithAttributes(o.convertLabels(labels)...)

	o.keysGauge.Record(o.ctx, stats.KeyCount(), attrs)
	o.inFlightGauge.Record(o.ctx, stats.InFlight(), attrs)
	o.hitRateGauge.Record(o.ctx, stats.HitRate(), attrs)

	return nil
}

// RecordOperation records a memoizer operation with timing
func (o *OpenTelemetryExporter) RecordOperation(operation Operation, result Result, duration time.Duration, labels Labels) error {
	attrs := o.convertLabels(labels)
	opAttrs := append(attrs, attribute.String("operation", string(operation)))

	o.operationsCounter.Add(o.ctx, 1, metric.WithAttributes(append(opAttrs, attribute.String("result", string(result)))...))

	switch result {
	case ResultHit:
		o.hitsCounter.Add(o.ctx, 1, metric.WithAttributes(attrs...))
	case ResultMiss:
		o.missesCounter.Add(o.ctx, 1, metric.WithAttributes(attrs...))
	case ResultError:
		o.errorsCounter.Add(o.ctx, 1, metric.WithAttributes(opAttrs...))
	}

	if o.operationDuration != nil {
		o.operationDuration.Record(o.ctx, duration.Seconds(), metric.WithAttributes(opAttrs...))
	}

	return nil
}

// RecordEviction counts an eviction by reason
func (o *OpenTelemetryExporter) RecordEviction(reason string, labels Labels) error {
	attrs := append(o.convertLabels(labels), attribute.String("reason", reason))
	o.evictionsCounter.Add(o.ctx, 1, metric.WithAttributes(attrs...))
	return nil
}

// Close shuts down the exporter
func (o *OpenTelemetryExporter) Close() error {
	// OpenTelemetry metrics don't need explicit cleanup
	return nil
}

// convertLabels merges config labels with the given labels; the result has
// spare capacity so callers can append without aliasing each other.
func (o *OpenTelemetryExporter) convertLabels(labels Labels) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)+len(o.config.Labels)+2)

	for k, v := range o.config.Labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}

	return attrs
}

// Ensure interface is implemented
var _ Exporter = (*OpenTelemetryExporter)(nil)
