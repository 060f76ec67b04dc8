package metrics

import (
	"errors"
	"time"
)

// Exporter defines the interface for memoizer metrics exporters
// This abstraction allows supporting multiple observability systems
type Exporter interface {
	// ExportStats exports the current memoizer statistics
	ExportStats(stats Stats, labels Labels) error

	// RecordOperation records one memoizer operation with its result and timing
	RecordOperation(operation Operation, result Result, duration time.Duration, labels Labels) error

	// RecordEviction records an entry leaving the cache for the given reason
	RecordEviction(reason string, labels Labels) error

	// Close shuts down the exporter and flushes any pending metrics
	Close() error
}

// Labels represents key-value pairs for metric labels/tags
type Labels map[string]string

// Stats interface defines the memoizer statistics that can be exported
// This allows the metrics package to work with any stats implementation
type Stats interface {
	Hits() int64
	Misses() int64
	Evictions() int64
	Invalidations() int64
	Failures() int64
	KeyCount() int64
	InFlight() int64
	HitRate() float64
}

// Operation represents different memoizer operations for metrics
type Operation string

const (
	// OperationCall is one invocation of a memoized function
	OperationCall Operation = "call"

	// OperationCompute is one evaluation of the underlying function
	OperationCompute Operation = "compute"

	// Admin operations
	OperationClear    Operation = "clear"
	OperationSwap     Operation = "swap"
	OperationForget   Operation = "forget"
	OperationSnapshot Operation = "snapshot"
)

// Result represents the result of a memoizer operation
type Result string

const (
	ResultHit   Result = "hit"
	ResultMiss  Result = "miss"
	ResultOK    Result = "ok"
	ResultError Result = "error"
)

// LabelMemoizer is the label carrying the memoizer name
const LabelMemoizer = "memoizer"

// MetricNames defines standard metric names used across exporters
type MetricNames struct {
	// Counters
	HitsTotal       string
	MissesTotal     string
	EvictionsTotal  string
	OperationsTotal string
	ErrorsTotal     string

	// Histograms
	OperationDuration string

	// Gauges
	KeysCount        string
	InFlightComputes string
	HitRate          string
}

// DefaultMetricNames returns the default metric names with proper namespacing
func DefaultMetricNames() MetricNames {
	return MetricNames{
		HitsTotal:         "obmemo_hits_total",
		MissesTotal:       "obmemo_misses_total",
		EvictionsTotal:    "obmemo_evictions_total",
		OperationsTotal:   "obmemo_operations_total",
		ErrorsTotal:       "obmemo_errors_total",
		OperationDuration: "obmemo_operation_duration_seconds",
		KeysCount:         "obmemo_keys_count",
		InFlightComputes:  "obmemo_inflight_computations",
		HitRate:           "obmemo_hit_rate",
	}
}

// Config holds configuration for metrics exporters
type Config struct {
	// Labels are default labels applied to all metrics
	Labels Labels

	// MetricNames allows customizing metric names
	MetricNames MetricNames

	// IncludeDetailedTimings enables operation duration histograms
	IncludeDetailedTimings bool
}

// NewDefaultConfig creates a default metrics configuration
func NewDefaultConfig() *Config {
	return &Config{
		Labels:                 make(Labels),
		MetricNames:            DefaultMetricNames(),
		IncludeDetailedTimings: true,
	}
}

// WithLabels adds default labels to all metrics
func (c *Config) WithLabels(labels Labels) *Config {
	if c.Labels == nil {
		c.Labels = make(Labels)
	}
	for k, v := range labels {
		c.Labels[k] = v
	}
	return c
}

// WithDetailedTimings enables operation duration histograms
func (c *Config) WithDetailedTimings(enabled bool) *Config {
	c.IncludeDetailedTimings = enabled
	return c
}

// MultiExporter allows using multiple exporters simultaneously
type MultiExporter struct {
	exporters []Exporter
}

// NewMultiExporter creates an exporter that writes to multiple backends
func NewMultiExporter(exporters ...Exporter) *MultiExporter {
	return &MultiExporter{
		exporters: exporters,
	}
}

// ExportStats exports to all configured exporters
func (m *MultiExporter) ExportStats(stats Stats, labels Labels) error {
	var errs []error
	for _, exporter := range m.exporters {
		errs = append(errs, exporter.ExportStats(stats, labels))
	}
	return errors.Join(errs...)
}

// RecordOperation records to all configured exporters
func (m *MultiExporter) RecordOperation(operation Operation, result Result, duration time.Duration, labels Labels) error {
	var errs []error
	for _, exporter := range m.exporters {
		errs = append(errs, exporter.RecordOperation(operation, result, duration, labels))
	}
	return errors.Join(errs...)
}

// RecordEviction records to all configured exporters
func (m *MultiExporter) RecordEviction(reason string, labels Labels) error {
	var errs []error
	for _, exporter := range m.exporters {
		errs = append(errs, exporter.RecordEviction(reason, labels))
	}
	return errors.Join(errs...)
}

// Close closes all configured exporters
func (m *MultiExporter) Close() error {
	var errs []error
	for _, exporter := range m.exporters {
		errs = append(errs, exporter.Close())
	}
	return errors.Join(errs...)
}

// NoOpExporter provides a no-op implementation for when metrics are disabled
type NoOpExporter struct{}

// NewNoOpExporter creates a no-op exporter
func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{}
}

// ExportStats does nothing
func (n *NoOpExporter) ExportStats(Stats, Labels) error { return nil }

// RecordOperation does nothing
func (n *NoOpExporter) RecordOperation(Operation, Result, time.Duration, Labels) error { return nil }

// RecordEviction does nothing
func (n *NoOpExporter) RecordEviction(string, Labels) error { return nil }

// Close does nothing
func (n *NoOpExporter) Close() error { return nil }

// Ensure interfaces are implemented
var (
	_ Exporter = (*MultiExporter)(nil)
	_ Exporter = (*NoOpExporter)(nil)
)
