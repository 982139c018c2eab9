// Package monitoring records how long each pipeline stage takes and how many
// rows it handles, and mirrors those measurements to Prometheus.
package monitoring

import (
	"sync"
	"time"
)

const (
	// StatusOK labels a stage that succeeded.
	StatusOK = "ok"
	// StatusError labels a stage that returned an error.
	StatusError = "error"

	defaultHistory = 1024
)

// Pipeline stage names.
const (
	StageFetch  = "fetch"
	StageFilter = "filter"
	StagePivot  = "pivot"
	StageExport = "export"
)

// OperationMetrics represents performance metrics for a single stage run.
type OperationMetrics struct {
	Operation     string        `json:"operation"`
	Status        string        `json:"status"`
	Duration      time.Duration `json:"duration"`
	RowsProcessed int64         `json:"rows_processed"`
	StartedAt     time.Time     `json:"started_at"`
}

// MetricsCollector keeps the most recent stage measurements.
type MetricsCollector struct {
	mu      sync.RWMutex
	metrics []OperationMetrics
	history int
	enabled bool
	prom    *Prometheus
}

// CollectorOption configures a MetricsCollector.
type CollectorOption func(*MetricsCollector)

// WithPrometheus mirrors every recorded stage to p.
func WithPrometheus(p *Prometheus) CollectorOption {
	return func(mc *MetricsCollector) {
		mc.prom = p
	}
}

// WithHistory bounds how many measurements are kept.
func WithHistory(n int) CollectorOption {
	return func(mc *MetricsCollector) {
		if n > 0 {
			mc.history = n
		}
	}
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(enabled bool, opts ...CollectorOption) *MetricsCollector {
	mc := &MetricsCollector{
		metrics: make([]OperationMetrics, 0),
		history: defaultHistory,
		enabled: enabled,
	}
	for _, opt := range opts {
		opt(mc)
	}
	return mc
}

// IsEnabled returns whether metrics collection is enabled.
func (mc *MetricsCollector) IsEnabled() bool {
	if mc == nil {
		return false
	}
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.enabled
}

// SetEnabled enables or disables metrics collection.
func (mc *MetricsCollector) SetEnabled(enabled bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.enabled = enabled
}

// RecordOperation runs fn and records its duration, row count and outcome
// under operation. fn's error is returned unchanged. A nil or disabled
// collector just runs fn.
func (mc *MetricsCollector) RecordOperation(operation string, fn func() (int, error)) error {
	if !mc.IsEnabled() {
		_, err := fn()
		return err
	}

	start := time.Now()
	rows, err := fn()
	duration := time.Since(start)

	status := StatusOK
	if err != nil {
		status = StatusError
	}

	m := OperationMetrics{
		Operation:     operation,
		Status:        status,
		Duration:      duration,
		RowsProcessed: int64(rows),
		StartedAt:     start,
	}

	mc.mu.Lock()
	if len(mc.metrics) >= mc.history {
		mc.metrics = append(mc.metrics[:0], mc.metrics[len(mc.metrics)-mc.history+1:]...)
	}
	mc.metrics = append(mc.metrics, m)
	mc.mu.Unlock()

	if mc.prom != nil {
		mc.prom.ObserveStage(operation, status, duration, rows)
	}
	return err
}

// RecordCacheLookup counts a source cache hit or miss.
func (mc *MetricsCollector) RecordCacheLookup(hit bool) {
	if !mc.IsEnabled() || mc.prom == nil {
		return
	}
	mc.prom.ObserveCache(hit)
}

// GetMetrics returns a copy of all collected metrics.
func (mc *MetricsCollector) GetMetrics() []OperationMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make([]OperationMetrics, len(mc.metrics))
	copy(result, mc.metrics)
	return result
}

// Clear removes all collected metrics.
func (mc *MetricsCollector) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics = mc.metrics[:0]
}

// GetSummary returns a summary of collected metrics.
func (mc *MetricsCollector) GetSummary() MetricsSummary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if len(mc.metrics) == 0 {
		return MetricsSummary{OperationCounts: map[string]int{}}
	}

	var totalDuration time.Duration
	var totalRows int64
	var failures int
	operationCounts := make(map[string]int)

	for _, metric := range mc.metrics {
		totalDuration += metric.Duration
		totalRows += metric.RowsProcessed
		operationCounts[metric.Operation]++
		if metric.Status == StatusError {
			failures++
		}
	}

	return MetricsSummary{
		TotalOperations: len(mc.metrics),
		Failures:        failures,
		TotalDuration:   totalDuration,
		TotalRows:       totalRows,
		OperationCounts: operationCounts,
		AverageDuration: totalDuration / time.Duration(len(mc.metrics)),
	}
}

// MetricsSummary provides aggregate statistics for collected metrics.
type MetricsSummary struct {
	TotalOperations int            `json:"total_operations"`
	Failures        int            `json:"failures"`
	TotalDuration   time.Duration  `json:"total_duration"`
	TotalRows       int64          `json:"total_rows"`
	OperationCounts map[string]int `json:"operation_counts"`
	AverageDuration time.Duration  `json:"average_duration"`
}
