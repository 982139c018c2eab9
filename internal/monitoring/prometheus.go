package monitoring

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pivotgrid"

// Prometheus holds the exported pipeline metrics.
type Prometheus struct {
	stageDuration *prometheus.HistogramVec
	rowsProcessed *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
}

// NewPrometheus creates the pipeline metrics and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "status"}),
		rowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_processed_total",
			Help:      "Rows produced by pipeline stages.",
		}, []string{"stage"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_cache_total",
			Help:      "Row source cache lookups by result.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{p.stageDuration, p.rowsProcessed, p.cacheLookups} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return p, nil
}

// ObserveStage records one stage run.
func (p *Prometheus) ObserveStage(stage, status string, d time.Duration, rows int) {
	p.stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
	if rows > 0 {
		p.rowsProcessed.WithLabelValues(stage).Add(float64(rows))
	}
}

// ObserveCache records one cache lookup.
func (p *Prometheus) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(result).Inc()
}
