// Package observer exposes prometheus instrumentation for the analytics
// pipeline.
package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics carries the prometheus collectors the pipeline updates.
type PipelineMetrics struct {
	RecordsLoaded      prometheus.Counter
	RecordsRejected    prometheus.Counter
	AggregatesComputed *prometheus.CounterVec
	AnomaliesDetected  *prometheus.CounterVec
	RunDuration        prometheus.Histogram
}

// NewPipelineMetrics builds and registers the pipeline collectors against
// the given registerer (use prometheus.DefaultRegisterer in the service).
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		RecordsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backup_records_loaded_total",
			Help: "Total number of backup records accepted by the loader",
		}),
		RecordsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backup_records_rejected_total",
			Help: "Total number of backup records rejected during normalization",
		}),
		AggregatesComputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backup_aggregates_computed_total",
			Help: "Total number of aggregation buckets computed",
		}, []string{"granularity"}),
		AnomaliesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backup_anomalies_detected_total",
			Help: "Total number of anomalies detected",
		}, []string{"severity"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backup_pipeline_run_duration_seconds",
			Help:    "Wall-clock duration of full pipeline runs",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.RecordsLoaded,
		m.RecordsRejected,
		m.AggregatesComputed,
		m.AnomaliesDetected,
		m.RunDuration,
	)
	return m
}

// ObserveRun records one completed pipeline run.
func (m *PipelineMetrics) ObserveRun(start time.Time) {
	m.RunDuration.Observe(time.Since(start).Seconds())
}
