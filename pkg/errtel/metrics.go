// metrics.go defines the Prometheus collectors exported by the engine.

package errtel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "errtel"

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	RecordsIngested    *prometheus.CounterVec
	RecordsEvicted     *prometheus.CounterVec
	RecordsStored      prometheus.Gauge
	PatternsTracked    prometheus.Gauge
	SweepDuration      prometheus.Histogram
	SweepFailures      prometheus.Counter
	SinkFailures       prometheus.Counter
	EnrichmentFailures prometheus.Counter
	CollectorFailures  *prometheus.CounterVec
	ExportedRecords    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_ingested_total",
			Help:      "Error records accepted by the engine.",
		}, []string{"severity", "category"}),
		RecordsEvicted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_evicted_total",
			Help:      "Error records removed from the store, by reason.",
		}, []string{"reason"}),
		RecordsStored: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "records_stored",
			Help:      "Error records currently held in memory.",
		}),
		PatternsTracked: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "patterns_tracked",
			Help:      "Error patterns currently tracked.",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of retention sweeps.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		SweepFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sweep_failures_total",
			Help:      "Retention sweeps that panicked and were recovered.",
		}),
		SinkFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sink_failures_total",
			Help:      "Records the downstream sink failed to accept.",
		}),
		EnrichmentFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "enrichment_failures_total",
			Help:      "Ingestions whose system context was only partially captured.",
		}),
		CollectorFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "diagnostic_collector_failures_total",
			Help:      "Diagnostic sections omitted because their collector failed.",
		}, []string{"collector"}),
		ExportedRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "exported_records_total",
			Help:      "Error records written by completed exports, by format.",
		}, []string{"format"}),
	}
}
