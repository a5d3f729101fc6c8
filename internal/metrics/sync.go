package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion and vector index Prometheus metrics.
var (
	SyncRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scholarmatch",
			Name:      "sync_records_total",
			Help:      "Feed records processed by outcome",
		},
		[]string{"outcome"}, // "created" / "updated" / "failed"
	)

	SyncRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scholarmatch",
			Name:      "sync_run_duration_seconds",
			Help:      "Duration of a full institution sync run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	IndexVectors = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "scholarmatch",
			Name:      "index_vectors",
			Help:      "Vector index slot counts",
		},
		[]string{"state"}, // "total" / "live"
	)
)

var syncMetricsRegistered bool

// RegisterSyncMetrics registers ingestion metrics. Must be called once from main.
func RegisterSyncMetrics() {
	if syncMetricsRegistered {
		return
	}
	prometheus.MustRegister(SyncRecordsTotal)
	prometheus.MustRegister(SyncRunDuration)
	prometheus.MustRegister(IndexVectors)
	syncMetricsRegistered = true
}
