package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActorsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actor_sync_actors_total",
			Help: "Total number of actor records processed per run outcome (count)",
		},
		[]string{"status"},
	)

	ImportRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "actor_sync_import_retries_total",
			Help: "Total number of event submission retries (count)",
		},
	)

	ClusterOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actor_sync_cluster_ops_total",
			Help: "Galaxy cluster alignment operations by kind (count)",
		},
		[]string{"op"},
	)

	CheckpointTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "actor_sync_checkpoint_timestamp",
			Help: "Last persisted checkpoint watermark (unix seconds)",
		},
	)

	ImportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "actor_sync_import_duration_ms",
			Help:    "Per-actor import duration in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "actor_sync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

const (
	StatusImported         = "imported"
	StatusDropped          = "dropped"
	StatusSkippedDuplicate = "skipped_duplicate"
	StatusSkippedInvalid   = "skipped_invalid"
)

func RegisterSyncMetrics() {
	prometheus.MustRegister(
		ActorsProcessedTotal,
		ImportRetriesTotal,
		ClusterOpsTotal,
		CheckpointTimestamp,
		ImportDuration,
	)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
}

func ObserveImportDuration(duration time.Duration, status string) {
	ImportDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func SetCheckpointTimestamp(ts int64) {
	CheckpointTimestamp.Set(float64(ts))
}
