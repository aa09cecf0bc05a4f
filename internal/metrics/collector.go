// internal/metrics/collector.go
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dataset metrics
	datasetsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intellinspect_datasets_ingested_total",
			Help: "Total number of datasets ingested",
		},
		[]string{"synthetic_timestamp"},
	)

	ingestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intellinspect_dataset_ingest_duration_seconds",
			Help:    "Time spent reading and normalizing a dataset",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		},
	)

	// Session metrics
	sessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intellinspect_sessions_started_total",
			Help: "Total number of replay sessions started",
		},
	)

	sessionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intellinspect_sessions_finished_total",
			Help: "Total number of replay sessions reaching a terminal state",
		},
		[]string{"status"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "intellinspect_replay_workers_active",
			Help: "Number of replay workers currently running",
		},
	)

	rowsReplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intellinspect_rows_replayed_total",
			Help: "Total number of rows consumed by replay workers",
		},
	)

	// Oracle metrics
	predictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intellinspect_predictions_total",
			Help: "Total number of predictions recorded",
		},
		[]string{"label"},
	)

	oracleFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intellinspect_oracle_failures_total",
			Help: "Total number of failed oracle calls",
		},
	)

	oracleLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intellinspect_oracle_request_duration_seconds",
			Help:    "Oracle request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Alert metrics
	alertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intellinspect_alerts_raised_total",
			Help: "Total number of quality alerts raised",
		},
		[]string{"severity"},
	)

	sessionsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intellinspect_sessions_purged_total",
			Help: "Total number of sessions removed by retention",
		},
	)
)

// RecordDatasetIngested records a completed ingest
func RecordDatasetIngested(synthetic bool, d time.Duration) {
	datasetsIngested.WithLabelValues(strconv.FormatBool(synthetic)).Inc()
	ingestDuration.Observe(d.Seconds())
}

// SessionStarted records a new session
func SessionStarted() {
	sessionsStarted.Inc()
}

// SessionFinished records a session reaching status
func SessionFinished(status string) {
	sessionsFinished.WithLabelValues(status).Inc()
}

// WorkerStarted increments the active worker gauge
func WorkerStarted() {
	activeWorkers.Inc()
}

// WorkerStopped decrements the active worker gauge
func WorkerStopped() {
	activeWorkers.Dec()
}

// RowReplayed records one consumed row
func RowReplayed() {
	rowsReplayed.Inc()
}

// RecordPrediction records a successful oracle call
func RecordPrediction(label int, d time.Duration) {
	predictionsTotal.WithLabelValues(strconv.Itoa(label)).Inc()
	oracleLatency.Observe(d.Seconds())
}

// RecordOracleFailure records a failed oracle call
func RecordOracleFailure(d time.Duration) {
	oracleFailures.Inc()
	oracleLatency.Observe(d.Seconds())
}

// RecordAlert records a raised alert
func RecordAlert(severity string) {
	alertsRaised.WithLabelValues(severity).Inc()
}

// RecordPurge records sessions removed by retention
func RecordPurge(n int) {
	sessionsPurged.Add(float64(n))
}
