package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CandidatesEnumerated tracks suspect heights streamed into the queue
	CandidatesEnumerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refetcher_candidates_enumerated_total",
			Help: "Total number of pending suspect block heights enumerated",
		},
	)

	// BatchesTotal tracks processed batches by result
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refetcher_batches_total",
			Help: "Total number of invalidation batches by result",
		},
		[]string{"result"}, // success, retry, dropped
	)

	// CorrectedRows tracks control rows marked corrected
	CorrectedRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refetcher_corrected_rows_total",
			Help: "Total number of control rows marked corrected",
		},
	)

	// BatchDuration tracks invalidation transaction latency
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "refetcher_batch_duration_seconds",
			Help:    "Invalidation transaction latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DBConnectionPoolUsage tracks connection pool saturation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "refetcher_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
