// Package metrics defines the Prometheus instruments exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RowsRead counts every data row consumed from an ingestion source,
	// whether it was later inserted, deduplicated, or skipped.
	RowsRead = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emissions_rows_read_total",
		Help: "Data rows read from ingestion sources.",
	})

	// RowsInserted counts rows newly persisted to the readings table.
	RowsInserted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emissions_rows_inserted_total",
		Help: "Rows inserted into the readings table.",
	})

	// RowsDuplicate counts rows whose natural key already existed.
	RowsDuplicate = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emissions_rows_duplicate_total",
		Help: "Rows skipped because the reading already existed.",
	})

	// RowsSkipped counts malformed rows dropped during normalization.
	RowsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emissions_rows_skipped_total",
		Help: "Malformed rows dropped during parsing or normalization.",
	})

	// BatchFlushes counts bulk writes issued to the store.
	BatchFlushes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emissions_batch_flushes_total",
		Help: "Bulk insert batches written to the store.",
	})

	// QueryDuration tracks end-to-end latency of readings queries.
	QueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "emissions_query_duration_seconds",
		Help:    "Latency of readings list queries.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	// HTTPRequests counts requests served, labeled by route and status class.
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emissions_http_requests_total",
		Help: "HTTP requests served, by route and status class.",
	}, []string{"route", "status"})
)

func init() {
	prometheus.MustRegister(
		RowsRead,
		RowsInserted,
		RowsDuplicate,
		RowsSkipped,
		BatchFlushes,
		QueryDuration,
		HTTPRequests,
	)
}
