package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the ingest and query paths. Registered on the
// default registry so the /metrics handler picks them up without extra wiring.
var (
	// SamplesIngested counts samples accepted into storage, partitioned by
	// the surface that delivered them.
	SamplesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meshmap",
		Name:      "samples_ingested_total",
		Help:      "Number of telemetry samples written to the sample store.",
	}, []string{"source"})

	// IngestErrors counts ingestion attempts rejected by validation or
	// storage, partitioned by surface.
	IngestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meshmap",
		Name:      "ingest_errors_total",
		Help:      "Number of rejected ingestion attempts.",
	}, []string{"source"})

	// HeatmapQueries counts aggregation queries by metric name.
	HeatmapQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meshmap",
		Name:      "heatmap_queries_total",
		Help:      "Number of heatmap aggregation queries served.",
	}, []string{"metric"})

	// QueryDuration observes the wall time of the aggregation query.
	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "meshmap",
		Name:      "heatmap_query_duration_seconds",
		Help:      "Duration of heatmap aggregation queries.",
		Buckets:   prometheus.DefBuckets,
	})
)
