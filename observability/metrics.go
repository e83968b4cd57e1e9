package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsIngested tracks the number of records persisted.
	RecordsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roadhub_records_ingested_total",
		Help: "Total number of telemetry records persisted",
	})

	// IngestDuration tracks the persistence latency per batch.
	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "roadhub_ingest_duration_seconds",
		Help:    "Time spent persisting one ingest batch",
		Buckets: prometheus.DefBuckets,
	})

	// Deliveries tracks fan-out sends by result.
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roadhub_deliveries_total",
		Help: "Total fan-out deliveries to subscriber channels",
	}, []string{"result"}) // ok, error

	// ActiveSubscribers tracks the number of live push channels.
	ActiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roadhub_active_subscribers",
		Help: "Current number of registered subscriber channels",
	})

	// APIRateLimited tracks API requests rejected by rate limiter.
	APIRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roadhub_api_rate_limited_total",
		Help: "API requests rejected by rate limiter (storm protection)",
	}, []string{"endpoint"})

	// EventPublishFailures tracks failed event publish attempts (non-blocking).
	EventPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roadhub_event_publish_failures_total",
		Help: "Failed event publish attempts (non-blocking, best-effort)",
	}, []string{"topic"})
)
