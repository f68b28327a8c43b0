package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion and aggregation pipeline.
type Metrics struct {
	EventsSeen      prometheus.Counter
	EventsCommitted prometheus.Counter
	EventsDuplicate prometheus.Counter
	EventsMalformed prometheus.Counter
	IngestLag       prometheus.Gauge
	PollDuration    prometheus.Histogram
	PollerRunning   prometheus.Gauge

	// Aggregation metrics.
	AggregationDuration prometheus.Histogram
	AggregationErrors   prometheus.Counter

	// Broadcast metrics.
	Subscribers    prometheus.Gauge
	BroadcastDrops prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		EventsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quake_feed",
			Name:      "events_seen_total",
			Help:      "Total feed items inspected, including duplicates and malformed items.",
		}),
		EventsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quake_feed",
			Name:      "events_committed_total",
			Help:      "Total new (deduplicated) events committed to the store.",
		}),
		EventsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quake_feed",
			Name:      "events_duplicate_total",
			Help:      "Total feed items skipped because their dedup marker already existed.",
		}),
		EventsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quake_feed",
			Name:      "events_malformed_total",
			Help:      "Total feed items dropped for missing timestamp or coordinates.",
		}),
		IngestLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quake_feed",
			Name:      "ingest_lag_seconds",
			Help:      "Age difference between event time and processing time in seconds.",
		}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quake_feed",
			Name:      "poll_duration_seconds",
			Help:      "Duration of a complete poll cycle including all store writes.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		PollerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quake_feed",
			Name:      "poller_running",
			Help:      "1 when the poller loop is active, 0 when shut down.",
		}),
		AggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quake_feed",
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of one full window recomputation tick.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		AggregationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quake_feed",
			Name:      "aggregation_errors_total",
			Help:      "Total failed window recomputations.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quake_feed",
			Name:      "broadcast_subscribers",
			Help:      "Current number of registered broadcast subscribers.",
		}),
		BroadcastDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quake_feed",
			Name:      "broadcast_drops_total",
			Help:      "Total messages dropped because a subscriber could not accept them.",
		}),
	}

	prometheus.MustRegister(
		m.EventsSeen,
		m.EventsCommitted,
		m.EventsDuplicate,
		m.EventsMalformed,
		m.IngestLag,
		m.PollDuration,
		m.PollerRunning,
		m.AggregationDuration,
		m.AggregationErrors,
		m.Subscribers,
		m.BroadcastDrops,
	)

	return m
}

// NewMetricsForTesting creates Metrics with unregistered collectors to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		EventsSeen:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "quake_feed", Name: "events_seen_total"}),
		EventsCommitted:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "quake_feed", Name: "events_committed_total"}),
		EventsDuplicate:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "quake_feed", Name: "events_duplicate_total"}),
		EventsMalformed:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "quake_feed", Name: "events_malformed_total"}),
		IngestLag:           prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "quake_feed", Name: "ingest_lag_seconds"}),
		PollDuration:        prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "quake_feed", Name: "poll_duration_seconds"}),
		PollerRunning:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "quake_feed", Name: "poller_running"}),
		AggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "quake_feed", Name: "aggregation_duration_seconds"}),
		AggregationErrors:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "quake_feed", Name: "aggregation_errors_total"}),
		Subscribers:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "quake_feed", Name: "broadcast_subscribers"}),
		BroadcastDrops:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "quake_feed", Name: "broadcast_drops_total"}),
	}
}
