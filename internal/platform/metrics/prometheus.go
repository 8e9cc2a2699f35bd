package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Stream metrics
	StreamConnectsTotal   prometheus.Counter
	StreamReconnectsTotal prometheus.Counter
	StreamErrorsTotal     prometheus.Counter
	StreamConnected       prometheus.Gauge
	StreamEventsTotal     *prometheus.CounterVec
	StreamEventsDropped   prometheus.Counter

	// Feed metrics
	FeedSize            prometheus.Gauge
	FeedUnread          prometheus.Gauge
	FeedIngestedTotal   prometheus.Counter
	FeedDuplicatesTotal prometheus.Counter
	FeedReconcilesTotal *prometheus.CounterVec
	FeedPrunedTotal     prometheus.Counter

	// API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	// Mutation metrics
	MutationsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all Prometheus metrics
func New(namespace string) *Metrics {
	m := &Metrics{
		StreamConnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_connects_total",
				Help:      "Total number of successful stream connections",
			},
		),
		StreamReconnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_reconnects_total",
				Help:      "Total number of scheduled reconnect attempts",
			},
		),
		StreamErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_errors_total",
				Help:      "Total number of stream connection errors",
			},
		),
		StreamConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stream_connected",
				Help:      "Whether the stream is currently connected (1/0)",
			},
		),
		StreamEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_events_total",
				Help:      "Total number of stream events received",
			},
			[]string{"event"},
		),
		StreamEventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_events_dropped_total",
				Help:      "Total number of stream events dropped as unparseable",
			},
		),
		FeedSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "feed_size",
				Help:      "Number of notifications currently held in the feed",
			},
		),
		FeedUnread: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "feed_unread",
				Help:      "Number of unread notifications currently held in the feed",
			},
		),
		FeedIngestedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_ingested_total",
				Help:      "Total number of notifications ingested from the stream",
			},
		),
		FeedDuplicatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_duplicates_total",
				Help:      "Total number of pushed notifications skipped as duplicates",
			},
		),
		FeedReconcilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_reconciles_total",
				Help:      "Total number of reconcile runs by outcome",
			},
			[]string{"outcome"},
		),
		FeedPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_pruned_total",
				Help:      "Total number of expired notifications pruned from the feed",
			},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of backend API requests",
			},
			[]string{"operation", "status"},
		),
		APIRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "Backend API request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutations_total",
				Help:      "Total number of read/delete mutations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.StreamConnectsTotal,
		m.StreamReconnectsTotal,
		m.StreamErrorsTotal,
		m.StreamConnected,
		m.StreamEventsTotal,
		m.StreamEventsDropped,
		m.FeedSize,
		m.FeedUnread,
		m.FeedIngestedTotal,
		m.FeedDuplicatesTotal,
		m.FeedReconcilesTotal,
		m.FeedPrunedTotal,
		m.APIRequestsTotal,
		m.APIRequestDuration,
		m.MutationsTotal,
	)
	m.registry.MustRegister(prometheus.NewGoCollector())

	return m
}

// Handler returns an HTTP handler exposing the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
