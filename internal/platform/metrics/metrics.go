package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. Components accept
// a nil *Metrics and skip instrumentation, which keeps unit tests free of
// registry collisions.
type Metrics struct {
	SearchesExecuted      *prometheus.CounterVec
	CreditsSpent          prometheus.Counter
	UpstreamLatency       prometheus.Histogram
	HistoryRecordFailures prometheus.Counter
	RequestLatency        *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SearchesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peoplefinder_searches_executed_total",
			Help: "Searches executed against the upstream, by type and outcome",
		}, []string{"type", "outcome"}),
		CreditsSpent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peoplefinder_credits_spent_total",
			Help: "Credits recorded against executed search fetches",
		}),
		UpstreamLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "peoplefinder_upstream_latency_seconds",
			Help:    "Latency of upstream people-search calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		HistoryRecordFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peoplefinder_history_record_failures_total",
			Help: "History entries that could not be recorded after a fetch",
		}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "peoplefinder_http_request_duration_seconds",
			Help:    "HTTP request latency by method and path",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// RecordSearch counts one executed search fetch.
func (m *Metrics) RecordSearch(searchType, outcome string) {
	if m == nil {
		return
	}
	m.SearchesExecuted.WithLabelValues(searchType, outcome).Inc()
}

// RecordCreditsSpent adds to the spent-credits counter.
func (m *Metrics) RecordCreditsSpent(n int) {
	if m == nil {
		return
	}
	m.CreditsSpent.Add(float64(n))
}

// ObserveUpstreamLatency records one upstream round trip.
func (m *Metrics) ObserveUpstreamLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamLatency.Observe(d.Seconds())
}

// ObserveRequest records one handled HTTP request.
func (m *Metrics) ObserveRequest(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(method, path, status).Observe(d.Seconds())
}

// RecordHistoryFailure counts a failed history write.
func (m *Metrics) RecordHistoryFailure() {
	if m == nil {
		return
	}
	m.HistoryRecordFailures.Inc()
}
