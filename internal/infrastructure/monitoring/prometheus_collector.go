package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Realtime
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	eventsEmitted     *prometheus.CounterVec
	eventRecipients   prometheus.Counter
	eventsDropped     *prometheus.CounterVec
	relayFailures     prometheus.Counter

	// HTTP
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	// Domain operations
	operations *prometheus.CounterVec
}

// NewPrometheusCollector registers every metric on reg. Tests pass a fresh registry.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	f := promauto.With(reg)
	return &PrometheusCollector{
		connectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "physlab_realtime_connections_active",
			Help: "Number of admitted realtime connections",
		}),

		connectionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "physlab_realtime_connections_total",
			Help: "Total number of admitted realtime connections",
		}),

		eventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "physlab_realtime_events_emitted_total",
			Help: "Events emitted to a group",
		}, []string{"event"}),

		eventRecipients: f.NewCounter(prometheus.CounterOpts{
			Name: "physlab_realtime_event_recipients_total",
			Help: "Local connections an event was queued for",
		}),

		eventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "physlab_realtime_events_dropped_total",
			Help: "Events dropped because a connection buffer was full",
		}, []string{"event"}),

		relayFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "physlab_realtime_relay_failures_total",
			Help: "Failed publishes to the cross-instance relay",
		}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "physlab_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "physlab_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),

		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "physlab_operations_total",
			Help: "Domain operation outcomes",
		}, []string{"operation", "outcome"}),
	}
}

func (p *PrometheusCollector) ConnectionAdmitted() {
	p.connectionsActive.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) ConnectionDismissed() {
	p.connectionsActive.Dec()
}

func (p *PrometheusCollector) EventEmitted(event string, recipients int) {
	p.eventsEmitted.WithLabelValues(event).Inc()
	p.eventRecipients.Add(float64(recipients))
}

func (p *PrometheusCollector) EventDropped(event string) {
	p.eventsDropped.WithLabelValues(event).Inc()
}

func (p *PrometheusCollector) RelayFailed() {
	p.relayFailures.Inc()
}

func (p *PrometheusCollector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordOperation counts an operation as "ok" or by the error code it failed with.
func (p *PrometheusCollector) RecordOperation(operation, outcome string) {
	p.operations.WithLabelValues(operation, outcome).Inc()
}
