package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PayloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dashboard_payloads_total", Help: "Pull and push payloads by kind and merge outcome"},
		[]string{"kind", "outcome"},
	)
	RequestsIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dashboard_requests_issued_total", Help: "Requests issued by kind"},
		[]string{"kind"},
	)
	RequestsSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dashboard_requests_suppressed_total", Help: "Triggers dropped because a request of the kind was pending"},
		[]string{"kind"},
	)
	PushEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dashboard_push_events_total", Help: "Push channel events received"},
		[]string{"event"},
	)
	StreamReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dashboard_stream_reconnects_total", Help: "Push channel reconnect attempts"},
	)
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "dashboard_upstream_request_seconds", Help: "Upstream HTTP latency", Buckets: prometheus.DefBuckets},
		[]string{"endpoint", "result"},
	)
	CircuitTrips = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dashboard_circuit_trips_total", Help: "Upstream circuit breaker trips"},
	)
)

func init() {
	prometheus.MustRegister(PayloadsTotal, RequestsIssued, RequestsSuppressed, PushEvents,
		StreamReconnects, UpstreamLatency, CircuitTrips)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
