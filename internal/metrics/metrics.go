// Package metrics exposes prometheus collectors for the HTTP server and the
// authentication decisions it makes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RequestsTotal counts HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authgate_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// AuthenticationsTotal counts authentication decisions. Outcome is one of
	// authenticated, anonymous, retained or preflight; reason carries the
	// failure kind for anonymous decisions.
	AuthenticationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_authentications_total",
			Help: "Authentication decisions",
		},
		[]string{"outcome", "reason"},
	)

	// AuditEventsDroppedTotal counts audit events discarded because the
	// recorder queue was full or closed.
	AuditEventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "authgate_audit_events_dropped_total",
			Help: "Dropped audit events",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthenticationsTotal,
		AuditEventsDroppedTotal,
	)
}
