// Package metrics exposes the daemon's Prometheus counters and histograms: authentication
// outcomes and request latency, scraped over the service's metrics listener when enabled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AuthAttemptsTotal counts authenticate calls by outcome ("success", "timeout", "not_enrolled",
// "error").
var AuthAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "facepass_auth_attempts_total",
		Help: "Total authentication attempts by result.",
	},
	[]string{"result"},
)

// AuthDuration observes wall-clock time spent in one Authenticate call.
var AuthDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "facepass_auth_duration_seconds",
		Help:    "Authenticate call duration in seconds.",
		Buckets: prometheus.DefBuckets,
	},
)

// EnrollmentsTotal counts enroll/enhance calls by outcome.
var EnrollmentsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "facepass_enrollments_total",
		Help: "Total enroll/enhance calls by operation and result.",
	},
	[]string{"operation", "result"},
)

// Registry is the registry the service's metrics endpoint serves. Exported so cmd/
// packages can wire it into an HTTP handler without importing prometheus directly.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(AuthAttemptsTotal, AuthDuration, EnrollmentsTotal)
}
