package middlewares

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Requests counts handled HTTP requests by path and status.
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energy_http_requests_total",
			Help: "HTTP requests by path and status.",
		},
		[]string{"path", "status"},
	)

	// Latency observes handler latency by path.
	Latency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "energy_http_request_duration_seconds",
			Help:    "HTTP request latency by path.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

// Metrics records request counts and latency.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		Requests.WithLabelValues(r.URL.Path, http.StatusText(rec.status)).Inc()
		Latency.WithLabelValues(r.URL.Path).Observe(time.Since(started).Seconds())
	})
}
