package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_resolutions_total",
			Help: "Authority resolutions by method and outcome.",
		},
		[]string{"method", "verified"},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_actions_total",
			Help: "Executed moderation actions by type and outcome.",
		},
		[]string{"action", "outcome"},
	)

	appealsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_appeals_total",
			Help: "Appeal filings and resolutions by resulting status.",
		},
		[]string{"status"},
	)

	secondaryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_secondary_failures_total",
			Help: "Swallowed best-effort failures (history mirror, notifications).",
		},
		[]string{"step"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		resolutionsTotal, actionsTotal, appealsTotal, secondaryFailures,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveResolution counts one authority resolution.
func ObserveResolution(method string, verified bool) {
	resolutionsTotal.WithLabelValues(method, strconv.FormatBool(verified)).Inc()
}

// ObserveAction counts one action execution attempt.
func ObserveAction(action, outcome string) {
	actionsTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveAppeal counts one appeal reaching the given status.
func ObserveAppeal(status string) {
	appealsTotal.WithLabelValues(status).Inc()
}

// ObserveSecondaryFailure counts one swallowed best-effort failure.
func ObserveSecondaryFailure(step string) {
	secondaryFailures.WithLabelValues(step).Inc()
}

// CanonicalPath collapses parameterized path segments so the metric
// label set stays bounded. Unknown paths pass through unchanged.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" {
		switch parts[1] {
		case "appeals":
			parts[2] = ":id"
		case "features":
			parts[2] = ":feature"
		}
		return "/" + strings.Join(parts, "/")
	}
	return p
}

// Instrument wraps an HTTP handler with request metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
