package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics shared by every handler.
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
)

// Auth-domain metrics. Outcomes stay coarse; labels never record which
// credential check failed.
var (
	authLogins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome (granted, challenge, rejected).",
		},
		[]string{"outcome"},
	)

	authRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_refresh_total",
			Help: "Silent refresh attempts by outcome (granted, rejected).",
		},
		[]string{"outcome"},
	)

	authSecondFactor = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_second_factor_total",
			Help: "Second-factor completions by outcome (granted, rejected).",
		},
		[]string{"outcome"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service reports ready, 0 otherwise.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		authLogins, authRefreshes, authSecondFactor, readyGauge,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountLogin records a login attempt outcome.
func CountLogin(outcome string) { authLogins.WithLabelValues(outcome).Inc() }

// CountRefresh records a silent-refresh outcome.
func CountRefresh(outcome string) { authRefreshes.WithLabelValues(outcome).Inc() }

// CountSecondFactor records a 2FA completion outcome.
func CountSecondFactor(outcome string) { authSecondFactor.WithLabelValues(outcome).Inc() }

// SetReady mirrors the readiness probe result into a gauge.
func SetReady(ready bool) {
	if ready {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// knownPaths is the fixed route surface. Anything else collapses to "other"
// so scanners cannot blow up label cardinality.
var knownPaths = map[string]bool{
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/v1/info":                 true,
	"/v1/auth/register":        true,
	"/v1/auth/login":           true,
	"/v1/auth/oauth/callback":  true,
	"/v1/auth/2fa/verify":      true,
	"/v1/auth/2fa/player2":     true,
	"/v1/auth/2fa/guest":       true,
	"/v1/auth/2fa/setup":       true,
	"/v1/auth/2fa/confirm":     true,
	"/v1/auth/2fa/disable":     true,
	"/v1/auth/logout":          true,
	"/v1/me":                   true,
}

// CanonicalPath reduces a request path to a bounded metric label.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == "/" {
		return "/"
	}
	if knownPaths[path] {
		return path
	}
	return "other"
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metrics.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
