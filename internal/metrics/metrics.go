// Package metrics exposes Prometheus instrumentation for the HTTP surface
// and the result cache.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cliniscope",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cliniscope",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	searchCacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cliniscope",
			Name:      "search_cache_results_total",
			Help:      "Search responses by cache outcome",
		},
		[]string{"outcome"},
	)

	documentsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cliniscope",
			Name:      "documents_ingested_total",
			Help:      "Documents accepted through the ingest API",
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(searchCacheResults)
	prometheus.MustRegister(documentsIngested)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request duration and count per route.
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			status := strconv.Itoa(ww.status)
			path := normalizePath(r.URL.Path)

			httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		})
	}
}

// ObserveSearch records one search response's cache outcome.
func ObserveSearch(fromCache bool) {
	outcome := "miss"
	if fromCache {
		outcome = "hit"
	}
	searchCacheResults.WithLabelValues(outcome).Inc()
}

// ObserveIngest records accepted documents per category.
func ObserveIngest(category string, n int) {
	documentsIngested.WithLabelValues(category).Add(float64(n))
}

// normalizePath keeps metric label cardinality bounded: only the fixed API
// routes are reported verbatim.
func normalizePath(path string) string {
	switch path {
	case "/v1/search", "/v1/schema", "/v1/documents", "/v1/documents:batch", "/health", "/metrics":
		return path
	}
	return "other"
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}
