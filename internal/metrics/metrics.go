package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypass_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skypass_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	searchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypass_searches_total",
			Help: "Visibility searches by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	searchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skypass_search_duration_seconds",
			Help:    "Wall-clock duration of a visibility search.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	visibleSamples = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skypass_search_visible_samples",
			Help:    "Visible minutes found per search.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	propagationSamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypass_propagation_samples_total",
			Help: "Propagated minutes by result.",
		},
		[]string{"result"},
	)

	propagationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skypass_propagation_batch_duration_seconds",
			Help:    "Duration of one propagation batch.",
			Buckets: prometheus.DefBuckets,
		},
	)

	tleFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypass_tle_fetch_total",
			Help: "TLE catalog fetch attempts by outcome.",
		},
		[]string{"outcome"},
	)

	tleCatalogSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skypass_tle_catalog_size",
			Help: "Element sets in the current catalog.",
		},
	)

	tleCatalogAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skypass_tle_catalog_age_seconds",
			Help: "Seconds since the current catalog was fetched.",
		},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skypass_track_streams_active",
			Help: "Open live-tracking SSE streams.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skypass_track_messages_total",
			Help: "SSE messages written to tracking streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skypass_track_errors_total",
			Help: "Tracking stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		searchesTotal,
		searchDurationSeconds,
		visibleSamples,
		propagationSamplesTotal,
		propagationDurationSeconds,
		tleFetchTotal,
		tleCatalogSize,
		tleCatalogAgeSeconds,
		streamsActive,
		streamMessagesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSearch records one completed or aborted search.
func RecordSearch(mode, outcome string, duration time.Duration, visible int) {
	searchesTotal.WithLabelValues(mode, outcome).Inc()
	searchDurationSeconds.Observe(duration.Seconds())
	if outcome == "ok" {
		visibleSamples.Observe(float64(visible))
	}
}

// RecordPropagation records a propagation batch.
func RecordPropagation(duration time.Duration, ok, failed int) {
	propagationDurationSeconds.Observe(duration.Seconds())
	propagationSamplesTotal.WithLabelValues("ok").Add(float64(ok))
	propagationSamplesTotal.WithLabelValues("failed").Add(float64(failed))
}

// RecordTLEFetch records a catalog fetch; size is ignored on failure.
func RecordTLEFetch(err error, size int) {
	if err != nil {
		tleFetchTotal.WithLabelValues("error").Inc()
		return
	}
	tleFetchTotal.WithLabelValues("ok").Inc()
	tleCatalogSize.Set(float64(size))
}

// SetTLECatalog updates the catalog gauges.
func SetTLECatalog(size int, age time.Duration) {
	tleCatalogSize.Set(float64(size))
	tleCatalogAgeSeconds.Set(age.Seconds())
}

// IncStreamsActive marks a tracking stream as opened.
func IncStreamsActive() { streamsActive.Inc() }

// DecStreamsActive marks a tracking stream as closed.
func DecStreamsActive() { streamsActive.Dec() }

// IncStreamMessages counts one SSE message.
func IncStreamMessages() { streamMessagesTotal.Inc() }

// IncStreamErrors counts a stream error; reason is a fixed label such as
// "rate_limit", "propagation" or "send_error".
func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

var knownRoutes = map[string]bool{
	"/":                          true,
	"/healthz":                   true,
	"/readyz":                    true,
	"/metrics":                   true,
	"/api/v1/passes":             true,
	"/api/v1/passes/batch":       true,
	"/api/v1/propagate":          true,
	"/api/v1/visibility":         true,
	"/api/v1/convert/epoch-days": true,
	"/api/v1/convert/geodetic":   true,
	"/api/v1/convert/azel":       true,
	"/api/v1/tle/metadata":       true,
	"/api/v1/tle/fetch":          true,
}

// normalizeRoute maps a request path to a bounded label set so that
// per-satellite paths and scanner noise do not explode series cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if id, ok := strings.CutPrefix(path, "/api/v1/passes/"); ok && isDigits(id) {
		return "/api/v1/passes/{norad_id}"
	}
	if id, ok := strings.CutPrefix(path, "/api/v1/track/"); ok && isDigits(id) {
		return "/api/v1/track/{norad_id}"
	}
	return "other"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
