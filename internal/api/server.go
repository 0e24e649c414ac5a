package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/skypass/internal/auth"
	"github.com/star/skypass/internal/health"
	"github.com/star/skypass/internal/httputil"
	"github.com/star/skypass/internal/metrics"
	"github.com/star/skypass/internal/passes"
	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/stream"
	"github.com/star/skypass/internal/tle"
	"github.com/star/skypass/internal/tracing"
)

// Limits bounds the work a single request may ask for.
type Limits struct {
	Budget             time.Duration // wall-clock cap per search; 0 disables
	MaxPositions       int           // cap on minutes in positions mode
	MaxBatch           int           // satellites per batch request
	MaxConcurrentPerIP int
	MaxConcurrent      int
}

// Deps are the components the HTTP layer serves.
type Deps struct {
	Searcher   *passes.Searcher
	Catalog    *propagation.Catalog
	Store      *tle.Store
	Refresher  *tle.Refresher // nil when catalog fetching is disabled
	Tracker    *stream.Handler
	Auth       auth.Config
	Limits     Limits
	TrustProxy bool
	Ready      func() error
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(logger, deps),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed handler with its middleware chain:
// metrics -> tracing -> logging -> auth -> mux.
func NewHandler(logger *slog.Logger, deps Deps) http.Handler {
	if deps.Limits.MaxBatch < 1 {
		deps.Limits.MaxBatch = 50
	}
	h := &handlers{
		deps:    deps,
		logger:  logger,
		limiter: httputil.NewLimiter(deps.Limits.MaxConcurrentPerIP, deps.Limits.MaxConcurrent),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Ready))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /{$}", h.index)

	mux.HandleFunc("POST /api/v1/passes", h.limited(h.passes))
	mux.HandleFunc("POST /api/v1/passes/batch", h.limited(h.batch))
	mux.HandleFunc("GET /api/v1/passes/{norad_id}", h.limited(h.catalogPasses))
	mux.HandleFunc("POST /api/v1/propagate", h.limited(h.propagate))
	mux.HandleFunc("POST /api/v1/visibility", h.visibility)
	mux.HandleFunc("GET /api/v1/track/{norad_id}", h.track)

	mux.HandleFunc("GET /api/v1/convert/epoch-days", h.convertEpochDays)
	mux.HandleFunc("GET /api/v1/convert/geodetic", h.convertGeodetic)
	mux.HandleFunc("GET /api/v1/convert/azel", h.convertAzEl)

	mux.HandleFunc("GET /api/v1/tle/metadata", h.tleMetadata)
	mux.HandleFunc("POST /api/v1/tle/fetch", h.tleFetch)

	var handler http.Handler = mux
	handler = auth.Middleware(deps.Auth)(handler)
	handler = loggingMiddleware(logger, deps.TrustProxy)(handler)
	handler = tracing.Middleware(handler)
	handler = metrics.Middleware(handler)
	return handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			attrs := []any{
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			}
			if id := tracing.TraceID(r.Context()); id != "" {
				attrs = append(attrs, "trace_id", id)
			}
			logger.Log(r.Context(), level, "request", attrs...)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
