// Package api serves the orbit propagation HTTP interface.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbitsim/internal/auth"
	"github.com/star/orbitsim/internal/config"
	"github.com/star/orbitsim/internal/health"
	"github.com/star/orbitsim/internal/httputil"
	"github.com/star/orbitsim/internal/metrics"
	"github.com/star/orbitsim/internal/physics"
	"github.com/star/orbitsim/internal/propagation"
	"github.com/star/orbitsim/internal/stream"
)

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer wires the routes and middleware for cfg around prop.
func NewServer(cfg config.Config, prop *propagation.Propagator, probe *health.Probe, logger *slog.Logger) *Server {
	h := &handlers{
		prop:       prop,
		calc:       physics.NewCalculator(prop, logger),
		logger:     logger,
		trustProxy: cfg.HTTP.TrustProxy,
	}
	streams := stream.NewHandler(prop, cfg.Stream, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", probe.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/constants", h.constants)
	mux.HandleFunc("POST /api/v1/orbit", h.orbit)
	mux.HandleFunc("POST /api/v1/orbit/tle", h.orbitFromTLE)
	mux.HandleFunc("POST /api/v1/parameters", h.parameters)
	mux.HandleFunc("GET /api/v1/stream/orbit", streams.HandleOrbit)

	// Build middleware chain: metrics -> logging -> auth -> rate limit -> mux.
	var handler http.Handler = mux
	if cfg.RateLimit.Enabled {
		handler = newIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.HTTP.TrustProxy, logger).middleware(handler)
	}
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger, cfg.HTTP.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
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

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

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

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
