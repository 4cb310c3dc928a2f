package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/syndilab/hub/internal/alert"
	"github.com/syndilab/hub/internal/config"
	"github.com/syndilab/hub/internal/domain"
	"github.com/syndilab/hub/internal/keys"
	"github.com/syndilab/hub/internal/ratelimit"
	"github.com/syndilab/hub/internal/settings"
	"github.com/syndilab/hub/internal/stream"
)

// StatusProber probes storage reachability for the health endpoint.
type StatusProber interface {
	Ping(ctx context.Context) error
}

// Deps bundles the services the HTTP layer fronts.
type Deps struct {
	Ingest     *domain.IngestService
	Registry   *keys.Registry
	Limiter    *ratelimit.Limiter
	Events     domain.EventRepository
	Alerts     domain.AlertRepository
	Settings   *settings.Store
	Dispatcher *alert.Dispatcher
	Scheduler  *alert.Scheduler
	Stream     *stream.Broadcaster
	Prober     StatusProber
}

// Server is the hub's HTTP server: the authenticated ingestion endpoint,
// the health probe, and the administrative contracts the dashboard
// consumes.
type Server struct {
	cfg        *config.Config
	deps       Deps
	logger     *slog.Logger
	failures   *failureMonitor
	httpServer *http.Server
}

// NewServer creates the HTTP server and wires up all routes.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		failures: newFailureMonitor(10, 10*time.Minute),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /log", s.handleLog)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /admin/keys", s.requireAdmin(s.handleListKeys))
	mux.HandleFunc("POST /admin/keys", s.requireAdmin(s.handleGenerateKey))
	mux.HandleFunc("POST /admin/keys/{id}/revoke", s.requireAdmin(s.handleRevokeKey))
	mux.HandleFunc("DELETE /admin/keys/{id}", s.requireAdmin(s.handleDeleteKey))
	mux.HandleFunc("GET /admin/settings", s.requireAdmin(s.handleGetSettings))
	mux.HandleFunc("PUT /admin/settings", s.requireAdmin(s.handlePutSettings))
	mux.HandleFunc("GET /admin/metrics", s.requireAdmin(s.handleMetrics))
	mux.HandleFunc("GET /admin/events", s.requireAdmin(s.handleListEvents))
	mux.HandleFunc("DELETE /admin/events", s.requireAdmin(s.handlePurgeEvents))
	mux.HandleFunc("GET /admin/alerts", s.requireAdmin(s.handleListAlerts))
	mux.HandleFunc("DELETE /admin/alerts", s.requireAdmin(s.handleClearAlerts))
	mux.HandleFunc("POST /admin/alerts/test", s.requireAdmin(s.handleTestAlert))
	mux.HandleFunc("GET /admin/stream", s.requireAdmin(s.handleStream))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server
// is shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}

	checks["database"] = "ok"
	if err := s.deps.Prober.Ping(r.Context()); err != nil {
		s.logger.Error("health: database unreachable", "error", err)
		checks["database"] = "error"
	}

	cfg := s.deps.Settings.Get()
	if cfg.Frequency == settings.FrequencyImmediate {
		checks["cron"] = "not_required"
	} else if s.deps.Scheduler != nil && s.deps.Scheduler.Running() {
		checks["cron"] = "scheduled"
	} else {
		checks["cron"] = "not_scheduled"
	}

	switch {
	case !cfg.WebhookEnabled || cfg.WebhookURL == "":
		checks["webhook"] = "not_configured"
	case alert.ValidWebhookURL(cfg.WebhookURL):
		checks["webhook"] = "configured"
	default:
		checks["webhook"] = "invalid"
	}

	status := "healthy"
	code := http.StatusOK
	if checks["database"] == "error" {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"version":   config.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack passes through to the underlying writer so the stream endpoint
// can upgrade to a websocket behind the logging middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}
