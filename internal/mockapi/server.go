// Package mockapi is a deliberately rate-limited upstream: the thing pacekit
// paces against. Every API route gets a fixed-window request budget; once
// spent, the server answers 429 with a Retry-After header and a JSON body
// carrying the retryable hint. It exists for demos and integration tests.
package mockapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pacekit/pacekit/internal/config"
	"github.com/pacekit/pacekit/internal/observability"
)

// Server is the mock upstream HTTP server.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	limiter *windowLimiter
	host    string
	port    int

	retryAfter time.Duration
	routes     map[string]RouteOverride
}

// New creates a mock upstream from config, with optional per-route overrides.
func New(cfg config.MockConfig, routes ...RouteOverride) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		limiter:    newWindowLimiter(cfg.RequestsPerWindow, cfg.Window),
		host:       cfg.Host,
		port:       cfg.Port,
		retryAfter: cfg.RetryAfter,
		routes:     make(map[string]RouteOverride, len(routes)),
	}

	for _, route := range routes {
		key := overrideKey(route)
		s.routes[key] = route
		if route.RequestsPerWindow > 0 {
			if s.limiter.Overrides == nil {
				s.limiter.Overrides = make(map[string]int)
			}
			s.limiter.Overrides[key] = route.RequestsPerWindow
		}
	}

	s.router.Use(chimiddleware.RealIP)
	s.router.Use(RequestID)

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Get("/items", s.handleItems)
		r.Post("/items", s.handleCreateItem)
		// Strict routes refuse automatic retries when limited.
		r.Get("/strict", s.handleStrict)
	})
}

// rateLimit enforces the per-route fixed window. Limited responses carry the
// Retry-After header in whole seconds and a retryable hint in the body;
// /api/strict marks itself non-retryable.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		if s.limiter.Allow(key) {
			next.ServeHTTP(w, r)
			return
		}

		retryable := r.URL.Path != "/api/strict"
		seconds := int(s.retryAfter / time.Second)
		if override, ok := s.routes[key]; ok {
			if override.RetryAfterSeconds > 0 {
				seconds = override.RetryAfterSeconds
			}
			if override.Retryable != nil {
				retryable = *override.Retryable
			}
		}

		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":     "rate limit exceeded",
			"endpoint":  key,
			"retryable": retryable,
		})

		if observability.ServerLogger != nil {
			observability.ServerLogger.Info("request rate limited",
				zap.String("endpoint", key),
				zap.Int("retry_after_seconds", seconds),
				zap.Bool("retryable", retryable),
				zap.String("request_id", GetRequestID(r.Context())))
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items":      []string{"alpha", "beta", "gamma"},
		"request_id": GetRequestID(r.Context()),
	})
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"created":    payload,
		"request_id": GetRequestID(r.Context()),
	})
}

func (s *Server) handleStrict(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"scope": "strict"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting mock upstream",
			zap.String("host", s.host),
			zap.Int("port", s.port),
			zap.String("addr", addr))
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down mock upstream")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}
