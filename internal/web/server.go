// Package web exposes the import service over HTTP: JSON endpoints, a CSV
// template and error export, and Server-Sent Events for progress push.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/JonMunkholm/stockimport/internal/config"
	"github.com/JonMunkholm/stockimport/internal/core"
	"github.com/JonMunkholm/stockimport/internal/web/middleware"
)

// requestTimeout bounds every endpoint except uploads and event streams.
const requestTimeout = 30 * time.Second

// Server is the HTTP front end of the import service.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server for service configured by cfg.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5, "application/json", "text/csv"))
	s.router.Use(securityHeaders)
	s.router.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.Security.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key", "X-Tenant-ID", "Last-Event-ID"},
		ExposedHeaders: []string{"Location", "Retry-After", "X-Request-Id"},
		MaxAge:         300,
	}).Handler)

	if s.cfg.Rate.Enabled {
		s.router.Use(middleware.NewRateLimiter(s.cfg.Rate.RequestsPerMinute).Middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)

	s.router.Route("/api/imports", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(requestTimeout))

			r.Get("/types", s.handleListTypes)
			r.Get("/types/{importType}/template", s.handleDownloadTemplate)
			r.Post("/estimate", s.handleEstimate)
			r.Get("/limiter", s.handleLimiterStatus)

			r.Get("/jobs/{jobID}", s.handleJobStatus)
			r.Post("/jobs/{jobID}/cancel", s.handleCancelJob)
			r.Get("/jobs/{jobID}/errors.csv", s.handleExportErrors)
			r.Get("/jobs/{jobID}/audit", s.handleJobAudit)
		})

		upload := r.With()
		if s.cfg.Rate.Enabled && s.cfg.Rate.UploadLimit > 0 {
			upload = r.With(middleware.NewRateLimiter(s.cfg.Rate.UploadLimit).Middleware)
		}
		upload.Post("/{importType}", s.handleUpload)

		r.Get("/jobs/{jobID}/events", s.handleJobEvents)
	})
}

// Start begins listening for HTTP requests on the configured address.
func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with status. Encoding errors are only logged
// since the header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
