// Package api exposes the compilation, template and deployment
// operations over HTTP.
package api

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sigilhq/sigil/internal/config"
	"github.com/sigilhq/sigil/internal/deploy"
	"github.com/sigilhq/sigil/internal/disclaimer"
	"github.com/sigilhq/sigil/internal/metrics"
	"github.com/sigilhq/sigil/internal/preview"
	"github.com/sigilhq/sigil/internal/signature"
)

// Server is the HTTP API server
type Server struct {
	router      *chi.Mux
	httpServer  *http.Server
	templates   *signature.Storage
	queue       deploy.Queue
	disclaimers disclaimer.Resolver
	mailer      *preview.Mailer
	collector   *metrics.Collector
	config      *config.APIConfig
	logger      *slog.Logger
	startTime   time.Time
}

// Options carries the collaborators the server hands requests to.
// Mailer and Collector are optional.
type Options struct {
	Templates   *signature.Storage
	Queue       deploy.Queue
	Disclaimers disclaimer.Resolver
	Mailer      *preview.Mailer
	Collector   *metrics.Collector
}

// NewServer creates a new API server
func NewServer(opts Options, cfg *config.APIConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		templates:   opts.Templates,
		queue:       opts.Queue,
		disclaimers: opts.Disclaimers,
		mailer:      opts.Mailer,
		collector:   opts.Collector,
		config:      cfg,
		logger:      logger,
		startTime:   time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.RequestMetrics(s.collector))

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/compile", s.handleCompile)
		r.Post("/validate", s.handleValidate)

		r.Route("/templates", func(r chi.Router) {
			r.Post("/", s.handleTemplateCreate)
			r.Get("/", s.handleTemplateList)
			r.Get("/{id}", s.handleTemplateGet)
			r.Put("/{id}", s.handleTemplateUpdate)
			r.Delete("/{id}", s.handleTemplateDelete)
			r.Post("/{id}/preview", s.handleTemplatePreview)
			r.Post("/{id}/send-preview", s.handleTemplateSendPreview)
		})

		r.Route("/deployments", func(r chi.Router) {
			r.Post("/", s.handleDeploymentCreate)
			r.Get("/", s.handleDeploymentList)
			r.Get("/stats", s.handleDeploymentStats)
			r.Get("/{id}", s.handleDeploymentGet)
			r.Delete("/{id}", s.handleDeploymentDelete)
		})
	})
}

// Handler returns the underlying router for tests and TLS wiring.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// ListenAndServeTLS starts the HTTPS server. The TLS config must carry
// certificates or a GetCertificate callback (ACME).
func (s *Server) ListenAndServeTLS(tlsConfig *tls.Config) error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		TLSConfig:      tlsConfig,
	}

	s.logger.Info("starting HTTPS API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServeTLS("", "")
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
