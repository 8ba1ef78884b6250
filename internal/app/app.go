package app

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sigilhq/sigil/internal/api"
	"github.com/sigilhq/sigil/internal/config"
	"github.com/sigilhq/sigil/internal/deploy"
	"github.com/sigilhq/sigil/internal/disclaimer"
	"github.com/sigilhq/sigil/internal/metrics"
	"github.com/sigilhq/sigil/internal/preview"
	"github.com/sigilhq/sigil/internal/ratelimit"
	"github.com/sigilhq/sigil/internal/signature"
	sigilTLS "github.com/sigilhq/sigil/internal/tls"
)

// App is the main application
type App struct {
	config      *config.Config
	queue       *deploy.BoltStorage
	apiServer   *api.Server
	processor   *deploy.Processor
	logger      *slog.Logger
	tlsConfig   *tls.Config
	acmeManager *sigilTLS.ACMEManager
	acmeServer  *http.Server
	rateLimiter *ratelimit.Limiter
	collector   *metrics.Collector
	metricsSrv  *metrics.Server
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Create storage; templates, deployment queue, rate limit counters
	// and metric shadows share one bbolt file.
	storage, err := deploy.NewBoltStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	templates, err := signature.NewStorage(storage.DB())
	if err != nil {
		return nil, fmt.Errorf("failed to create template storage: %w", err)
	}

	// Create rate limiter if enabled
	var rateLimiter *ratelimit.Limiter
	var limiter deploy.Limiter
	if cfg.RateLimit.Enabled {
		rateLimiter, err = ratelimit.NewLimiter(storage.DB(), &cfg.RateLimit.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		limiter = rateLimiter
		logger.Info("rate limiting enabled")
	}

	// Create metrics if enabled
	var m *metrics.Metrics
	var collector *metrics.Collector
	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metrics.SetGlobal(m)

		collector, err = metrics.NewCollector(storage.DB(), m, queueStatsAdapter{storage}, cfg.Storage.Path, cfg.Metrics.FlushInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics collector: %w", err)
		}

		metricsSrv = metrics.NewServerWithAllowedIPs(
			m,
			cfg.Metrics.ListenAddr,
			cfg.Metrics.Path,
			cfg.Metrics.AllowedIPs,
			logger.With("component", "metrics"),
		)
		logger.Info("metrics enabled", "addr", cfg.Metrics.ListenAddr)
	}

	// Create provider deployers
	deployers := make(map[string]deploy.Deployer)
	if cfg.Deploy.Google != nil {
		deployers["google"] = deploy.NewGoogleDeployer(*cfg.Deploy.Google)
		logger.Info("google deployer configured")
	}
	if cfg.Deploy.Microsoft != nil {
		deployers["microsoft"] = deploy.NewMicrosoftDeployer(*cfg.Deploy.Microsoft)
		logger.Info("microsoft deployer configured")
	}

	// Create deployment processor
	processor := deploy.NewProcessor(
		storage,
		deployers,
		limiter,
		deploy.ProcessorConfig{
			Workers:         cfg.Deploy.Workers,
			RetryInterval:   cfg.Deploy.RetryInterval,
			MaxRetries:      cfg.Deploy.MaxRetries,
			ProcessInterval: cfg.Deploy.ProcessInterval,
			DryRun:          cfg.Deploy.DryRun,
		},
		logger.With("component", "processor"),
	)

	// Create disclaimer resolver
	var resolver disclaimer.Resolver = disclaimer.NoopResolver{}
	if cfg.Disclaimer.Enabled {
		resolver = disclaimer.NewClientWithTimeout(cfg.Disclaimer.BaseURL, cfg.Disclaimer.APIKey, cfg.Disclaimer.Timeout)
		logger.Info("disclaimer service enabled", "base_url", cfg.Disclaimer.BaseURL)
	}

	// Create preview mailer if enabled
	var mailer *preview.Mailer
	if cfg.Preview.Enabled {
		mailer, err = preview.NewMailer(cfg.Preview, logger.With("component", "preview"))
		if err != nil {
			return nil, fmt.Errorf("failed to create preview mailer: %w", err)
		}
		logger.Info("preview delivery enabled", "host", cfg.Preview.Host)
	}

	// Setup TLS configuration
	var tlsConfig *tls.Config
	var acmeManager *sigilTLS.ACMEManager

	if cfg.API.TLS.ACME.Enabled {
		acmeManager = sigilTLS.NewACMEManager(
			cfg.API.TLS.ACME.Email,
			cfg.API.TLS.ACME.Host,
			cfg.API.TLS.ACME.CacheDir,
		)
		tlsConfig = acmeManager.TLSConfig()
		logger.Info("ACME (Let's Encrypt) enabled", "host", cfg.API.TLS.ACME.Host)
	} else if cfg.API.TLS.CertFile != "" && cfg.API.TLS.KeyFile != "" {
		tlsConfig, err = sigilTLS.LoadCertificate(cfg.API.TLS.CertFile, cfg.API.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		logger.Info("TLS enabled with manual certificates")
	}

	// Create API server
	apiServer := api.NewServer(api.Options{
		Templates:   templates,
		Queue:       storage,
		Disclaimers: resolver,
		Mailer:      mailer,
		Collector:   collector,
	}, &cfg.API, logger.With("component", "api"))

	return &App{
		config:      cfg,
		queue:       storage,
		apiServer:   apiServer,
		processor:   processor,
		logger:      logger,
		tlsConfig:   tlsConfig,
		acmeManager: acmeManager,
		rateLimiter: rateLimiter,
		collector:   collector,
		metricsSrv:  metricsSrv,
	}, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting sigil",
		"hostname", a.config.Server.Hostname,
		"api_addr", a.config.API.ListenAddr,
		"tls", a.tlsConfig != nil,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Start deployment processor
	a.processor.Start(ctx)

	// Start metrics collector background tasks
	if a.collector != nil {
		a.collector.Start(ctx)
	}

	// Channel to collect errors
	errCh := make(chan error, 3)

	// Start API server
	go func() {
		var err error
		if a.tlsConfig != nil {
			err = a.apiServer.ListenAndServeTLS(a.tlsConfig)
		} else {
			err = a.apiServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Start metrics server if enabled
	if a.metricsSrv != nil {
		go func() {
			if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Start ACME HTTP challenge server on port 80 if ACME is enabled
	if a.acmeManager != nil {
		a.acmeServer = &http.Server{
			Addr: ":80",
			Handler: a.acmeManager.HTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				// Redirect all non-ACME requests to HTTPS
				target := "https://" + r.Host + r.URL.Path
				if r.URL.RawQuery != "" {
					target += "?" + r.URL.RawQuery
				}
				http.Redirect(w, r, target, http.StatusMovedPermanently)
			})),
		}
		go func() {
			a.logger.Info("starting ACME HTTP challenge server", "addr", ":80")
			if err := a.acmeServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Warn("ACME HTTP server error", "error", err)
			}
		}()

		// Warm the certificate so the first request does not wait on
		// issuance. The challenge server above must be up first.
		go func() {
			status, err := a.acmeManager.Warm(ctx)
			if err != nil {
				a.logger.Warn("certificate warm-up failed", "host", a.acmeManager.Host(), "error", err)
				return
			}
			a.logger.Info("certificate ready",
				"host", status.Host,
				"expires", status.NotAfter.Format(time.RFC3339),
				"days_left", status.DaysLeft,
			)
		}()
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	// Graceful shutdown
	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// Create timeout context
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop processor first (stop accepting new work)
	a.processor.Stop()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Shutdown ACME server if running
	if a.acmeServer != nil {
		if err := a.acmeServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("acme server shutdown error", "error", err)
		}
	}

	// Stop collector (persists shadow counters)
	if a.collector != nil {
		if err := a.collector.Stop(); err != nil {
			a.logger.Error("metrics collector stop error", "error", err)
		}
	}

	// Stop rate limiter (persists counters)
	if a.rateLimiter != nil {
		if err := a.rateLimiter.Stop(); err != nil {
			a.logger.Error("rate limiter stop error", "error", err)
		}
	}

	// Close storage
	if err := a.queue.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// queueStatsAdapter bridges the deployment queue's stats into the
// metrics collector's own stats type.
type queueStatsAdapter struct {
	q deploy.Queue
}

func (a queueStatsAdapter) Stats(ctx context.Context) (*metrics.QueueStats, error) {
	s, err := a.q.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &metrics.QueueStats{
		Pending:   s.Pending,
		Deploying: s.Deploying,
		Deferred:  s.Deferred,
		Deployed:  s.Deployed,
		Failed:    s.Failed,
		Total:     s.Total,
	}, nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
