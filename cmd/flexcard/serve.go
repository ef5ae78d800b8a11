package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/config"
	"github.com/boddenberg/flexcard-bfa-go/internal/handler"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/client"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/observability"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/flexcard-bfa-go/internal/service"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and public card pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.Load())
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func serve(ctx context.Context, cfg *config.Config) error {
	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, "flexcard")
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("public_base_url", cfg.PublicBaseURL),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("events_backend", cfg.EventsBackend),
		zap.Bool("redis", cfg.RedisAddr != ""),
		zap.Bool("s3_archive", cfg.S3Bucket != ""),
		zap.Duration("line_timeout", cfg.LineTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(ctx, cfg.OTLPEndpoint, "flexcard")
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Backends ---
	deps, err := openDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	router, err := newHandler(ctx, cfg, deps, metrics, logger)
	if err != nil {
		return err
	}

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// --- Graceful shutdown ---
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newHandler wires the services over deps and returns the HTTP router.
func newHandler(ctx context.Context, cfg *config.Config, deps *dependencies, metrics *observability.Metrics, logger *zap.Logger) (http.Handler, error) {
	// --- LINE ---
	lineCfg, err := config.LoadLineConfig(cfg.LineConfigFile, cfg.LineChannelAccessToken, cfg.LineChannelSecret)
	if err != nil {
		return nil, err
	}
	logger.Info("line credentials loaded", zap.String("source", lineCfg.Credentials().Source))

	lineClient := client.NewLineClient(
		&http.Client{},
		cfg.LineAPIURL,
		lineCfg,
		resilience.NewCircuitBreaker("line", logger),
		resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg.LineTimeout,
	)

	// --- Services ---
	authSvc := service.NewAuthService(deps.store, metrics, logger)
	if err := bootstrapAdmin(ctx, cfg, authSvc, logger); err != nil {
		return nil, err
	}
	publisher := service.NewPublisherService(deps.store, deps.events, deps.archive, metrics, cfg.PublicBaseURL, logger)

	services := handler.Services{
		Auth:      authSvc,
		Customers: service.NewCustomerService(deps.store, deps.events, logger),
		Publisher: publisher,
		Display:   service.NewDisplayService(deps.store, deps.claims, cfg.ViewDedupTTL, metrics, logger),
		Messaging: service.NewMessagingService(deps.store, lineClient, metrics, cfg.MaxConcurrency, logger),
		Import:    service.NewImportService(publisher, logger),
		Settings:  service.NewLineSettingsService(lineCfg, logger),
	}

	// --- Router ---
	return handler.NewRouter(services, handler.Options{
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		SessionCookieSecure: cfg.SessionCookieSecure,
		TrustProxyHeaders:   cfg.TrustProxyHeaders,
		Health:              deps.health,
	}, metrics, logger), nil
}

// bootstrapAdmin creates the configured admin on a store with no users.
func bootstrapAdmin(ctx context.Context, cfg *config.Config, authSvc *service.AuthService, logger *zap.Logger) error {
	if cfg.AdminPassword == "" {
		if cfg.StoreBackend == "memory" {
			logger.Warn("FLEXCARD_ADMIN_PASSWORD not set, the in-memory store has no operator accounts")
		}
		return nil
	}
	user, err := authSvc.EnsureInitialAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if user != nil {
		logger.Info("bootstrap admin created", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	}
	return nil
}
