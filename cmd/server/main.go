package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/printshop/backend/internal/bootstrap"
	"github.com/printshop/backend/internal/infrastructure/config"
	"github.com/printshop/backend/internal/infrastructure/logger"
	"github.com/printshop/backend/internal/infrastructure/scheduler"
	"github.com/printshop/backend/internal/interfaces/http/handler"
	"github.com/printshop/backend/internal/interfaces/http/middleware"
	"github.com/printshop/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	if cfg.App.Version == "" {
		cfg.App.Version = version
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting print shop sync service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", cfg.App.Version),
	)

	ctx := context.Background()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}
	log = app.Logger

	// Auto sync scheduler
	autoSync, err := scheduler.NewAutoSyncScheduler(scheduler.AutoSyncConfig{
		Interval:    cfg.Sync.AutoInterval,
		PushPending: true,
	}, app.Sync, app.Sync, log)
	if err != nil {
		log.Fatal("Failed to create auto sync scheduler", zap.Error(err))
	}
	if err := autoSync.Start(ctx); err != nil {
		log.Fatal("Failed to start auto sync scheduler", zap.Error(err))
	}

	// Per-client limiter for the HTTP surface, separate from the outbound budget
	var clientLimiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitEnabled {
		clientLimiter, err = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		if err != nil {
			log.Fatal("Invalid HTTP rate limit", zap.Error(err))
		}
		defer clientLimiter.Close()
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins

	handlers := router.Handlers{
		Sync:     handler.NewSyncHandler(app.Sync),
		Invoice:  handler.NewInvoiceHandler(app.Sync, app.Queries),
		Customer: handler.NewCustomerHandler(app.Queries),
		Admin:    handler.NewAdminHandler(app.Limiter, app.Cache),
		Health: handler.NewHealthHandler(cfg.App.Version,
			handler.WithHealthCheck("database", app.DB.Ping),
			handler.WithSyncReporter(app.Sync),
		),
	}

	engine, err := router.NewEngine(router.EngineConfig{
		Logger:      log,
		CORS:        corsConfig,
		MaxBodySize: cfg.HTTP.MaxBodySize,
		RateLimiter: clientLimiter,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     app.Tracer.IsEnabled(),
		},
		MeterProvider:  app.MeterProvider,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	}, handlers)
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := autoSync.Stop(shutdownCtx); err != nil {
		log.Warn("Auto sync did not stop in time", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := app.Close(shutdownCtx); err != nil {
		log.Error("Error releasing resources", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
