// Package bootstrap assembles the sync engine from configuration. The HTTP
// server and the operator CLI share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	syncapp "github.com/printshop/backend/internal/application/accounting"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/printshop/backend/internal/infrastructure/cache"
	"github.com/printshop/backend/internal/infrastructure/config"
	"github.com/printshop/backend/internal/infrastructure/icount"
	"github.com/printshop/backend/internal/infrastructure/logger"
	"github.com/printshop/backend/internal/infrastructure/persistence"
	"github.com/printshop/backend/internal/infrastructure/ratelimit"
	"github.com/printshop/backend/internal/infrastructure/session"
	"github.com/printshop/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// App holds the wired components of the sync engine
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *persistence.Database
	Limiter *ratelimit.Limiter
	Cache   *cache.LocalCache[any]
	Conn    *syncapp.ConnectionManager
	Sync    *syncapp.SyncService
	Queries *syncapp.QueryService

	Sessions      accounting.SessionStore
	Logs          *telemetry.LoggerProvider
	Tracer        *telemetry.TracerProvider
	MeterProvider *telemetry.MeterProvider
	Metrics       *telemetry.SyncMetrics

	closers []func(ctx context.Context) error
}

// New connects the database and builds every component. On error the
// partially built App is closed before returning.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (app *App, err error) {
	app = &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
			app = nil
		}
	}()

	if err = app.initTelemetry(ctx); err != nil {
		return nil, err
	}
	if err = app.initDatabase(); err != nil {
		return nil, err
	}
	if err = app.initSync(); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *App) initTelemetry(ctx context.Context) error {
	cfg := a.Config.Telemetry

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.LogsEnabled,
		CollectorEndpoint: cfg.CollectorEndpoint,
		ServiceName:       cfg.ServiceName,
		ServiceVersion:    a.Config.App.Version,
		Insecure:          cfg.Insecure,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("init logger provider: %w", err)
	}
	a.Logs = lp
	a.onClose(lp.Shutdown)
	// Every component built below logs through the bridged logger
	a.Logger = lp.Bridge(a.Logger, logger.ParseLevel(a.Config.Log.Level))

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Enabled,
		CollectorEndpoint: cfg.CollectorEndpoint,
		SamplingRatio:     cfg.SamplingRatio,
		ServiceName:       cfg.ServiceName,
		ServiceVersion:    a.Config.App.Version,
		Insecure:          cfg.Insecure,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("init tracer provider: %w", err)
	}
	a.Tracer = tp
	a.onClose(tp.Shutdown)

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.MetricsEnabled,
		CollectorEndpoint: cfg.CollectorEndpoint,
		ExportInterval:    cfg.MetricsInterval,
		ServiceName:       cfg.ServiceName,
		ServiceVersion:    a.Config.App.Version,
		Insecure:          cfg.Insecure,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("init meter provider: %w", err)
	}
	a.MeterProvider = mp
	a.onClose(mp.Shutdown)

	metrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:  mp.Meter("printshop-sync"),
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("init sync metrics: %w", err)
	}
	a.Metrics = metrics
	return nil
}

func (a *App) initDatabase() error {
	gormLog := logger.NewGormLogger(a.Logger, logger.MapGormLogLevel(a.Config.Log.Level),
		logger.WithSlowThreshold(a.Config.Database.SlowQueryThreshold))

	db, err := persistence.NewDatabase(&a.Config.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		return err
	}
	a.DB = db
	a.onClose(func(context.Context) error { return db.Close() })

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled: a.Config.Telemetry.Enabled && a.Config.Telemetry.DBTraceEnabled,
		DBName:  a.Config.Database.DBName,
	}, a.Logger); err != nil {
		return fmt.Errorf("register db tracing: %w", err)
	}

	a.Logger.Info("Database connected",
		zap.String("host", a.Config.Database.Host),
		zap.String("dbname", a.Config.Database.DBName),
	)
	return nil
}

func (a *App) initSync() error {
	cfg := a.Config

	limiter, err := ratelimit.New(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	if err != nil {
		return fmt.Errorf("create rate limiter: %w", err)
	}
	a.Limiter = limiter

	sessions, err := session.NewStoreFactory(cfg.Redis, session.WithLogger(a.Logger)).CreateStore()
	if err != nil {
		return fmt.Errorf("create session store: %w", err)
	}
	a.Sessions = sessions
	if c, ok := sessions.(io.Closer); ok {
		a.onClose(func(context.Context) error { return c.Close() })
	}

	icountCfg := icount.NewConfig(cfg.ICount.BaseURL)
	gateway, err := icount.NewClient(icountCfg, icount.WithLogger(logger.Named(a.Logger, "icount")))
	if err != nil {
		return fmt.Errorf("create icount client: %w", err)
	}

	a.Cache = cache.NewLocalCache[any](
		cache.WithMaxSize(cfg.Cache.MaxSize),
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithCleanupInterval(cfg.Cache.CleanupInterval),
		cache.WithLogger(logger.Named(a.Logger, "cache")),
	)
	a.Cache.StartCleanup()
	a.onClose(func(context.Context) error { return a.Cache.Close() })

	creds := cfg.ICount.Credentials()
	a.Conn = syncapp.NewConnectionManager(limiter, sessions, gateway, syncapp.ConnectionConfig{
		Credentials: accounting.Credentials{
			CompanyID: creds.CompanyID,
			User:      creds.User,
			Password:  creds.Password,
		},
		SessionTTL:       cfg.Session.TTL,
		CallTimeout:      cfg.ICount.CallTimeout,
		MaxRetries:       cfg.ICount.MaxRetries,
		RetryBaseDelay:   cfg.ICount.RetryBaseDelay,
		RetryMaxDelay:    cfg.ICount.RetryMaxDelay,
		MaxRateLimitWait: cfg.ICount.MaxRateLimitWait,
	},
		syncapp.WithConnectionLogger(logger.Named(a.Logger, "connection")),
		syncapp.WithConnectionMetrics(a.Metrics),
	)

	repos := Repositories(a.DB)

	docTypes := make([]accounting.DocType, 0, len(cfg.Sync.InvoiceDocTypes))
	for _, t := range cfg.Sync.InvoiceDocTypes {
		dt := accounting.DocType(t)
		if !dt.IsValid() || dt == accounting.DocTypeOrder || dt == accounting.DocTypeClient {
			return fmt.Errorf("sync.invoice_doc_types: %q is not an invoice document type", t)
		}
		docTypes = append(docTypes, dt)
	}

	a.Sync = syncapp.NewSyncService(a.Conn, gateway, repos, syncapp.SyncConfig{
		PageSize:        cfg.Sync.PageSize,
		InvoiceDocTypes: docTypes,
		InitialLookback: cfg.Sync.InitialLookback,
		Overlap:         cfg.Sync.Overlap,
		RecentLogLimit:  cfg.Sync.RecentLogLimit,
	},
		syncapp.WithSyncLogger(logger.Named(a.Logger, "sync")),
		syncapp.WithSyncMetrics(a.Metrics),
		syncapp.WithCacheInvalidator(a.Cache),
	)

	a.Queries = syncapp.NewQueryService(repos, a.Cache,
		syncapp.WithQueryTTL(cfg.Cache.DefaultTTL),
		syncapp.WithQueryLogger(logger.Named(a.Logger, "query")),
	)
	return nil
}

// Repositories builds the gorm repositories over db
func Repositories(db *persistence.Database) syncapp.Repositories {
	return syncapp.Repositories{
		Customers: persistence.NewGormCustomerRepository(db.DB),
		Invoices:  persistence.NewGormInvoiceRepository(db.DB),
		Orders:    persistence.NewGormOrderRepository(db.DB),
		Runs:      persistence.NewGormSyncRunRepository(db.DB),
		Logs:      persistence.NewGormSyncLogRepository(db.DB),
		State:     persistence.NewGormSyncStateRepository(db.DB),
	}
}

// Close releases components in reverse construction order
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
