package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	ICount    ICountConfig
	RateLimit RateLimitConfig
	Session   SessionConfig
	Sync      SyncConfig
	Cache     CacheConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name    string
	Env     string
	Port    string
	Version string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	// SlowQueryThreshold logs statements slower than this at warn
	SlowQueryThreshold time.Duration
}

// RedisConfig holds Redis connection settings. Redis only backs the
// session store and is off unless enabled.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	TrustedProxies    []string
	CORSAllowOrigins  []string
	MaxBodySize       int64
}

// ICountConfig holds the remote accounting service connection settings.
// Credentials are expected from the environment, never from config.toml.
type ICountConfig struct {
	BaseURL          string
	CompanyID        string
	User             string
	Password         string
	CallTimeout      time.Duration // Per remote call
	MaxRetries       int           // Bounded retries per call
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	MaxRateLimitWait time.Duration // Longest wait for the local budget before failing fast
}

// RateLimitConfig mirrors the remote request budget.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// SessionConfig holds remote session settings
type SessionConfig struct {
	TTL time.Duration // Used when the remote omits a lifetime
}

// SyncConfig holds reconciliation settings
type SyncConfig struct {
	PageSize        int
	InvoiceDocTypes []string
	InitialLookback time.Duration // Range start when no run has succeeded yet
	Overlap         time.Duration // Re-read window before the last success
	AutoInterval    time.Duration // Zero disables the scheduler
	RecentLogLimit  int
}

// CacheConfig holds local read cache settings
type CacheConfig struct {
	MaxSize         int
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	MetricsInterval   time.Duration // Export period of the periodic metric reader
	LogsEnabled       bool          // Tee zap records into OTLP log export
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with PRINTSHOP_ prefix (e.g., PRINTSHOP_ICOUNT_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("PRINTSHOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:    v.GetString("app.name"),
			Env:     v.GetString("app.env"),
			Port:    v.GetString("app.port"),
			Version: v.GetString("app.version"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),

			SlowQueryThreshold: v.GetDuration("database.slow_query_threshold"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
		},
		ICount: ICountConfig{
			BaseURL:          v.GetString("icount.base_url"),
			CompanyID:        v.GetString("icount.company_id"),
			User:             v.GetString("icount.user"),
			Password:         v.GetString("icount.password"),
			CallTimeout:      v.GetDuration("icount.call_timeout"),
			MaxRetries:       v.GetInt("icount.max_retries"),
			RetryBaseDelay:   v.GetDuration("icount.retry_base_delay"),
			RetryMaxDelay:    v.GetDuration("icount.retry_max_delay"),
			MaxRateLimitWait: v.GetDuration("icount.max_rate_limit_wait"),
		},
		RateLimit: RateLimitConfig{
			Limit:  v.GetInt("rate_limit.limit"),
			Window: v.GetDuration("rate_limit.window"),
		},
		Session: SessionConfig{
			TTL: v.GetDuration("session.ttl"),
		},
		Sync: SyncConfig{
			PageSize:        v.GetInt("sync.page_size"),
			InvoiceDocTypes: v.GetStringSlice("sync.invoice_doc_types"),
			InitialLookback: v.GetDuration("sync.initial_lookback"),
			Overlap:         v.GetDuration("sync.overlap"),
			AutoInterval:    v.GetDuration("sync.auto_interval"),
			RecentLogLimit:  v.GetInt("sync.recent_log_limit"),
		},
		Cache: CacheConfig{
			MaxSize:         v.GetInt("cache.max_size"),
			DefaultTTL:      v.GetDuration("cache.default_ttl"),
			CleanupInterval: v.GetDuration("cache.cleanup_interval"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "printshop-sync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "printshop"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.SlowQueryThreshold == 0 {
		cfg.Database.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	// A full sync can take several minutes against a throttled remote
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 10 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.ICount.BaseURL == "" {
		cfg.ICount.BaseURL = "https://api.icount.co.il/api/v3.php"
	}
	if cfg.ICount.CallTimeout == 0 {
		cfg.ICount.CallTimeout = 15 * time.Second
	}
	if cfg.ICount.MaxRetries == 0 {
		cfg.ICount.MaxRetries = 3
	}
	if cfg.ICount.RetryBaseDelay == 0 {
		cfg.ICount.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.ICount.RetryMaxDelay == 0 {
		cfg.ICount.RetryMaxDelay = 10 * time.Second
	}
	if cfg.ICount.MaxRateLimitWait == 0 {
		cfg.ICount.MaxRateLimitWait = 65 * time.Second
	}
	// The remote budget is undocumented; 20 requests per minute stays under
	// every limit observed so far.
	if cfg.RateLimit.Limit == 0 {
		cfg.RateLimit.Limit = 20
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 30 * time.Minute
	}
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = 100
	}
	if len(cfg.Sync.InvoiceDocTypes) == 0 {
		cfg.Sync.InvoiceDocTypes = []string{"invoice", "invrec", "receipt", "refund"}
	}
	if cfg.Sync.InitialLookback == 0 {
		cfg.Sync.InitialLookback = 365 * 24 * time.Hour
	}
	if cfg.Sync.Overlap == 0 {
		cfg.Sync.Overlap = 72 * time.Hour
	}
	if cfg.Sync.RecentLogLimit == 0 {
		cfg.Sync.RecentLogLimit = 50
	}
	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = 500
	}
	if cfg.Cache.DefaultTTL == 0 {
		cfg.Cache.DefaultTTL = 5 * time.Minute
	}
	if cfg.Cache.CleanupInterval == 0 {
		cfg.Cache.CleanupInterval = time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "printshop-sync"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.RateLimit.Limit < 0 || c.RateLimit.Window < 0 {
		return fmt.Errorf("rate_limit.limit and rate_limit.window cannot be negative")
	}
	if c.ICount.MaxRetries < 0 || c.ICount.MaxRetries > 10 {
		return fmt.Errorf("icount.max_retries must be between 0 and 10, got %d", c.ICount.MaxRetries)
	}
	if _, err := url.ParseRequestURI(c.ICount.BaseURL); err != nil {
		return fmt.Errorf("icount.base_url is invalid: %w", err)
	}
	if c.Sync.PageSize > 500 {
		return fmt.Errorf("sync.page_size cannot exceed 500, got %d", c.Sync.PageSize)
	}
	if c.Sync.AutoInterval < 0 {
		return fmt.Errorf("sync.auto_interval cannot be negative")
	}
	if c.Sync.AutoInterval > 0 && c.Sync.AutoInterval < c.RateLimit.Window {
		return fmt.Errorf("sync.auto_interval (%s) must be at least one rate limit window (%s)",
			c.Sync.AutoInterval, c.RateLimit.Window)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if !c.ICount.Credentials().complete() {
			return fmt.Errorf("icount.company_id, icount.user and icount.password are required in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.MetricsInterval < 0 {
		return fmt.Errorf("telemetry.metrics_interval must not be negative, got %s", c.Telemetry.MetricsInterval)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// CredentialSet is the remote login tuple read from configuration.
type CredentialSet struct {
	CompanyID string
	User      string
	Password  string
}

func (c CredentialSet) complete() bool {
	return c.CompanyID != "" && c.User != "" && c.Password != ""
}

// Credentials returns the configured login tuple.
func (c *ICountConfig) Credentials() CredentialSet {
	return CredentialSet{CompanyID: c.CompanyID, User: c.User, Password: c.Password}
}
