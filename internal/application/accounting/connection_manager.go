package accounting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/printshop/backend/internal/infrastructure/ratelimit"
	"github.com/printshop/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const opLogin = "auth/login"

// RequestBudget is the outbound rate limiter.
type RequestBudget interface {
	TryAcquire() ratelimit.Decision
}

// ConnectionConfig tunes the connection manager.
type ConnectionConfig struct {
	Credentials accounting.Credentials
	// SessionTTL applies when the remote does not declare a lifetime
	SessionTTL  time.Duration
	CallTimeout time.Duration
	MaxRetries  int
	// RetryBaseDelay and RetryMaxDelay bound the exponential backoff
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// MaxRateLimitWait is the longest a call waits for the limiter window
	// to reset before giving up with a RateLimitError
	MaxRateLimitWait time.Duration
}

// ConnectResult is the outcome of Connect. It carries failures as a
// message and never as a returned error.
type ConnectResult struct {
	Success bool   `json:"success"`
	SID     string `json:"-"`
	Message string `json:"message"`
}

// CallOptions describes one remote call made through Do.
type CallOptions struct {
	// Op names the call in logs and metrics
	Op string
	// Idempotent calls are retried on network and transient errors.
	// Non-idempotent calls are attempted exactly once.
	Idempotent bool
}

// ConnectionManager owns the remote session and runs every remote call
// through the rate limiter with a per-call timeout.
type ConnectionManager struct {
	limiter  RequestBudget
	sessions accounting.SessionStore
	gateway  accounting.Gateway
	cfg      ConnectionConfig
	metrics  *telemetry.SyncMetrics
	logger   *zap.Logger
	now      func() time.Time

	// loginMu serializes logins so concurrent callers share one session
	loginMu sync.Mutex
}

// ConnectionOption configures a ConnectionManager.
type ConnectionOption func(*ConnectionManager)

// WithConnectionLogger sets the logger.
func WithConnectionLogger(logger *zap.Logger) ConnectionOption {
	return func(m *ConnectionManager) {
		m.logger = logger
	}
}

// WithConnectionMetrics sets the metrics sink.
func WithConnectionMetrics(metrics *telemetry.SyncMetrics) ConnectionOption {
	return func(m *ConnectionManager) {
		m.metrics = metrics
	}
}

// WithConnectionClock replaces time.Now, for tests.
func WithConnectionClock(now func() time.Time) ConnectionOption {
	return func(m *ConnectionManager) {
		m.now = now
	}
}

// NewConnectionManager creates a ConnectionManager.
func NewConnectionManager(
	limiter RequestBudget,
	sessions accounting.SessionStore,
	gateway accounting.Gateway,
	cfg ConnectionConfig,
	opts ...ConnectionOption,
) *ConnectionManager {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}

	m := &ConnectionManager{
		limiter:  limiter,
		sessions: sessions,
		gateway:  gateway,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect returns a valid session, reusing a cached one when possible.
// Logins are retried with exponential backoff up to maxRetries times.
func (m *ConnectionManager) Connect(ctx context.Context, maxRetries int) ConnectResult {
	sid, reused, err := m.connect(ctx, maxRetries)
	if err != nil {
		return ConnectResult{Message: err.Error()}
	}
	if reused {
		return ConnectResult{Success: true, SID: sid, Message: "reused cached session"}
	}
	return ConnectResult{Success: true, SID: sid, Message: "connected"}
}

// MaxRetries returns the configured retry count for remote calls.
func (m *ConnectionManager) MaxRetries() int {
	return m.cfg.MaxRetries
}

// Do runs fn with a live session id. See CallOptions for retry rules. An
// AuthError from fn drops the session and fn is tried once more after a
// fresh login; the remote rejected the first call, so this is safe even
// for non-idempotent calls.
func (m *ConnectionManager) Do(ctx context.Context, opts CallOptions, fn func(ctx context.Context, sid string) error) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "connection.do",
		telemetry.AttrOperation.String(opts.Op),
		telemetry.AttrIdempotent.Bool(opts.Idempotent))
	attempts := 0
	defer func() {
		span.SetAttributes(telemetry.AttrAttempts.Int(attempts))
		telemetry.EndSpan(span, err)
	}()

	sid, _, err := m.connect(ctx, m.cfg.MaxRetries)
	if err != nil {
		return err
	}

	reauthenticated := false
	attempt := func() error {
		for {
			attempts++
			err := m.call(ctx, opts.Op, sid, fn)
			if err == nil {
				return nil
			}
			if accounting.IsAuthError(err) && !reauthenticated {
				reauthenticated = true
				m.logger.Warn("Remote session rejected, logging in again",
					zap.String("op", opts.Op),
					zap.Error(err))
				m.dropSession(ctx)
				newSID, _, cerr := m.connect(ctx, m.cfg.MaxRetries)
				if cerr != nil {
					return backoff.Permanent(cerr)
				}
				sid = newSID
				continue
			}
			var rateErr *accounting.RateLimitError
			if errors.As(err, &rateErr) || !opts.Idempotent || !accounting.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
	}

	retries := m.cfg.MaxRetries
	if !opts.Idempotent {
		retries = 0
	}
	return backoff.RetryNotify(attempt, m.newBackOff(ctx, retries), func(err error, wait time.Duration) {
		m.logger.Warn("Remote call failed, retrying",
			zap.String("op", opts.Op),
			zap.Duration("backoff", wait),
			zap.Error(err))
	})
}

// connect returns a session id and whether it came from the cache.
func (m *ConnectionManager) connect(ctx context.Context, maxRetries int) (string, bool, error) {
	creds := m.cfg.Credentials
	if err := creds.Validate(); err != nil {
		return "", false, err
	}
	key := creds.Fingerprint()

	if sid, ok := m.cachedSession(ctx, key); ok {
		return sid, true, nil
	}

	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	// Another caller may have logged in while this one waited
	if sid, ok := m.cachedSession(ctx, key); ok {
		return sid, true, nil
	}

	var result *accounting.LoginResult
	attempts := 0
	login := func() error {
		attempts++
		res, err := m.loginOnce(ctx, creds)
		if err != nil {
			var rateErr *accounting.RateLimitError
			if errors.As(err, &rateErr) || !accounting.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}

	if maxRetries < 0 {
		maxRetries = 0
	}
	err := backoff.RetryNotify(login, m.newBackOff(ctx, maxRetries), func(err error, wait time.Duration) {
		m.logger.Warn("Login failed, retrying",
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err))
	})
	if err != nil {
		m.metrics.RecordLogin(ctx, "error")
		m.logger.Error("Failed to connect to iCount",
			zap.Int("attempts", attempts),
			zap.Error(err))
		return "", false, fmt.Errorf("connect failed after %d attempt(s): %w", attempts, err)
	}

	ttl := result.TTL
	if ttl <= 0 {
		ttl = m.cfg.SessionTTL
	}
	if err := m.sessions.Set(ctx, key, accounting.NewSession(result.SID, m.now(), ttl)); err != nil {
		m.logger.Warn("Failed to cache session", zap.Error(err))
	}

	m.metrics.RecordLogin(ctx, "ok")
	m.logger.Info("Connected to iCount",
		zap.Int("attempts", attempts),
		zap.Duration("session_ttl", ttl))
	return result.SID, false, nil
}

func (m *ConnectionManager) cachedSession(ctx context.Context, key string) (string, bool) {
	sess, err := m.sessions.Get(ctx, key)
	if err != nil {
		m.logger.Warn("Session store read failed, logging in", zap.Error(err))
		return "", false
	}
	if !sess.IsValid(m.now()) {
		return "", false
	}
	return sess.Token, true
}

func (m *ConnectionManager) dropSession(ctx context.Context) {
	if err := m.sessions.Delete(ctx, m.cfg.Credentials.Fingerprint()); err != nil {
		m.logger.Warn("Failed to drop session", zap.Error(err))
	}
}

func (m *ConnectionManager) loginOnce(ctx context.Context, creds accounting.Credentials) (*accounting.LoginResult, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	res, err := m.gateway.Login(callCtx, creds)
	m.metrics.RecordCall(ctx, opLogin, resultLabel(err), time.Since(start))
	return res, err
}

func (m *ConnectionManager) call(ctx context.Context, op, sid string, fn func(context.Context, string) error) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx, sid)
	m.metrics.RecordCall(ctx, op, resultLabel(err), time.Since(start))
	return err
}

// acquire takes one request from the budget. A denied acquisition waits
// for the window to reset when that is within MaxRateLimitWait.
func (m *ConnectionManager) acquire(ctx context.Context) error {
	d := m.limiter.TryAcquire()
	m.metrics.RecordRateLimit(ctx, d.Allowed, d.Remaining)
	if d.Allowed {
		return nil
	}
	if d.WaitTime > m.cfg.MaxRateLimitWait {
		return &accounting.RateLimitError{WaitTime: d.WaitTime}
	}

	m.logger.Info("Rate limit reached, waiting for window reset", zap.Duration("wait", d.WaitTime))
	timer := time.NewTimer(d.WaitTime)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	d = m.limiter.TryAcquire()
	m.metrics.RecordRateLimit(ctx, d.Allowed, d.Remaining)
	if !d.Allowed {
		return &accounting.RateLimitError{WaitTime: d.WaitTime}
	}
	return nil
}

func (m *ConnectionManager) newBackOff(ctx context.Context, retries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.RetryBaseDelay
	b.MaxInterval = m.cfg.RetryMaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		netErr    *accounting.NetworkError
		rateErr   *accounting.RateLimitError
		rejection *accounting.RemoteRejection
	)
	switch {
	case accounting.IsAuthError(err):
		return "auth_error"
	case errors.As(err, &rateErr):
		return "rate_limited"
	case errors.As(err, &netErr):
		return "network_error"
	case errors.As(err, &rejection):
		return "rejected"
	default:
		return "error"
	}
}
