package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when a metrics set is built without a meter.
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

// SyncMetricsConfig holds configuration for sync metrics.
type SyncMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// SyncMetrics records sync runs, remote calls and rate limiting. A nil
// *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	logger *zap.Logger

	recordsTotal    *Counter
	runsTotal       *Counter
	runDuration     *Histogram
	callsTotal      *Counter
	callDuration    *Histogram
	loginsTotal     *Counter
	rateLimitDenied *Counter
	rateRemaining   *Gauge
}

// NewSyncMetrics creates the sync instruments on cfg.Meter.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &SyncMetrics{logger: logger}
	var err error

	if m.recordsTotal, err = NewCounter(cfg.Meter, "sync_records_total",
		"Records processed by sync passes", "{records}"); err != nil {
		return nil, err
	}
	if m.runsTotal, err = NewCounter(cfg.Meter, "sync_runs_total",
		"Completed sync runs by final status", "{runs}"); err != nil {
		return nil, err
	}
	if m.runDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "sync_run_duration_seconds",
		Description: "Sync run wall time",
		Unit:        "s",
		Boundaries:  SyncDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.callsTotal, err = NewCounter(cfg.Meter, "icount_calls_total",
		"Remote API calls by operation and result", "{calls}"); err != nil {
		return nil, err
	}
	if m.callDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "icount_call_duration_seconds",
		Description: "Remote API call latency",
		Unit:        "s",
		Boundaries:  CallDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.loginsTotal, err = NewCounter(cfg.Meter, "icount_logins_total",
		"Remote login attempts by result", "{logins}"); err != nil {
		return nil, err
	}
	if m.rateLimitDenied, err = NewCounter(cfg.Meter, "ratelimit_denied_total",
		"Outbound calls denied by the local rate limiter", "{calls}"); err != nil {
		return nil, err
	}
	if m.rateRemaining, err = NewGauge(cfg.Meter, "ratelimit_remaining",
		"Outbound calls left in the current window", "{calls}"); err != nil {
		return nil, err
	}

	logger.Debug("Sync metrics initialized")
	return m, nil
}

// RecordRecord counts one processed record.
func (m *SyncMetrics) RecordRecord(ctx context.Context, entity, outcome string) {
	if m == nil {
		return
	}
	m.recordsTotal.Inc(ctx, AttrEntity.String(entity), AttrOutcome.String(outcome))
}

// RecordRun counts a finished run and its duration.
func (m *SyncMetrics) RecordRun(ctx context.Context, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.Inc(ctx, AttrStatus.String(status))
	m.runDuration.RecordDuration(ctx, d, AttrStatus.String(status))
}

// RecordCall counts one remote call attempt.
func (m *SyncMetrics) RecordCall(ctx context.Context, op, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.callsTotal.Inc(ctx, AttrOp.String(op), AttrResult.String(result))
	m.callDuration.RecordDuration(ctx, d, AttrOp.String(op))
}

// RecordLogin counts one login attempt.
func (m *SyncMetrics) RecordLogin(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.loginsTotal.Inc(ctx, AttrResult.String(result))
}

// RecordRateLimit records a limiter decision.
func (m *SyncMetrics) RecordRateLimit(ctx context.Context, allowed bool, remaining int) {
	if m == nil {
		return
	}
	if !allowed {
		m.rateLimitDenied.Inc(ctx)
	}
	m.rateRemaining.Record(ctx, int64(remaining))
}
