package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/printshop/backend/internal/domain/accounting"
)

// ErrInvalidConfig is returned for a scheduler configuration that cannot run
var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

// Syncer runs a full reconciliation.
type Syncer interface {
	SyncAll(ctx context.Context) (*accounting.SyncRun, error)
}

// PendingPusher pushes locally raised invoices.
type PendingPusher interface {
	SyncPendingInvoices(ctx context.Context) (*accounting.SyncRun, error)
}

// ---------------------------------------------------------------------------
// AutoSyncConfig
// ---------------------------------------------------------------------------

// AutoSyncConfig holds configuration for the auto sync scheduler
type AutoSyncConfig struct {
	// Interval between runs. Zero disables the scheduler.
	Interval time.Duration
	// RunOnStart triggers a run immediately instead of after one interval
	RunOnStart bool
	// PushPending pushes pending invoices after each pull
	PushPending bool
}

// Enabled reports whether the scheduler should run at all
func (c AutoSyncConfig) Enabled() bool {
	return c.Interval > 0
}

// Validate validates the configuration
func (c AutoSyncConfig) Validate() error {
	if c.Interval < 0 {
		return fmt.Errorf("%w: negative interval %s", ErrInvalidConfig, c.Interval)
	}
	return nil
}

// ---------------------------------------------------------------------------
// AutoSyncScheduler
// ---------------------------------------------------------------------------

// AutoSyncStats is a snapshot of the scheduler
type AutoSyncStats struct {
	Running   bool       `json:"running"`
	Interval  string     `json:"interval"`
	Ticks     int        `json:"ticks"`
	Skipped   int        `json:"skipped"`
	LastTick  *time.Time `json:"last_tick,omitempty"`
	LastRunID string     `json:"last_run_id,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// AutoSyncScheduler runs SyncAll on a fixed interval. A tick that finds a
// run already active is skipped, never queued.
type AutoSyncScheduler struct {
	config AutoSyncConfig
	syncer Syncer
	pusher PendingPusher
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	stats     AutoSyncStats
}

// NewAutoSyncScheduler creates a scheduler. pusher may be nil.
func NewAutoSyncScheduler(config AutoSyncConfig, syncer Syncer, pusher PendingPusher, logger *zap.Logger) (*AutoSyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoSyncScheduler{
		config: config,
		syncer: syncer,
		pusher: pusher,
		logger: logger.Named("auto_sync"),
		stats:  AutoSyncStats{Interval: config.Interval.String()},
	}, nil
}

// Start starts the tick loop. It is a no-op when disabled or already started.
func (s *AutoSyncScheduler) Start(ctx context.Context) error {
	if !s.config.Enabled() {
		s.logger.Info("Auto sync disabled")
		return nil
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stats.Running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Auto sync started",
		zap.Duration("interval", s.config.Interval),
		zap.Bool("run_on_start", s.config.RunOnStart),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight tick to return, or for
// ctx to expire.
func (s *AutoSyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.stats.Running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Auto sync stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the scheduler counters
func (s *AutoSyncScheduler) Stats() AutoSyncStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *AutoSyncScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	if s.config.RunOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one sync. The run itself ignores cancellation, so Stop waits
// for it to finish.
func (s *AutoSyncScheduler) tick(ctx context.Context) {
	now := time.Now()
	run, err := s.syncer.SyncAll(ctx)

	s.mu.Lock()
	s.stats.Ticks++
	s.stats.LastTick = &now
	s.stats.LastError = ""
	if run != nil {
		s.stats.LastRunID = run.ID.String()
	}
	switch {
	case errors.Is(err, accounting.ErrSyncInProgress):
		s.stats.Skipped++
	case err != nil:
		s.stats.LastError = err.Error()
	}
	s.mu.Unlock()

	switch {
	case errors.Is(err, accounting.ErrSyncInProgress):
		s.logger.Info("Auto sync skipped, run already in progress")
		return
	case err != nil:
		s.logger.Warn("Auto sync finished with errors", zap.Error(err))
	case run != nil:
		s.logger.Debug("Auto sync finished",
			zap.String("run_id", run.ID.String()),
			zap.String("status", run.Status.String()),
		)
	}

	if s.pusher == nil || !s.config.PushPending {
		return
	}
	if _, err := s.pusher.SyncPendingInvoices(ctx); err != nil && !errors.Is(err, accounting.ErrSyncInProgress) {
		s.logger.Warn("Pending invoice push finished with errors", zap.Error(err))
	}
}
