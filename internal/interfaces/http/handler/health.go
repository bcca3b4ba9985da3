package handler

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/printshop/backend/internal/infrastructure/logger"
	"github.com/printshop/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// RunningReporter reports whether a sync run is active
type RunningReporter interface {
	IsRunning() bool
}

// HealthHandler serves the liveness endpoint
type HealthHandler struct {
	BaseHandler
	version   string
	startTime time.Time
	timeout   time.Duration
	checks    map[string]HealthCheck
	sync      RunningReporter
}

// HealthOption configures a HealthHandler
type HealthOption func(*HealthHandler)

// WithHealthCheck registers a named dependency probe
func WithHealthCheck(name string, check HealthCheck) HealthOption {
	return func(h *HealthHandler) {
		h.checks[name] = check
	}
}

// WithSyncReporter adds the sync running flag to the health body
func WithSyncReporter(r RunningReporter) HealthOption {
	return func(h *HealthHandler) {
		h.sync = r
	}
}

// WithCheckTimeout bounds each probe
func WithCheckTimeout(d time.Duration) HealthOption {
	return func(h *HealthHandler) {
		h.timeout = d
	}
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(version string, opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{
		version:   version,
		startTime: time.Now(),
		timeout:   2 * time.Second,
		checks:    make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthResponse is the GET /health body
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	GoVersion   string            `json:"go_version"`
	Uptime      string            `json:"uptime"`
	Time        time.Time         `json:"time"`
	SyncRunning bool              `json:"sync_running"`
	Checks      map[string]string `json:"checks"`
}

// Health runs every registered probe. Any failure answers 503.
//
//	GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Time:      time.Now().UTC(),
		Checks:    make(map[string]string, len(h.checks)),
	}
	if h.sync != nil {
		resp.SyncRunning = h.sync.IsRunning()
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var failed []string
	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		err := h.checks[name](ctx)
		cancel()
		if err != nil {
			logger.GetGinLogger(c).Warn("Health check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = "error"
			failed = append(failed, name)
			continue
		}
		resp.Checks[name] = "ok"
	}

	if len(failed) > 0 {
		resp.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, dto.Response{
			Success: false,
			Data:    resp,
			Error: &dto.ErrorInfo{
				Code:      dto.ErrCodeServiceUnavailable,
				Message:   "Dependency check failed: " + failed[0],
				RequestID: getRequestID(c),
				Timestamp: time.Now(),
			},
		})
		return
	}
	h.Success(c, resp)
}
