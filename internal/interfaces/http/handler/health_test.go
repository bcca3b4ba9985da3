package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/printshop/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHealthRouter(h *HealthHandler) http.Handler {
	r := newTestRouter()
	r.GET("/health", h.Health)
	return r
}

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		h := NewHealthHandler("1.2.3",
			WithHealthCheck("database", func(context.Context) error { return nil }),
			WithSyncReporter(stubRunning(true)),
		)

		w := performRequest(newHealthRouter(h), http.MethodGet, "/health", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		var body HealthResponse
		resp := decodeResponse(t, w, &body)
		assert.True(t, resp.Success)
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "1.2.3", body.Version)
		assert.True(t, body.SyncRunning)
		assert.Equal(t, map[string]string{"database": "ok"}, body.Checks)
	})

	t.Run("failing dependency", func(t *testing.T) {
		h := NewHealthHandler("1.2.3",
			WithHealthCheck("database", func(context.Context) error { return errors.New("connection refused") }),
			WithHealthCheck("redis", func(context.Context) error { return nil }),
		)

		w := performRequest(newHealthRouter(h), http.MethodGet, "/health", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var body HealthResponse
		resp := decodeResponse(t, w, &body)
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeServiceUnavailable, resp.Error.Code)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "error", body.Checks["database"])
		assert.Equal(t, "ok", body.Checks["redis"])
	})

	t.Run("probe is bounded by timeout", func(t *testing.T) {
		h := NewHealthHandler("dev",
			WithCheckTimeout(20*time.Millisecond),
			WithHealthCheck("slow", func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			}),
		)

		w := performRequest(newHealthRouter(h), http.MethodGet, "/health", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
