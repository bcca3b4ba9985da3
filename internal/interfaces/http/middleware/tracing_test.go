package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/printshop/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer sets up a test tracer provider and returns the span recorder.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
	})

	return sr
}

func newTracedRouter(cfg TracingConfig) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), TracingWithConfig(cfg), SpanAttributes(), SpanErrorMarker())
	router.GET("/invoices/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	router.POST("/sync", func(c *gin.Context) {
		status, _ := strconv.Atoi(c.GetHeader("X-Want-Status"))
		if code := c.GetHeader("X-Want-Code"); code != "" {
			SetErrorCode(c, code)
		}
		c.Status(status)
	})
	return router
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	sr := setupTestTracer(t)

	w := httptest.NewRecorder()
	newTracedRouter(TracingConfig{Enabled: false}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/invoices/42", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}

func TestTracingWithConfig_Enabled(t *testing.T) {
	sr := setupTestTracer(t)

	req := httptest.NewRequest(http.MethodGet, "/invoices/42", nil)
	req.Header.Set(RequestIDHeader, "req-trace-1")
	w := httptest.NewRecorder()
	newTracedRouter(TracingConfig{ServiceName: "printshop-sync", Enabled: true}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /invoices/:id", spans[0].Name())

	v, ok := spanAttr(spans[0], "request_id")
	require.True(t, ok)
	assert.Equal(t, "req-trace-1", v.AsString())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestSpanErrorMarker(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		code        string
		expectError bool
		description string
	}{
		{"ok", http.StatusOK, "", false, ""},
		{"bad request", http.StatusBadRequest, "", true, "Bad Request"},
		{"not found", http.StatusNotFound, "", true, "Not Found"},
		{"conflict with code", http.StatusConflict, dto.ErrCodeSyncInProgress, true, dto.ErrCodeSyncInProgress},
		{"too many requests with code", http.StatusTooManyRequests, dto.ErrCodeRateLimited, true, dto.ErrCodeRateLimited},
		{"bad gateway", http.StatusBadGateway, "", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := setupTestTracer(t)

			req := httptest.NewRequest(http.MethodPost, "/sync", nil)
			req.Header.Set("X-Want-Status", strconv.Itoa(tt.status))
			if tt.code != "" {
				req.Header.Set("X-Want-Code", tt.code)
			}
			w := httptest.NewRecorder()
			newTracedRouter(TracingConfig{ServiceName: "printshop-sync", Enabled: true}).ServeHTTP(w, req)

			spans := sr.Ended()
			require.Len(t, spans, 1)
			if !tt.expectError {
				assert.NotEqual(t, codes.Error, spans[0].Status().Code)
				return
			}

			assert.Equal(t, codes.Error, spans[0].Status().Code)
			if tt.status < http.StatusInternalServerError {
				// otelgin sets its own status on 5xx after the marker runs
				assert.Equal(t, tt.description, spans[0].Status().Description)
			}
			v, ok := spanAttr(spans[0], "http.status_code")
			require.True(t, ok)
			assert.Equal(t, int64(tt.status), v.AsInt64())

			code, ok := spanAttr(spans[0], "error.code")
			if tt.code == "" {
				assert.False(t, ok)
			} else {
				require.True(t, ok)
				assert.Equal(t, tt.code, code.AsString())
			}
		})
	}
}

func TestSpanErrorMarker_WithNoSpan(t *testing.T) {
	router := gin.New()
	router.Use(SpanErrorMarker(), SpanAttributes())
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
