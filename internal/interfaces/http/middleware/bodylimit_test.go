package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/printshop/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
)

// newBodyLimitRouter echoes the trigger body back, answering 413 when the
// streamed body overruns the cap.
func newBodyLimitRouter(limit int64) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), BodyLimit(limit))
	router.POST("/sync", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if IsBodyTooLarge(err) {
			AbortBodyTooLarge(c)
			return
		}
		c.String(http.StatusOK, string(body))
	})
	router.GET("/sync", func(c *gin.Context) {
		c.String(http.StatusOK, "status")
	})
	return router
}

func TestBodyLimit(t *testing.T) {
	tests := []struct {
		name          string
		method        string
		body          string
		contentLength int64
		wantStatus    int
	}{
		{"trigger within limit", http.MethodPost, `{"type":"all"}`, 14, http.StatusOK},
		{"declared length over limit", http.MethodPost, strings.Repeat("x", 200), 200, http.StatusRequestEntityTooLarge},
		{"streamed body over limit", http.MethodPost, strings.Repeat("x", 200), -1, http.StatusRequestEntityTooLarge},
		{"bodiless status read", http.MethodGet, "", 0, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, "/sync", body)
			req.ContentLength = tt.contentLength
			w := httptest.NewRecorder()
			newBodyLimitRouter(64).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusRequestEntityTooLarge {
				assert.Contains(t, w.Body.String(), dto.ErrCodeRequestTooLarge)
			}
		})
	}
}

func TestIsBodyTooLarge(t *testing.T) {
	assert.True(t, IsBodyTooLarge(&http.MaxBytesError{Limit: 10}))
	assert.False(t, IsBodyTooLarge(io.ErrUnexpectedEOF))
	assert.False(t, IsBodyTooLarge(nil))
}
