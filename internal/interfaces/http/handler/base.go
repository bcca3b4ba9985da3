package handler

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/printshop/backend/internal/domain/shared"
	"github.com/printshop/backend/internal/infrastructure/logger"
	"github.com/printshop/backend/internal/interfaces/http/dto"
	"github.com/printshop/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	return middleware.GetRequestID(c)
}

// parseIDParam reads a UUID path parameter
func parseIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: must be a UUID", name)
	}
	return id, nil
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	resp := dto.NewErrorResponseWithRequestID(code, message, getRequestID(c))
	middleware.SetErrorCode(c, resp.Error.Code)
	c.JSON(statusCode, resp)
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// BindError answers a failed ShouldBind* call
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	if middleware.IsBodyTooLarge(err) {
		middleware.AbortBodyTooLarge(c)
		return
	}
	middleware.HandleValidationError(c, err)
}

// HandleError maps the accounting error taxonomy and domain errors to HTTP
// responses. Anything unrecognised is logged and answered with a 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var (
		domainErr  *shared.DomainError
		rateErr    *accounting.RateLimitError
		authErr    *accounting.AuthError
		netErr     *accounting.NetworkError
		rejection  *accounting.RemoteRejection
		persistErr *accounting.LocalPersistenceError
	)

	switch {
	case errors.As(err, &domainErr):
		h.ErrorWithCode(c, dto.NormalizeErrorCode(domainErr.Code), domainErr.Message)
	case errors.As(err, &rateErr):
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rateErr.WaitTime.Seconds()))))
		h.ErrorWithCode(c, dto.ErrCodeUpstreamRateLimited, rateErr.Error())
	case errors.As(err, &authErr):
		h.ErrorWithCode(c, dto.ErrCodeUpstreamAuth, authErr.Error())
	case errors.As(err, &netErr):
		h.ErrorWithCode(c, dto.ErrCodeUpstreamUnavailable, netErr.Error())
	case errors.As(err, &rejection):
		h.ErrorWithCode(c, dto.ErrCodeUpstreamRejected, rejection.Error())
	case errors.As(err, &persistErr):
		logger.GetGinLogger(c).Error("Local persistence failed", zap.Error(err))
		h.ErrorWithCode(c, dto.ErrCodeLocalPersistence, "Local store write failed")
	default:
		logger.GetGinLogger(c).Error("Unhandled handler error", zap.Error(err))
		h.InternalError(c, "An unexpected error occurred")
	}
}
