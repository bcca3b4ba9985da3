package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/printshop/backend/internal/infrastructure/cache"
	"github.com/printshop/backend/internal/infrastructure/logger"
	"github.com/printshop/backend/internal/infrastructure/ratelimit"
	"go.uber.org/zap"
)

// RequestBudget exposes the outbound rate limiter
type RequestBudget interface {
	Stats() ratelimit.Stats
	Reset()
}

// CacheAdmin exposes the local cache for inspection and invalidation
type CacheAdmin interface {
	Stats() cache.Stats
	Clear() int
	Invalidate(pattern string) int
}

var (
	_ RequestBudget = (*ratelimit.Limiter)(nil)
	_ CacheAdmin    = (*cache.LocalCache[any])(nil)
)

// AdminHandler handles the rate limit and cache maintenance endpoints
type AdminHandler struct {
	BaseHandler
	budget RequestBudget
	cache  CacheAdmin
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(budget RequestBudget, cache CacheAdmin) *AdminHandler {
	return &AdminHandler{budget: budget, cache: cache}
}

// RateLimitStats reports the outbound request budget
//
//	GET /rate-limit
func (h *AdminHandler) RateLimitStats(c *gin.Context) {
	h.Success(c, toRateLimitResponse(h.budget.Stats()))
}

// RateLimitAction applies an action to the limiter. Only "reset" is known.
//
//	POST /rate-limit {"action": "reset"}
func (h *AdminHandler) RateLimitAction(c *gin.Context) {
	var req RateLimitActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	h.budget.Reset()
	logger.GetGinLogger(c).Info("Outbound rate limiter reset")
	h.Success(c, toRateLimitResponse(h.budget.Stats()))
}

// CacheStats reports cache occupancy and counters
//
//	GET /cache/stats
func (h *AdminHandler) CacheStats(c *gin.Context) {
	h.Success(c, toCacheStatsResponse(h.cache.Stats()))
}

// ClearCache drops every cached entry
//
//	DELETE /cache
func (h *AdminHandler) ClearCache(c *gin.Context) {
	removed := h.cache.Clear()
	logger.GetGinLogger(c).Info("Cache cleared", zap.Int("removed", removed))
	h.Success(c, CacheClearResponse{Removed: removed})
}

// InvalidateCache drops entries whose key contains the pattern
//
//	DELETE /cache/:pattern
func (h *AdminHandler) InvalidateCache(c *gin.Context) {
	pattern := c.Param("pattern")
	if pattern == "" {
		h.BadRequest(c, "pattern is required")
		return
	}
	removed := h.cache.Invalidate(pattern)
	logger.GetGinLogger(c).Info("Cache invalidated", zap.String("pattern", pattern), zap.Int("removed", removed))
	h.Success(c, CacheClearResponse{Removed: removed, Pattern: pattern})
}
