package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	syncapp "github.com/printshop/backend/internal/application/accounting"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/printshop/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// SyncRunner is the orchestrator surface the sync endpoints drive
type SyncRunner interface {
	SyncAll(ctx context.Context) (*accounting.SyncRun, error)
	SyncCustomers(ctx context.Context) (*accounting.SyncRun, error)
	SyncInvoices(ctx context.Context) (*accounting.SyncRun, error)
	SyncOrders(ctx context.Context) (*accounting.SyncRun, error)
	SyncPendingInvoices(ctx context.Context) (*accounting.SyncRun, error)
	Status(ctx context.Context) (*syncapp.SyncStatus, error)
}

var _ SyncRunner = (*syncapp.SyncService)(nil)

// SyncHandler handles the sync trigger and status endpoints
type SyncHandler struct {
	BaseHandler
	sync SyncRunner
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(sync SyncRunner) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// Trigger runs the requested passes and answers with the run summary.
// A partial or failed run is still a 200: the summary carries the outcome.
//
//	POST /sync {"type": "all|customers|invoices|orders|pending"}
func (h *SyncHandler) Trigger(c *gin.Context) {
	var req TriggerSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	run, err := h.runFor(req.Type)(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	logger.GetGinLogger(c).Info("Sync run finished",
		zap.String("run_id", run.ID.String()),
		zap.String("type", req.Type),
		zap.String("status", run.Status.String()),
		zap.Int("failed", run.TotalFailed()),
	)
	h.Success(c, toSyncRunResponse(run))
}

func (h *SyncHandler) runFor(kind string) func(context.Context) (*accounting.SyncRun, error) {
	switch kind {
	case "customers":
		return h.sync.SyncCustomers
	case "invoices":
		return h.sync.SyncInvoices
	case "orders":
		return h.sync.SyncOrders
	case "pending":
		return h.sync.SyncPendingInvoices
	default:
		return h.sync.SyncAll
	}
}

// Status returns the running flag, the last sync state and recent log entries
//
//	GET /sync
func (h *SyncHandler) Status(c *gin.Context) {
	status, err := h.sync.Status(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSyncStatusResponse(status))
}
