package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	syncapp "github.com/printshop/backend/internal/application/accounting"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/printshop/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// InvoicePusher pushes one local invoice upstream
type InvoicePusher interface {
	PushInvoice(ctx context.Context, id uuid.UUID) (*syncapp.PushResult, error)
}

// InvoiceReader reads local invoices
type InvoiceReader interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (*accounting.Invoice, error)
}

var (
	_ InvoicePusher = (*syncapp.SyncService)(nil)
	_ InvoiceReader = (*syncapp.QueryService)(nil)
)

// InvoiceHandler handles invoice endpoints
type InvoiceHandler struct {
	BaseHandler
	pusher InvoicePusher
	reader InvoiceReader
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(pusher InvoicePusher, reader InvoiceReader) *InvoiceHandler {
	return &InvoiceHandler{pusher: pusher, reader: reader}
}

// Push sends a pending local invoice to the accounting service.
// A remote rejection is reported in the body with success=false.
//
//	POST /invoices/:id/push
func (h *InvoiceHandler) Push(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.pusher.PushInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if !result.Success {
		logger.GetGinLogger(c).Warn("Invoice push rejected",
			zap.String("invoice_id", id.String()),
			zap.String("message", result.Message),
		)
	}
	h.Success(c, toPushResultResponse(result))
}

// Get returns a local invoice with its line items
//
//	GET /invoices/:id
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	inv, err := h.reader.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toInvoiceResponse(inv))
}
