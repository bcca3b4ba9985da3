package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	syncapp "github.com/printshop/backend/internal/application/accounting"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/printshop/backend/internal/interfaces/http/dto"
)

// CustomerLister pages through local customers
type CustomerLister interface {
	ListCustomers(ctx context.Context, filter accounting.ListFilter) (*syncapp.CustomerList, error)
}

var _ CustomerLister = (*syncapp.QueryService)(nil)

// CustomerHandler handles customer endpoints
type CustomerHandler struct {
	BaseHandler
	customers CustomerLister
}

// NewCustomerHandler creates a new CustomerHandler
func NewCustomerHandler(customers CustomerLister) *CustomerHandler {
	return &CustomerHandler{customers: customers}
}

// List returns one page of mirrored customers
//
//	GET /customers?page=1&page_size=20&search=acme&sort_by=created_at&sort_order=desc
func (h *CustomerHandler) List(c *gin.Context) {
	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}

	list, err := h.customers.ListCustomers(c.Request.Context(), accounting.ListFilter{
		Page:      req.Page,
		PageSize:  req.PageSize,
		Search:    req.Search,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toCustomerResponses(list.Customers), list.Total, list.Page, list.PageSize)
}
