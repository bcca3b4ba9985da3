package handler

import (
	"time"

	"github.com/printshop/backend/internal/domain/accounting"
)

// CustomerResponse represents a local customer in API responses
type CustomerResponse struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	VATID      string    `json:"vat_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toCustomerResponses(customers []accounting.Customer) []CustomerResponse {
	out := make([]CustomerResponse, 0, len(customers))
	for _, c := range customers {
		out = append(out, CustomerResponse{
			ID:         c.ID.String(),
			ExternalID: c.ExternalID,
			Name:       c.Name,
			Email:      c.Email,
			Phone:      c.Phone,
			VATID:      c.VATID,
			CreatedAt:  c.CreatedAt,
			UpdatedAt:  c.UpdatedAt,
		})
	}
	return out
}

// InvoiceItemResponse is one invoice line. Money is rendered as decimal strings.
type InvoiceItemResponse struct {
	LineNo      int    `json:"line_no"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

// InvoiceResponse represents a local invoice in API responses
type InvoiceResponse struct {
	ID         string                `json:"id"`
	DocType    string                `json:"doc_type"`
	DocNumber  string                `json:"doc_number,omitempty"`
	CustomerID string                `json:"customer_id,omitempty"`
	ClientID   string                `json:"client_id,omitempty"`
	ClientName string                `json:"client_name"`
	Subtotal   string                `json:"subtotal"`
	VAT        string                `json:"vat"`
	Total      string                `json:"total"`
	Currency   string                `json:"currency"`
	IssueDate  string                `json:"issue_date"`
	Cancelled  bool                  `json:"cancelled"`
	SyncStatus string                `json:"sync_status"`
	SyncError  string                `json:"sync_error,omitempty"`
	SyncedAt   *time.Time            `json:"synced_at,omitempty"`
	Items      []InvoiceItemResponse `json:"items"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

func toInvoiceResponse(inv *accounting.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:         inv.ID.String(),
		DocType:    inv.DocType.String(),
		DocNumber:  inv.DocNumber,
		ClientID:   inv.ClientID,
		ClientName: inv.ClientName,
		Subtotal:   inv.Subtotal.StringFixed(2),
		VAT:        inv.VAT.StringFixed(2),
		Total:      inv.Total.StringFixed(2),
		Currency:   inv.Currency,
		IssueDate:  inv.IssueDate.Format(time.DateOnly),
		Cancelled:  inv.Cancelled,
		SyncStatus: string(inv.SyncStatus),
		SyncError:  inv.SyncError,
		SyncedAt:   inv.SyncedAt,
		Items:      make([]InvoiceItemResponse, 0, len(inv.Items)),
		CreatedAt:  inv.CreatedAt,
		UpdatedAt:  inv.UpdatedAt,
	}
	if inv.CustomerID != nil {
		resp.CustomerID = inv.CustomerID.String()
	}
	for _, item := range inv.Items {
		resp.Items = append(resp.Items, InvoiceItemResponse{
			LineNo:      item.LineNo,
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			UnitPrice:   item.UnitPrice.StringFixed(2),
			LineTotal:   item.LineTotal().StringFixed(2),
		})
	}
	return resp
}
