package accounting

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceSyncStatus tracks whether a local invoice is mirrored remotely.
type InvoiceSyncStatus string

const (
	InvoiceSyncPending InvoiceSyncStatus = "pending"
	InvoiceSyncSynced  InvoiceSyncStatus = "synced"
)

// IsValid reports whether s is a known status.
func (s InvoiceSyncStatus) IsValid() bool {
	return s == InvoiceSyncPending || s == InvoiceSyncSynced
}

var (
	// ErrInvoiceHasNoItems is returned when pushing an invoice without lines.
	ErrInvoiceHasNoItems = errors.New("accounting: invoice has no line items")
	// ErrInvoiceHasNoClient is returned when pushing an invoice without a client.
	ErrInvoiceHasNoClient = errors.New("accounting: invoice has no client id or name")
)

// InvoiceItem is one line of a local invoice.
type InvoiceItem struct {
	ID          uuid.UUID
	InvoiceID   uuid.UUID
	LineNo      int
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// LineTotal returns quantity times unit price.
func (i InvoiceItem) LineTotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

// Invoice is a local financial document. Pulled invoices arrive synced;
// invoices raised locally start pending until pushed.
type Invoice struct {
	ID         uuid.UUID
	DocNumber  string
	DocType    DocType
	ExternalID string
	CustomerID *uuid.UUID
	ClientID   string
	ClientName string
	Subtotal   decimal.Decimal
	VAT        decimal.Decimal
	Total      decimal.Decimal
	Currency   string
	IssueDate  time.Time
	Cancelled  bool
	SyncStatus InvoiceSyncStatus
	SyncError  string
	SyncedAt   *time.Time
	Items      []InvoiceItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Key returns the natural key. Pending invoices have no number yet.
func (inv *Invoice) Key() NaturalKey {
	return NaturalKey{Number: inv.DocNumber, Type: inv.DocType}
}

// NewInvoiceFromExternal creates a synced local invoice from a remote document.
func NewInvoiceFromExternal(doc *ExternalDocument) *Invoice {
	now := time.Now()
	inv := &Invoice{
		ID:         uuid.New(),
		SyncStatus: InvoiceSyncSynced,
		SyncedAt:   &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	inv.copyExternal(doc)
	return inv
}

// ApplyExternal copies the remote document onto the invoice and reports
// whether anything changed.
func (inv *Invoice) ApplyExternal(doc *ExternalDocument) bool {
	if inv.matches(doc) {
		return false
	}
	inv.copyExternal(doc)
	now := time.Now()
	inv.SyncStatus = InvoiceSyncSynced
	inv.SyncError = ""
	inv.SyncedAt = &now
	inv.UpdatedAt = now
	return true
}

func (inv *Invoice) matches(doc *ExternalDocument) bool {
	if inv.ClientID != doc.ClientID || inv.ClientName != doc.ClientName ||
		inv.Currency != doc.Currency || inv.Cancelled != doc.Cancelled ||
		!inv.Subtotal.Equal(doc.Subtotal) || !inv.VAT.Equal(doc.VAT) || !inv.Total.Equal(doc.Total) ||
		!sameDay(inv.IssueDate, doc.IssueDate) {
		return false
	}
	if len(inv.Items) != len(doc.Items) {
		return false
	}
	for i, item := range inv.Items {
		ext := doc.Items[i]
		if item.Description != ext.Description || !item.Quantity.Equal(ext.Quantity) || !item.UnitPrice.Equal(ext.UnitPrice) {
			return false
		}
	}
	return true
}

func (inv *Invoice) copyExternal(doc *ExternalDocument) {
	inv.DocNumber = doc.DocNumber
	inv.DocType = doc.DocType
	inv.ClientID = doc.ClientID
	inv.ClientName = doc.ClientName
	inv.Subtotal = doc.Subtotal
	inv.VAT = doc.VAT
	inv.Total = doc.Total
	inv.Currency = doc.Currency
	inv.IssueDate = doc.IssueDate
	inv.Cancelled = doc.Cancelled

	inv.Items = make([]InvoiceItem, 0, len(doc.Items))
	for i, ext := range doc.Items {
		inv.Items = append(inv.Items, InvoiceItem{
			ID:          uuid.New(),
			InvoiceID:   inv.ID,
			LineNo:      i + 1,
			Description: ext.Description,
			Quantity:    ext.Quantity,
			UnitPrice:   ext.UnitPrice,
		})
	}
}

// IsSynced reports whether the invoice is mirrored remotely.
func (inv *Invoice) IsSynced() bool {
	return inv.SyncStatus == InvoiceSyncSynced
}

// PushRequest builds the remote create payload for a pending invoice.
func (inv *Invoice) PushRequest() (*CreateDocumentRequest, error) {
	if len(inv.Items) == 0 {
		return nil, ErrInvoiceHasNoItems
	}
	if inv.ClientID == "" && inv.ClientName == "" {
		return nil, ErrInvoiceHasNoClient
	}

	docType := inv.DocType
	if docType == "" {
		docType = DocTypeInvoice
	}
	issueDate := inv.IssueDate
	if issueDate.IsZero() {
		issueDate = time.Now()
	}

	req := &CreateDocumentRequest{
		DocType:    docType,
		ClientID:   inv.ClientID,
		ClientName: inv.ClientName,
		Currency:   inv.Currency,
		IssueDate:  issueDate,
		Items:      make([]ExternalLineItem, 0, len(inv.Items)),
	}
	for _, item := range inv.Items {
		req.Items = append(req.Items, ExternalLineItem{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return req, nil
}

// MarkSynced records a successful push.
func (inv *Invoice) MarkSynced(created *CreatedDocument) {
	now := time.Now()
	inv.DocNumber = created.DocNumber
	if created.DocType != "" {
		inv.DocType = created.DocType
	}
	inv.ExternalID = created.DocID
	inv.SyncStatus = InvoiceSyncSynced
	inv.SyncError = ""
	inv.SyncedAt = &now
	inv.UpdatedAt = now
}

// MarkPushFailed keeps the invoice pending and records why.
func (inv *Invoice) MarkPushFailed(reason string) {
	inv.SyncStatus = InvoiceSyncPending
	inv.SyncError = reason
	inv.UpdatedAt = time.Now()
}

// sameDay compares calendar dates in UTC, the zone the decoder parses in
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
