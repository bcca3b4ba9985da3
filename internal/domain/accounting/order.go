package accounting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the local mirror of a remote order document.
type Order struct {
	ID         uuid.UUID
	DocNumber  string
	CustomerID *uuid.UUID
	ClientID   string
	ClientName string
	VAT        decimal.Decimal
	Total      decimal.Decimal
	Currency   string
	OrderDate  time.Time
	Cancelled  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Key returns the natural key of the order.
func (o *Order) Key() NaturalKey {
	return NaturalKey{Number: o.DocNumber, Type: DocTypeOrder}
}

// NewOrderFromExternal creates a local order from a remote order document.
func NewOrderFromExternal(doc *ExternalDocument) *Order {
	now := time.Now()
	o := &Order{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.copyExternal(doc)
	return o
}

// ApplyExternal copies the remote document onto the order and reports
// whether anything changed.
func (o *Order) ApplyExternal(doc *ExternalDocument) bool {
	if o.ClientID == doc.ClientID && o.ClientName == doc.ClientName &&
		o.Currency == doc.Currency && o.Cancelled == doc.Cancelled &&
		o.VAT.Equal(doc.VAT) && o.Total.Equal(doc.Total) && sameDay(o.OrderDate, doc.IssueDate) {
		return false
	}
	o.copyExternal(doc)
	o.UpdatedAt = time.Now()
	return true
}

func (o *Order) copyExternal(doc *ExternalDocument) {
	o.DocNumber = doc.DocNumber
	o.ClientID = doc.ClientID
	o.ClientName = doc.ClientName
	o.VAT = doc.VAT
	o.Total = doc.Total
	o.Currency = doc.Currency
	o.OrderDate = doc.IssueDate
	o.Cancelled = doc.Cancelled
}
