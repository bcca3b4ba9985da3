package accounting

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocType is the remote document type code.
type DocType string

const (
	DocTypeInvoice DocType = "invoice"
	DocTypeInvRec  DocType = "invrec"
	DocTypeReceipt DocType = "receipt"
	DocTypeRefund  DocType = "refund"
	DocTypeOrder   DocType = "order"

	// DocTypeClient keys remote client records. It is never sent to the
	// document endpoints.
	DocTypeClient DocType = "client"
)

// IsValid reports whether t is a known document type.
func (t DocType) IsValid() bool {
	switch t {
	case DocTypeInvoice, DocTypeInvRec, DocTypeReceipt, DocTypeRefund, DocTypeOrder, DocTypeClient:
		return true
	}
	return false
}

func (t DocType) String() string {
	return string(t)
}

// NaturalKey joins a remote record to its local mirror. It is the
// idempotency key of reconciliation.
type NaturalKey struct {
	Number string
	Type   DocType
}

func (k NaturalKey) String() string {
	return string(k.Type) + ":" + k.Number
}

// ExternalLineItem is one line of a remote document.
type ExternalLineItem struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// ExternalDocument is the decoded remote representation of an invoice,
// receipt, refund or order.
type ExternalDocument struct {
	DocNumber  string          `validate:"required"`
	DocType    DocType         `validate:"required"`
	ClientID   string
	ClientName string
	Subtotal   decimal.Decimal
	VAT        decimal.Decimal
	Total      decimal.Decimal
	Currency   string    `validate:"required,len=3"`
	IssueDate  time.Time `validate:"required"`
	Cancelled  bool
	Items      []ExternalLineItem
}

// Key returns the natural key of the document.
func (d *ExternalDocument) Key() NaturalKey {
	return NaturalKey{Number: d.DocNumber, Type: d.DocType}
}

// ExternalClient is the decoded remote representation of a customer.
type ExternalClient struct {
	ClientID string `validate:"required"`
	Name     string `validate:"required"`
	Email    string `validate:"omitempty,email"`
	Phone    string
	VATID    string
}

// Key returns the natural key of the client.
func (c *ExternalClient) Key() NaturalKey {
	return NaturalKey{Number: c.ClientID, Type: DocTypeClient}
}
