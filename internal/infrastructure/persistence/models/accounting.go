package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/shopspring/decimal"
)

// CustomerModel is the persistence model for a mirrored remote client.
type CustomerModel struct {
	BaseModel
	ExternalID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_customers_external_id"`
	Name       string `gorm:"type:varchar(200);not null;index"`
	Email      string `gorm:"type:varchar(200)"`
	Phone      string `gorm:"type:varchar(50)"`
	VATID      string `gorm:"column:vat_id;type:varchar(50)"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the persistence model to a domain Customer.
func (m *CustomerModel) ToDomain() *accounting.Customer {
	return &accounting.Customer{
		ID:         m.ID,
		ExternalID: m.ExternalID,
		Name:       m.Name,
		Email:      m.Email,
		Phone:      m.Phone,
		VATID:      m.VATID,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// CustomerModelFromDomain creates a persistence model from a domain Customer.
func CustomerModelFromDomain(c *accounting.Customer) *CustomerModel {
	return &CustomerModel{
		BaseModel:  BaseModel{ID: c.ID, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt},
		ExternalID: c.ExternalID,
		Name:       c.Name,
		Email:      c.Email,
		Phone:      c.Phone,
		VATID:      c.VATID,
	}
}

// InvoiceModel is the persistence model for a local invoice. DocNumber is
// NULL until a pending invoice is pushed, so the natural key index only
// constrains numbered invoices.
type InvoiceModel struct {
	BaseModel
	DocNumber  *string                      `gorm:"type:varchar(64);uniqueIndex:idx_invoices_natural_key"`
	DocType    string                       `gorm:"type:varchar(20);not null;uniqueIndex:idx_invoices_natural_key"`
	ExternalID string                       `gorm:"type:varchar(64)"`
	CustomerID *uuid.UUID                   `gorm:"type:uuid;index"`
	ClientID   string                       `gorm:"type:varchar(64)"`
	ClientName string                       `gorm:"type:varchar(200)"`
	Subtotal   decimal.Decimal              `gorm:"type:decimal(18,2);not null"`
	VAT        decimal.Decimal              `gorm:"column:vat;type:decimal(18,2);not null"`
	Total      decimal.Decimal              `gorm:"type:decimal(18,2);not null"`
	Currency   string                       `gorm:"type:varchar(3);not null"`
	IssueDate  time.Time                    `gorm:"not null;index"`
	Cancelled  bool                         `gorm:"not null;default:false"`
	SyncStatus accounting.InvoiceSyncStatus `gorm:"type:varchar(20);not null;index"`
	SyncError  string                       `gorm:"type:text"`
	SyncedAt   *time.Time
	Items      []InvoiceItemModel `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// InvoiceItemModel is one persisted invoice line.
type InvoiceItemModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key"`
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNo      int             `gorm:"not null"`
	Description string          `gorm:"type:varchar(500);not null"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (InvoiceItemModel) TableName() string {
	return "invoice_items"
}

// ToDomain converts the persistence model to a domain Invoice.
func (m *InvoiceModel) ToDomain() *accounting.Invoice {
	inv := &accounting.Invoice{
		ID:         m.ID,
		DocType:    accounting.DocType(m.DocType),
		ExternalID: m.ExternalID,
		CustomerID: m.CustomerID,
		ClientID:   m.ClientID,
		ClientName: m.ClientName,
		Subtotal:   m.Subtotal,
		VAT:        m.VAT,
		Total:      m.Total,
		Currency:   m.Currency,
		IssueDate:  m.IssueDate,
		Cancelled:  m.Cancelled,
		SyncStatus: m.SyncStatus,
		SyncError:  m.SyncError,
		SyncedAt:   m.SyncedAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
		Items:      make([]accounting.InvoiceItem, 0, len(m.Items)),
	}
	if m.DocNumber != nil {
		inv.DocNumber = *m.DocNumber
	}
	for _, item := range m.Items {
		inv.Items = append(inv.Items, accounting.InvoiceItem{
			ID:          item.ID,
			InvoiceID:   item.InvoiceID,
			LineNo:      item.LineNo,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return inv
}

// InvoiceModelFromDomain creates a persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *accounting.Invoice) *InvoiceModel {
	m := &InvoiceModel{
		BaseModel:  BaseModel{ID: inv.ID, CreatedAt: inv.CreatedAt, UpdatedAt: inv.UpdatedAt},
		DocType:    string(inv.DocType),
		ExternalID: inv.ExternalID,
		CustomerID: inv.CustomerID,
		ClientID:   inv.ClientID,
		ClientName: inv.ClientName,
		Subtotal:   inv.Subtotal,
		VAT:        inv.VAT,
		Total:      inv.Total,
		Currency:   inv.Currency,
		IssueDate:  inv.IssueDate,
		Cancelled:  inv.Cancelled,
		SyncStatus: inv.SyncStatus,
		SyncError:  inv.SyncError,
		SyncedAt:   inv.SyncedAt,
		Items:      make([]InvoiceItemModel, 0, len(inv.Items)),
	}
	if inv.DocNumber != "" {
		num := inv.DocNumber
		m.DocNumber = &num
	}
	for i, item := range inv.Items {
		id := item.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		lineNo := item.LineNo
		if lineNo == 0 {
			lineNo = i + 1
		}
		m.Items = append(m.Items, InvoiceItemModel{
			ID:          id,
			InvoiceID:   inv.ID,
			LineNo:      lineNo,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return m
}

// OrderModel is the persistence model for a mirrored remote order.
type OrderModel struct {
	BaseModel
	DocNumber  string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_orders_doc_number"`
	CustomerID *uuid.UUID      `gorm:"type:uuid;index"`
	ClientID   string          `gorm:"type:varchar(64)"`
	ClientName string          `gorm:"type:varchar(200)"`
	VAT        decimal.Decimal `gorm:"column:vat;type:decimal(18,2);not null"`
	Total      decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Currency   string          `gorm:"type:varchar(3);not null"`
	OrderDate  time.Time       `gorm:"not null;index"`
	Cancelled  bool            `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order.
func (m *OrderModel) ToDomain() *accounting.Order {
	return &accounting.Order{
		ID:         m.ID,
		DocNumber:  m.DocNumber,
		CustomerID: m.CustomerID,
		ClientID:   m.ClientID,
		ClientName: m.ClientName,
		VAT:        m.VAT,
		Total:      m.Total,
		Currency:   m.Currency,
		OrderDate:  m.OrderDate,
		Cancelled:  m.Cancelled,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// OrderModelFromDomain creates a persistence model from a domain Order.
func OrderModelFromDomain(o *accounting.Order) *OrderModel {
	return &OrderModel{
		BaseModel:  BaseModel{ID: o.ID, CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt},
		DocNumber:  o.DocNumber,
		CustomerID: o.CustomerID,
		ClientID:   o.ClientID,
		ClientName: o.ClientName,
		VAT:        o.VAT,
		Total:      o.Total,
		Currency:   o.Currency,
		OrderDate:  o.OrderDate,
		Cancelled:  o.Cancelled,
	}
}
