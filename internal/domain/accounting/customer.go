package accounting

import (
	"time"

	"github.com/google/uuid"
)

// Customer is the local mirror of a remote client.
type Customer struct {
	ID         uuid.UUID
	ExternalID string
	Name       string
	Email      string
	Phone      string
	VATID      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewCustomerFromExternal creates a local customer from a remote client.
func NewCustomerFromExternal(c *ExternalClient) *Customer {
	now := time.Now()
	return &Customer{
		ID:         uuid.New(),
		ExternalID: c.ClientID,
		Name:       c.Name,
		Email:      c.Email,
		Phone:      c.Phone,
		VATID:      c.VATID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ApplyExternal copies remote fields onto the customer and reports
// whether anything changed.
func (c *Customer) ApplyExternal(ext *ExternalClient) bool {
	if c.Name == ext.Name && c.Email == ext.Email && c.Phone == ext.Phone && c.VATID == ext.VATID {
		return false
	}
	c.Name = ext.Name
	c.Email = ext.Email
	c.Phone = ext.Phone
	c.VATID = ext.VATID
	c.UpdatedAt = time.Now()
	return true
}
