package accounting

import (
	"context"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Repository Interfaces
// ---------------------------------------------------------------------------

// CustomerRepository persists local customers.
type CustomerRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	// FindByExternalID returns shared.ErrNotFound when no customer matches
	FindByExternalID(ctx context.Context, externalID string) (*Customer, error)
	List(ctx context.Context, filter ListFilter) ([]Customer, int64, error)
	Create(ctx context.Context, customer *Customer) error
	Update(ctx context.Context, customer *Customer) error
}

// InvoiceRepository persists local invoices with their line items.
type InvoiceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// FindByKey returns shared.ErrNotFound when no invoice matches
	FindByKey(ctx context.Context, key NaturalKey) (*Invoice, error)
	FindPending(ctx context.Context, limit int) ([]Invoice, error)
	Create(ctx context.Context, invoice *Invoice) error
	// Update saves the invoice and replaces its line items
	Update(ctx context.Context, invoice *Invoice) error
	// MarkSynced writes only the push result columns of the invoice
	MarkSynced(ctx context.Context, invoice *Invoice) error
	CountByKey(ctx context.Context, key NaturalKey) (int64, error)
}

// OrderRepository persists local orders.
type OrderRepository interface {
	FindByKey(ctx context.Context, key NaturalKey) (*Order, error)
	Create(ctx context.Context, order *Order) error
	Update(ctx context.Context, order *Order) error
}

// SyncRunRepository persists sync runs.
type SyncRunRepository interface {
	Create(ctx context.Context, run *SyncRun) error
	Update(ctx context.Context, run *SyncRun) error
	FindByID(ctx context.Context, id uuid.UUID) (*SyncRun, error)
	ListRecent(ctx context.Context, limit int) ([]SyncRun, error)
}

// SyncLogRepository appends sync log entries. Entries are never updated.
type SyncLogRepository interface {
	Append(ctx context.Context, entries ...*SyncLogEntry) error
	ListRecent(ctx context.Context, limit int) ([]SyncLogEntry, error)
	ListByRun(ctx context.Context, runID uuid.UUID) ([]SyncLogEntry, error)
}

// SyncStateRepository loads and saves the single last-sync snapshot.
type SyncStateRepository interface {
	// Get returns a zero state when none has been saved
	Get(ctx context.Context) (*SyncState, error)
	Save(ctx context.Context, state *SyncState) error
}

// ListFilter pages through local records.
type ListFilter struct {
	Page      int
	PageSize  int
	Search    string
	// SortBy and SortOrder are checked against a whitelist by the store
	SortBy    string
	SortOrder string
}

// Normalize applies defaults to the filter.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
}

// Offset returns the row offset for the filter.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}
