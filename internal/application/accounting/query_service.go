package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/printshop/backend/internal/domain/shared"
	"github.com/printshop/backend/internal/infrastructure/cache"
	"go.uber.org/zap"
)

// CustomerList is one page of local customers.
type CustomerList struct {
	Customers []accounting.Customer
	Total     int64
	Page      int
	PageSize  int
}

// QueryService serves local reads through the LocalCache. Sync passes
// invalidate the entity prefixes, so reads only go stale within a TTL when
// data changes outside the orchestrator.
type QueryService struct {
	customers accounting.CustomerRepository
	invoices  accounting.InvoiceRepository
	logs      accounting.SyncLogRepository
	cache     *cache.LocalCache[any]
	ttl       time.Duration
	logger    *zap.Logger
}

// QueryOption configures a QueryService.
type QueryOption func(*QueryService)

// WithQueryTTL overrides the cache default TTL for query results.
func WithQueryTTL(ttl time.Duration) QueryOption {
	return func(q *QueryService) {
		q.ttl = ttl
	}
}

// WithQueryLogger sets the logger.
func WithQueryLogger(logger *zap.Logger) QueryOption {
	return func(q *QueryService) {
		q.logger = logger
	}
}

// NewQueryService creates a QueryService.
func NewQueryService(repos Repositories, c *cache.LocalCache[any], opts ...QueryOption) *QueryService {
	q := &QueryService{
		customers: repos.Customers,
		invoices:  repos.Invoices,
		logs:      repos.Logs,
		cache:     c,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func customersKey(f accounting.ListFilter) string {
	return fmt.Sprintf("%slist:%d:%d:%s:%s:%s", CachePrefixCustomers, f.Page, f.PageSize, f.Search, f.SortBy, f.SortOrder)
}

func invoiceKey(id uuid.UUID) string {
	return CachePrefixInvoices + id.String()
}

func logsKey(n int) string {
	return fmt.Sprintf("%s:%d", CachePrefixLogs, n)
}

// ListCustomers returns one page of local customers.
func (q *QueryService) ListCustomers(ctx context.Context, filter accounting.ListFilter) (*CustomerList, error) {
	filter.Normalize()
	key := customersKey(filter)
	if v, ok := q.cache.Get(key); ok {
		if list, ok := v.(CustomerList); ok {
			return &list, nil
		}
	}

	customers, total, err := q.customers.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	list := CustomerList{Customers: customers, Total: total, Page: filter.Page, PageSize: filter.PageSize}
	q.cache.Set(key, list, q.ttl)
	return &list, nil
}

// GetInvoice returns a local invoice with its items. Misses are not cached.
func (q *QueryService) GetInvoice(ctx context.Context, id uuid.UUID) (*accounting.Invoice, error) {
	key := invoiceKey(id)
	if v, ok := q.cache.Get(key); ok {
		if inv, ok := v.(accounting.Invoice); ok {
			return &inv, nil
		}
	}

	inv, err := q.invoices.FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, accounting.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	q.cache.Set(key, *inv, q.ttl)
	return inv, nil
}

// RecentLogs returns the n most recent sync log entries, newest first.
func (q *QueryService) RecentLogs(ctx context.Context, n int) ([]accounting.SyncLogEntry, error) {
	if n <= 0 {
		n = 50
	}
	key := logsKey(n)
	if v, ok := q.cache.Get(key); ok {
		if entries, ok := v.([]accounting.SyncLogEntry); ok {
			return entries, nil
		}
	}

	entries, err := q.logs.ListRecent(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	q.cache.Set(key, entries, q.ttl)
	q.logger.Debug("Loaded sync logs", zap.Int("count", len(entries)))
	return entries, nil
}
