package accounting

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/printshop/backend/internal/domain/shared"
	"github.com/printshop/backend/internal/infrastructure/ratelimit"
	"github.com/stretchr/testify/mock"
)

// ============================================================================
// Mock Gateway
// ============================================================================

// MockGateway is a mock implementation of accounting.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Login(ctx context.Context, creds accounting.Credentials) (*accounting.LoginResult, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.LoginResult), args.Error(1)
}

func (m *MockGateway) ListClients(ctx context.Context, sid string, q accounting.ClientQuery) (*accounting.ClientPage, error) {
	args := m.Called(ctx, sid, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.ClientPage), args.Error(1)
}

func (m *MockGateway) ListDocuments(ctx context.Context, sid string, q accounting.DocumentQuery) (*accounting.DocumentPage, error) {
	args := m.Called(ctx, sid, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.DocumentPage), args.Error(1)
}

func (m *MockGateway) CreateDocument(ctx context.Context, sid string, req *accounting.CreateDocumentRequest) (*accounting.CreatedDocument, error) {
	args := m.Called(ctx, sid, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.CreatedDocument), args.Error(1)
}

// docTypeIs matches a DocumentQuery by doc type
func docTypeIs(t accounting.DocType) interface{} {
	return mock.MatchedBy(func(q accounting.DocumentQuery) bool { return q.DocType == t })
}

// ============================================================================
// Budget
// ============================================================================

// unlimitedBudget always allows
type unlimitedBudget struct{}

func (unlimitedBudget) TryAcquire() ratelimit.Decision {
	return ratelimit.Decision{Allowed: true, Remaining: 1}
}

// ============================================================================
// In-memory repositories
// ============================================================================

type memCustomerRepo struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]accounting.Customer
	failWrite error
}

func newMemCustomerRepo() *memCustomerRepo {
	return &memCustomerRepo{byID: make(map[uuid.UUID]accounting.Customer)}
}

func (r *memCustomerRepo) FindByID(_ context.Context, id uuid.UUID) (*accounting.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &c, nil
}

func (r *memCustomerRepo) FindByExternalID(_ context.Context, externalID string) (*accounting.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byID {
		if c.ExternalID == externalID {
			c := c
			return &c, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memCustomerRepo) List(_ context.Context, filter accounting.ListFilter) ([]accounting.Customer, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	filter.Normalize()
	all := make([]accounting.Customer, 0, len(r.byID))
	for _, c := range r.byID {
		if filter.Search == "" || strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter.Search)) {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	total := int64(len(all))
	start := filter.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *memCustomerRepo) Create(_ context.Context, c *accounting.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrite != nil {
		return r.failWrite
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.byID[c.ID] = *c
	return nil
}

func (r *memCustomerRepo) Update(_ context.Context, c *accounting.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrite != nil {
		return r.failWrite
	}
	r.byID[c.ID] = *c
	return nil
}

type memInvoiceRepo struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]accounting.Invoice
	failKey    string
	failUpdate error
	failMark   error
	findCalls  int
	markCalls  int
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{byID: make(map[uuid.UUID]accounting.Invoice)}
}

func (r *memInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*accounting.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findCalls++
	inv, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &inv, nil
}

func (r *memInvoiceRepo) FindByKey(_ context.Context, key accounting.NaturalKey) (*accounting.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.byID {
		if inv.DocNumber != "" && inv.Key() == key {
			inv := inv
			return &inv, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memInvoiceRepo) FindPending(_ context.Context, limit int) ([]accounting.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []accounting.Invoice
	for _, inv := range r.byID {
		if inv.SyncStatus == accounting.InvoiceSyncPending {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memInvoiceRepo) Create(_ context.Context, inv *accounting.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failKey != "" && inv.DocNumber == r.failKey {
		return errors.New("disk full")
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	r.byID[inv.ID] = *inv
	return nil
}

func (r *memInvoiceRepo) Update(_ context.Context, inv *accounting.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate != nil {
		return r.failUpdate
	}
	r.byID[inv.ID] = *inv
	return nil
}

func (r *memInvoiceRepo) MarkSynced(_ context.Context, inv *accounting.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markCalls++
	if r.failMark != nil {
		return r.failMark
	}
	stored, ok := r.byID[inv.ID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.DocNumber = inv.DocNumber
	stored.ExternalID = inv.ExternalID
	stored.SyncStatus = inv.SyncStatus
	stored.SyncError = inv.SyncError
	stored.SyncedAt = inv.SyncedAt
	stored.UpdatedAt = inv.UpdatedAt
	r.byID[inv.ID] = stored
	return nil
}

func (r *memInvoiceRepo) CountByKey(_ context.Context, key accounting.NaturalKey) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, inv := range r.byID {
		if inv.DocNumber != "" && inv.Key() == key {
			n++
		}
	}
	return n, nil
}

func (r *memInvoiceRepo) all() []accounting.Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]accounting.Invoice, 0, len(r.byID))
	for _, inv := range r.byID {
		out = append(out, inv)
	}
	return out
}

type memOrderRepo struct {
	mu    sync.Mutex
	byKey map[accounting.NaturalKey]accounting.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{byKey: make(map[accounting.NaturalKey]accounting.Order)}
}

func (r *memOrderRepo) FindByKey(_ context.Context, key accounting.NaturalKey) (*accounting.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byKey[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &o, nil
}

func (r *memOrderRepo) Create(_ context.Context, o *accounting.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	r.byKey[o.Key()] = *o
	return nil
}

func (r *memOrderRepo) Update(_ context.Context, o *accounting.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[o.Key()] = *o
	return nil
}

type memRunRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]accounting.SyncRun
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: make(map[uuid.UUID]accounting.SyncRun)}
}

func (r *memRunRepo) Create(_ context.Context, run *accounting.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	return nil
}

func (r *memRunRepo) Update(_ context.Context, run *accounting.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	return nil
}

func (r *memRunRepo) FindByID(_ context.Context, id uuid.UUID) (*accounting.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &run, nil
}

func (r *memRunRepo) ListRecent(_ context.Context, limit int) ([]accounting.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]accounting.SyncRun, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memLogRepo struct {
	mu      sync.Mutex
	entries []accounting.SyncLogEntry
	fail    error
}

func (r *memLogRepo) Append(_ context.Context, entries ...*accounting.SyncLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	for _, e := range entries {
		r.entries = append(r.entries, *e)
	}
	return nil
}

func (r *memLogRepo) ListRecent(_ context.Context, limit int) ([]accounting.SyncLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]accounting.SyncLogEntry, 0, limit)
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

func (r *memLogRepo) ListByRun(_ context.Context, runID uuid.UUID) ([]accounting.SyncLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []accounting.SyncLogEntry
	for _, e := range r.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memLogRepo) byOutcome(entity accounting.EntityType, outcome accounting.Outcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.EntityType == entity && e.Outcome == outcome {
			n++
		}
	}
	return n
}

type memStateRepo struct {
	mu    sync.Mutex
	state accounting.SyncState
}

func (r *memStateRepo) Get(context.Context) (*accounting.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state
	return &s, nil
}

func (r *memStateRepo) Save(_ context.Context, s *accounting.SyncState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = *s
	return nil
}
