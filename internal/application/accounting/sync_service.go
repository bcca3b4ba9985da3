// Package accounting orchestrates reconciliation between the local store
// and the remote accounting service.
package accounting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/printshop/backend/internal/domain/shared"
	"github.com/printshop/backend/internal/infrastructure/logger"
	"github.com/printshop/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Remote operation names, matching the gateway endpoints
const (
	opClientList = "client/get_list"
	opDocSearch  = "doc/search"
	opDocCreate  = "doc/create"
)

// Cache key prefixes owned by the read side
const (
	CachePrefixCustomers = "customers:"
	CachePrefixInvoices  = "invoices:"
	CachePrefixLogs      = "sync:logs"
)

// SyncConfig tunes the orchestrator.
type SyncConfig struct {
	PageSize        int
	InvoiceDocTypes []accounting.DocType
	// InitialLookback is the pull range when no run has succeeded yet
	InitialLookback time.Duration
	// Overlap is subtracted from the last success time to cover late edits
	Overlap        time.Duration
	RecentLogLimit int
	// PendingBatch caps how many pending invoices one run pushes
	PendingBatch int
}

func (c *SyncConfig) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if len(c.InvoiceDocTypes) == 0 {
		c.InvoiceDocTypes = []accounting.DocType{
			accounting.DocTypeInvoice, accounting.DocTypeInvRec,
			accounting.DocTypeReceipt, accounting.DocTypeRefund,
		}
	}
	if c.InitialLookback <= 0 {
		c.InitialLookback = 365 * 24 * time.Hour
	}
	if c.RecentLogLimit <= 0 {
		c.RecentLogLimit = 50
	}
	if c.PendingBatch <= 0 {
		c.PendingBatch = 100
	}
}

// Repositories groups the stores the orchestrator writes to.
type Repositories struct {
	Customers accounting.CustomerRepository
	Invoices  accounting.InvoiceRepository
	Orders    accounting.OrderRepository
	Runs      accounting.SyncRunRepository
	Logs      accounting.SyncLogRepository
	State     accounting.SyncStateRepository
}

// CacheInvalidator drops cached reads by key substring.
type CacheInvalidator interface {
	Invalidate(pattern string) int
}

// SyncService runs reconciliation passes and pushes local invoices. At most
// one run is active per instance.
type SyncService struct {
	conn     *ConnectionManager
	gateway  accounting.Gateway
	repos    Repositories
	cfg      SyncConfig
	cache    CacheInvalidator
	metrics  *telemetry.SyncMetrics
	validate *validator.Validate
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	current *RunInfo

	pushMu  sync.Mutex
	pushing map[uuid.UUID]struct{}
}

// RunInfo identifies the active run.
type RunInfo struct {
	ID        uuid.UUID               `json:"id"`
	EntitySet []accounting.EntityType `json:"entity_set"`
	StartedAt time.Time               `json:"started_at"`
}

// SyncStatus is the snapshot returned by Status.
type SyncStatus struct {
	Running    bool
	Current    *RunInfo
	State      *accounting.SyncState
	RecentLogs []accounting.SyncLogEntry
}

// PushResult is the outcome of pushing one invoice.
type PushResult struct {
	InvoiceID     uuid.UUID
	Success       bool
	AlreadySynced bool
	DocNumber     string
	Message       string
}

// SyncOption configures a SyncService.
type SyncOption func(*SyncService)

// WithSyncLogger sets the logger.
func WithSyncLogger(logger *zap.Logger) SyncOption {
	return func(s *SyncService) {
		s.logger = logger
	}
}

// WithSyncMetrics sets the metrics sink.
func WithSyncMetrics(metrics *telemetry.SyncMetrics) SyncOption {
	return func(s *SyncService) {
		s.metrics = metrics
	}
}

// WithCacheInvalidator sets the read cache to invalidate after each pass.
func WithCacheInvalidator(cache CacheInvalidator) SyncOption {
	return func(s *SyncService) {
		s.cache = cache
	}
}

// NewSyncService creates a SyncService.
func NewSyncService(conn *ConnectionManager, gateway accounting.Gateway, repos Repositories, cfg SyncConfig, opts ...SyncOption) *SyncService {
	cfg.applyDefaults()
	s := &SyncService{
		conn:     conn,
		gateway:  gateway,
		repos:    repos,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   zap.NewNop(),
		pushing:  make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ---------------------------------------------------------------------------
// Public operations
// ---------------------------------------------------------------------------

// SyncAll runs the customer, invoice and order passes in that order.
func (s *SyncService) SyncAll(ctx context.Context) (*accounting.SyncRun, error) {
	return s.run(ctx, accounting.EntityCustomers, accounting.EntityInvoices, accounting.EntityOrders)
}

// SyncCustomers pulls remote clients into local customers.
func (s *SyncService) SyncCustomers(ctx context.Context) (*accounting.SyncRun, error) {
	return s.run(ctx, accounting.EntityCustomers)
}

// SyncInvoices pulls remote invoice-like documents into local invoices.
func (s *SyncService) SyncInvoices(ctx context.Context) (*accounting.SyncRun, error) {
	return s.run(ctx, accounting.EntityInvoices)
}

// SyncOrders pulls remote orders into local orders.
func (s *SyncService) SyncOrders(ctx context.Context) (*accounting.SyncRun, error) {
	return s.run(ctx, accounting.EntityOrders)
}

// SyncPendingInvoices pushes pending local invoices as one run.
func (s *SyncService) SyncPendingInvoices(ctx context.Context) (*accounting.SyncRun, error) {
	return s.run(ctx, accounting.EntityInvoicePush)
}

// IsRunning reports whether a run is active.
func (s *SyncService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns the active run, the last sync state and recent log entries.
func (s *SyncService) Status(ctx context.Context) (*SyncStatus, error) {
	s.mu.Lock()
	status := &SyncStatus{Running: s.running, Current: s.current}
	s.mu.Unlock()

	state, err := s.repos.State.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	logs, err := s.repos.Logs.ListRecent(ctx, s.cfg.RecentLogLimit)
	if err != nil {
		return nil, fmt.Errorf("load sync logs: %w", err)
	}
	status.State = state
	status.RecentLogs = logs
	return status, nil
}

// PushInvoice creates the remote document for one pending local invoice.
// An already synced invoice is returned as is without a remote call.
func (s *SyncService) PushInvoice(ctx context.Context, id uuid.UUID) (*PushResult, error) {
	ctx = context.WithoutCancel(ctx)

	release, err := s.beginPush(id)
	if err != nil {
		return nil, err
	}
	defer release()

	inv, err := s.repos.Invoices.FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, accounting.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, &accounting.LocalPersistenceError{Op: "load invoice", Err: err}
	}
	if inv.IsSynced() {
		return &PushResult{InvoiceID: id, Success: true, AlreadySynced: true, DocNumber: inv.DocNumber, Message: "already synced"}, nil
	}

	res, outcomeErr, err := s.pushOne(ctx, inv)
	s.appendLogs(ctx, accounting.NewSyncLogEntry(uuid.Nil, accounting.EntityInvoicePush, pushKey(inv), &inv.ID, outcomeOf(outcomeErr), outcomeErr))
	s.invalidate(CachePrefixInvoices, CachePrefixLogs)
	return res, err
}

// ---------------------------------------------------------------------------
// Run lifecycle
// ---------------------------------------------------------------------------

// acquire enters the running state or fails fast.
func (s *SyncService) acquire(run *accounting.SyncRun) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, accounting.ErrSyncInProgress
	}
	s.running = true
	s.current = &RunInfo{ID: run.ID, EntitySet: run.EntitySet, StartedAt: run.StartedAt}
	return func() {
		s.mu.Lock()
		s.running = false
		s.current = nil
		s.mu.Unlock()
	}, nil
}

func (s *SyncService) run(ctx context.Context, entities ...accounting.EntityType) (run *accounting.SyncRun, err error) {
	run = accounting.NewSyncRun(entities...)
	release, err := s.acquire(run)
	if err != nil {
		return nil, err
	}
	defer release()

	// Runs are not cancellable; each remote call is bounded by its own timeout
	ctx = logger.WithRunID(context.WithoutCancel(ctx), run.ID.String())

	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = string(e)
	}
	ctx, span := telemetry.StartSpan(ctx, "sync.run",
		telemetry.AttrRunID.String(run.ID.String()),
		telemetry.AttrEntities.StringSlice(names))
	defer func() {
		span.SetAttributes(telemetry.AttrRunStatus.String(string(run.Status)))
		telemetry.EndSpan(span, runSpanError(run))
	}()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Sync run panicked",
				zap.String("run_id", run.ID.String()),
				zap.Any("panic", r))
			run.Fail(fmt.Sprintf("panic: %v", r))
			s.finish(ctx, run)
			err = fmt.Errorf("sync run %s panicked: %v", run.ID, r)
		}
	}()

	if err := s.repos.Runs.Create(ctx, run); err != nil {
		s.logger.Error("Failed to persist sync run", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
	s.logger.Info("Sync run started",
		zap.String("run_id", run.ID.String()),
		zap.Any("entities", entities))

	conn := s.conn.Connect(ctx, s.conn.MaxRetries())
	if !conn.Success {
		run.Fail(conn.Message)
		s.finish(ctx, run)
		return run, nil
	}

	state, err := s.repos.State.Get(ctx)
	if err != nil {
		s.logger.Warn("Failed to load sync state, using initial lookback", zap.Error(err))
		state = &accounting.SyncState{}
	}
	from, to := s.dateRange(state)

	for _, entity := range entities {
		p := s.newPass(run, entity)
		switch entity {
		case accounting.EntityCustomers:
			s.pullCustomers(ctx, p)
		case accounting.EntityInvoices:
			s.pullInvoices(ctx, p, from, to)
		case accounting.EntityOrders:
			s.pullOrders(ctx, p, from, to)
		case accounting.EntityInvoicePush:
			s.pushPending(ctx, p)
		}
		p.flush(ctx)
	}

	run.Complete()
	s.finish(ctx, run)
	return run, nil
}

func (s *SyncService) finish(ctx context.Context, run *accounting.SyncRun) {
	if err := s.repos.Runs.Update(ctx, run); err != nil {
		s.logger.Error("Failed to persist sync run result", zap.String("run_id", run.ID.String()), zap.Error(err))
	}

	state, err := s.repos.State.Get(ctx)
	if err != nil || state == nil {
		state = &accounting.SyncState{}
	}
	state.RecordRun(run)
	if err := s.repos.State.Save(ctx, state); err != nil {
		s.logger.Error("Failed to save sync state", zap.Error(err))
	}

	s.invalidate(CachePrefixLogs)
	s.metrics.RecordRun(ctx, run.Status.String(), run.Duration())

	fields := []zap.Field{
		zap.String("run_id", run.ID.String()),
		zap.String("status", run.Status.String()),
		zap.Duration("duration", run.Duration()),
	}
	for _, e := range run.EntitySet {
		c := run.Counter(e)
		fields = append(fields, zap.Dict(e.String(),
			zap.Int("created", c.Created),
			zap.Int("updated", c.Updated),
			zap.Int("skipped", c.Skipped),
			zap.Int("failed", c.Failed),
			zap.String("error", c.Error)))
	}
	if run.Message != "" {
		fields = append(fields, zap.String("message", run.Message))
	}
	s.logger.Info("Sync run completed", fields...)
}

// dateRange returns the document date range for pull passes.
func (s *SyncService) dateRange(state *accounting.SyncState) (time.Time, time.Time) {
	now := time.Now()
	if state != nil && state.LastSuccessAt != nil {
		return state.LastSuccessAt.Add(-s.cfg.Overlap), now
	}
	return now.Add(-s.cfg.InitialLookback), now
}

func (s *SyncService) invalidate(prefixes ...string) {
	if s.cache == nil {
		return
	}
	for _, prefix := range prefixes {
		s.cache.Invalidate(prefix)
	}
}

func (s *SyncService) appendLogs(ctx context.Context, entries ...*accounting.SyncLogEntry) {
	if len(entries) == 0 {
		return
	}
	if err := s.repos.Logs.Append(ctx, entries...); err != nil {
		s.logger.Warn("Failed to write sync log entries",
			zap.Int("count", len(entries)),
			zap.Error(err))
	}
}

// ---------------------------------------------------------------------------
// Pass bookkeeping
// ---------------------------------------------------------------------------

// pass accumulates the outcomes of one entity pass.
type pass struct {
	s       *SyncService
	run     *accounting.SyncRun
	entity  accounting.EntityType
	counter *accounting.EntityCounters
	pending []*accounting.SyncLogEntry
}

func (s *SyncService) newPass(run *accounting.SyncRun, entity accounting.EntityType) *pass {
	return &pass{s: s, run: run, entity: entity, counter: run.Counter(entity)}
}

func (p *pass) record(ctx context.Context, key string, localID *uuid.UUID, outcome accounting.Outcome, err error) {
	p.counter.Record(outcome)
	p.s.metrics.RecordRecord(ctx, p.entity.String(), string(outcome))
	p.pending = append(p.pending, accounting.NewSyncLogEntry(p.run.ID, p.entity, key, localID, outcome, err))
	if err != nil {
		p.s.logger.Warn("Record sync failed",
			zap.String("run_id", p.run.ID.String()),
			zap.String("entity", p.entity.String()),
			zap.String("key", key),
			zap.Error(err))
	}
}

func (p *pass) rejects(ctx context.Context, rejects []accounting.RecordError) {
	for _, r := range rejects {
		p.record(ctx, r.ExternalKey, nil, accounting.OutcomeFailed, r.Err)
	}
}

func (p *pass) abort(err error) {
	p.counter.Error = err.Error()
	p.s.logger.Error("Sync pass aborted",
		zap.String("run_id", p.run.ID.String()),
		zap.String("entity", p.entity.String()),
		zap.Error(err))
}

// flush writes buffered log entries. It runs after every page.
func (p *pass) flush(ctx context.Context) {
	p.s.appendLogs(ctx, p.pending...)
	p.pending = p.pending[:0]
}

// pageDone reports whether paging should stop after a page.
func pageDone(fetched, limit, offset, total int) bool {
	if fetched == 0 || fetched < limit {
		return true
	}
	return total >= 0 && offset >= total
}

// ---------------------------------------------------------------------------
// Customers
// ---------------------------------------------------------------------------

func (s *SyncService) pullCustomers(ctx context.Context, p *pass) {
	defer s.invalidate(CachePrefixCustomers)

	offset := 0
	for {
		q := accounting.ClientQuery{Offset: offset, Limit: s.cfg.PageSize}
		var page *accounting.ClientPage
		err := s.conn.Do(ctx, CallOptions{Op: opClientList, Idempotent: true}, func(ctx context.Context, sid string) error {
			var err error
			page, err = s.gateway.ListClients(ctx, sid, q)
			return err
		})
		if err != nil {
			p.abort(err)
			return
		}

		p.rejects(ctx, page.Rejects)
		for i := range page.Clients {
			ext := &page.Clients[i]
			key := ext.Key().String()
			localID, outcome, err := s.reconcileCustomer(ctx, ext)
			p.record(ctx, key, localID, outcome, err)
		}
		p.flush(ctx)

		offset += page.Fetched
		if pageDone(page.Fetched, q.Limit, offset, page.Total) {
			return
		}
	}
}

func (s *SyncService) reconcileCustomer(ctx context.Context, ext *accounting.ExternalClient) (*uuid.UUID, accounting.Outcome, error) {
	if err := s.validate.Struct(ext); err != nil {
		return nil, accounting.OutcomeFailed, fmt.Errorf("invalid client record: %w", err)
	}

	existing, err := s.repos.Customers.FindByExternalID(ctx, ext.ClientID)
	if errors.Is(err, shared.ErrNotFound) {
		c := accounting.NewCustomerFromExternal(ext)
		if err := s.repos.Customers.Create(ctx, c); err != nil {
			return nil, accounting.OutcomeFailed, &accounting.LocalPersistenceError{Op: "create customer", Err: err}
		}
		return &c.ID, accounting.OutcomeCreated, nil
	}
	if err != nil {
		return nil, accounting.OutcomeFailed, &accounting.LocalPersistenceError{Op: "find customer", Err: err}
	}

	if !existing.ApplyExternal(ext) {
		return &existing.ID, accounting.OutcomeSkipped, nil
	}
	if err := s.repos.Customers.Update(ctx, existing); err != nil {
		return &existing.ID, accounting.OutcomeFailed, &accounting.LocalPersistenceError{Op: "update customer", Err: err}
	}
	return &existing.ID, accounting.OutcomeUpdated, nil
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

type documentReconciler func(ctx context.Context, doc *accounting.ExternalDocument) (*uuid.UUID, accounting.Outcome, error)

// pullDocuments pages through one doc type. It returns false when the
// listing failed and the pass was aborted.
func (s *SyncService) pullDocuments(ctx context.Context, p *pass, docType accounting.DocType, from, to time.Time, reconcile documentReconciler) bool {
	offset := 0
	for {
		q := accounting.DocumentQuery{DocType: docType, FromDate: from, ToDate: to, Offset: offset, Limit: s.cfg.PageSize}
		var page *accounting.DocumentPage
		err := s.conn.Do(ctx, CallOptions{Op: opDocSearch, Idempotent: true}, func(ctx context.Context, sid string) error {
			var err error
			page, err = s.gateway.ListDocuments(ctx, sid, q)
			return err
		})
		if err != nil {
			p.abort(fmt.Errorf("list %s: %w", docType, err))
			return false
		}

		p.rejects(ctx, page.Rejects)
		for i := range page.Documents {
			doc := &page.Documents[i]
			localID, outcome, err := reconcile(ctx, doc)
			p.record(ctx, doc.Key().String(), localID, outcome, err)
		}
		p.flush(ctx)

		offset += page.Fetched
		if pageDone(page.Fetched, q.Limit, offset, page.Total) {
			return true
		}
	}
}

func (s *SyncService) pullInvoices(ctx context.Context, p *pass, from, to time.Time) {
	defer s.invalidate(CachePrefixInvoices)
	for _, docType := range s.cfg.InvoiceDocTypes {
		if !s.pullDocuments(ctx, p, docType, from, to, s.reconcileInvoice) {
			return
		}
	}
}

func (s *SyncService) pullOrders(ctx context.Context, p *pass, from, to time.Time) {
	s.pullDocuments(ctx, p, accounting.DocTypeOrder, from, to, s.reconcileOrder)
}

func (s *SyncService) reconcileInvoice(ctx context.Context, doc *accounting.ExternalDocument) (*uuid.UUID, accounting.Outcome, error) {
	if err := s.validate.Struct(doc); err != nil {
		return nil, accounting.OutcomeFailed, fmt.Errorf("invalid document record: %w", err)
	}
	customerID := s.customerFor(ctx, doc.ClientID)

	existing, err := s.repos.Invoices.FindByKey(ctx, doc.Key())
	if errors.Is(err, shared.ErrNotFound) {
		inv := accounting.NewInvoiceFromExternal(doc)
		inv.CustomerID = customerID
		if err := s.repos.Invoices.Create(ctx, inv); err != nil {
			return nil, accounting.OutcomeFailed, &accounting.LocalPersistenceError{Op: "create invoice", Err: err}
		}
		return &inv.ID, accounting.OutcomeCreated, nil
	}
	if err != nil {
		return nil, accounting.OutcomeFailed, &accounting.LocalPersistenceError{Op: "find invoice", Err: err}
	}

	changed := existing.ApplyExternal(doc)
	if customerID != nil && (existing.CustomerID == nil || *existing.CustomerID != *customerID) {
		existing.CustomerID = customerID
		changed = true
	}
	if !changed {
		return &existing.ID, accounting.OutcomeSkipped, nil
	}
	if err := s.repos.Invoices.Update(ctx, existing); err != nil {
		return &existing.ID, accounting.OutcomeFailed, &accounting.LocalPersistenceError{Op: "update invoice", Err: err}
	}
	return &existing.ID, accounting.OutcomeUpdated, nil
}

func (s *SyncService) reconcileOrder(ctx context.Context, doc *accounting.ExternalDocument) (*uuid.UUID, accounting.Outcome, error) {
	if err := s.validate.Struct(doc); err != nil {
		return nil, accounting.OutcomeFailed, fmt.Errorf("invalid order record: %w", err)
	}
	customerID := s.customerFor(ctx, doc.ClientID)

	existing, err := s.repos.Orders.FindByKey(ctx, doc.Key())
	if errors.Is(err, shared.ErrNotFound) {
		o := accounting.NewOrderFromExternal(doc)
		o.CustomerID = customerID
		if err := s.repos.Orders.Create(ctx, o); err != nil {
			return nil, accounting.OutcomeFailed, &accounting.LocalPersistenceError{Op: "create order", Err: err}
		}
		return &o.ID, accounting.OutcomeCreated, nil
	}
	if err != nil {
		return nil, accounting.OutcomeFailed, &accounting.LocalPersistenceError{Op: "find order", Err: err}
	}

	changed := existing.ApplyExternal(doc)
	if customerID != nil && (existing.CustomerID == nil || *existing.CustomerID != *customerID) {
		existing.CustomerID = customerID
		changed = true
	}
	if !changed {
		return &existing.ID, accounting.OutcomeSkipped, nil
	}
	if err := s.repos.Orders.Update(ctx, existing); err != nil {
		return &existing.ID, accounting.OutcomeFailed, &accounting.LocalPersistenceError{Op: "update order", Err: err}
	}
	return &existing.ID, accounting.OutcomeUpdated, nil
}

// customerFor resolves a remote client id to a local customer, or nil.
func (s *SyncService) customerFor(ctx context.Context, clientID string) *uuid.UUID {
	if clientID == "" {
		return nil
	}
	c, err := s.repos.Customers.FindByExternalID(ctx, clientID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("Customer lookup failed", zap.String("client_id", clientID), zap.Error(err))
		}
		return nil
	}
	return &c.ID
}

// ---------------------------------------------------------------------------
// Push
// ---------------------------------------------------------------------------

// beginPush marks an invoice as in flight.
func (s *SyncService) beginPush(id uuid.UUID) (func(), error) {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	if _, ok := s.pushing[id]; ok {
		return nil, accounting.ErrPushInProgress
	}
	s.pushing[id] = struct{}{}
	return func() {
		s.pushMu.Lock()
		delete(s.pushing, id)
		s.pushMu.Unlock()
	}, nil
}

func (s *SyncService) pushPending(ctx context.Context, p *pass) {
	defer s.invalidate(CachePrefixInvoices)

	pending, err := s.repos.Invoices.FindPending(ctx, s.cfg.PendingBatch)
	if err != nil {
		p.abort(&accounting.LocalPersistenceError{Op: "list pending invoices", Err: err})
		return
	}

	for i := range pending {
		inv := &pending[i]
		release, err := s.beginPush(inv.ID)
		if err != nil {
			p.record(ctx, pushKey(inv), &inv.ID, accounting.OutcomeSkipped, nil)
			continue
		}
		_, outcomeErr, err := s.pushOne(ctx, inv)
		release()
		if err != nil && outcomeErr == nil {
			outcomeErr = err
		}
		p.record(ctx, pushKey(inv), &inv.ID, outcomeOf(outcomeErr), outcomeErr)
	}
}

// pushOne creates the remote document for inv and saves the result.
// outcomeErr is the reason the push failed, err a local write failure.
func (s *SyncService) pushOne(ctx context.Context, inv *accounting.Invoice) (res *PushResult, outcomeErr, err error) {
	res = &PushResult{InvoiceID: inv.ID}

	req, err := inv.PushRequest()
	if err != nil {
		return s.pushFailed(ctx, inv, res, err)
	}

	var created *accounting.CreatedDocument
	callErr := s.conn.Do(ctx, CallOptions{Op: opDocCreate}, func(ctx context.Context, sid string) error {
		var err error
		created, err = s.gateway.CreateDocument(ctx, sid, req)
		return err
	})
	if callErr != nil {
		return s.pushFailed(ctx, inv, res, callErr)
	}

	inv.MarkSynced(created)
	res.Success = true
	res.DocNumber = created.DocNumber
	res.Message = "created"
	if err := s.recordPushed(ctx, inv); err != nil {
		// The remote document exists; only the local mirror is stale
		s.logger.Error("Invoice pushed but local update failed",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("doc_number", created.DocNumber),
			zap.Error(err))
		res.Message = "created remotely, local update failed"
		return res, nil, &accounting.LocalPersistenceError{Op: "update pushed invoice", Err: err}
	}

	s.logger.Info("Invoice pushed",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("doc_number", created.DocNumber))
	return res, nil, nil
}

// recordPushed saves a pushed invoice. When the full update fails the push
// result columns are written on their own, so the invoice leaves the
// pending set and is not created remotely a second time.
func (s *SyncService) recordPushed(ctx context.Context, inv *accounting.Invoice) error {
	err := s.repos.Invoices.Update(ctx, inv)
	if err == nil {
		return nil
	}
	s.logger.Warn("Invoice update failed, writing push result only",
		zap.String("invoice_id", inv.ID.String()),
		zap.Error(err))
	if markErr := s.repos.Invoices.MarkSynced(ctx, inv); markErr != nil {
		return errors.Join(err, markErr)
	}
	return nil
}

func (s *SyncService) pushFailed(ctx context.Context, inv *accounting.Invoice, res *PushResult, cause error) (*PushResult, error, error) {
	inv.MarkPushFailed(cause.Error())
	res.Message = cause.Error()
	if err := s.repos.Invoices.Update(ctx, inv); err != nil {
		return res, cause, &accounting.LocalPersistenceError{Op: "record push failure", Err: err}
	}
	return res, cause, nil
}

func pushKey(inv *accounting.Invoice) string {
	if inv.DocNumber != "" {
		return inv.Key().String()
	}
	return "local:" + inv.ID.String()
}

func outcomeOf(err error) accounting.Outcome {
	if err != nil {
		return accounting.OutcomeFailed
	}
	return accounting.OutcomeCreated
}

func runSpanError(run *accounting.SyncRun) error {
	if run.Status == accounting.RunStatusFailed {
		return errors.New(run.Message)
	}
	return run.Err()
}
