package accounting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// ============================================================================
// Fixture
// ============================================================================

type recordingCache struct {
	mu       sync.Mutex
	patterns []string
}

func (c *recordingCache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patterns = append(c.patterns, pattern)
	return 0
}

func (c *recordingCache) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.patterns...)
}

type syncFixture struct {
	gw        *MockGateway
	svc       *SyncService
	customers *memCustomerRepo
	invoices  *memInvoiceRepo
	orders    *memOrderRepo
	runs      *memRunRepo
	logs      *memLogRepo
	state     *memStateRepo
	cache     *recordingCache
}

func newSyncFixture(t *testing.T, cfg SyncConfig) *syncFixture {
	t.Helper()
	f := &syncFixture{
		gw:        new(MockGateway),
		customers: newMemCustomerRepo(),
		invoices:  newMemInvoiceRepo(),
		orders:    newMemOrderRepo(),
		runs:      newMemRunRepo(),
		logs:      &memLogRepo{},
		state:     &memStateRepo{},
		cache:     &recordingCache{},
	}
	f.gw.On("Login", mock.Anything, testCreds).Return(&accounting.LoginResult{SID: "sid"}, nil).Maybe()

	conn, _ := newTestManager(t, f.gw, unlimitedBudget{}, testConnectionConfig())
	repos := Repositories{
		Customers: f.customers,
		Invoices:  f.invoices,
		Orders:    f.orders,
		Runs:      f.runs,
		Logs:      f.logs,
		State:     f.state,
	}
	f.svc = NewSyncService(conn, f.gw, repos, cfg,
		WithSyncLogger(zaptest.NewLogger(t)),
		WithCacheInvalidator(f.cache))
	return f
}

func (f *syncFixture) runCount() int {
	f.runs.mu.Lock()
	defer f.runs.mu.Unlock()
	return len(f.runs.runs)
}

// emptyDocuments answers every doc type not stubbed more specifically
func (f *syncFixture) emptyDocuments() {
	f.gw.On("ListDocuments", mock.Anything, "sid", mock.Anything).Return(&accounting.DocumentPage{Total: 0}, nil).Maybe()
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var issueDate = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func extDoc(num string, typ accounting.DocType, total string) accounting.ExternalDocument {
	return accounting.ExternalDocument{
		DocNumber:  num,
		DocType:    typ,
		ClientID:   "c1",
		ClientName: "Acme Print",
		Subtotal:   dec(total).Sub(dec("17")),
		VAT:        dec("17"),
		Total:      dec(total),
		Currency:   "ILS",
		IssueDate:  issueDate,
		Items: []accounting.ExternalLineItem{
			{Description: "Flyers", Quantity: dec("1"), UnitPrice: dec(total).Sub(dec("17"))},
		},
	}
}

func docPage(docs ...accounting.ExternalDocument) *accounting.DocumentPage {
	return &accounting.DocumentPage{Documents: docs, Total: len(docs), Fetched: len(docs)}
}

func clientPage(clients ...accounting.ExternalClient) *accounting.ClientPage {
	return &accounting.ClientPage{Clients: clients, Total: len(clients), Fetched: len(clients)}
}

func pendingInvoice(withItems bool) *accounting.Invoice {
	inv := &accounting.Invoice{
		ID:         uuid.New(),
		DocType:    accounting.DocTypeInvoice,
		ClientName: "Walk-in",
		Currency:   "ILS",
		IssueDate:  issueDate,
		SyncStatus: accounting.InvoiceSyncPending,
		CreatedAt:  time.Now(),
	}
	if withItems {
		inv.Items = []accounting.InvoiceItem{
			{ID: uuid.New(), InvoiceID: inv.ID, LineNo: 1, Description: "Posters", Quantity: dec("2"), UnitPrice: dec("50")},
		}
	}
	return inv
}

// ============================================================================
// Pull passes
// ============================================================================

func TestSyncService_SyncCustomers(t *testing.T) {
	t.Run("creates new and updates changed customers", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{})
		existing := &accounting.Customer{ID: uuid.New(), ExternalID: "c3", Name: "Old Name"}
		require.NoError(t, f.customers.Create(context.Background(), existing))

		f.gw.On("ListClients", mock.Anything, "sid", mock.Anything).Return(clientPage(
			accounting.ExternalClient{ClientID: "c1", Name: "Acme"},
			accounting.ExternalClient{ClientID: "c2", Name: "Globex", Email: "ap@globex.test"},
			accounting.ExternalClient{ClientID: "c3", Name: "New Name"},
		), nil).Once()

		run, err := f.svc.SyncCustomers(context.Background())
		require.NoError(t, err)

		c := run.Counter(accounting.EntityCustomers)
		assert.Equal(t, 2, c.Created)
		assert.Equal(t, 1, c.Updated)
		assert.Equal(t, 0, c.Failed)
		assert.Equal(t, accounting.RunStatusSuccess, run.Status)

		logs, _ := f.logs.ListByRun(context.Background(), run.ID)
		assert.Len(t, logs, 3)

		updated, err := f.customers.FindByExternalID(context.Background(), "c3")
		require.NoError(t, err)
		assert.Equal(t, existing.ID, updated.ID)
		assert.Equal(t, "New Name", updated.Name)
		assert.Contains(t, f.cache.seen(), CachePrefixCustomers)
		f.gw.AssertExpectations(t)
	})

	t.Run("invalid records fail without stopping the pass", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{})
		page := clientPage(
			accounting.ExternalClient{ClientID: "c1", Name: "Acme", Email: "not-an-email"},
			accounting.ExternalClient{ClientID: "c2", Name: "Globex"},
		)
		page.Rejects = []accounting.RecordError{{ExternalKey: "client:9", Err: accounting.ErrUnrecognizedShape}}
		page.Fetched = 3
		page.Total = 3
		f.gw.On("ListClients", mock.Anything, "sid", mock.Anything).Return(page, nil).Once()

		run, err := f.svc.SyncCustomers(context.Background())
		require.NoError(t, err)

		c := run.Counter(accounting.EntityCustomers)
		assert.Equal(t, 1, c.Created)
		assert.Equal(t, 2, c.Failed)
		assert.Equal(t, accounting.RunStatusPartial, run.Status)
		assert.Error(t, run.Err())
		assert.Equal(t, 2, f.logs.byOutcome(accounting.EntityCustomers, accounting.OutcomeFailed))
	})

	t.Run("pages until the declared total is reached", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{PageSize: 2})
		first := clientPage(
			accounting.ExternalClient{ClientID: "c1", Name: "A"},
			accounting.ExternalClient{ClientID: "c2", Name: "B"},
		)
		first.Total = 3
		second := clientPage(accounting.ExternalClient{ClientID: "c3", Name: "C"})
		second.Total = 3

		f.gw.On("ListClients", mock.Anything, "sid", accounting.ClientQuery{Offset: 0, Limit: 2}).Return(first, nil).Once()
		f.gw.On("ListClients", mock.Anything, "sid", accounting.ClientQuery{Offset: 2, Limit: 2}).Return(second, nil).Once()

		run, err := f.svc.SyncCustomers(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, run.Counter(accounting.EntityCustomers).Created)
		f.gw.AssertExpectations(t)
	})
}

func TestSyncService_SyncInvoices(t *testing.T) {
	t.Run("second run over unchanged data creates nothing", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{})
		f.gw.On("ListDocuments", mock.Anything, "sid", docTypeIs(accounting.DocTypeInvoice)).Return(docPage(
			extDoc("1001", accounting.DocTypeInvoice, "117"),
			extDoc("1002", accounting.DocTypeInvoice, "234"),
		), nil)
		f.gw.On("ListDocuments", mock.Anything, "sid", docTypeIs(accounting.DocTypeReceipt)).Return(docPage(
			extDoc("1001", accounting.DocTypeReceipt, "117"),
		), nil)
		f.emptyDocuments()

		first, err := f.svc.SyncInvoices(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, first.Counter(accounting.EntityInvoices).Created)

		second, err := f.svc.SyncInvoices(context.Background())
		require.NoError(t, err)
		c := second.Counter(accounting.EntityInvoices)
		assert.Equal(t, 0, c.Created)
		assert.Equal(t, 0, c.Updated)
		assert.Equal(t, 3, c.Skipped)

		for _, key := range []accounting.NaturalKey{
			{Number: "1001", Type: accounting.DocTypeInvoice},
			{Number: "1002", Type: accounting.DocTypeInvoice},
			{Number: "1001", Type: accounting.DocTypeReceipt},
		} {
			n, err := f.invoices.CountByKey(context.Background(), key)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n, key.String())
		}
		assert.Len(t, f.invoices.all(), 3)
	})

	t.Run("changed remote totals update the mirror", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{InvoiceDocTypes: []accounting.DocType{accounting.DocTypeInvoice}})
		f.gw.On("ListDocuments", mock.Anything, "sid", docTypeIs(accounting.DocTypeInvoice)).
			Return(docPage(extDoc("1001", accounting.DocTypeInvoice, "117")), nil).Once()
		f.gw.On("ListDocuments", mock.Anything, "sid", docTypeIs(accounting.DocTypeInvoice)).
			Return(docPage(extDoc("1001", accounting.DocTypeInvoice, "200")), nil).Once()

		_, err := f.svc.SyncInvoices(context.Background())
		require.NoError(t, err)
		run, err := f.svc.SyncInvoices(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, run.Counter(accounting.EntityInvoices).Updated)

		inv, err := f.invoices.FindByKey(context.Background(), accounting.NaturalKey{Number: "1001", Type: accounting.DocTypeInvoice})
		require.NoError(t, err)
		assert.True(t, dec("200").Equal(inv.Total))
	})

	t.Run("links invoices to known customers", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{InvoiceDocTypes: []accounting.DocType{accounting.DocTypeInvoice}})
		customer := &accounting.Customer{ID: uuid.New(), ExternalID: "c1", Name: "Acme Print"}
		require.NoError(t, f.customers.Create(context.Background(), customer))
		f.gw.On("ListDocuments", mock.Anything, "sid", docTypeIs(accounting.DocTypeInvoice)).
			Return(docPage(extDoc("1001", accounting.DocTypeInvoice, "117")), nil)

		_, err := f.svc.SyncInvoices(context.Background())
		require.NoError(t, err)

		inv, err := f.invoices.FindByKey(context.Background(), accounting.NaturalKey{Number: "1001", Type: accounting.DocTypeInvoice})
		require.NoError(t, err)
		require.NotNil(t, inv.CustomerID)
		assert.Equal(t, customer.ID, *inv.CustomerID)
	})

	t.Run("local write failure fails only that record", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{InvoiceDocTypes: []accounting.DocType{accounting.DocTypeInvoice}})
		f.invoices.failKey = "1002"
		f.gw.On("ListDocuments", mock.Anything, "sid", docTypeIs(accounting.DocTypeInvoice)).Return(docPage(
			extDoc("1001", accounting.DocTypeInvoice, "117"),
			extDoc("1002", accounting.DocTypeInvoice, "117"),
			extDoc("1003", accounting.DocTypeInvoice, "117"),
		), nil)

		run, err := f.svc.SyncInvoices(context.Background())
		require.NoError(t, err)
		c := run.Counter(accounting.EntityInvoices)
		assert.Equal(t, 2, c.Created)
		assert.Equal(t, 1, c.Failed)
		assert.Equal(t, accounting.RunStatusPartial, run.Status)

		logs, _ := f.logs.ListByRun(context.Background(), run.ID)
		var failed []accounting.SyncLogEntry
		for _, l := range logs {
			if l.Outcome == accounting.OutcomeFailed {
				failed = append(failed, l)
			}
		}
		require.Len(t, failed, 1)
		assert.Equal(t, "invoice:1002", failed[0].ExternalKey)
		assert.Contains(t, failed[0].Error, "local persistence failed")
	})
}

func TestSyncService_SyncOrders_DateRange(t *testing.T) {
	lastSuccess := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	f := newSyncFixture(t, SyncConfig{Overlap: time.Hour})
	f.state.state.LastSuccessAt = &lastSuccess

	want := lastSuccess.Add(-time.Hour)
	f.gw.On("ListDocuments", mock.Anything, "sid", mock.MatchedBy(func(q accounting.DocumentQuery) bool {
		return q.DocType == accounting.DocTypeOrder && q.FromDate.Equal(want)
	})).Return(docPage(extDoc("77", accounting.DocTypeOrder, "50")), nil).Once()

	run, err := f.svc.SyncOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Counter(accounting.EntityOrders).Created)
	f.gw.AssertExpectations(t)

	o, err := f.orders.FindByKey(context.Background(), accounting.NaturalKey{Number: "77", Type: accounting.DocTypeOrder})
	require.NoError(t, err)
	assert.True(t, dec("50").Equal(o.Total))
}

// ============================================================================
// Run lifecycle
// ============================================================================

func TestSyncService_RunStatus(t *testing.T) {
	t.Run("one aborted pass makes the run partial", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{InvoiceDocTypes: []accounting.DocType{accounting.DocTypeInvoice}})
		f.gw.On("ListClients", mock.Anything, "sid", mock.Anything).
			Return(clientPage(accounting.ExternalClient{ClientID: "c1", Name: "Acme"}), nil)
		f.gw.On("ListDocuments", mock.Anything, "sid", docTypeIs(accounting.DocTypeInvoice)).
			Return(nil, &accounting.RemoteRejection{Op: opDocSearch, Reason: "bad doctype"})
		f.gw.On("ListDocuments", mock.Anything, "sid", docTypeIs(accounting.DocTypeOrder)).
			Return(docPage(extDoc("77", accounting.DocTypeOrder, "50")), nil)

		run, err := f.svc.SyncAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, accounting.RunStatusPartial, run.Status)
		assert.True(t, run.Counter(accounting.EntityInvoices).Aborted())
		assert.Contains(t, run.Counter(accounting.EntityInvoices).Error, "bad doctype")
		assert.Equal(t, 1, run.Counter(accounting.EntityCustomers).Created)
		assert.Equal(t, 1, run.Counter(accounting.EntityOrders).Created)

		state, _ := f.state.Get(context.Background())
		assert.Equal(t, accounting.RunStatusPartial, state.LastStatus)
		assert.Nil(t, state.LastSuccessAt)
	})

	t.Run("every pass aborted fails the run", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{})
		rejection := &accounting.RemoteRejection{Op: "x", Reason: "denied"}
		f.gw.On("ListClients", mock.Anything, "sid", mock.Anything).Return(nil, rejection)
		f.gw.On("ListDocuments", mock.Anything, "sid", mock.Anything).Return(nil, rejection)

		run, err := f.svc.SyncAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, accounting.RunStatusFailed, run.Status)
	})

	t.Run("connect failure fails the run before any pass", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{})
		f.gw.ExpectedCalls = nil
		f.gw.On("Login", mock.Anything, testCreds).Return(nil, &accounting.AuthError{Reason: "bad_login"})

		run, err := f.svc.SyncAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, accounting.RunStatusFailed, run.Status)
		assert.Contains(t, run.Message, "bad_login")
		f.gw.AssertNotCalled(t, "ListClients", mock.Anything, mock.Anything, mock.Anything)

		persisted, err := f.runs.FindByID(context.Background(), run.ID)
		require.NoError(t, err)
		assert.Equal(t, accounting.RunStatusFailed, persisted.Status)
		assert.NotNil(t, persisted.FinishedAt)
	})

	t.Run("success advances the last success time", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{})
		f.gw.On("ListClients", mock.Anything, "sid", mock.Anything).Return(clientPage(), nil)

		run, err := f.svc.SyncCustomers(context.Background())
		require.NoError(t, err)
		assert.Equal(t, accounting.RunStatusSuccess, run.Status)

		state, _ := f.state.Get(context.Background())
		require.NotNil(t, state.LastSuccessAt)
		assert.Equal(t, run.StartedAt, *state.LastSuccessAt)
		require.NotNil(t, state.LastRunID)
		assert.Equal(t, run.ID, *state.LastRunID)
	})
}

func TestSyncService_RejectsConcurrentRun(t *testing.T) {
	f := newSyncFixture(t, SyncConfig{})
	started := make(chan struct{})
	release := make(chan struct{})
	f.gw.On("ListClients", mock.Anything, "sid", mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(clientPage(), nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.SyncCustomers(context.Background())
		done <- err
	}()

	<-started
	assert.True(t, f.svc.IsRunning())

	run, err := f.svc.SyncAll(context.Background())
	assert.ErrorIs(t, err, accounting.ErrSyncInProgress)
	assert.Nil(t, run)
	assert.Equal(t, 1, f.runCount(), "rejected request must not create a run")

	status, err := f.svc.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Running)
	require.NotNil(t, status.Current)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, f.svc.IsRunning())
}

func TestSyncService_ReleasesGuardAfterPanic(t *testing.T) {
	f := newSyncFixture(t, SyncConfig{})
	f.gw.On("ListClients", mock.Anything, "sid", mock.Anything).Panic("decoder exploded").Once()
	f.gw.On("ListClients", mock.Anything, "sid", mock.Anything).Return(clientPage(), nil).Once()

	run, err := f.svc.SyncCustomers(context.Background())
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, accounting.RunStatusFailed, run.Status)
	assert.False(t, f.svc.IsRunning())

	run, err = f.svc.SyncCustomers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, accounting.RunStatusSuccess, run.Status)
}

func TestSyncService_Status(t *testing.T) {
	f := newSyncFixture(t, SyncConfig{RecentLogLimit: 2})
	f.gw.On("ListClients", mock.Anything, "sid", mock.Anything).Return(clientPage(
		accounting.ExternalClient{ClientID: "c1", Name: "A"},
		accounting.ExternalClient{ClientID: "c2", Name: "B"},
		accounting.ExternalClient{ClientID: "c3", Name: "C"},
	), nil)

	run, err := f.svc.SyncCustomers(context.Background())
	require.NoError(t, err)

	status, err := f.svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Nil(t, status.Current)
	require.NotNil(t, status.State.LastRunID)
	assert.Equal(t, run.ID, *status.State.LastRunID)
	assert.Len(t, status.RecentLogs, 2)
}

func TestSyncService_LogWriteFailureIsNotFatal(t *testing.T) {
	f := newSyncFixture(t, SyncConfig{})
	f.logs.fail = assert.AnError
	f.gw.On("ListClients", mock.Anything, "sid", mock.Anything).
		Return(clientPage(accounting.ExternalClient{ClientID: "c1", Name: "A"}), nil)

	run, err := f.svc.SyncCustomers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, accounting.RunStatusSuccess, run.Status)
	assert.Equal(t, 1, run.Counter(accounting.EntityCustomers).Created)
}

// ============================================================================
// Push
// ============================================================================

func TestSyncService_PushInvoice(t *testing.T) {
	created := &accounting.CreatedDocument{DocNumber: "5001", DocType: accounting.DocTypeInvoice, DocID: "d-1"}

	t.Run("pushes a pending invoice", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{})
		inv := pendingInvoice(true)
		require.NoError(t, f.invoices.Create(context.Background(), inv))
		f.gw.On("CreateDocument", mock.Anything, "sid", mock.AnythingOfType("*accounting.CreateDocumentRequest")).
			Return(created, nil).Once()

		res, err := f.svc.PushInvoice(context.Background(), inv.ID)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "5001", res.DocNumber)

		stored, _ := f.invoices.FindByID(context.Background(), inv.ID)
		assert.Equal(t, accounting.InvoiceSyncSynced, stored.SyncStatus)
		assert.Equal(t, "5001", stored.DocNumber)
		assert.Equal(t, "d-1", stored.ExternalID)
		assert.Equal(t, 1, f.logs.byOutcome(accounting.EntityInvoicePush, accounting.OutcomeCreated))
		assert.Contains(t, f.cache.seen(), CachePrefixInvoices)
	})

	t.Run("already synced invoice makes no remote call", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{})
		inv := pendingInvoice(true)
		inv.MarkSynced(created)
		require.NoError(t, f.invoices.Create(context.Background(), inv))

		res, err := f.svc.PushInvoice(context.Background(), inv.ID)
		require.NoError(t, err)
		assert.True(t, res.AlreadySynced)
		assert.Equal(t, "5001", res.DocNumber)
		f.gw.AssertNotCalled(t, "CreateDocument", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("remote failure is attempted once and keeps the invoice pending", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{})
		inv := pendingInvoice(true)
		require.NoError(t, f.invoices.Create(context.Background(), inv))
		f.gw.On("CreateDocument", mock.Anything, "sid", mock.Anything).
			Return(nil, &accounting.NetworkError{Op: opDocCreate, Err: context.DeadlineExceeded}).Once()

		res, err := f.svc.PushInvoice(context.Background(), inv.ID)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Message, "network error")
		f.gw.AssertNumberOfCalls(t, "CreateDocument", 1)

		stored, _ := f.invoices.FindByID(context.Background(), inv.ID)
		assert.Equal(t, accounting.InvoiceSyncPending, stored.SyncStatus)
		assert.NotEmpty(t, stored.SyncError)
		assert.Equal(t, 1, f.logs.byOutcome(accounting.EntityInvoicePush, accounting.OutcomeFailed))
	})

	t.Run("failed update still records the remote document", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{})
		inv := pendingInvoice(true)
		require.NoError(t, f.invoices.Create(context.Background(), inv))
		f.invoices.failUpdate = errors.New("deadlock detected")
		f.gw.On("CreateDocument", mock.Anything, "sid", mock.Anything).Return(created, nil).Once()

		res, err := f.svc.PushInvoice(context.Background(), inv.ID)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 1, f.invoices.markCalls)

		stored, _ := f.invoices.FindByID(context.Background(), inv.ID)
		assert.Equal(t, accounting.InvoiceSyncSynced, stored.SyncStatus)
		assert.Equal(t, "5001", stored.DocNumber)

		run, err := f.svc.SyncPendingInvoices(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, run.Counter(accounting.EntityInvoicePush).Processed())
		f.gw.AssertNumberOfCalls(t, "CreateDocument", 1)
	})

	t.Run("both local writes failing is a persistence error", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{})
		inv := pendingInvoice(true)
		require.NoError(t, f.invoices.Create(context.Background(), inv))
		f.invoices.failUpdate = errors.New("deadlock detected")
		f.invoices.failMark = errors.New("connection reset")
		f.gw.On("CreateDocument", mock.Anything, "sid", mock.Anything).Return(created, nil).Once()

		_, err := f.svc.PushInvoice(context.Background(), inv.ID)
		var lp *accounting.LocalPersistenceError
		require.ErrorAs(t, err, &lp)
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("unknown invoice", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{})
		_, err := f.svc.PushInvoice(context.Background(), uuid.New())
		assert.ErrorIs(t, err, accounting.ErrInvoiceNotFound)
	})

	t.Run("concurrent push of the same invoice is rejected", func(t *testing.T) {
		f := newSyncFixture(t, SyncConfig{})
		inv := pendingInvoice(true)
		require.NoError(t, f.invoices.Create(context.Background(), inv))

		started := make(chan struct{})
		release := make(chan struct{})
		f.gw.On("CreateDocument", mock.Anything, "sid", mock.Anything).
			Run(func(mock.Arguments) {
				close(started)
				<-release
			}).
			Return(created, nil).Once()

		done := make(chan error, 1)
		go func() {
			_, err := f.svc.PushInvoice(context.Background(), inv.ID)
			done <- err
		}()

		<-started
		_, err := f.svc.PushInvoice(context.Background(), inv.ID)
		assert.ErrorIs(t, err, accounting.ErrPushInProgress)

		close(release)
		require.NoError(t, <-done)
		f.gw.AssertNumberOfCalls(t, "CreateDocument", 1)
	})
}

func TestSyncService_SyncPendingInvoices(t *testing.T) {
	f := newSyncFixture(t, SyncConfig{})
	good := pendingInvoice(true)
	empty := pendingInvoice(false)
	empty.CreatedAt = good.CreatedAt.Add(time.Second)
	require.NoError(t, f.invoices.Create(context.Background(), good))
	require.NoError(t, f.invoices.Create(context.Background(), empty))

	f.gw.On("CreateDocument", mock.Anything, "sid", mock.Anything).
		Return(&accounting.CreatedDocument{DocNumber: "5002", DocType: accounting.DocTypeInvoice}, nil).Once()

	run, err := f.svc.SyncPendingInvoices(context.Background())
	require.NoError(t, err)

	c := run.Counter(accounting.EntityInvoicePush)
	assert.Equal(t, 1, c.Created)
	assert.Equal(t, 1, c.Failed)
	assert.Equal(t, accounting.RunStatusPartial, run.Status)

	stored, _ := f.invoices.FindByID(context.Background(), empty.ID)
	assert.Equal(t, accounting.InvoiceSyncPending, stored.SyncStatus)
	assert.Equal(t, accounting.ErrInvoiceHasNoItems.Error(), stored.SyncError)
	f.gw.AssertNumberOfCalls(t, "CreateDocument", 1)
}
