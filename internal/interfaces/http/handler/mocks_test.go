package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	syncapp "github.com/printshop/backend/internal/application/accounting"
	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/printshop/backend/internal/interfaces/http/dto"
	"github.com/printshop/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockSyncRunner struct {
	mock.Mock
}

func (m *mockSyncRunner) runResult(args mock.Arguments) (*accounting.SyncRun, error) {
	if run := args.Get(0); run != nil {
		return run.(*accounting.SyncRun), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSyncRunner) SyncAll(ctx context.Context) (*accounting.SyncRun, error) {
	return m.runResult(m.Called(ctx))
}

func (m *mockSyncRunner) SyncCustomers(ctx context.Context) (*accounting.SyncRun, error) {
	return m.runResult(m.Called(ctx))
}

func (m *mockSyncRunner) SyncInvoices(ctx context.Context) (*accounting.SyncRun, error) {
	return m.runResult(m.Called(ctx))
}

func (m *mockSyncRunner) SyncOrders(ctx context.Context) (*accounting.SyncRun, error) {
	return m.runResult(m.Called(ctx))
}

func (m *mockSyncRunner) SyncPendingInvoices(ctx context.Context) (*accounting.SyncRun, error) {
	return m.runResult(m.Called(ctx))
}

func (m *mockSyncRunner) Status(ctx context.Context) (*syncapp.SyncStatus, error) {
	args := m.Called(ctx)
	if s := args.Get(0); s != nil {
		return s.(*syncapp.SyncStatus), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockInvoiceService struct {
	mock.Mock
}

func (m *mockInvoiceService) PushInvoice(ctx context.Context, id uuid.UUID) (*syncapp.PushResult, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*syncapp.PushResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInvoiceService) GetInvoice(ctx context.Context, id uuid.UUID) (*accounting.Invoice, error) {
	args := m.Called(ctx, id)
	if inv := args.Get(0); inv != nil {
		return inv.(*accounting.Invoice), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockCustomerLister struct {
	mock.Mock
}

func (m *mockCustomerLister) ListCustomers(ctx context.Context, filter accounting.ListFilter) (*syncapp.CustomerList, error) {
	args := m.Called(ctx, filter)
	if l := args.Get(0); l != nil {
		return l.(*syncapp.CustomerList), args.Error(1)
	}
	return nil, args.Error(1)
}

type stubRunning bool

func (s stubRunning) IsRunning() bool { return bool(s) }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestRouter() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	return r
}

func performRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, _ := json.Marshal(b)
			reader = bytes.NewBuffer(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// decodeResponse unmarshals the envelope and re-decodes Data into out
func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, out any) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	if out != nil && resp.Data != nil {
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return resp
}
