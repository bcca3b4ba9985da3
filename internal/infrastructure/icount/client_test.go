package icount

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/printshop/backend/internal/domain/accounting"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer routes each endpoint path to a handler that receives the
// decoded request body.
func newTestServer(t *testing.T, routes map[string]func(body map[string]any) (int, string)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		handler, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		status, resp := handler(body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(NewConfig(srv.URL + "/api/v3.php/"))
	require.NoError(t, err)
	return client
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "not-a-url"})
	assert.Error(t, err)
}

func TestClient_Login(t *testing.T) {
	client := newTestServer(t, map[string]func(map[string]any) (int, string){
		"/api/v3.php/auth/login": func(body map[string]any) (int, string) {
			if body["pass"] != "secret" {
				return http.StatusOK, `{"status": false, "reason": "bad_login"}`
			}
			assert.Equal(t, "shop", body["cid"])
			assert.Equal(t, "api", body["user"])
			return http.StatusOK, `{"status": true, "sid": "abc123", "expires_in": "600"}`
		},
	})

	res, err := client.Login(context.Background(), accounting.Credentials{CompanyID: "shop", User: "api", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", res.SID)
	assert.Equal(t, 10*time.Minute, res.TTL)

	_, err = client.Login(context.Background(), accounting.Credentials{CompanyID: "shop", User: "api", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, accounting.IsAuthError(err))
}

func TestClient_Login_MissingSID(t *testing.T) {
	client := newTestServer(t, map[string]func(map[string]any) (int, string){
		"/api/v3.php/auth/login": func(map[string]any) (int, string) {
			return http.StatusOK, `{"status": true}`
		},
	})

	_, err := client.Login(context.Background(), accounting.Credentials{CompanyID: "c", User: "u", Password: "p"})
	assert.True(t, IsShapeError(err))
}

func TestClient_ListClients(t *testing.T) {
	client := newTestServer(t, map[string]func(map[string]any) (int, string){
		"/api/v3.php/client/get_list": func(body map[string]any) (int, string) {
			assert.Equal(t, "sid-1", body["sid"])
			assert.EqualValues(t, 0, body["offset"])
			assert.EqualValues(t, 50, body["limit"])
			return http.StatusOK, `{"status": true, "total": 3, "clients": {
				"1": {"client_id": "1", "client_name": "Alpha"},
				"2": {"client_id": "2"},
				"3": {"client_id": "3", "client_name": "Gamma", "email": "g@example.com"}
			}}`
		},
	})

	page, err := client.ListClients(context.Background(), "sid-1", accounting.ClientQuery{Limit: 50})
	require.NoError(t, err)

	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 3, page.Fetched)
	require.Len(t, page.Clients, 2)
	assert.Equal(t, "Alpha", page.Clients[0].Name)
	assert.Equal(t, "g@example.com", page.Clients[1].Email)

	require.Len(t, page.Rejects, 1)
	assert.Equal(t, "client:2", page.Rejects[0].ExternalKey)
	assert.ErrorIs(t, page.Rejects[0].Err, accounting.ErrUnrecognizedShape)
}

func TestClient_ListDocuments(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	client := newTestServer(t, map[string]func(map[string]any) (int, string){
		"/api/v3.php/doc/search": func(body map[string]any) (int, string) {
			assert.Equal(t, "invoice", body["doctype"])
			assert.Equal(t, "2026-01-01", body["start_date"])
			assert.Equal(t, "2026-02-01", body["end_date"])
			return http.StatusOK, `{"status": true, "results_list": [
				{"docnum": "10", "totalwithvat": "117", "totalvat": "17", "dateissued": "2026-01-10"},
				{"docnum": "11", "dateissued": "2026-01-11"}
			]}`
		},
	})

	page, err := client.ListDocuments(context.Background(), "sid", accounting.DocumentQuery{
		DocType:  accounting.DocTypeInvoice,
		FromDate: from,
		ToDate:   to,
		Limit:    100,
	})
	require.NoError(t, err)

	assert.Equal(t, -1, page.Total)
	assert.Equal(t, 2, page.Fetched)
	require.Len(t, page.Documents, 1)
	assert.Equal(t, "10", page.Documents[0].DocNumber)
	require.Len(t, page.Rejects, 1)
	assert.Equal(t, "invoice:11", page.Rejects[0].ExternalKey)
}

func TestClient_CreateDocument(t *testing.T) {
	client := newTestServer(t, map[string]func(map[string]any) (int, string){
		"/api/v3.php/doc/create": func(body map[string]any) (int, string) {
			assert.Equal(t, "invoice", body["doctype"])
			assert.Equal(t, "ILS", body["currency_code"])
			assert.Equal(t, "2026-03-01", body["doc_date"])
			assert.NotContains(t, body, "client_id")
			items, _ := body["items"].([]any)
			assert.Len(t, items, 1)
			return http.StatusOK, `{"status": true, "docnum": 2002, "doc_id": "d-9"}`
		},
	})

	created, err := client.CreateDocument(context.Background(), "sid", &accounting.CreateDocumentRequest{
		DocType:    accounting.DocTypeInvoice,
		ClientName: "Walk-in",
		Currency:   "ILS",
		IssueDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Items: []accounting.ExternalLineItem{
			{Description: "Business cards", Quantity: decimal.NewFromInt(500), UnitPrice: decimal.RequireFromString("0.2")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, &accounting.CreatedDocument{DocNumber: "2002", DocType: accounting.DocTypeInvoice, DocID: "d-9"}, created)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "server error is a network error",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				var netErr *accounting.NetworkError
				assert.True(t, errors.As(err, &netErr))
				assert.True(t, accounting.IsRetryable(err))
			},
		},
		{
			name:   "HTTP 429 is a transient rejection",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				assert.True(t, accounting.IsRetryable(err))
			},
		},
		{
			name:   "HTTP 401 is an auth error",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				assert.True(t, accounting.IsAuthError(err))
			},
		},
		{
			name:   "status false with expired session",
			status: http.StatusOK,
			body:   `{"status": false, "reason": "session_expired"}`,
			check: func(t *testing.T, err error) {
				assert.True(t, accounting.IsAuthError(err))
			},
		},
		{
			name:   "status false with permanent reason",
			status: http.StatusOK,
			body:   `{"status": false, "reason": "invalid_doctype"}`,
			check: func(t *testing.T, err error) {
				var rej *accounting.RemoteRejection
				require.True(t, errors.As(err, &rej))
				assert.Equal(t, "invalid_doctype", rej.Reason)
				assert.False(t, accounting.IsRetryable(err))
			},
		},
		{
			name:   "missing envelope",
			status: http.StatusOK,
			body:   `<html>maintenance</html>`,
			check: func(t *testing.T, err error) {
				assert.True(t, IsShapeError(err))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestServer(t, map[string]func(map[string]any) (int, string){
				"/api/v3.php/doc/search": func(map[string]any) (int, string) {
					return tc.status, tc.body
				},
			})
			_, err := client.ListDocuments(context.Background(), "sid", accounting.DocumentQuery{DocType: accounting.DocTypeInvoice})
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, err := NewClient(NewConfig(url))
	require.NoError(t, err)

	_, err = client.Login(context.Background(), accounting.Credentials{CompanyID: "c", User: "u", Password: "p"})
	var netErr *accounting.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, pathLogin, netErr.Op)
}

func TestClient_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(NewConfig(srv.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.ListClients(ctx, "sid", accounting.ClientQuery{Limit: 10})
	require.Error(t, err)
	assert.True(t, accounting.IsRetryable(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
