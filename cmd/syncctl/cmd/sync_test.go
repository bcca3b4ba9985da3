package cmd

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncapp "github.com/printshop/backend/internal/application/accounting"
	"github.com/printshop/backend/internal/domain/accounting"
)

type recordingRunner struct {
	called string
}

func (r *recordingRunner) record(name string) (*accounting.SyncRun, error) {
	r.called = name
	return accounting.NewSyncRun(), nil
}

func (r *recordingRunner) SyncAll(context.Context) (*accounting.SyncRun, error) {
	return r.record("all")
}
func (r *recordingRunner) SyncCustomers(context.Context) (*accounting.SyncRun, error) {
	return r.record("customers")
}
func (r *recordingRunner) SyncInvoices(context.Context) (*accounting.SyncRun, error) {
	return r.record("invoices")
}
func (r *recordingRunner) SyncOrders(context.Context) (*accounting.SyncRun, error) {
	return r.record("orders")
}
func (r *recordingRunner) SyncPendingInvoices(context.Context) (*accounting.SyncRun, error) {
	return r.record("pending")
}

func TestRunnerFor(t *testing.T) {
	for _, kind := range syncKinds {
		t.Run(kind, func(t *testing.T) {
			r := &recordingRunner{}
			run, err := runnerFor(r, kind)
			require.NoError(t, err)

			_, err = run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, kind, r.called)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := runnerFor(&recordingRunner{}, "products")
		assert.ErrorContains(t, err, `unknown sync type "products"`)
	})
}

func TestSyncCmdRejectsUnknownType(t *testing.T) {
	err := syncCmd.Args(syncCmd, []string{"products"})
	assert.Error(t, err)

	assert.NoError(t, syncCmd.Args(syncCmd, []string{"pending"}))
	assert.NoError(t, syncCmd.Args(syncCmd, nil))
	assert.Error(t, syncCmd.Args(syncCmd, []string{"all", "customers"}))
}

func TestPrintRun(t *testing.T) {
	run := accounting.NewSyncRun(accounting.EntityInvoices, accounting.EntityCustomers)
	run.Counter(accounting.EntityCustomers).Record(accounting.OutcomeCreated)
	run.Counter(accounting.EntityInvoices).Error = "network error"
	run.Complete()

	var buf bytes.Buffer
	printRun(&buf, run)

	out := buf.String()
	assert.Contains(t, out, run.ID.String())
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "customers     created=1 updated=0 skipped=0 failed=0")
	assert.Contains(t, out, "aborted: network error")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("customers")), bytes.Index(buf.Bytes(), []byte("invoices")), "entities are sorted")
}

func TestPrintPush(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name   string
		result syncapp.PushResult
		want   string
	}{
		{"pushed", syncapp.PushResult{InvoiceID: id, Success: true, DocNumber: "20017"}, "pushed as 20017"},
		{"already synced", syncapp.PushResult{InvoiceID: id, Success: true, AlreadySynced: true, DocNumber: "20017"}, "already synced as 20017"},
		{"rejected", syncapp.PushResult{InvoiceID: id, Message: "bad client"}, "rejected: bad client"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printPush(&buf, &tt.result)
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestRenderJSON(t *testing.T) {
	jsonOutput = true
	t.Cleanup(func() { jsonOutput = false })

	var buf bytes.Buffer
	called := false
	require.NoError(t, render(&buf, map[string]int{"created": 2}, func(_ io.Writer) { called = true }))

	assert.False(t, called)
	assert.JSONEq(t, `{"created":2}`, buf.String())
}

func TestPrintStatusEmpty(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, &syncapp.SyncStatus{})
	assert.Contains(t, buf.String(), "no sync has run yet")
}
