// Package icount implements the accounting gateway against the iCount
// JSON API.
package icount

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/printshop/backend/internal/domain/accounting"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Endpoint paths relative to the base URL
const (
	pathLogin      = "auth/login"
	pathClientList = "client/get_list"
	pathDocSearch  = "doc/search"
	pathDocCreate  = "doc/create"

	remoteDateFormat = "2006-01-02"
)

var envelopeAliases = map[string][]string{
	"sid":           {"sid"},
	"expires_in":    {"expires_in", "session_ttl"},
	"clients":       {"clients", "client_list"},
	"clients_total": {"total", "clients_total"},
	"docs":          {"results_list", "docs"},
	"docs_total":    {"results_total", "total"},
	"docnum":        {"docnum", "doc_number"},
	"doc_id":        {"doc_id", "docid"},
}

// Client implements accounting.Gateway.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	maxResponseSize int64
	logger          *zap.Logger
	tracer          trace.Tracer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

var _ accounting.Gateway = (*Client)(nil)

// NewClient creates a client for the given configuration.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxResponseSize == 0 {
		cfg.MaxResponseSize = defaultMaxResponseSize
	}

	c := &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:      &http.Client{Timeout: cfg.Timeout},
		maxResponseSize: cfg.MaxResponseSize,
		logger:          zap.NewNop(),
		tracer:          otel.Tracer("github.com/printshop/backend/internal/infrastructure/icount"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Gateway operations
// ---------------------------------------------------------------------------

// Login opens a session with the given credentials.
func (c *Client) Login(ctx context.Context, creds accounting.Credentials) (*accounting.LoginResult, error) {
	body := map[string]any{
		"cid":  creds.CompanyID,
		"user": creds.User,
		"pass": creds.Password,
	}
	resp, err := c.doRequest(ctx, pathLogin, body)
	if err != nil {
		return nil, err
	}

	sid, err := resp.str("sid")
	if err != nil {
		return nil, err
	}
	if sid == "" {
		return nil, &ShapeError{DocType: "session", Field: "sid", Detail: "missing from login response"}
	}

	result := &accounting.LoginResult{SID: sid}
	if raw, ok := resp.lookup("expires_in"); ok {
		secs, err := parseInt(raw)
		if err != nil {
			return nil, &ShapeError{DocType: "session", Field: "expires_in", Detail: err.Error()}
		}
		result.TTL = time.Duration(secs) * time.Second
	}
	return result, nil
}

// ListClients fetches one page of clients.
func (c *Client) ListClients(ctx context.Context, sid string, q accounting.ClientQuery) (*accounting.ClientPage, error) {
	body := map[string]any{
		"sid":    sid,
		"offset": q.Offset,
		"limit":  q.Limit,
	}
	resp, err := c.doRequest(ctx, pathClientList, body)
	if err != nil {
		return nil, err
	}

	raw, _ := resp.lookup("clients")
	items, err := listItems(raw)
	if err != nil {
		return nil, &ShapeError{DocType: accounting.DocTypeClient, Field: "clients", Detail: err.Error()}
	}

	page := &accounting.ClientPage{Total: resp.total("clients_total"), Fetched: len(items)}
	for _, item := range items {
		client, err := DecodeClient(item)
		if err != nil {
			page.Rejects = append(page.Rejects, accounting.RecordError{
				ExternalKey: recordKey(clientLayout, fieldClientID, item),
				Err:         err,
			})
			continue
		}
		page.Clients = append(page.Clients, *client)
	}
	return page, nil
}

// ListDocuments fetches one page of documents of a single type.
func (c *Client) ListDocuments(ctx context.Context, sid string, q accounting.DocumentQuery) (*accounting.DocumentPage, error) {
	l, ok := documentLayouts[q.DocType]
	if !ok {
		return nil, &ShapeError{DocType: q.DocType, Detail: "has no known layout"}
	}

	body := map[string]any{
		"sid":     sid,
		"doctype": q.DocType.String(),
		"offset":  q.Offset,
		"limit":   q.Limit,
	}
	if !q.FromDate.IsZero() {
		body["start_date"] = q.FromDate.Format(remoteDateFormat)
	}
	if !q.ToDate.IsZero() {
		body["end_date"] = q.ToDate.Format(remoteDateFormat)
	}

	resp, err := c.doRequest(ctx, pathDocSearch, body)
	if err != nil {
		return nil, err
	}

	raw, _ := resp.lookup("docs")
	items, err := listItems(raw)
	if err != nil {
		return nil, &ShapeError{DocType: q.DocType, Field: "results_list", Detail: err.Error()}
	}

	page := &accounting.DocumentPage{Total: resp.total("docs_total"), Fetched: len(items)}
	for _, item := range items {
		doc, err := DecodeDocument(q.DocType, item)
		if err != nil {
			page.Rejects = append(page.Rejects, accounting.RecordError{
				ExternalKey: recordKey(l, fieldDocNumber, item),
				Err:         err,
			})
			continue
		}
		page.Documents = append(page.Documents, *doc)
	}
	return page, nil
}

// CreateDocument creates a document remotely. It is not idempotent.
func (c *Client) CreateDocument(ctx context.Context, sid string, req *accounting.CreateDocumentRequest) (*accounting.CreatedDocument, error) {
	items := make([]map[string]any, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, map[string]any{
			"description": item.Description,
			"quantity":    item.Quantity.String(),
			"unitprice":   item.UnitPrice.String(),
		})
	}
	body := map[string]any{
		"sid":           sid,
		"doctype":       req.DocType.String(),
		"client_name":   req.ClientName,
		"currency_code": req.Currency,
		"doc_date":      req.IssueDate.Format(remoteDateFormat),
		"items":         items,
	}
	if req.ClientID != "" {
		body["client_id"] = req.ClientID
	}

	resp, err := c.doRequest(ctx, pathDocCreate, body)
	if err != nil {
		return nil, err
	}

	docNum, err := resp.str("docnum")
	if err != nil {
		return nil, err
	}
	if docNum == "" {
		return nil, &ShapeError{DocType: req.DocType, Field: "docnum", Detail: "missing from create response"}
	}
	docID, err := resp.str("doc_id")
	if err != nil {
		return nil, err
	}
	return &accounting.CreatedDocument{DocNumber: docNum, DocType: req.DocType, DocID: docID}, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// response is a decoded status=true envelope.
type response struct {
	r *record
}

func (r response) lookup(name string) (json.RawMessage, bool) { return r.r.lookup(name) }
func (r response) str(name string) (string, error)            { return r.r.str(name) }

// total returns the declared count, or -1 when absent or unreadable.
func (r response) total(name string) int {
	raw, ok := r.lookup(name)
	if !ok {
		return -1
	}
	n, err := parseInt(raw)
	if err != nil {
		return -1
	}
	return n
}

// doRequest posts body to the endpoint and maps every failure onto the
// accounting error taxonomy.
func (c *Client) doRequest(ctx context.Context, op string, body any) (resp response, err error) {
	ctx, span := c.tracer.Start(ctx, "icount."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return response{}, fmt.Errorf("icount: encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+op, bytes.NewReader(payload))
	if err != nil {
		return response{}, fmt.Errorf("icount: build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, &accounting.NetworkError{Op: op, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxResponseSize))
	if err != nil {
		return response{}, &accounting.NetworkError{Op: op, Err: err}
	}

	span.SetAttributes(attribute.Int("http.status_code", httpResp.StatusCode))
	c.logger.Debug("iCount request completed",
		zap.String("op", op),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return response{}, &accounting.RemoteRejection{Op: op, Reason: "HTTP 429", Transient: true}
	case httpResp.StatusCode == http.StatusUnauthorized, httpResp.StatusCode == http.StatusForbidden:
		return response{}, &accounting.AuthError{Reason: fmt.Sprintf("HTTP %d", httpResp.StatusCode)}
	case httpResp.StatusCode >= 500:
		return response{}, &accounting.NetworkError{Op: op, Err: fmt.Errorf("HTTP %d", httpResp.StatusCode)}
	case httpResp.StatusCode >= 400:
		return response{}, &accounting.RemoteRejection{Op: op, Reason: fmt.Sprintf("HTTP %d", httpResp.StatusCode)}
	}

	var env struct {
		Status *bool  `json:"status"`
		Reason string `json:"reason"`
		Error  string `json:"error_description"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.Status == nil {
		return response{}, fmt.Errorf("%w: %s response has no status envelope", accounting.ErrUnrecognizedShape, op)
	}
	if !*env.Status {
		reason := env.Reason
		if env.Error != "" {
			reason = strings.TrimSpace(reason + " " + env.Error)
		}
		return response{}, classifyRejection(op, reason)
	}

	r, err := newRecord(layout{docType: "response", aliases: envelopeAliases}, data)
	if err != nil {
		return response{}, err
	}
	return response{r: r}, nil
}

// IsShapeError reports whether err came from an unrecognized remote shape.
func IsShapeError(err error) bool {
	return errors.Is(err, accounting.ErrUnrecognizedShape)
}
