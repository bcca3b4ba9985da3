package accounting

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ---------------------------------------------------------------------------
// Credentials and sessions
// ---------------------------------------------------------------------------

// Credentials is the tuple used to log in to the remote service. It is
// supplied by the secret store and never persisted by this package.
type Credentials struct {
	CompanyID string
	User      string
	Password  string
}

// Validate checks that every part of the tuple is present.
func (c Credentials) Validate() error {
	if c.CompanyID == "" || c.User == "" || c.Password == "" {
		return ErrInvalidCredentials
	}
	return nil
}

// Fingerprint returns a stable key for the credential set that does not
// reveal the password.
func (c Credentials) Fingerprint() string {
	sum := sha256.Sum256([]byte(c.CompanyID + "\x00" + c.User + "\x00" + c.Password))
	return hex.EncodeToString(sum[:8])
}

// Session is an authenticated remote session.
type Session struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NewSession creates a session valid for ttl from now.
func NewSession(token string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		Token:     token,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsValid reports whether the session is usable at now.
func (s *Session) IsValid(now time.Time) bool {
	return s != nil && s.Token != "" && now.Before(s.ExpiresAt)
}

// SessionStore holds live sessions keyed by credential fingerprint. Get
// returns nil for missing or expired sessions and evicts expired ones.
type SessionStore interface {
	Get(ctx context.Context, key string) (*Session, error)
	Set(ctx context.Context, key string, session *Session) error
	Delete(ctx context.Context, key string) error
	Size(ctx context.Context) (int, error)
}

// ---------------------------------------------------------------------------
// Remote gateway port
// ---------------------------------------------------------------------------

// LoginResult is returned by a successful login.
type LoginResult struct {
	SID string
	// TTL is the lifetime declared by the remote, zero when undeclared
	TTL time.Duration
}

// ClientQuery pages through remote clients.
type ClientQuery struct {
	Offset int
	Limit  int
}

// ClientPage is one page of remote clients.
type ClientPage struct {
	Clients []ExternalClient
	Rejects []RecordError
	// Total is the declared result count, -1 when the remote omits it
	Total int
	// Fetched is the number of raw records on the page, decoded or not
	Fetched int
}

// DocumentQuery pages through remote documents of one type.
type DocumentQuery struct {
	DocType  DocType
	FromDate time.Time
	ToDate   time.Time
	Offset   int
	Limit    int
}

// DocumentPage is one page of remote documents.
type DocumentPage struct {
	Documents []ExternalDocument
	Rejects   []RecordError
	Total     int
	Fetched   int
}

// RecordError describes a remote record that could not be decoded.
type RecordError struct {
	// ExternalKey is the best-effort natural key, empty when unknown
	ExternalKey string
	Err         error
}

// CreateDocumentRequest is the payload for creating a remote document.
type CreateDocumentRequest struct {
	DocType    DocType
	ClientID   string
	ClientName string
	Currency   string
	IssueDate  time.Time
	Items      []ExternalLineItem
}

// CreatedDocument is the remote's answer to a create call.
type CreatedDocument struct {
	DocNumber string
	DocType   DocType
	DocID     string
}

// Gateway is the port to the remote accounting service. Every method
// returns errors from the taxonomy in errors.go.
type Gateway interface {
	Login(ctx context.Context, creds Credentials) (*LoginResult, error)
	ListClients(ctx context.Context, sid string, q ClientQuery) (*ClientPage, error)
	ListDocuments(ctx context.Context, sid string, q DocumentQuery) (*DocumentPage, error)
	CreateDocument(ctx context.Context, sid string, req *CreateDocumentRequest) (*CreatedDocument, error)
}
