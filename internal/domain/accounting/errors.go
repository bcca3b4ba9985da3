package accounting

import (
	"errors"
	"fmt"
	"time"

	"github.com/printshop/backend/internal/domain/shared"
)

// Sentinel errors for the accounting sync domain.
var (
	// ErrSyncInProgress is returned when a sync run is requested while another is running.
	ErrSyncInProgress = shared.NewDomainError("SYNC_IN_PROGRESS", "sync already in progress")

	// ErrPushInProgress is returned when the same invoice is already being pushed.
	ErrPushInProgress = shared.NewDomainError("PUSH_IN_PROGRESS", "invoice push already in progress")

	// ErrInvoiceNotFound is returned when a local invoice does not exist.
	ErrInvoiceNotFound = shared.NewDomainError("NOT_FOUND", "invoice not found")

	// ErrUnrecognizedShape is returned when a remote record matches no known layout.
	ErrUnrecognizedShape = errors.New("accounting: unrecognized remote record shape")

	// ErrInvalidCredentials is returned when the credential tuple is incomplete.
	ErrInvalidCredentials = errors.New("accounting: credentials are incomplete")
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// AuthError reports bad credentials or an expired session. It is not
// retryable without a fresh login.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "accounting: authentication failed: " + e.Reason
}

// RateLimitError reports that the local request budget is exhausted.
type RateLimitError struct {
	WaitTime time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("accounting: rate limit exceeded, retry in %s", e.WaitTime.Round(time.Millisecond))
}

// NetworkError reports a transport failure talking to the remote service.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("accounting: network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RemoteRejection reports a response with status=false. Transient is set
// when the reason names a condition that may clear on its own.
type RemoteRejection struct {
	Op        string
	Reason    string
	Transient bool
}

func (e *RemoteRejection) Error() string {
	return fmt.Sprintf("accounting: remote rejected %s: %s", e.Op, e.Reason)
}

// LocalPersistenceError reports a failed write to the local store.
type LocalPersistenceError struct {
	Op  string
	Err error
}

func (e *LocalPersistenceError) Error() string {
	return fmt.Sprintf("accounting: local persistence failed during %s: %v", e.Op, e.Err)
}

func (e *LocalPersistenceError) Unwrap() error { return e.Err }

// PartialSyncFailure reports a completed run in which some records failed.
type PartialSyncFailure struct {
	RunID  string
	Failed int
}

func (e *PartialSyncFailure) Error() string {
	return fmt.Sprintf("accounting: sync run %s completed with %d failed records", e.RunID, e.Failed)
}

// IsRetryable reports whether err may succeed on a later attempt without
// operator action. Auth errors need a new login and are not retryable here.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var rejection *RemoteRejection
	if errors.As(err, &rejection) {
		return rejection.Transient
	}
	return false
}

// IsAuthError reports whether err is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
