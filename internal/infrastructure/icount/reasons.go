package icount

import (
	"strings"

	"github.com/printshop/backend/internal/domain/accounting"
)

// Substrings of the remote "reason" field. Matching is case-insensitive.
var (
	transientReasons = []string{
		"rate limit", "rate_limit", "ratelimit", "request limit", "requests per",
		"per minute", "too many", "throttl", "busy",
		"timeout", "timed out", "temporar", "try again", "unavailable",
	}
	authReasons = []string{
		"bad_login", "login", "auth", "sid", "session",
		"unauthorized", "not logged", "not_logged", "password",
	}
)

// classifyRejection turns a status=false envelope into a taxonomy error.
// Throttling is checked first so that "login rate limit" stays retryable.
func classifyRejection(op, reason string) error {
	if reason == "" {
		reason = "no reason given"
	}
	lower := strings.ToLower(reason)
	if containsAny(lower, transientReasons) {
		return &accounting.RemoteRejection{Op: op, Reason: reason, Transient: true}
	}
	if containsAny(lower, authReasons) {
		return &accounting.AuthError{Reason: reason}
	}
	return &accounting.RemoteRejection{Op: op, Reason: reason}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
