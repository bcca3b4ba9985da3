// Package ratelimit mirrors the remote accounting service's request budget
// locally so the client stops before the server starts rejecting calls.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// Defaults used when configuration leaves the budget unset. The remote
// limit is undocumented; these stay well below what has been observed.
const (
	DefaultLimit  = 20
	DefaultWindow = 60 * time.Second
)

// ErrInvalidConfig is returned for a non-positive limit or window.
var ErrInvalidConfig = errors.New("ratelimit: limit and window must be positive")

// Decision is the result of one acquisition attempt.
type Decision struct {
	Allowed   bool
	Remaining int
	// WaitTime is the time left until the window resets, zero when allowed
	WaitTime time.Duration
}

// Stats is a snapshot of the current window.
type Stats struct {
	Remaining int
	Limit     int
	Used      int
	Denied    int64
	Window    time.Duration
	ResetAt   time.Time
}

// Limiter is a fixed-window request budget. It never queues callers:
// a denied acquisition reports how long to wait and returns immediately.
type Limiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	windowStart time.Time
	count       int
	denied      int64
	now         func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter allowing limit acquisitions per window.
func New(limit int, window time.Duration, opts ...Option) (*Limiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, ErrInvalidConfig
	}
	l := &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// TryAcquire consumes one request from the budget if any remains.
func (l *Limiter) TryAcquire() Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.windowStart.IsZero() || !now.Before(l.windowStart.Add(l.window)) {
		l.windowStart = now
		l.count = 1
		return Decision{Allowed: true, Remaining: l.limit - 1}
	}

	if l.count < l.limit {
		l.count++
		return Decision{Allowed: true, Remaining: l.limit - l.count}
	}

	l.denied++
	return Decision{
		Allowed:   false,
		Remaining: 0,
		WaitTime:  l.windowStart.Add(l.window).Sub(now),
	}
}

// Stats returns the state of the current window. An expired window is
// reported as fully available.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	s := Stats{
		Limit:  l.limit,
		Denied: l.denied,
		Window: l.window,
	}
	if l.windowStart.IsZero() || !now.Before(l.windowStart.Add(l.window)) {
		s.Remaining = l.limit
		s.ResetAt = now
		return s
	}
	s.Used = l.count
	s.Remaining = l.limit - l.count
	s.ResetAt = l.windowStart.Add(l.window)
	return s
}

// Reset clears the current window and the denial counter.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.windowStart = time.Time{}
	l.count = 0
	l.denied = 0
}

// Limit returns the configured cap.
func (l *Limiter) Limit() int {
	return l.limit
}

// Window returns the configured window size.
func (l *Limiter) Window() time.Duration {
	return l.window
}
