// Package session stores authenticated remote sessions keyed by
// credential fingerprint.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/printshop/backend/internal/domain/accounting"
)

// MemoryStore keeps sessions in process memory. Expired sessions are
// evicted when read and by Size.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*accounting.Session
	now      func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*accounting.Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the live session for key, or nil.
func (s *MemoryStore) Get(_ context.Context, key string) (*accounting.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	if !sess.IsValid(s.now()) {
		delete(s.sessions, key)
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

// Set replaces the session for key.
func (s *MemoryStore) Set(_ context.Context, key string, sess *accounting.Session) error {
	if sess == nil {
		return ErrNilSession
	}
	cp := *sess

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = &cp
	return nil
}

// Delete removes the session for key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

// Size returns the number of live sessions.
func (s *MemoryStore) Size(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, sess := range s.sessions {
		if !sess.IsValid(now) {
			delete(s.sessions, key)
		}
	}
	return len(s.sessions), nil
}

var _ accounting.SessionStore = (*MemoryStore)(nil)
