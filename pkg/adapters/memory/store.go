package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
)

// Store implements ports.SessionPersistence in memory.
// Safe for concurrent use. Expired sessions are dropped lazily on access.
type Store struct {
	data map[string]*domain.Session
	mu   sync.RWMutex
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		data: make(map[string]*domain.Session),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a copy of the session.
func (s *Store) Create(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[session.ID]; ok && !existing.Expired(s.now()) {
		return domain.ErrSessionExists
	}

	cp := session.Clone()
	if ttl > 0 {
		cp.ExpiresAt = s.now().Add(ttl)
	}
	s.data[session.ID] = cp
	return nil
}

// Get retrieves a copy of the session so callers can't mutate store state by pointer.
func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	sess, ok := s.data[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if sess.Expired(s.now()) {
		s.evict(sessionID)
		return nil, domain.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Update merges the patch into the stored session.
func (s *Store) Update(ctx context.Context, sessionID string, patch domain.SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.data[sessionID]
	if !ok || sess.Expired(s.now()) {
		delete(s.data, sessionID)
		return domain.ErrSessionNotFound
	}

	// Copy-on-write keeps clones handed out by Get stable.
	next := sess.Clone()
	next.Apply(patch)
	s.data[sessionID] = next
	return nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// List returns live sessions.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	sessions := make([]string, 0, len(s.data))
	for id, sess := range s.data {
		if sess.Expired(now) {
			continue
		}
		sessions = append(sessions, id)
	}
	return sessions, nil
}

func (s *Store) evict(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.data[sessionID]; ok && sess.Expired(s.now()) {
		delete(s.data, sessionID)
	}
}
