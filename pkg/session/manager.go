package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a distributed session lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the per-session semaphore and the reference count.
// The semaphore is a buffered channel so that waiting respects ctx.
type lockEntry struct {
	sem  chan struct{}
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// At most one WithLock/WithSession body runs per session id at any time.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store  ports.SessionPersistence
	mirror ports.SessionPersistence // Optional secondary store kept in sync

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the lease of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithMirror keeps a secondary store in sync with the primary one.
// Mirror failures are logged and never fail the call.
func WithMirror(mirror ports.SessionPersistence) Option {
	return func(m *Manager) {
		m.mirror = mirror
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Session Manager with the given persistence store.
func NewManager(store ports.SessionPersistence, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(), // Default to no-op
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST call release(sessionID) once it is done with the entry.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Create starts a new session with a generated id.
// A ttl of zero means the session never expires.
func (m *Manager) Create(ctx context.Context, ownerID string, ttl time.Duration) (*domain.Session, error) {
	return m.CreateWithID(ctx, uuid.NewString(), ownerID, ttl, nil)
}

// CreateWithID starts a new session under a caller-chosen id, seeded with data.
func (m *Manager) CreateWithID(ctx context.Context, sessionID, ownerID string, ttl time.Duration, data map[string]any) (*domain.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	var created *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s := domain.NewSession(sessionID, ownerID, m.now())
		maps.Copy(s.Data, data)

		if err := m.store.Create(ctx, s, ttl); err != nil {
			return err
		}
		if m.mirror != nil {
			if err := m.mirror.Create(ctx, s, ttl); err != nil {
				// The mirror outlives the primary, so an id it already holds is taken.
				if errors.Is(err, domain.ErrSessionExists) {
					if delErr := m.store.Delete(ctx, sessionID); delErr != nil {
						m.logger.Warn("Failed to roll back session", "session_id", sessionID, "err", delErr)
					}
					return err
				}
				m.logger.Warn("Failed to mirror new session", "session_id", sessionID, "err", err)
			}
		}

		stored, err := m.store.Get(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to read back session: %w", err)
		}
		created = stored
		return nil
	})
	return created, err
}

// Get returns a copy of the session without taking the lock.
// When the primary store misses, the mirror is consulted.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := m.store.Get(ctx, sessionID)
	if err == nil || m.mirror == nil || !errors.Is(err, domain.ErrSessionNotFound) {
		return s, err
	}

	mirrored, mErr := m.mirror.Get(ctx, sessionID)
	if mErr != nil {
		if !errors.Is(mErr, domain.ErrSessionNotFound) {
			m.logger.Warn("Failed to read session from mirror", "session_id", sessionID, "err", mErr)
		}
		return nil, err
	}
	return mirrored, nil
}

// Update merges data into the session under the session lock.
func (m *Manager) Update(ctx context.Context, sessionID string, data map[string]any) error {
	return m.WithSession(ctx, sessionID, func(ctx context.Context, s *domain.Session) (domain.SessionPatch, error) {
		return domain.SessionPatch{Data: data}, nil
	})
}

// Delete removes the session from the store and the mirror.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if m.mirror != nil {
			if err := m.mirror.Delete(ctx, sessionID); err != nil {
				m.logger.Warn("Failed to delete mirrored session", "session_id", sessionID, "err", err)
			}
		}
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the primary store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying primary store.
func (m *Manager) Store() ports.SessionPersistence {
	return m.store
}

// WithSession loads the session under its lock and hands a private copy to fn.
// The patch fn returns is persisted even when fn also returns an error,
// so partial progress of a failed run is kept.
func (m *Manager) WithSession(ctx context.Context, sessionID string, fn func(context.Context, *domain.Session) (domain.SessionPatch, error)) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := m.Get(ctx, sessionID)
		if err != nil {
			return err
		}

		patch, fnErr := fn(ctx, s)
		if !patch.IsEmpty() {
			// Persist even if the caller's context was cancelled mid-run.
			if err := m.apply(context.WithoutCancel(ctx), s, patch); err != nil {
				return errors.Join(fnErr, err)
			}
		}
		return fnErr
	})
}

func (m *Manager) apply(ctx context.Context, s *domain.Session, patch domain.SessionPatch) error {
	err := m.store.Update(ctx, s.ID, patch)
	if errors.Is(err, domain.ErrSessionNotFound) && m.mirror != nil {
		// The session was served from the mirror; rehydrate the primary.
		full := s.Clone()
		full.Apply(patch)
		err = m.store.Create(ctx, full, remaining(full, m.now()))
	}
	if err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	if m.mirror == nil {
		return nil
	}
	mErr := m.mirror.Update(ctx, s.ID, patch)
	if errors.Is(mErr, domain.ErrSessionNotFound) {
		full := s.Clone()
		full.Apply(patch)
		mErr = m.mirror.Create(ctx, full, remaining(full, m.now()))
	}
	if mErr != nil {
		m.logger.Warn("Failed to mirror session update", "session_id", s.ID, "err", mErr)
	}
	return nil
}

// WithLock executes a function while holding the lock for the session.
// Waiting for the lock is abandoned when ctx is done.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	defer m.release(sessionID)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for session %q: %w", sessionID, ctx.Err())
	}
	defer func() { <-entry.sem }()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// remaining converts an absolute expiry back into a ttl for re-creation.
func remaining(s *domain.Session, now time.Time) time.Duration {
	if s.ExpiresAt.IsZero() {
		return 0
	}
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return time.Millisecond
}
