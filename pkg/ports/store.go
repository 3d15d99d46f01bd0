package ports

import (
	"context"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
)

// SessionPersistence defines how session records are stored.
// Implementations must be safe for concurrent use.
type SessionPersistence interface {
	// Create stores a new session. A ttl of zero means no expiry.
	// Returns domain.ErrSessionExists if the id is already in use.
	Create(ctx context.Context, session *domain.Session, ttl time.Duration) error

	// Get retrieves a copy of the session.
	// Returns domain.ErrSessionNotFound if the session does not exist or has expired.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)

	// Update merges the patch into the stored session (last-writer-wins per key).
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Update(ctx context.Context, sessionID string, patch domain.SessionPatch) error

	// Delete removes the session.
	Delete(ctx context.Context, sessionID string) error

	// List returns the ids of live sessions.
	List(ctx context.Context) ([]string, error)
}
