package domain

import (
	"maps"
	"time"
)

// Session is the per-run variable scope plus identity and lifecycle flag.
type Session struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is zero when the session never expires.
	ExpiresAt time.Time `json:"expires_at"`

	// Data holds consumer-defined variables. Steps write their results here.
	Data map[string]any `json:"data"`

	// Active is cleared by an end step.
	Active bool `json:"active"`
}

// NewSession creates an active session with an initialized data map.
func NewSession(id, ownerID string, createdAt time.Time) *Session {
	return &Session{
		ID:        id,
		OwnerID:   ownerID,
		CreatedAt: createdAt,
		Data:      make(map[string]any),
		Active:    true,
	}
}

// Expired reports whether the session has a TTL that elapsed before now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Clone creates a copy of the session with its own data map.
// Values inside the map are shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Data = make(map[string]any, len(s.Data))
	maps.Copy(cp.Data, s.Data)
	return &cp
}

// SessionPatch is a partial update: Data keys are merged last-writer-wins,
// and Active is changed only when non-nil.
type SessionPatch struct {
	Data   map[string]any `json:"data,omitempty"`
	Active *bool          `json:"active,omitempty"`
}

// IsEmpty reports whether applying the patch would change nothing.
func (p SessionPatch) IsEmpty() bool {
	return len(p.Data) == 0 && p.Active == nil
}

// Apply merges the patch into the session in place.
func (s *Session) Apply(p SessionPatch) {
	if s.Data == nil {
		s.Data = make(map[string]any, len(p.Data))
	}
	maps.Copy(s.Data, p.Data)
	if p.Active != nil {
		s.Active = *p.Active
	}
}
