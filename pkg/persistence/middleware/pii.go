package middleware

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
)

// Mask replaces values whose key matches a PII pattern.
const Mask = "***"

type piiMiddleware struct {
	next     ports.SessionPersistence
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks Data values whose keys match any of the patterns,
// including keys of nested maps. Masking is one-way: reads return "***".
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PII pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.SessionPersistence) ports.SessionPersistence {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Create(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	cp := *session
	cp.Data = m.masked(session.Data)
	return m.next.Create(ctx, &cp, ttl)
}

func (m *piiMiddleware) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.next.Get(ctx, sessionID)
}

func (m *piiMiddleware) Update(ctx context.Context, sessionID string, patch domain.SessionPatch) error {
	patch.Data = m.masked(patch.Data)
	return m.next.Update(ctx, sessionID, patch)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) masked(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	cp := deepCopyMap(data)
	maskMap(cp, m.patterns)
	return cp
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(sub)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if sub, ok := v.(map[string]any); ok && !masked {
			maskMap(sub, patterns)
		}
	}
}
