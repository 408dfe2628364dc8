package middleware

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/aretw0/replyflow/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

// ErrReadOnly is returned when saving through a redacted view.
var ErrReadOnly = errors.New("redacted session view is read-only")

type piiMiddleware struct {
	next     ports.SessionStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware returns a read-only view of a store that masks variables
// and slot values whose key matches one of the patterns, at any depth.
// Saving through the view is refused so masked values never overwrite the
// real ones.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, session *domain.Session) error {
	return ErrReadOnly
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := m.next.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return m.redact(s), nil
}

func (m *piiMiddleware) FindActive(ctx context.Context, conversationID string) (*domain.Session, error) {
	s, err := m.next.FindActive(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return m.redact(s), nil
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) redact(s *domain.Session) *domain.Session {
	c := s.Clone()
	maskMap(c.Variables, m.patterns)
	for k := range c.SlotValues {
		if matches(k, m.patterns) {
			c.SlotValues[k] = Mask
		}
	}
	return c
}

func matches(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		if matches(k, patterns) {
			m[k] = Mask
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			maskMap(sub, patterns)
		}
	}
}
