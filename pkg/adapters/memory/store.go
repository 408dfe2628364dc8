package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/replyflow/pkg/domain"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	data   map[string][]byte
	active map[string]string // conversation ID -> session ID
	mu     sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data:   make(map[string][]byte),
		active: make(map[string]string),
	}
}

// Save persists the session in memory.
// Sessions are kept serialized so callers can never share pointers with the store.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := int64(0)
	if raw, ok := s.data[session.ID]; ok {
		var prev struct {
			Revision int64 `json:"revision"`
		}
		if err := json.Unmarshal(raw, &prev); err != nil {
			return fmt.Errorf("failed to decode stored session: %w", err)
		}
		stored = prev.Revision
	}
	if stored != session.Revision {
		return fmt.Errorf("%w: stored %d, have %d", domain.ErrRevisionConflict, stored, session.Revision)
	}

	session.Revision++
	session.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(session)
	if err != nil {
		session.Revision--
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	s.data[session.ID] = data

	if session.Status.Terminal() {
		if s.active[session.ConversationID] == session.ID {
			delete(s.active, session.ConversationID)
		}
	} else {
		s.active[session.ConversationID] = session.ID
	}
	return nil
}

// Load retrieves the session from memory.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(sessionID)
}

func (s *Store) load(sessionID string) (*domain.Session, error) {
	raw, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// FindActive returns the non-terminal session of a conversation.
func (s *Store) FindActive(ctx context.Context, conversationID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.active[conversationID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.load(id)
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conv, id := range s.active {
		if id == sessionID {
			delete(s.active, conv)
		}
	}
	delete(s.data, sessionID)
	return nil
}

// List returns stored session IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.data))
	for id := range s.data {
		sessions = append(sessions, id)
	}
	return sessions, nil
}
