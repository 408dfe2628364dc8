package ports

import (
	"context"

	"github.com/aretw0/replyflow/pkg/domain"
)

// SessionStore defines the interface for persisting sessions.
type SessionStore interface {
	// Save persists the session. The stored revision must equal session.Revision,
	// otherwise domain.ErrRevisionConflict is returned. On success session.Revision
	// is incremented.
	Save(ctx context.Context, session *domain.Session) error

	// Load retrieves a session by ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Session, error)

	// FindActive returns the non-terminal session of a conversation.
	// Returns domain.ErrSessionNotFound if there is none.
	FindActive(ctx context.Context, conversationID string) (*domain.Session, error)

	// Delete removes a session.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all stored sessions.
	List(ctx context.Context) ([]string, error)
}
