package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/google/uuid"
)

// Messages implements ports.MessageStore in memory.
type Messages struct {
	mu    sync.RWMutex
	convs map[string][]domain.Message
}

// NewMessages creates an empty transcript store.
func NewMessages() *Messages {
	return &Messages{convs: make(map[string][]domain.Message)}
}

// RecentMessages returns the last limit messages, oldest first. A non-positive limit returns all.
func (m *Messages) RecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.convs[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return slices.Clone(msgs), nil
}

// CreateMessage appends a message, assigning an ID and timestamp when missing.
// Creating a message whose ID already exists is a no-op.
func (m *Messages) CreateMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	for _, existing := range m.convs[msg.ConversationID] {
		if existing.ID == msg.ID {
			return existing, nil
		}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Tags = slices.Clone(msg.Tags)
	m.convs[msg.ConversationID] = append(m.convs[msg.ConversationID], msg)
	return msg, nil
}

// DeleteConversation removes every message of a conversation.
func (m *Messages) DeleteConversation(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.convs, conversationID)
	return nil
}

// Conversations returns the IDs of conversations that have messages.
func (m *Messages) Conversations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.convs))
	for id := range m.convs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
