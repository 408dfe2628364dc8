package ports

import (
	"context"

	"github.com/aretw0/replyflow/pkg/domain"
)

// MessageStore reads and writes conversation transcripts.
type MessageStore interface {
	// RecentMessages returns up to limit messages, oldest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	CreateMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
	// DeleteConversation hard-deletes a conversation and all its messages.
	DeleteConversation(ctx context.Context, conversationID string) error
}

// KnowledgeSearcher runs a semantic search over workspace knowledge.
type KnowledgeSearcher interface {
	Search(ctx context.Context, workspaceID, query string, topK int) ([]domain.KnowledgeItem, error)
}

// KnowledgeLister lists authored knowledge items. An empty ids slice lists all.
type KnowledgeLister interface {
	ListItems(ctx context.Context, workspaceID string, ids []string) ([]domain.KnowledgeItem, error)
}

// BusinessProfileSource returns the profile of a workspace.
type BusinessProfileSource interface {
	BusinessProfile(ctx context.Context, workspaceID string) (*domain.BusinessProfile, error)
}

// EscalationService hands a conversation over to a human operator.
type EscalationService interface {
	Escalate(ctx context.Context, esc domain.Escalation) error
}

// EventRecorder receives diagnostic events. Implementations must not block.
type EventRecorder interface {
	Record(ctx context.Context, category, name string, attrs map[string]any)
}

// InstanceRepository lists deployed automation instances.
type InstanceRepository interface {
	Instance(ctx context.Context, instanceID string) (*domain.Instance, error)
	ListInstances(ctx context.Context, workspaceID string) ([]*domain.Instance, error)
}

// VersionRepository loads template versions.
// Returns domain.ErrNotFound for unknown IDs.
type VersionRepository interface {
	Version(ctx context.Context, versionID string) (*domain.TemplateVersion, error)
}
