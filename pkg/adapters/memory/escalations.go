package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/replyflow/pkg/domain"
)

// Escalations implements ports.EscalationService by keeping raised escalations.
type Escalations struct {
	mu   sync.Mutex
	list []domain.Escalation
}

// NewEscalations creates an empty escalation inbox.
func NewEscalations() *Escalations {
	return &Escalations{}
}

// Escalate records the escalation.
func (e *Escalations) Escalate(ctx context.Context, esc domain.Escalation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, esc)
	return nil
}

// All returns every escalation raised so far.
func (e *Escalations) All() []domain.Escalation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.list)
}
