package domain

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusHandoff   SessionStatus = "handoff"
	StatusCompleted SessionStatus = "completed"
)

// allowed lists every legal status change. Anything else is a bug.
var allowed = map[SessionStatus][]SessionStatus{
	StatusActive:  {StatusPaused, StatusHandoff, StatusCompleted},
	StatusPaused:  {StatusActive, StatusCompleted},
	StatusHandoff: {StatusCompleted},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to SessionStatus) bool {
	return slices.Contains(allowed[from], to)
}

// Terminal reports whether no further transition is possible.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted
}

// Session is the execution state of one automation instance inside one conversation.
type Session struct {
	ID                string            `json:"id"`
	WorkspaceID       string            `json:"workspace_id"`
	ConversationID    string            `json:"conversation_id"`
	InstanceID        string            `json:"instance_id"`
	TemplateVersionID string            `json:"template_version_id"`
	Channel           Channel           `json:"channel"`
	Status            SessionStatus     `json:"status"`
	CurrentNodeID     string            `json:"current_node_id"`
	StepIndex         int               `json:"step_index"`
	Variables         map[string]any    `json:"variables"`
	SlotValues        map[string]string `json:"slot_values"`
	MissingFields     []string          `json:"missing_fields,omitempty"`
	QuestionsAsked    int               `json:"questions_asked"`
	AgentStep         int               `json:"agent_step"`
	Iterations        int               `json:"iterations"`
	PauseReason       string            `json:"pause_reason,omitempty"`
	HandoffReason     string            `json:"handoff_reason,omitempty"`
	Events            *EventLog         `json:"events"`
	Revision          int64             `json:"revision"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// NewSession creates an active session positioned at node with the given step index.
func NewSession(id string, conv *Conversation, inst *Instance, node string, stepIndex, eventCapacity int) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:                id,
		WorkspaceID:       conv.WorkspaceID,
		ConversationID:    conv.ID,
		InstanceID:        inst.ID,
		TemplateVersionID: inst.TemplateVersionID,
		Channel:           conv.Channel,
		Status:            StatusActive,
		CurrentNodeID:     node,
		StepIndex:         stepIndex,
		Variables:         make(map[string]any),
		SlotValues:        make(map[string]string),
		Events:            NewEventLog(eventCapacity),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Transition moves the session to status `to`, recording an event.
// Illegal changes return an InvariantError and leave the session untouched.
func (s *Session) Transition(to SessionStatus, reason string) error {
	if !CanTransition(s.Status, to) {
		return &InvariantError{
			Op:  "session.transition",
			Err: fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to),
		}
	}
	from := s.Status
	s.Status = to
	switch to {
	case StatusPaused:
		s.PauseReason = reason
	case StatusActive:
		s.PauseReason = ""
	case StatusHandoff:
		s.HandoffReason = reason
	}
	s.Record(Event{
		Kind:    EventStatusChange,
		NodeID:  s.CurrentNodeID,
		Status:  to,
		Message: reason,
		Details: map[string]any{"from": string(from)},
	})
	return nil
}

// Record appends an event, stamping it when needed.
func (s *Session) Record(e Event) {
	if s.Events == nil {
		s.Events = NewEventLog(DefaultEventLogCapacity)
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	s.Events.Append(e)
}

// EnterNode moves the pointer to node at position index and resets per-node counters.
func (s *Session) EnterNode(id string, index int) {
	if s.CurrentNodeID == id {
		return
	}
	s.CurrentNodeID = id
	s.StepIndex = index
	s.AgentStep = 0
	s.Iterations = 0
	s.QuestionsAsked = 0
	s.MissingFields = nil
}

// Clone returns a deep copy so a turn can work without touching the caller's value.
func (s *Session) Clone() *Session {
	c := *s
	c.Variables = cloneAny(s.Variables)
	c.SlotValues = maps.Clone(s.SlotValues)
	if c.SlotValues == nil {
		c.SlotValues = make(map[string]string)
	}
	c.MissingFields = slices.Clone(s.MissingFields)
	if s.Events != nil {
		c.Events = s.Events.Clone()
	}
	return &c
}

func cloneAny(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		switch val := v.(type) {
		case map[string]any:
			dst[k] = cloneAny(val)
		case []any:
			dst[k] = slices.Clone(val)
		default:
			dst[k] = v
		}
	}
	return dst
}
