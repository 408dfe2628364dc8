package domain

import (
	"encoding/json"
	"time"
)

// DefaultEventLogCapacity bounds the per-session event log.
const DefaultEventLogCapacity = 200

// EventKind classifies session events.
type EventKind string

const (
	EventNodeTransition EventKind = "node_transition"
	EventStatusChange   EventKind = "status_change"
	EventProviderError  EventKind = "provider_error"
	EventTurnError      EventKind = "turn_error"
	EventEscalation     EventKind = "escalation"
	EventToolRequest    EventKind = "tool_request"
)

// Event is one entry of a session's audit trail.
type Event struct {
	At         time.Time      `json:"at"`
	Kind       EventKind      `json:"kind"`
	NodeID     string         `json:"node_id,omitempty"`
	NodeType   NodeKind       `json:"node_type,omitempty"`
	NextNodeID string         `json:"next_node_id,omitempty"`
	Status     SessionStatus  `json:"status,omitempty"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// EventLog keeps the most recent events in a fixed-capacity ring.
// The zero value is unusable; use NewEventLog.
type EventLog struct {
	buf   []Event
	start int
	size  int
}

// NewEventLog creates an empty log. A non-positive capacity uses the default.
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventLogCapacity
	}
	return &EventLog{buf: make([]Event, capacity)}
}

// Append adds an event, overwriting the oldest one when full.
func (l *EventLog) Append(e Event) {
	if len(l.buf) == 0 {
		l.buf = make([]Event, DefaultEventLogCapacity)
	}
	if l.size < len(l.buf) {
		l.buf[(l.start+l.size)%len(l.buf)] = e
		l.size++
		return
	}
	l.buf[l.start] = e
	l.start = (l.start + 1) % len(l.buf)
}

// Entries returns the events oldest first.
func (l *EventLog) Entries() []Event {
	out := make([]Event, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(l.start+i)%len(l.buf)]
	}
	return out
}

// Len returns the number of stored events.
func (l *EventLog) Len() int { return l.size }

// Cap returns the maximum number of stored events.
func (l *EventLog) Cap() int { return len(l.buf) }

// Clone returns an independent copy.
func (l *EventLog) Clone() *EventLog {
	c := &EventLog{buf: make([]Event, len(l.buf)), start: l.start, size: l.size}
	copy(c.buf, l.buf)
	return c
}

type eventLogJSON struct {
	Capacity int     `json:"capacity"`
	Entries  []Event `json:"entries"`
}

func (l *EventLog) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventLogJSON{Capacity: l.Cap(), Entries: l.Entries()})
}

func (l *EventLog) UnmarshalJSON(data []byte) error {
	var doc eventLogJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*l = *NewEventLog(doc.Capacity)
	for _, e := range doc.Entries {
		l.Append(e)
	}
	return nil
}
