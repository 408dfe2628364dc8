package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// RecordedEvent is one call to Recorder.Record.
type RecordedEvent struct {
	Category string
	Name     string
	Attrs    map[string]any
}

// Recorder implements ports.EventRecorder by keeping every event.
type Recorder struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record stores the event.
func (r *Recorder) Record(ctx context.Context, category, name string, attrs map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, RecordedEvent{Category: category, Name: name, Attrs: maps.Clone(attrs)})
}

// Events returns recorded events, optionally filtered by category.
func (r *Recorder) Events(category string) []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if category == "" {
		return slices.Clone(r.events)
	}
	var out []RecordedEvent
	for _, e := range r.events {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}
