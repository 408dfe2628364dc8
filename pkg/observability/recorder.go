package observability

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/replyflow/internal/logging"
	"github.com/aretw0/replyflow/pkg/ports"
)

// Recorder is a ports.EventRecorder that logs every enabled event and passes
// it on to an optional sink. All categories start enabled.
type Recorder struct {
	mu       sync.RWMutex
	disabled map[string]bool
	sink     ports.EventRecorder
	logger   *slog.Logger
	level    slog.Level
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithSink forwards enabled events to sink.
func WithSink(sink ports.EventRecorder) RecorderOption {
	return func(r *Recorder) { r.sink = sink }
}

// WithRecorderLogger sets the logger and the level events are logged at.
func WithRecorderLogger(l *slog.Logger, level slog.Level) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
			r.level = level
		}
	}
}

// WithDisabled starts the recorder with the given categories switched off.
func WithDisabled(categories ...string) RecorderOption {
	return func(r *Recorder) {
		for _, c := range categories {
			r.disabled[c] = true
		}
	}
}

// NewRecorder creates a recorder.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		disabled: make(map[string]bool),
		logger:   logging.NewNop(),
		level:    slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enable switches a category on.
func (r *Recorder) Enable(category string) {
	r.mu.Lock()
	delete(r.disabled, category)
	r.mu.Unlock()
}

// Disable switches a category off.
func (r *Recorder) Disable(category string) {
	r.mu.Lock()
	r.disabled[category] = true
	r.mu.Unlock()
}

// Enabled reports whether events of category are recorded.
func (r *Recorder) Enabled(category string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.disabled[category]
}

// Record implements ports.EventRecorder.
func (r *Recorder) Record(ctx context.Context, category, name string, attrs map[string]any) {
	if !r.Enabled(category) {
		return
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, 2+2*len(keys))
	args = append(args, "category", category)
	for _, k := range keys {
		args = append(args, k, attrs[k])
	}
	r.logger.Log(ctx, r.level, name, args...)

	if r.sink != nil {
		r.sink.Record(ctx, category, name, attrs)
	}
}
