// Package preview runs automations against synthetic conversations.
//
// Preview sessions use the preview channel: they live in their own lock
// domain, may exercise inactive instances and never reach the production
// escalation service.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/replyflow/internal/logging"
	"github.com/aretw0/replyflow/internal/runtime"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/aretw0/replyflow/pkg/ports"
	"github.com/aretw0/replyflow/pkg/session"
	"github.com/google/uuid"
)

// Session variables that let any process rebuild the synthetic conversation
// of a stored preview session.
const (
	VarAccountID     = "preview.account_id"
	VarPersonaName   = "preview.persona_name"
	VarPersonaHandle = "preview.persona_handle"
	VarPersonaLocale = "preview.persona_locale"
)

// DefaultPersona is used when Start is called without one.
var DefaultPersona = domain.Persona{Name: "Preview Customer", Handle: "preview_customer", Locale: "en"}

// Preview is a running simulation.
type Preview struct {
	Session      *domain.Session
	Conversation *domain.Conversation
	// Resumed is set when an existing preview session was returned.
	Resumed bool
}

// StartRequest opens a preview for an instance.
type StartRequest struct {
	Instance *domain.Instance
	Persona  *domain.Persona
	// Reset discards any running preview of the instance first.
	Reset bool
}

// Harness drives preview conversations through the regular interpreter.
type Harness struct {
	sessions  *session.Manager
	engine    *runtime.Engine
	messages  ports.MessageStore
	instances ports.InstanceRepository

	mu         sync.Mutex
	convs      map[string]*domain.Conversation // session ID -> synthetic conversation
	byInstance map[string]string               // instance ID -> session ID

	newID  func() string
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithIDGenerator overrides the generation of synthetic conversation IDs.
func WithIDGenerator(fn func() string) Option {
	return func(h *Harness) {
		if fn != nil {
			h.newID = fn
		}
	}
}

// New creates a preview harness.
func New(sessions *session.Manager, engine *runtime.Engine, messages ports.MessageStore, instances ports.InstanceRepository, opts ...Option) *Harness {
	h := &Harness{
		sessions:   sessions,
		engine:     engine,
		messages:   messages,
		instances:  instances,
		convs:      make(map[string]*domain.Conversation),
		byInstance: make(map[string]string),
		newID:      uuid.NewString,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start opens a preview session for req.Instance on a fresh synthetic
// conversation, or returns the one already running unless req.Reset is set.
func (h *Harness) Start(ctx context.Context, req StartRequest) (*Preview, error) {
	if req.Instance == nil {
		return nil, domain.NewInputError("instance", "is required")
	}

	if sessionID, ok := h.running(req.Instance.ID); ok {
		if req.Reset {
			if err := h.Reset(ctx, sessionID); err != nil {
				return nil, err
			}
		} else if p, err := h.resume(ctx, sessionID); err != nil || p != nil {
			return p, err
		}
	}

	persona := DefaultPersona
	if req.Persona != nil {
		persona = *req.Persona
		if persona.Name == "" {
			persona.Name = DefaultPersona.Name
		}
		if persona.Locale == "" {
			persona.Locale = DefaultPersona.Locale
		}
	}
	id := h.newID()
	conv := &domain.Conversation{
		ID:          "preview-" + id,
		WorkspaceID: req.Instance.WorkspaceID,
		AccountID:   "preview-account-" + id,
		ContactName: persona.Name,
		Channel:     domain.ChannelPreview,
		Persona:     &persona,
	}

	s, err := h.sessions.Open(ctx, session.OpenRequest{
		Instance:     req.Instance,
		Conversation: conv,
		Variables: map[string]any{
			VarAccountID:     conv.AccountID,
			VarPersonaName:   persona.Name,
			VarPersonaHandle: persona.Handle,
			VarPersonaLocale: persona.Locale,
		},
	})
	if err != nil {
		return nil, err
	}

	h.remember(s.ID, req.Instance.ID, conv)

	h.logger.Info("preview started", "session_id", s.ID, "conversation_id", conv.ID, "instance_id", req.Instance.ID)
	return &Preview{Session: s, Conversation: conv}, nil
}

func (h *Harness) running(instanceID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.byInstance[instanceID]
	return id, ok
}

// resume returns the running preview, or nil when it has finished.
func (h *Harness) resume(ctx context.Context, sessionID string) (*Preview, error) {
	conv, err := h.conversation(ctx, sessionID)
	if err != nil {
		return nil, nil
	}
	s, err := h.sessions.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if s.Status.Terminal() {
		return nil, nil
	}
	return &Preview{Session: s, Conversation: conv, Resumed: true}, nil
}

// Send stores text as a customer message of the preview and runs one turn.
func (h *Harness) Send(ctx context.Context, sessionID, text string) (*domain.TurnResult, error) {
	conv, err := h.conversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var res *domain.TurnResult
	err = h.sessions.WithConversation(ctx, domain.ChannelPreview, conv.ID, func(ctx context.Context) error {
		s, err := h.sessions.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		inst, err := h.instances.Instance(ctx, s.InstanceID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &domain.InputError{Field: "instance_id", Reason: "unknown instance " + s.InstanceID, Err: err}
			}
			return &domain.PersistenceError{Op: "load instance", Err: err}
		}

		history, err := h.messages.RecentMessages(ctx, conv.ID, 1)
		if err != nil {
			return &domain.PersistenceError{Op: "load messages", Err: err}
		}
		_, err = h.messages.CreateMessage(ctx, domain.Message{
			ConversationID: conv.ID,
			From:           domain.SenderCustomer,
			Text:           text,
			CreatedAt:      time.Now().UTC(),
		})
		if err != nil {
			return &domain.PersistenceError{Op: "store customer message", Err: err}
		}

		res, err = h.engine.RunTurn(ctx, runtime.TurnRequest{
			Instance:     inst,
			Session:      s,
			Conversation: conv,
			Text:         text,
			Context: domain.MessageContext{
				Channel:        string(domain.ChannelPreview),
				ConversationID: conv.ID,
				FirstMessage:   len(history) == 0,
			},
		})
		return err
	})
	return res, err
}

// Reset hard-deletes a preview session, its synthetic conversation and messages.
func (h *Harness) Reset(ctx context.Context, sessionID string) error {
	conv, err := h.conversation(ctx, sessionID)
	if err != nil {
		return err
	}
	err = h.sessions.WithConversation(ctx, domain.ChannelPreview, conv.ID, func(ctx context.Context) error {
		if err := h.sessions.Delete(ctx, sessionID); err != nil {
			return err
		}
		if err := h.messages.DeleteConversation(ctx, conv.ID); err != nil {
			return &domain.PersistenceError{Op: "delete conversation", Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.mu.Lock()
	delete(h.convs, sessionID)
	for inst, sid := range h.byInstance {
		if sid == sessionID {
			delete(h.byInstance, inst)
		}
	}
	h.mu.Unlock()

	h.logger.Info("preview reset", "session_id", sessionID, "conversation_id", conv.ID)
	return nil
}

// Timeline returns the event log of one preview session, oldest first.
func (h *Harness) Timeline(ctx context.Context, sessionID string) ([]domain.Event, error) {
	if _, err := h.conversation(ctx, sessionID); err != nil {
		return nil, err
	}
	s, err := h.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Events == nil {
		return nil, nil
	}
	return s.Events.Entries(), nil
}

// Transcript returns the messages of a preview conversation, oldest first.
func (h *Harness) Transcript(ctx context.Context, sessionID string) ([]domain.Message, error) {
	conv, err := h.conversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := h.messages.RecentMessages(ctx, conv.ID, 0)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load messages", Err: err}
	}
	return msgs, nil
}

func (h *Harness) remember(sessionID, instanceID string, conv *domain.Conversation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.convs[sessionID] = conv
	h.byInstance[instanceID] = sessionID
}

// conversation resolves the synthetic conversation of a preview session. A
// session started by another process is rebuilt from the stored document.
func (h *Harness) conversation(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	h.mu.Lock()
	conv, ok := h.convs[sessionID]
	h.mu.Unlock()
	if ok {
		return conv, nil
	}

	notPreview := &domain.InputError{
		Field:  "session_id",
		Reason: fmt.Sprintf("%s is not a preview session", sessionID),
		Err:    domain.ErrSessionNotFound,
	}
	s, err := h.sessions.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, notPreview
		}
		return nil, err
	}
	if s.Channel != domain.ChannelPreview {
		return nil, notPreview
	}

	persona := domain.Persona{
		Name:   stringVar(s, VarPersonaName),
		Handle: stringVar(s, VarPersonaHandle),
		Locale: stringVar(s, VarPersonaLocale),
	}
	conv = &domain.Conversation{
		ID:          s.ConversationID,
		WorkspaceID: s.WorkspaceID,
		AccountID:   stringVar(s, VarAccountID),
		ContactName: persona.Name,
		Channel:     s.Channel,
		Persona:     &persona,
	}
	h.mu.Lock()
	h.convs[sessionID] = conv
	if _, running := h.byInstance[s.InstanceID]; !running && !s.Status.Terminal() {
		h.byInstance[s.InstanceID] = sessionID
	}
	h.mu.Unlock()
	return conv, nil
}

func stringVar(s *domain.Session, key string) string {
	v, _ := s.Variables[key].(string)
	return v
}
