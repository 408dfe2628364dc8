package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/aretw0/replyflow/internal/logging"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/aretw0/replyflow/pkg/ports"
	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a distributed conversation lock is held.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes work per conversation and owns session lifecycle changes.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store    ports.SessionStore
	versions ports.VersionRepository

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker        ports.DistributedLocker
	lockTTL       time.Duration
	eventCapacity int
	hooks         domain.LifecycleHooks
	newID         func() string
	logger        *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the TTL of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithEventCapacity sets the event log size of new sessions.
func WithEventCapacity(n int) Option {
	return func(m *Manager) {
		m.eventCapacity = n
	}
}

// WithLifecycleHooks reports status changes made by Pause, Resume and Stop.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Session Manager over the given stores.
func NewManager(store ports.SessionStore, versions ports.VersionRepository, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		versions:      versions,
		locks:         make(map[string]*lockEntry),
		lockTTL:       DefaultLockTTL,
		eventCapacity: domain.DefaultEventLogCapacity,
		newID:         uuid.NewString,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LockKey is the serialization key of a conversation. The channel prefix keeps
// preview and production conversations in separate lock domains.
func LockKey(channel domain.Channel, conversationID string) string {
	return string(channel) + ":" + conversationID
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// WithConversation runs fn while holding the lock of one conversation.
// Turns of the same conversation never overlap; different conversations run in parallel.
func (m *Manager) WithConversation(ctx context.Context, channel domain.Channel, conversationID string, fn func(context.Context) error) error {
	key := LockKey(channel, conversationID)
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"lock_key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// OpenRequest names the conversation and instance a session is opened for.
type OpenRequest struct {
	Instance     *domain.Instance
	Conversation *domain.Conversation
	// Variables seed a newly created session. An existing session keeps its own.
	Variables map[string]any
}

// Open returns the session of req.Instance in the conversation, creating it at
// the version entry node when there is none. A conversation runs at most one
// non-terminal session: if another instance owns it, ErrActiveSessionExists is returned.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*domain.Session, error) {
	if req.Conversation == nil {
		return nil, domain.NewInputError("conversation", "is required")
	}
	var s *domain.Session
	err := m.WithConversation(ctx, req.Conversation.Channel, req.Conversation.ID, func(ctx context.Context) error {
		var err error
		s, err = m.OpenLocked(ctx, req)
		return err
	})
	return s, err
}

// OpenLocked is Open for callers already inside WithConversation.
func (m *Manager) OpenLocked(ctx context.Context, req OpenRequest) (*domain.Session, error) {
	switch {
	case req.Instance == nil:
		return nil, domain.NewInputError("instance", "is required")
	case req.Conversation == nil:
		return nil, domain.NewInputError("conversation", "is required")
	case req.Conversation.ID == "":
		return nil, domain.NewInputError("conversation.id", "is required")
	}

	existing, err := m.store.FindActive(ctx, req.Conversation.ID)
	switch {
	case err == nil && existing.InstanceID == req.Instance.ID:
		return existing, nil
	case err == nil:
		return nil, &domain.InputError{
			Field:  "conversation",
			Reason: fmt.Sprintf("session %s of instance %s is still %s", existing.ID, existing.InstanceID, existing.Status),
			Err:    domain.ErrActiveSessionExists,
		}
	case !errors.Is(err, domain.ErrSessionNotFound):
		return nil, &domain.PersistenceError{Op: "find active session", Err: err}
	}

	if !req.Instance.Active && req.Conversation.Channel != domain.ChannelPreview {
		return nil, domain.NewInputError("instance", "instance "+req.Instance.ID+" is not active")
	}
	v, err := m.versions.Version(ctx, req.Instance.TemplateVersionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.InputError{Field: "template_version_id", Reason: "unknown template version", Err: err}
		}
		return nil, &domain.PersistenceError{Op: "load version", Err: err}
	}
	if !v.Published() {
		return nil, &domain.InputError{Field: "template_version_id", Reason: "version " + v.ID + " is " + string(v.Status), Err: domain.ErrVersionNotPublished}
	}
	entry, ok := v.Entry()
	if !ok {
		return nil, &domain.InvariantError{Op: "session.open", Err: fmt.Errorf("%w: version %s has no entry node", domain.ErrNodeUnresolvable, v.ID)}
	}

	s := domain.NewSession(m.newID(), req.Conversation, req.Instance, entry.ID, v.IndexOf(entry.ID), m.eventCapacity)
	maps.Copy(s.Variables, req.Variables)
	if err := m.store.Save(ctx, s); err != nil {
		return nil, &domain.PersistenceError{Op: "create session", Err: err}
	}
	m.logger.Info("session opened",
		"session_id", s.ID,
		"conversation_id", s.ConversationID,
		"instance_id", s.InstanceID,
		"node_id", s.CurrentNodeID,
	)
	return s, nil
}

// Load retrieves a session from the store.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := m.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, &domain.InputError{Field: "session_id", Reason: "unknown session " + sessionID, Err: err}
		}
		return nil, &domain.PersistenceError{Op: "load session", Err: err}
	}
	return s, nil
}

// Commit saves s if nobody else changed it since it was loaded.
func (m *Manager) Commit(ctx context.Context, s *domain.Session) error {
	if err := m.store.Save(ctx, s); err != nil {
		return &domain.PersistenceError{Op: "save session", Err: err}
	}
	return nil
}

// Pause stops automation for a session until Resume.
func (m *Manager) Pause(ctx context.Context, sessionID, reason string) (*domain.Session, error) {
	return m.change(ctx, sessionID, domain.StatusPaused, reason)
}

// Resume hands a paused session back to automation.
func (m *Manager) Resume(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.change(ctx, sessionID, domain.StatusActive, "resumed")
}

// Stop completes a session. Completed sessions never run again.
func (m *Manager) Stop(ctx context.Context, sessionID, reason string) (*domain.Session, error) {
	return m.change(ctx, sessionID, domain.StatusCompleted, reason)
}

func (m *Manager) change(ctx context.Context, sessionID string, to domain.SessionStatus, reason string) (*domain.Session, error) {
	current, err := m.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var out *domain.Session
	err = m.WithConversation(ctx, current.Channel, current.ConversationID, func(ctx context.Context) error {
		s, err := m.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		if s.Status.Terminal() {
			return &domain.InputError{Field: "session_id", Reason: "session " + s.ID + " is completed", Err: domain.ErrSessionTerminal}
		}
		if !domain.CanTransition(s.Status, to) {
			return &domain.InputError{
				Field:  "status",
				Reason: fmt.Sprintf("cannot move session %s from %s to %s", s.ID, s.Status, to),
				Err:    domain.ErrInvalidTransition,
			}
		}
		from := s.Status
		if err := s.Transition(to, reason); err != nil {
			return err
		}
		if err := m.Commit(ctx, s); err != nil {
			return err
		}
		if m.hooks.OnStatusChange != nil {
			m.hooks.OnStatusChange(ctx, &domain.StatusEvent{
				Timestamp: time.Now(),
				SessionID: s.ID,
				From:      from,
				To:        to,
				Reason:    reason,
			})
		}
		out = s
		return nil
	})
	return out, err
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return &domain.PersistenceError{Op: "delete session", Err: err}
	}
	return nil
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}
