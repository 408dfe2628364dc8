package replyflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/replyflow/internal/executor"
	"github.com/aretw0/replyflow/internal/logging"
	"github.com/aretw0/replyflow/internal/runtime"
	"github.com/aretw0/replyflow/pkg/adapters/memory"
	"github.com/aretw0/replyflow/pkg/ai"
	"github.com/aretw0/replyflow/pkg/catalog"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/aretw0/replyflow/pkg/observability"
	"github.com/aretw0/replyflow/pkg/ports"
	"github.com/aretw0/replyflow/pkg/preview"
	"github.com/aretw0/replyflow/pkg/session"
	"github.com/aretw0/replyflow/pkg/trigger"
)

// TurnRequest is one inbound message for a known session.
type TurnRequest = runtime.TurnRequest

// Engine is the high-level entry point of the library.
// It wires trigger selection, sessions, the interpreter and the preview harness.
type Engine struct {
	catalog   *catalog.Catalog
	instances ports.InstanceRepository
	store     ports.SessionStore
	messages  ports.MessageStore
	sessions  *session.Manager
	selector  *trigger.Selector
	runtime   *runtime.Engine
	preview   *preview.Harness
	maxInput  int
	logger    *slog.Logger
}

type options struct {
	versions      catalog.Store
	instances     ports.InstanceRepository
	store         ports.SessionStore
	messages      ports.MessageStore
	escalations   ports.EscalationService
	recorder      ports.EventRecorder
	locker        ports.DistributedLocker
	searcher      ports.KnowledgeSearcher
	lister        ports.KnowledgeLister
	profiles      ports.BusinessProfileSource
	providers     []ai.Provider
	provider      string
	timeout       time.Duration
	retries       int
	topK          int
	banned        []string
	deferral      string
	maxHops       int
	historyLimit  int
	eventCapacity int
	lockTTL       time.Duration
	cacheSize     int
	maxInput      int
	hooks         domain.LifecycleHooks
	logger        *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*options)

// WithCatalogStore sets where template versions are kept. It defaults to an
// in-memory catalog that also serves instances unless WithInstances is given.
func WithCatalogStore(s catalog.Store) Option {
	return func(o *options) { o.versions = s }
}

// WithInstances sets the automation instance repository.
func WithInstances(r ports.InstanceRepository) Option {
	return func(o *options) { o.instances = r }
}

// WithSessionStore sets the session store. It defaults to memory.
func WithSessionStore(s ports.SessionStore) Option {
	return func(o *options) { o.store = s }
}

// WithMessageStore sets the transcript store. It defaults to memory.
func WithMessageStore(s ports.MessageStore) Option {
	return func(o *options) { o.messages = s }
}

// WithEscalations sets the service production handoffs are sent to.
func WithEscalations(s ports.EscalationService) Option {
	return func(o *options) { o.escalations = s }
}

// WithRecorder sets the diagnostic event sink.
func WithRecorder(r ports.EventRecorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithLocker serializes conversations across processes.
func WithLocker(l ports.DistributedLocker, ttl time.Duration) Option {
	return func(o *options) {
		o.locker = l
		o.lockTTL = ttl
	}
}

// WithKnowledge sets the knowledge sources of AI nodes. Any of them may be nil.
func WithKnowledge(searcher ports.KnowledgeSearcher, lister ports.KnowledgeLister, profiles ports.BusinessProfileSource) Option {
	return func(o *options) {
		o.searcher = searcher
		o.lister = lister
		o.profiles = profiles
	}
}

// WithKnowledgeTopK sets how many search hits AI nodes receive by default.
func WithKnowledgeTopK(k int) Option {
	return func(o *options) { o.topK = k }
}

// WithProvider registers a model provider. The first one is the default.
func WithProvider(p ai.Provider) Option {
	return func(o *options) {
		if p != nil {
			o.providers = append(o.providers, p)
		}
	}
}

// WithDefaultProvider names the provider used when a node does not pick one.
func WithDefaultProvider(name string) Option {
	return func(o *options) { o.provider = name }
}

// WithProviderTimeout bounds every model call.
func WithProviderTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithProviderRetries sets how often a failed model call is retried.
func WithProviderRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

// WithBannedPhrases replaces model replies containing any phrase with the deferral reply.
func WithBannedPhrases(phrases ...string) Option {
	return func(o *options) { o.banned = append(o.banned, phrases...) }
}

// WithDeferral sets the reply sent when a model call fails.
func WithDeferral(text string) Option {
	return func(o *options) { o.deferral = text }
}

// WithMaxHops bounds how many nodes one turn may chain through.
func WithMaxHops(n int) Option {
	return func(o *options) { o.maxHops = n }
}

// WithHistoryLimit sets how many transcript messages AI nodes receive.
func WithHistoryLimit(n int) Option {
	return func(o *options) { o.historyLimit = n }
}

// WithEventCapacity sets the event log size of new sessions.
func WithEventCapacity(n int) Option {
	return func(o *options) { o.eventCapacity = n }
}

// WithMaxInputSize bounds inbound messages, in bytes. Larger messages are
// rejected with an input error.
func WithMaxInputSize(n int) Option {
	return func(o *options) { o.maxInput = n }
}

// WithCacheSize sets how many published versions are cached.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithLifecycleHooks registers observability hooks. It may be given more than once.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) { o.hooks = o.hooks.Merge(hooks) }
}

// WithMetrics feeds m from the lifecycle hooks.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.hooks = o.hooks.Merge(m.Hooks())
		}
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New initializes an Engine. Without options it runs fully in memory, which
// is enough for tests and simulations.
func New(opts ...Option) (*Engine, error) {
	o := &options{retries: -1}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	if o.versions == nil {
		mem := memory.NewCatalog()
		o.versions = mem
		if o.instances == nil {
			o.instances = mem
		}
	}
	if o.instances == nil {
		return nil, errors.New("an instance repository is required with a custom catalog store")
	}
	if o.store == nil {
		o.store = memory.NewStore()
	}
	if o.messages == nil {
		o.messages = memory.NewMessages()
	}

	catOpts := []catalog.Option{catalog.WithLogger(o.logger)}
	if o.cacheSize > 0 {
		catOpts = append(catOpts, catalog.WithCacheSize(o.cacheSize))
	}
	cat, err := catalog.New(o.versions, catOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog: %w", err)
	}

	exec := executor.New(o.executorOptions()...)

	rtOpts := []runtime.EngineOption{
		runtime.WithLogger(o.logger),
		runtime.WithLifecycleHooks(o.hooks),
	}
	if o.maxHops > 0 {
		rtOpts = append(rtOpts, runtime.WithMaxHops(o.maxHops))
	}
	if o.historyLimit > 0 {
		rtOpts = append(rtOpts, runtime.WithHistoryLimit(o.historyLimit))
	}
	if o.escalations != nil {
		rtOpts = append(rtOpts, runtime.WithEscalations(o.escalations))
	}
	if o.recorder != nil {
		rtOpts = append(rtOpts, runtime.WithRecorder(o.recorder))
	}
	rt := runtime.NewEngine(exec, cat, o.store, o.messages, rtOpts...)

	smOpts := []session.Option{
		session.WithLogger(o.logger),
		session.WithLifecycleHooks(o.hooks),
	}
	if o.locker != nil {
		smOpts = append(smOpts, session.WithLocker(o.locker), session.WithLockTTL(o.lockTTL))
	}
	if o.eventCapacity > 0 {
		smOpts = append(smOpts, session.WithEventCapacity(o.eventCapacity))
	}
	sessions := session.NewManager(o.store, cat, smOpts...)

	return &Engine{
		catalog:   cat,
		instances: o.instances,
		store:     o.store,
		messages:  o.messages,
		sessions:  sessions,
		selector:  trigger.NewSelector(o.instances, cat, trigger.WithLogger(o.logger)),
		runtime:   rt,
		preview:   preview.New(sessions, rt, o.messages, o.instances, preview.WithLogger(o.logger)),
		maxInput:  o.maxInput,
		logger:    o.logger,
	}, nil
}

func (o *options) executorOptions() []executor.Option {
	clientOpts := []ai.ClientOption{ai.WithClientLogger(o.logger)}
	for _, p := range o.providers {
		clientOpts = append(clientOpts, ai.WithProvider(p))
	}
	if o.provider != "" {
		clientOpts = append(clientOpts, ai.WithDefaultProvider(o.provider))
	}
	if o.timeout > 0 {
		clientOpts = append(clientOpts, ai.WithTimeout(o.timeout))
	}
	if o.retries >= 0 {
		clientOpts = append(clientOpts, ai.WithRetries(uint64(o.retries), 0))
	}

	opts := []executor.Option{
		executor.WithClient(ai.NewClient(clientOpts...)),
		executor.WithLogger(o.logger),
	}
	if o.searcher != nil || o.lister != nil || o.profiles != nil {
		asmOpts := []ai.AssemblerOption{ai.WithAssemblerLogger(o.logger)}
		if o.searcher != nil {
			asmOpts = append(asmOpts, ai.WithSearcher(o.searcher))
		}
		if o.lister != nil {
			asmOpts = append(asmOpts, ai.WithLister(o.lister))
		}
		if o.profiles != nil {
			asmOpts = append(asmOpts, ai.WithProfiles(o.profiles))
		}
		if o.topK > 0 {
			asmOpts = append(asmOpts, ai.WithTopK(o.topK))
		}
		opts = append(opts, executor.WithKnowledge(ai.NewKnowledgeAssembler(asmOpts...)))
	}
	if len(o.banned) > 0 {
		opts = append(opts, executor.WithGuard(ai.NewGuard(o.banned...)))
	}
	if o.deferral != "" {
		opts = append(opts, executor.WithDeferral(o.deferral))
	}
	return opts
}

// Catalog returns the version catalog, for saving drafts and publishing.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Sessions returns the session manager.
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// SelectAutomation picks the instance that handles an inbound event.
// Finding none is not an error; the diagnostics explain every rejection.
func (e *Engine) SelectAutomation(ctx context.Context, req trigger.Request) (*trigger.Selection, error) {
	return e.selector.Select(ctx, req)
}

// OpenSession returns the session of inst in conv, creating it when needed.
func (e *Engine) OpenSession(ctx context.Context, inst *domain.Instance, conv *domain.Conversation) (*domain.Session, error) {
	return e.sessions.Open(ctx, session.OpenRequest{Instance: inst, Conversation: conv})
}

// RunTurn advances a session by one turn while holding its conversation lock.
func (e *Engine) RunTurn(ctx context.Context, req TurnRequest) (*domain.TurnResult, error) {
	if req.Conversation == nil {
		return nil, domain.NewInputError("conversation", "is required")
	}
	var res *domain.TurnResult
	err := e.sessions.WithConversation(ctx, req.Conversation.Channel, req.Conversation.ID, func(ctx context.Context) error {
		var err error
		res, err = e.runtime.RunTurn(ctx, req)
		return err
	})
	return res, err
}

// InboundMessage is a customer message delivered by a channel integration.
type InboundMessage struct {
	Conversation *domain.Conversation
	// TriggerType defaults to direct_message.
	TriggerType domain.TriggerType
	Text        string
}

// HandleResult is the outcome of HandleMessage.
type HandleResult struct {
	// Selection is set when no session was running and triggers were evaluated.
	Selection *trigger.Selection
	// Turn is nil when no automation handles the conversation.
	Turn *domain.TurnResult
}

// HandleMessage stores an inbound message and runs it through the session of
// the conversation, opening one when a trigger matches.
func (e *Engine) HandleMessage(ctx context.Context, msg InboundMessage) (*HandleResult, error) {
	conv := msg.Conversation
	switch {
	case conv == nil:
		return nil, domain.NewInputError("conversation", "is required")
	case conv.ID == "":
		return nil, domain.NewInputError("conversation.id", "is required")
	case conv.Channel == domain.ChannelPreview:
		return nil, domain.NewInputError("conversation.channel", "preview conversations go through the preview harness")
	}
	text, err := domain.SanitizeInput(msg.Text, e.maxInput)
	if err != nil {
		return nil, err
	}
	msg.Text = text
	triggerType := msg.TriggerType
	if triggerType == "" {
		triggerType = domain.TriggerDirectMessage
	}

	out := &HandleResult{}
	err = e.sessions.WithConversation(ctx, conv.Channel, conv.ID, func(ctx context.Context) error {
		history, err := e.messages.RecentMessages(ctx, conv.ID, 1)
		if err != nil {
			return &domain.PersistenceError{Op: "load messages", Err: err}
		}
		if _, err := e.messages.CreateMessage(ctx, domain.Message{
			ConversationID: conv.ID,
			From:           domain.SenderCustomer,
			Text:           msg.Text,
			CreatedAt:      time.Now().UTC(),
		}); err != nil {
			return &domain.PersistenceError{Op: "store customer message", Err: err}
		}
		mc := domain.MessageContext{
			Channel:        string(conv.Channel),
			ConversationID: conv.ID,
			FirstMessage:   len(history) == 0,
		}

		s, inst, err := e.activeSession(ctx, conv.ID)
		if err != nil {
			return err
		}
		if s == nil {
			sel, err := e.selector.Select(ctx, trigger.Request{
				WorkspaceID: conv.WorkspaceID,
				Type:        triggerType,
				Text:        msg.Text,
				Context:     mc,
			})
			if err != nil {
				return err
			}
			out.Selection = sel
			if sel.Match == nil {
				return nil
			}
			inst = sel.Match.Instance
			if s, err = e.sessions.OpenLocked(ctx, session.OpenRequest{Instance: inst, Conversation: conv}); err != nil {
				return err
			}
		}

		out.Turn, err = e.runtime.RunTurn(ctx, TurnRequest{
			Instance:     inst,
			Session:      s,
			Conversation: conv,
			Text:         msg.Text,
			Context:      mc,
		})
		return err
	})
	return out, err
}

func (e *Engine) activeSession(ctx context.Context, conversationID string) (*domain.Session, *domain.Instance, error) {
	s, err := e.store.FindActive(ctx, conversationID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, &domain.PersistenceError{Op: "find active session", Err: err}
	}
	inst, err := e.instances.Instance(ctx, s.InstanceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, &domain.InputError{Field: "instance_id", Reason: "unknown instance " + s.InstanceID, Err: err}
		}
		return nil, nil, &domain.PersistenceError{Op: "load instance", Err: err}
	}
	return s, inst, nil
}

// StartPreviewSession opens an isolated preview of an instance.
func (e *Engine) StartPreviewSession(ctx context.Context, req preview.StartRequest) (*preview.Preview, error) {
	return e.preview.Start(ctx, req)
}

// SendPreviewMessage runs one preview turn as the synthetic customer.
func (e *Engine) SendPreviewMessage(ctx context.Context, sessionID, text string) (*domain.TurnResult, error) {
	text, err := domain.SanitizeInput(text, e.maxInput)
	if err != nil {
		return nil, err
	}
	return e.preview.Send(ctx, sessionID, text)
}

// ResetPreviewSession hard-deletes a preview session and its synthetic conversation.
func (e *Engine) ResetPreviewSession(ctx context.Context, sessionID string) error {
	return e.preview.Reset(ctx, sessionID)
}

// PreviewTimeline returns the event log of one preview session.
func (e *Engine) PreviewTimeline(ctx context.Context, sessionID string) ([]domain.Event, error) {
	return e.preview.Timeline(ctx, sessionID)
}

// PreviewTranscript returns the messages of one preview session.
func (e *Engine) PreviewTranscript(ctx context.Context, sessionID string) ([]domain.Message, error) {
	return e.preview.Transcript(ctx, sessionID)
}

// Session loads a session.
func (e *Engine) Session(ctx context.Context, sessionID string) (*domain.Session, error) {
	return e.sessions.Load(ctx, sessionID)
}

// Pause stops automation for a session until Resume.
func (e *Engine) Pause(ctx context.Context, sessionID, reason string) (*domain.Session, error) {
	return e.sessions.Pause(ctx, sessionID, reason)
}

// Resume hands a paused session back to automation.
func (e *Engine) Resume(ctx context.Context, sessionID string) (*domain.Session, error) {
	return e.sessions.Resume(ctx, sessionID)
}

// Stop completes a session.
func (e *Engine) Stop(ctx context.Context, sessionID, reason string) (*domain.Session, error) {
	return e.sessions.Stop(ctx, sessionID, reason)
}
