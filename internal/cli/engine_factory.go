package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/replyflow"
	"github.com/aretw0/replyflow/internal/config"
	"github.com/aretw0/replyflow/pkg/adapters/file"
	"github.com/aretw0/replyflow/pkg/adapters/genai"
	"github.com/aretw0/replyflow/pkg/adapters/langchain"
	"github.com/aretw0/replyflow/pkg/adapters/memory"
	"github.com/aretw0/replyflow/pkg/adapters/redis"
	"github.com/aretw0/replyflow/pkg/ai"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/aretw0/replyflow/pkg/observability"
	"github.com/aretw0/replyflow/pkg/persistence/middleware"
	"github.com/aretw0/replyflow/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// LocalWorkspace owns every instance the CLI deploys.
const LocalWorkspace = "local"

// Runtime is an engine built from configuration together with the
// resources it holds.
type Runtime struct {
	Engine   *replyflow.Engine
	Catalog  *memory.Catalog
	Store    ports.SessionStore
	// Redis is the backing store when the redis backend is selected.
	Redis    *redis.Store
	Messages *memory.Messages
	Metrics  *observability.Metrics
	Recorder *observability.Recorder
	Logger   *slog.Logger

	closers []io.Closer
}

// Close releases the session store connection.
func (r *Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// OpenSessionStore opens the session store selected by cfg.Store.Backend,
// encrypted when cfg.Store.EncryptionKey is set. The closer is nil when
// there is nothing to release.
func OpenSessionStore(cfg *config.Config) (ports.SessionStore, io.Closer, error) {
	store, _, closer, err := openSessionStore(cfg)
	return store, closer, err
}

// OpenRedactedStore opens the session store as a read-only view that masks
// the keys matching cfg.Store.RedactKeys.
func OpenRedactedStore(cfg *config.Config) (ports.SessionStore, io.Closer, error) {
	store, closer, err := OpenSessionStore(cfg)
	if err != nil || len(cfg.Store.RedactKeys) == 0 {
		return store, closer, err
	}
	redact, err := middleware.NewPIIMiddleware(cfg.Store.RedactKeys)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, err
	}
	return redact(store), closer, nil
}

// openSessionStore also returns the redis backend, if any, so callers can
// reach its client behind the middleware.
func openSessionStore(cfg *config.Config) (ports.SessionStore, *redis.Store, io.Closer, error) {
	var (
		store   ports.SessionStore
		backend *redis.Store
		closer  io.Closer
	)
	switch cfg.Store.Backend {
	case "", "memory":
		store = memory.NewStore()
	case "file":
		store = file.NewStore(cfg.Store.Path)
	case "redis":
		opts := []redis.Option{redis.WithPrefix(cfg.Redis.Prefix + "session:")}
		if cfg.Redis.SessionTTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.Redis.SessionTTL))
		}
		backend = redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, opts...)
		store, closer = backend, backend
	default:
		return nil, nil, nil, fmt.Errorf("unknown session store %q", cfg.Store.Backend)
	}

	if cfg.Store.EncryptionKey == "" {
		return store, backend, closer, nil
	}
	enc, err := encryptionConfig(cfg.Store)
	if err == nil {
		var mw middleware.Middleware
		if mw, err = middleware.NewEncryptionMiddleware(enc); err == nil {
			return mw(store), backend, closer, nil
		}
	}
	if closer != nil {
		_ = closer.Close()
	}
	return nil, nil, nil, fmt.Errorf("session encryption: %w", err)
}

func encryptionConfig(cfg config.StoreConfig) (middleware.EncryptionConfig, error) {
	active, err := middleware.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return middleware.EncryptionConfig{}, err
	}
	enc := middleware.EncryptionConfig{ActiveKey: active}
	for _, k := range cfg.FallbackKeys {
		key, err := middleware.ParseKey(k)
		if err != nil {
			return middleware.EncryptionConfig{}, err
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	return enc, nil
}

// Providers creates a provider for every backend that has credentials.
func Providers(ctx context.Context, cfg config.AIConfig) ([]ai.Provider, error) {
	var providers []ai.Provider
	if cfg.GenAI.APIKey != "" {
		p, err := genai.New(ctx, cfg.GenAI.APIKey, genai.WithDefaultModel(cfg.GenAI.Model))
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if cfg.OpenAI.APIKey != "" {
		p, err := langchain.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// BuildRuntime wires an engine from cfg. Metrics are registered on reg when
// it is not nil. extra options are applied last, so tests can swap providers.
func BuildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer, extra ...replyflow.Option) (*Runtime, error) {
	store, backend, closer, err := openSessionStore(cfg)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{
		Catalog:  memory.NewCatalog(),
		Store:    store,
		Redis:    backend,
		Messages: memory.NewMessages(),
		Logger:   logger,
		Recorder: observability.NewRecorder(observability.WithRecorderLogger(logger, slog.LevelWarn)),
	}
	if closer != nil {
		rt.closers = append(rt.closers, closer)
	}

	opts := []replyflow.Option{
		replyflow.WithLogger(logger),
		replyflow.WithCatalogStore(rt.Catalog),
		replyflow.WithInstances(rt.Catalog),
		replyflow.WithSessionStore(store),
		replyflow.WithMessageStore(rt.Messages),
		replyflow.WithEscalations(&logEscalations{logger: logger}),
		replyflow.WithRecorder(rt.Recorder),
		replyflow.WithMaxHops(cfg.Engine.MaxHops),
		replyflow.WithHistoryLimit(cfg.Engine.HistoryLimit),
		replyflow.WithEventCapacity(cfg.Engine.EventLogCapacity),
		replyflow.WithDeferral(cfg.Engine.DeferralMessage),
		replyflow.WithMaxInputSize(cfg.Engine.MaxInputBytes),
		replyflow.WithProviderTimeout(cfg.AI.Timeout),
		replyflow.WithProviderRetries(cfg.AI.MaxRetries),
		replyflow.WithKnowledgeTopK(cfg.AI.KnowledgeTopK),
		replyflow.WithBannedPhrases(cfg.AI.BannedPhrases...),
	}
	if backend != nil {
		locker := redis.NewLocker(backend.Client(), cfg.Redis.Prefix+"lock:")
		opts = append(opts, replyflow.WithLocker(locker, cfg.Engine.LockTTL))
	}

	providers, err := Providers(ctx, cfg.AI)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	for _, p := range providers {
		opts = append(opts, replyflow.WithProvider(p))
	}
	if cfg.AI.DefaultProvider != "" {
		opts = append(opts, replyflow.WithDefaultProvider(cfg.AI.DefaultProvider))
	}

	if reg != nil {
		m, err := observability.NewMetrics(reg)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.Metrics = m
		opts = append(opts, replyflow.WithMetrics(m))
	}

	engine, err := replyflow.New(append(opts, extra...)...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Engine = engine
	return rt, nil
}

// Deploy publishes v and creates an instance of it in the local workspace.
// Drafts and documents marked published go through validation alike.
func (r *Runtime) Deploy(ctx context.Context, v *domain.TemplateVersion, active bool) (*domain.Instance, error) {
	if v.Status == domain.VersionArchived {
		return nil, domain.NewInputError("version.status", "archived versions cannot be deployed")
	}
	v.Status = domain.VersionDraft
	if err := r.Engine.Catalog().SaveDraft(ctx, v); err != nil {
		return nil, err
	}
	published, err := r.Engine.Catalog().Publish(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	inst := &domain.Instance{
		ID:                published.ID + "-local",
		WorkspaceID:       LocalWorkspace,
		TemplateVersionID: published.ID,
		Name:              published.TemplateID,
		Active:            active,
	}
	r.Catalog.PutInstance(inst)
	return inst, nil
}

// logEscalations reports handoffs in the log, as the CLI has no operator queue.
type logEscalations struct {
	logger *slog.Logger
}

func (l *logEscalations) Escalate(ctx context.Context, esc domain.Escalation) error {
	l.logger.Info("conversation escalated",
		"conversation_id", esc.ConversationID,
		"session_id", esc.SessionID,
		"topic", esc.Topic,
		"reason", esc.Reason,
	)
	return nil
}
