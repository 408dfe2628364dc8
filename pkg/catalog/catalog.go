// Package catalog manages template versions: draft storage, validation,
// publication and a read cache of published versions for the interpreter.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/replyflow/internal/logging"
	"github.com/aretw0/replyflow/internal/validator"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/aretw0/replyflow/pkg/ports"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of published versions kept in memory.
const DefaultCacheSize = 256

// Store is the backing storage of versions.
type Store interface {
	ports.VersionRepository
	PutVersion(v *domain.TemplateVersion) error
}

// Catalog implements ports.VersionRepository on top of a Store.
// Only published versions are cached, since those can no longer change.
// Versions returned from the cache are shared and must not be modified.
type Catalog struct {
	store  Store
	cache  *lru.Cache[string, *domain.TemplateVersion]
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Catalog.
type Option func(*config)

type config struct {
	size   int
	now    func() time.Time
	logger *slog.Logger
}

// WithCacheSize sets how many published versions are cached.
func WithCacheSize(n int) Option {
	return func(c *config) { c.size = n }
}

// WithClock overrides the publication timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New creates a catalog over store.
func New(store Store, opts ...Option) (*Catalog, error) {
	cfg := config{size: DefaultCacheSize, now: time.Now, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	cache, err := lru.New[string, *domain.TemplateVersion](cfg.size)
	if err != nil {
		return nil, fmt.Errorf("create version cache: %w", err)
	}
	return &Catalog{store: store, cache: cache, now: cfg.now, logger: cfg.logger}, nil
}

// Version returns a version, serving published ones from the cache.
func (c *Catalog) Version(ctx context.Context, versionID string) (*domain.TemplateVersion, error) {
	if v, ok := c.cache.Get(versionID); ok {
		return v, nil
	}
	v, err := c.store.Version(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.Published() {
		c.cache.Add(v.ID, v)
	}
	return v, nil
}

// SaveDraft stores a draft. Published and archived versions are never overwritten.
func (c *Catalog) SaveDraft(ctx context.Context, v *domain.TemplateVersion) error {
	if v == nil || v.ID == "" {
		return domain.NewInputError("version.id", "is required")
	}
	if v.Status == "" {
		v.Status = domain.VersionDraft
	}
	if v.Status != domain.VersionDraft {
		return domain.NewInputError("version.status", "only drafts can be saved, got "+string(v.Status))
	}

	existing, err := c.store.Version(ctx, v.ID)
	switch {
	case err == nil && existing.Status != domain.VersionDraft:
		return domain.NewInputError("version.id", fmt.Sprintf("version %s is %s and cannot change", v.ID, existing.Status))
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return &domain.PersistenceError{Op: "load version", Err: err}
	}

	if err := c.store.PutVersion(v); err != nil {
		return &domain.PersistenceError{Op: "save version", Err: err}
	}
	return nil
}

// Publish validates a draft and makes it executable. Publishing an already
// published version returns it unchanged.
func (c *Catalog) Publish(ctx context.Context, versionID string) (*domain.TemplateVersion, error) {
	v, err := c.store.Version(ctx, versionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.InputError{Field: "version.id", Reason: "unknown version " + versionID, Err: err}
		}
		return nil, &domain.PersistenceError{Op: "load version", Err: err}
	}

	switch v.Status {
	case domain.VersionPublished:
		return v, nil
	case domain.VersionArchived:
		return nil, domain.NewInputError("version.status", "archived version "+versionID+" cannot be published")
	}

	if err := validator.ValidateVersion(v); err != nil {
		return nil, err
	}

	v.Status = domain.VersionPublished
	v.PublishedAt = c.now().UTC()
	if err := c.store.PutVersion(v); err != nil {
		return nil, &domain.PersistenceError{Op: "publish version", Err: err}
	}
	c.cache.Add(v.ID, v)
	c.logger.Info("version published", "version_id", v.ID, "template_id", v.TemplateID, "version", v.Version)
	return v, nil
}

// Archive retires a version. Sessions already running on it fail their next
// turn with ErrVersionNotPublished.
func (c *Catalog) Archive(ctx context.Context, versionID string) error {
	v, err := c.store.Version(ctx, versionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.InputError{Field: "version.id", Reason: "unknown version " + versionID, Err: err}
		}
		return &domain.PersistenceError{Op: "load version", Err: err}
	}
	if v.Status == domain.VersionArchived {
		return nil
	}
	v.Status = domain.VersionArchived
	if err := c.store.PutVersion(v); err != nil {
		return &domain.PersistenceError{Op: "archive version", Err: err}
	}
	c.cache.Remove(versionID)
	c.logger.Info("version archived", "version_id", versionID)
	return nil
}

// Cached returns the number of versions currently cached.
func (c *Catalog) Cached() int {
	return c.cache.Len()
}
