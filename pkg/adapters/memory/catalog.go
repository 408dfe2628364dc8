package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/replyflow/pkg/domain"
)

// Catalog implements ports.InstanceRepository and ports.VersionRepository in memory.
// Versions are stored serialized, so a loaded version never aliases another caller's copy.
type Catalog struct {
	mu        sync.RWMutex
	versions  map[string][]byte
	instances map[string]*domain.Instance
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		versions:  make(map[string][]byte),
		instances: make(map[string]*domain.Instance),
	}
}

// NewCatalogFrom creates a catalog holding the given versions and instances.
func NewCatalogFrom(versions []*domain.TemplateVersion, instances ...*domain.Instance) (*Catalog, error) {
	c := NewCatalog()
	for _, v := range versions {
		if err := c.PutVersion(v); err != nil {
			return nil, err
		}
	}
	for _, i := range instances {
		c.PutInstance(i)
	}
	return c, nil
}

// PutVersion stores or replaces a version.
func (c *Catalog) PutVersion(v *domain.TemplateVersion) error {
	if v.ID == "" {
		return fmt.Errorf("version missing ID")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal version %s: %w", v.ID, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[v.ID] = data
	return nil
}

// PutInstance stores or replaces an instance.
func (c *Catalog) PutInstance(i *domain.Instance) {
	cp := *i
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances[i.ID] = &cp
}

// Version loads a version by ID.
func (c *Catalog) Version(ctx context.Context, versionID string) (*domain.TemplateVersion, error) {
	c.mu.RLock()
	data, ok := c.versions[versionID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("version %s: %w", versionID, domain.ErrNotFound)
	}

	var v domain.TemplateVersion
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal version %s: %w", versionID, err)
	}
	return &v, nil
}

// Instance loads an instance by ID.
func (c *Catalog) Instance(ctx context.Context, instanceID string) (*domain.Instance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.instances[instanceID]
	if !ok {
		return nil, fmt.Errorf("instance %s: %w", instanceID, domain.ErrNotFound)
	}
	cp := *i
	return &cp, nil
}

// ListInstances returns the instances of a workspace sorted by ID.
func (c *Catalog) ListInstances(ctx context.Context, workspaceID string) ([]*domain.Instance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*domain.Instance
	for _, i := range c.instances {
		if i.WorkspaceID == workspaceID {
			cp := *i
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}
