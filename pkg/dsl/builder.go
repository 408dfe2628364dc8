package dsl

import (
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/replyflow/internal/validator"
	"github.com/aretw0/replyflow/pkg/domain"
)

// Builder manages the graph construction.
type Builder struct {
	version domain.TemplateVersion
	nodes   []*NodeBuilder
	index   map[string]*NodeBuilder
	draft   bool
	errs    []error
}

// New creates a builder for the version with the given ID.
// The template ID defaults to the version ID and the number to 1.
func New(versionID string) *Builder {
	return &Builder{
		version: domain.TemplateVersion{ID: versionID, TemplateID: versionID, Version: 1},
		index:   make(map[string]*NodeBuilder),
	}
}

// Template sets the template the version belongs to and its number.
func (b *Builder) Template(templateID string, number int) *Builder {
	b.version.TemplateID = templateID
	b.version.Version = number
	return b
}

// Entry overrides the entry node.
func (b *Builder) Entry(nodeID string) *Builder {
	b.version.EntryNodeID = nodeID
	return b
}

// Trigger appends a version-level trigger.
func (b *Builder) Trigger(t domain.Trigger) *Builder {
	b.version.Triggers = append(b.version.Triggers, t)
	return b
}

// Draft makes Build return an unpublished version.
func (b *Builder) Draft() *Builder {
	b.draft = true
	return b
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.index[id]; ok {
		return nb
	}
	nb := &NodeBuilder{id: id, builder: b}
	b.nodes = append(b.nodes, nb)
	b.index[id] = nb
	return nb
}

// Build assembles and validates the version. Unless Draft was called it is
// returned published.
func (b *Builder) Build() (*domain.TemplateVersion, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	v := b.version
	v.Nodes = make([]domain.Node, 0, len(b.nodes))
	v.Edges = nil
	for _, nb := range b.nodes {
		v.Nodes = append(v.Nodes, domain.Node{ID: nb.id, Config: nb.config})
		for _, e := range nb.edges {
			v.Edges = append(v.Edges, domain.Edge{From: nb.id, To: e.To, Condition: e.Condition})
		}
		if nb.label != "" {
			if v.Labels == nil {
				v.Labels = make(map[string]string)
			}
			v.Labels[nb.id] = nb.label
		}
	}

	v.Status = domain.VersionDraft
	if err := validator.ValidateVersion(&v); err != nil {
		return nil, err
	}
	if !b.draft {
		v.Status = domain.VersionPublished
		v.PublishedAt = time.Now().UTC()
	}
	return &v, nil
}

// MustBuild is like Build but panics on error. Intended for tests and examples.
func (b *Builder) MustBuild() *domain.TemplateVersion {
	v, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("dsl: %v", err))
	}
	return v
}

func (b *Builder) fail(err error) {
	b.errs = append(b.errs, err)
}
