package domain

import (
	"strings"
	"time"
)

// VersionStatus is the publication state of a template version.
type VersionStatus string

const (
	VersionDraft     VersionStatus = "draft"
	VersionPublished VersionStatus = "published"
	VersionArchived  VersionStatus = "archived"
)

// Edge is a directed connection between two nodes. An empty Condition is unconditional.
type Edge struct {
	From      string `json:"from" validate:"required"`
	To        string `json:"to" validate:"required"`
	Condition string `json:"condition,omitempty"`
}

// TemplateVersion is an immutable compiled automation graph once published.
type TemplateVersion struct {
	ID          string            `json:"id" validate:"required"`
	TemplateID  string            `json:"template_id" validate:"required"`
	Version     int               `json:"version" validate:"gte=1"`
	Status      VersionStatus     `json:"status" validate:"required,oneof=draft published archived"`
	EntryNodeID string            `json:"entry_node_id,omitempty"`
	Nodes       []Node            `json:"nodes" validate:"min=1,dive"`
	Edges       []Edge            `json:"edges,omitempty" validate:"dive"`
	Triggers    []Trigger         `json:"triggers,omitempty" validate:"dive"`
	Labels      map[string]string `json:"labels,omitempty"`
	PublishedAt time.Time         `json:"published_at,omitempty"`
}

// Published reports whether the version may be executed.
func (v *TemplateVersion) Published() bool {
	return v.Status == VersionPublished
}

// Node returns the node with the given ID.
func (v *TemplateVersion) Node(id string) (*Node, bool) {
	if id == "" {
		return nil, false
	}
	for i := range v.Nodes {
		if v.Nodes[i].ID == id {
			return &v.Nodes[i], true
		}
	}
	return nil, false
}

// NodeAt returns the node at position index in authoring order.
func (v *TemplateVersion) NodeAt(index int) (*Node, bool) {
	if index < 0 || index >= len(v.Nodes) {
		return nil, false
	}
	return &v.Nodes[index], true
}

// IndexOf returns the authoring position of id, or -1.
func (v *TemplateVersion) IndexOf(id string) int {
	for i := range v.Nodes {
		if v.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// Entry returns the first node a new session is positioned at.
// It is EntryNodeID when set, otherwise the first node without incoming edges,
// otherwise the first node.
func (v *TemplateVersion) Entry() (*Node, bool) {
	if v.EntryNodeID != "" {
		return v.Node(v.EntryNodeID)
	}
	incoming := make(map[string]bool, len(v.Edges))
	for _, e := range v.Edges {
		incoming[e.To] = true
	}
	for i := range v.Nodes {
		if !incoming[v.Nodes[i].ID] {
			return &v.Nodes[i], true
		}
	}
	return v.NodeAt(0)
}

// Outgoing returns the edges leaving id, in declaration order.
func (v *TemplateVersion) Outgoing(id string) []Edge {
	var out []Edge
	for _, e := range v.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// DefaultEdge returns the first unconditional edge leaving id.
func (v *TemplateVersion) DefaultEdge(id string) (Edge, bool) {
	for _, e := range v.Edges {
		if e.From == id && strings.TrimSpace(e.Condition) == "" {
			return e, true
		}
	}
	return Edge{}, false
}

// Label returns the human label of a node, falling back to its ID.
func (v *TemplateVersion) Label(id string) string {
	if l, ok := v.Labels[id]; ok && l != "" {
		return l
	}
	return id
}
