// Package file reads template versions from YAML documents and keeps
// sessions as JSON files on the local disk.
package file

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/replyflow/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Route is a conditional edge declared inline on a node.
type Route struct {
	When string `yaml:"when"`
	To   string `yaml:"to"`
}

// NodeDocument is the authoring form of a node.
type NodeDocument struct {
	ID     string         `yaml:"id"`
	Type   string         `yaml:"type"`
	Label  string         `yaml:"label,omitempty"`
	Config map[string]any `yaml:"config,omitempty"`
	// Next is shorthand for an unconditional edge.
	Next   string  `yaml:"next,omitempty"`
	Routes []Route `yaml:"routes,omitempty"`
}

// EdgeDocument is an explicit edge.
type EdgeDocument struct {
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Condition string `yaml:"condition,omitempty"`
}

// VersionDocument is the YAML layout of a template version.
type VersionDocument struct {
	ID         string           `yaml:"id"`
	TemplateID string           `yaml:"template_id,omitempty"`
	Version    int              `yaml:"version,omitempty"`
	Status     string           `yaml:"status,omitempty"`
	Entry      string           `yaml:"entry,omitempty"`
	Triggers   []domain.Trigger `yaml:"triggers,omitempty"`
	Nodes      []NodeDocument   `yaml:"nodes"`
	Edges      []EdgeDocument   `yaml:"edges,omitempty"`
}

// ReadVersion decodes one YAML template version. The result is not validated;
// pass it through the catalog before publishing it.
func ReadVersion(r io.Reader) (*domain.TemplateVersion, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc VersionDocument
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.NewInputError("document", "is empty")
		}
		return nil, &domain.InputError{Field: "document", Reason: err.Error(), Err: err}
	}
	return doc.TemplateVersion()
}

// ParseVersion is ReadVersion over a byte slice.
func ParseVersion(data []byte) (*domain.TemplateVersion, error) {
	return ReadVersion(bytes.NewReader(data))
}

// LoadVersionFile reads a template version from path.
func LoadVersionFile(path string) (*domain.TemplateVersion, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template file: %w", err)
	}
	defer f.Close()

	v, err := ReadVersion(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// LoadDir reads every *.yaml and *.yml file of dir, sorted by file name.
func LoadDir(dir string) ([]*domain.TemplateVersion, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	versions := make([]*domain.TemplateVersion, 0, len(names))
	for _, name := range names {
		v, err := LoadVersionFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// TemplateVersion converts the document into a domain template version.
func (d *VersionDocument) TemplateVersion() (*domain.TemplateVersion, error) {
	v := &domain.TemplateVersion{
		ID:          d.ID,
		TemplateID:  d.TemplateID,
		Version:     d.Version,
		Status:      domain.VersionStatus(d.Status),
		EntryNodeID: d.Entry,
		Triggers:    d.Triggers,
		Nodes:       make([]domain.Node, 0, len(d.Nodes)),
	}
	if v.TemplateID == "" {
		v.TemplateID = v.ID
	}
	if v.Version == 0 {
		v.Version = 1
	}
	if v.Status == "" {
		v.Status = domain.VersionDraft
	}

	for i, n := range d.Nodes {
		cfg, err := domain.DecodeNodeConfig(domain.NodeKind(n.Type), n.Config)
		if err != nil {
			return nil, &domain.InputError{
				Field:  fmt.Sprintf("nodes[%d]", i),
				Reason: fmt.Sprintf("node %q: %v", n.ID, err),
				Err:    err,
			}
		}
		v.Nodes = append(v.Nodes, domain.Node{ID: n.ID, Config: cfg})

		if n.Label != "" {
			if v.Labels == nil {
				v.Labels = make(map[string]string)
			}
			v.Labels[n.ID] = n.Label
		}
		// Inline routes come first so they win over the fallthrough.
		for _, r := range n.Routes {
			v.Edges = append(v.Edges, domain.Edge{From: n.ID, To: r.To, Condition: r.When})
		}
		if n.Next != "" {
			v.Edges = append(v.Edges, domain.Edge{From: n.ID, To: n.Next})
		}
	}
	for _, e := range d.Edges {
		v.Edges = append(v.Edges, domain.Edge{From: e.From, To: e.To, Condition: e.Condition})
	}
	return v, nil
}
