// Package graph renders template versions as Mermaid flowcharts.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/replyflow/pkg/domain"
)

// Overlay marks the path a session took through the graph.
type Overlay struct {
	Visited []string
	Current string
}

// SessionOverlay builds an overlay from the node transitions recorded on s.
func SessionOverlay(s *domain.Session) *Overlay {
	o := &Overlay{Current: s.CurrentNodeID}
	if s.Events == nil {
		return o
	}
	for _, e := range s.Events.Entries() {
		if e.Kind == domain.EventNodeTransition && e.NodeID != "" {
			o.Visited = append(o.Visited, e.NodeID)
		}
	}
	return o
}

// shape returns the Mermaid brackets of a node kind:
// entry ((circle)), AI [[subroutine]], branching {diamond},
// handoff [/parallelogram/], messages [rectangle].
func shape(kind domain.NodeKind, entry bool) (string, string) {
	switch {
	case entry:
		return "((", "))"
	case kind == domain.NodeKindAIReply || kind == domain.NodeKindAIAgent || kind == domain.NodeKindLangchainAgent:
		return "[[", "]]"
	case kind == domain.NodeKindDetectIntent || kind == domain.NodeKindRouter:
		return "{", "}"
	case kind == domain.NodeKindHandoff:
		return "[/", "/]"
	}
	return "[", "]"
}

// GenerateMermaid produces a "graph TD" flowchart of v. Conditional edges
// carry their condition as label; a router's default target is drawn dotted.
func GenerateMermaid(v *domain.TemplateVersion, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	entryID := ""
	if entry, ok := v.Entry(); ok {
		entryID = entry.ID
	}

	for _, node := range v.Nodes {
		safeID := sanitizeID(node.ID)
		opener, closer := shape(node.Kind(), node.ID == entryID)
		label := escape(v.Label(node.ID))
		if kind := node.Kind(); kind != "" {
			label = fmt.Sprintf("%s <br/> <i>%s</i>", label, kind)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)

		for _, e := range v.Outgoing(node.ID) {
			arrow := "-->"
			if c := strings.TrimSpace(e.Condition); c != "" {
				arrow = fmt.Sprintf("-- \"%s\" -->", escape(c))
			}
			fmt.Fprintf(&sb, "    %s %s %s\n", safeID, arrow, sanitizeID(e.To))
		}
		if r, ok := node.Config.(*domain.RouterConfig); ok && r.DefaultTarget != "" {
			fmt.Fprintf(&sb, "    %s -. \"default\" .-> %s\n", safeID, sanitizeID(r.DefaultTarget))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Session path\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.Visited {
			safeID := sanitizeID(id)
			if safeID == "" || seen[safeID] {
				continue
			}
			seen[safeID] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
		}
		if overlay.Current != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeID(overlay.Current))
		}
	}
	return sb.String()
}

var idReplacer = strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")

func sanitizeID(id string) string {
	return idReplacer.Replace(id)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
