package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/aretw0/replyflow/pkg/domain"
	playground "github.com/go-playground/validator/v10"
)

// Error lists every problem found in a template version.
type Error struct {
	VersionID string
	Problems  []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("version %s: found %d errors:\n- %s", e.VersionID, len(e.Problems), strings.Join(e.Problems, "\n- "))
}

func (e *Error) Unwrap() error { return domain.ErrInvalidInput }

var (
	once     sync.Once
	instance *playground.Validate
)

// Struct returns the shared struct validator with the custom rules registered.
func Struct() *playground.Validate {
	once.Do(func() {
		instance = playground.New(playground.WithRequiredStructEnabled())
		if err := instance.RegisterValidation("regexp", validateRegexp); err != nil {
			panic(err)
		}
	})
	return instance
}

func validateRegexp(fl playground.FieldLevel) bool {
	_, err := regexp.Compile(fl.Field().String())
	return err == nil
}

// ValidateVersion checks a template version before it can be published:
// struct constraints, every node config, broken links and unreachable nodes
// starting from the entry node.
func ValidateVersion(v *domain.TemplateVersion) error {
	if v == nil {
		return &Error{Problems: []string{"version is nil"}}
	}
	var problems []string
	problems = append(problems, structProblems("version", v)...)

	ids := make(map[string]bool, len(v.Nodes))
	for i, n := range v.Nodes {
		if ids[n.ID] {
			problems = append(problems, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		ids[n.ID] = true

		if n.Config == nil {
			problems = append(problems, fmt.Sprintf("node %q (index %d) has no config", n.ID, i))
			continue
		}
		problems = append(problems, structProblems("node "+n.ID, n.Config)...)
		problems = append(problems, nodeProblems(v, &v.Nodes[i])...)
	}

	for _, e := range v.Edges {
		if !ids[e.From] {
			problems = append(problems, fmt.Sprintf("edge %s -> %s: unknown source", e.From, e.To))
		}
		if !ids[e.To] {
			problems = append(problems, fmt.Sprintf("edge %s -> %s: missing node '%s'", e.From, e.To, e.To))
		}
	}

	if v.EntryNodeID != "" && !ids[v.EntryNodeID] {
		problems = append(problems, fmt.Sprintf("entry node %q not found", v.EntryNodeID))
	} else if len(problems) == 0 {
		problems = append(problems, reachability(v)...)
	}

	if len(problems) > 0 {
		return &Error{VersionID: v.ID, Problems: problems}
	}
	return nil
}

func nodeProblems(v *domain.TemplateVersion, n *domain.Node) []string {
	var problems []string
	switch cfg := n.Config.(type) {
	case *domain.RouterConfig:
		if cfg.DefaultTarget != "" {
			if _, ok := v.Node(cfg.DefaultTarget); !ok {
				problems = append(problems, fmt.Sprintf("router %q: default target %q not found", n.ID, cfg.DefaultTarget))
			}
		}
		for _, e := range v.Outgoing(n.ID) {
			cond := strings.TrimSpace(e.Condition)
			switch {
			case cond == "":
			case cfg.MatchMode == domain.RouterMatchRegex:
				if _, err := regexp.Compile(cond); err != nil {
					problems = append(problems, fmt.Sprintf("router %q: edge to %s: invalid pattern: %v", n.ID, e.To, err))
				}
			case cfg.MatchMode == domain.RouterMatchVariable && cfg.Variable == "" && !strings.Contains(cond, "=="):
				problems = append(problems, fmt.Sprintf("router %q: edge to %s: condition must be 'name == value'", n.ID, e.To))
			}
		}
	case *domain.AIAgentConfig:
		seen := make(map[string]bool, len(cfg.Steps))
		for _, st := range cfg.Steps {
			if seen[st.ID] {
				problems = append(problems, fmt.Sprintf("agent %q: duplicate step %q", n.ID, st.ID))
			}
			seen[st.ID] = true
		}
	case *domain.LangchainAgentConfig:
		if cfg.ToolChoice != "" && cfg.ToolChoice != "auto" && cfg.ToolChoice != "none" && cfg.ToolChoice != "required" {
			found := false
			for _, t := range cfg.Tools {
				found = found || t.Name == cfg.ToolChoice
			}
			if !found {
				problems = append(problems, fmt.Sprintf("agent %q: tool_choice %q is not a declared tool", n.ID, cfg.ToolChoice))
			}
		}
	}
	return problems
}

// reachability walks edges and router defaults from the entry node.
func reachability(v *domain.TemplateVersion) []string {
	entry, ok := v.Entry()
	if !ok {
		return []string{"version has no entry node"}
	}

	visited := make(map[string]bool, len(v.Nodes))
	queue := []string{entry.ID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		for _, e := range v.Outgoing(current) {
			queue = append(queue, e.To)
		}
		if n, ok := v.Node(current); ok {
			if r, ok := n.Config.(*domain.RouterConfig); ok && r.DefaultTarget != "" {
				queue = append(queue, r.DefaultTarget)
			}
		}
	}

	var problems []string
	for _, n := range v.Nodes {
		if !visited[n.ID] {
			problems = append(problems, fmt.Sprintf("node %q is unreachable from %q", n.ID, entry.ID))
		}
	}
	return problems
}

func structProblems(scope string, s any) []string {
	err := Struct().Struct(s)
	if err == nil {
		return nil
	}
	var verrs playground.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{fmt.Sprintf("%s: %v", scope, err)}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s: %s failed '%s'", scope, fe.Namespace(), fe.Tag()))
	}
	return out
}
