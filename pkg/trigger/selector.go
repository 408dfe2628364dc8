// Package trigger decides which automation instance, if any, handles an inbound event.
package trigger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/aretw0/replyflow/internal/logging"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/aretw0/replyflow/pkg/ports"
)

// Outcome explains what happened to one candidate instance.
type Outcome string

const (
	OutcomeInactive            Outcome = "inactive"
	OutcomeVersionUnavailable  Outcome = "version_unavailable"
	OutcomeVersionNotPublished Outcome = "version_not_published"
	OutcomeWrongTriggerType    Outcome = "wrong_trigger_type"
	OutcomeFilterMismatch      Outcome = "filter_mismatch"
	OutcomeAccepted            Outcome = "accepted"
	// OutcomeShadowed is an instance that matched after another one already won.
	OutcomeShadowed Outcome = "shadowed"
)

// Diagnostic is the verdict for one candidate instance.
type Diagnostic struct {
	InstanceID string  `json:"instance_id"`
	Outcome    Outcome `json:"outcome"`
	Reason     string  `json:"reason,omitempty"`
}

// Match is the instance chosen to handle the event.
type Match struct {
	Instance *domain.Instance
	Version  *domain.TemplateVersion
	Trigger  domain.Trigger
}

// Selection is the result of Select. Match is nil when no instance accepted the event.
type Selection struct {
	Match       *Match
	Diagnostics []Diagnostic
}

// Request describes the inbound event.
type Request struct {
	WorkspaceID string
	Type        domain.TriggerType
	Text        string
	Context     domain.MessageContext
}

// Selector evaluates the triggers of every instance in a workspace.
type Selector struct {
	instances ports.InstanceRepository
	versions  ports.VersionRepository
	logger    *slog.Logger
}

// Option configures a Selector.
type Option func(*Selector)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSelector creates a selector.
func NewSelector(instances ports.InstanceRepository, versions ports.VersionRepository, opts ...Option) *Selector {
	s := &Selector{instances: instances, versions: versions, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns the first accepting instance, ordered by creation time and
// then ID, plus one diagnostic per instance. Finding no match is not an error.
func (s *Selector) Select(ctx context.Context, req Request) (*Selection, error) {
	if req.WorkspaceID == "" {
		return nil, domain.NewInputError("workspace_id", "is required")
	}
	if req.Type == "" {
		return nil, domain.NewInputError("trigger_type", "is required")
	}

	candidates, err := s.instances.ListInstances(ctx, req.WorkspaceID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list instances", Err: err}
	}
	slices.SortStableFunc(candidates, func(a, b *domain.Instance) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	sel := &Selection{Diagnostics: make([]Diagnostic, 0, len(candidates))}
	for _, inst := range candidates {
		d, match := s.evaluate(ctx, inst, req)
		if match != nil {
			if sel.Match == nil {
				sel.Match = match
			} else {
				d.Outcome = OutcomeShadowed
				d.Reason = "instance " + sel.Match.Instance.ID + " matched first"
			}
		}
		sel.Diagnostics = append(sel.Diagnostics, d)
	}

	if sel.Match != nil {
		s.logger.Debug("automation selected", "workspace_id", req.WorkspaceID, "instance_id", sel.Match.Instance.ID)
	} else {
		s.logger.Debug("no automation matched", "workspace_id", req.WorkspaceID, "candidates", len(candidates))
	}
	return sel, nil
}

func (s *Selector) evaluate(ctx context.Context, inst *domain.Instance, req Request) (Diagnostic, *Match) {
	d := Diagnostic{InstanceID: inst.ID}
	if !inst.Active {
		d.Outcome, d.Reason = OutcomeInactive, "instance is disabled"
		return d, nil
	}

	v, err := s.versions.Version(ctx, inst.TemplateVersionID)
	if err != nil {
		d.Outcome = OutcomeVersionUnavailable
		if errors.Is(err, domain.ErrNotFound) {
			d.Reason = "version " + inst.TemplateVersionID + " does not exist"
		} else {
			d.Reason = err.Error()
			s.logger.Warn("version lookup failed", "instance_id", inst.ID, "err", err)
		}
		return d, nil
	}
	if !v.Published() {
		d.Outcome, d.Reason = OutcomeVersionNotPublished, "version "+v.ID+" is "+string(v.Status)
		return d, nil
	}

	var typed []domain.Trigger
	for _, t := range inst.EffectiveTriggers(v) {
		if t.Type == req.Type {
			typed = append(typed, t)
		}
	}
	if len(typed) == 0 {
		d.Outcome, d.Reason = OutcomeWrongTriggerType, "no "+string(req.Type)+" trigger"
		return d, nil
	}

	var reasons []string
	for _, t := range typed {
		ok, reason := Matches(t, req.Text, req.Context)
		if ok {
			d.Outcome = OutcomeAccepted
			return d, &Match{Instance: inst, Version: v, Trigger: t}
		}
		reasons = append(reasons, reason)
	}
	d.Outcome, d.Reason = OutcomeFilterMismatch, strings.Join(reasons, "; ")
	return d, nil
}

// Matches evaluates one trigger against a message. When it does not match,
// the reason names the first filter that rejected it.
func Matches(t domain.Trigger, text string, mc domain.MessageContext) (bool, string) {
	f := t.Filters
	lower := strings.ToLower(text)

	if len(f.Channels) > 0 && !slices.Contains(f.Channels, mc.Channel) {
		return false, fmt.Sprintf("channel %q not in %v", mc.Channel, f.Channels)
	}
	if f.FirstMessageOnly && !mc.FirstMessage {
		return false, "only the first message of a conversation triggers"
	}
	for _, kw := range f.ExcludeKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(lower, kw) {
			return false, fmt.Sprintf("excluded keyword %q", kw)
		}
	}

	switch t.MatchMode {
	case "", domain.MatchAny:
		return true, ""

	case domain.MatchKeyword:
		for _, kw := range f.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(lower, kw) {
				return true, ""
			}
		}
		return false, "no keyword matched"

	case domain.MatchExact:
		trimmed := strings.TrimSpace(text)
		for _, kw := range f.Keywords {
			if strings.EqualFold(trimmed, strings.TrimSpace(kw)) {
				return true, ""
			}
		}
		return false, "text is not an exact keyword"

	case domain.MatchRegex:
		if f.Pattern == "" {
			return false, "regex trigger without pattern"
		}
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return false, "invalid pattern: " + err.Error()
		}
		if re.MatchString(text) {
			return true, ""
		}
		return false, "pattern did not match"
	}
	return false, "unknown match mode " + string(t.MatchMode)
}
