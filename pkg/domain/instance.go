package domain

import "time"

// TriggerType is the inbound event class a trigger listens to.
type TriggerType string

const (
	TriggerDirectMessage TriggerType = "direct_message"
	TriggerStoryReply    TriggerType = "story_reply"
	TriggerComment       TriggerType = "comment"
)

// MatchMode controls how a trigger compares the message text.
type MatchMode string

const (
	MatchAny     MatchMode = "any"
	MatchKeyword MatchMode = "keyword"
	MatchExact   MatchMode = "exact"
	MatchRegex   MatchMode = "regex"
)

// TriggerFilters narrow a trigger beyond its type.
type TriggerFilters struct {
	Keywords         []string `json:"keywords,omitempty" yaml:"keywords"`
	ExcludeKeywords  []string `json:"exclude_keywords,omitempty" yaml:"exclude_keywords"`
	Pattern          string   `json:"pattern,omitempty" yaml:"pattern" validate:"omitempty,regexp"`
	Channels         []string `json:"channels,omitempty" yaml:"channels"`
	FirstMessageOnly bool     `json:"first_message_only,omitempty" yaml:"first_message_only"`
}

// Trigger decides whether an inbound event starts an automation.
type Trigger struct {
	Type      TriggerType    `json:"type" yaml:"type" validate:"required"`
	MatchMode MatchMode      `json:"match_mode" yaml:"match_mode" validate:"omitempty,oneof=any keyword exact regex"`
	Filters   TriggerFilters `json:"filters,omitempty" yaml:"filters"`
}

// Instance deploys one template version in a workspace.
type Instance struct {
	ID                string    `json:"id" validate:"required"`
	WorkspaceID       string    `json:"workspace_id" validate:"required"`
	TemplateVersionID string    `json:"template_version_id" validate:"required"`
	Name              string    `json:"name,omitempty"`
	Active            bool      `json:"active"`
	Triggers          []Trigger `json:"triggers,omitempty" validate:"dive"`
	CreatedAt         time.Time `json:"created_at"`
}

// EffectiveTriggers returns the instance triggers, or those of the version when none are set.
func (i *Instance) EffectiveTriggers(v *TemplateVersion) []Trigger {
	if len(i.Triggers) > 0 || v == nil {
		return i.Triggers
	}
	return v.Triggers
}
