package domain

// NodeKind names a node behaviour.
type NodeKind string

const (
	NodeKindSendMessage    NodeKind = "send_message"
	NodeKindAIReply        NodeKind = "ai_reply"
	NodeKindAIAgent        NodeKind = "ai_agent"
	NodeKindLangchainAgent NodeKind = "langchain_agent"
	NodeKindDetectIntent   NodeKind = "detect_intent"
	NodeKindRouter         NodeKind = "router"
	NodeKindHandoff        NodeKind = "handoff"
)

// AllNodeKinds returns the closed set of node kinds, in declaration order.
func AllNodeKinds() []NodeKind {
	return []NodeKind{
		NodeKindSendMessage,
		NodeKindAIReply,
		NodeKindAIAgent,
		NodeKindLangchainAgent,
		NodeKindDetectIntent,
		NodeKindRouter,
		NodeKindHandoff,
	}
}

// NodeConfig is implemented only by the config variants in this package.
type NodeConfig interface {
	Kind() NodeKind
	sealed()
}

// Node is a vertex of a compiled automation graph.
type Node struct {
	ID     string     `json:"id" validate:"required"`
	Config NodeConfig `json:"-" validate:"-"`
}

// Kind returns the node behaviour, or an empty kind when the config is missing.
func (n Node) Kind() NodeKind {
	if n.Config == nil {
		return ""
	}
	return n.Config.Kind()
}

// ModelSettings selects a provider and model for an AI node.
type ModelSettings struct {
	Provider        string   `json:"provider,omitempty" mapstructure:"provider"`
	Model           string   `json:"model,omitempty" mapstructure:"model"`
	Temperature     *float64 `json:"temperature,omitempty" mapstructure:"temperature"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty" mapstructure:"reasoning_effort" validate:"omitempty,oneof=low medium high"`
}

// KnowledgeScope limits which knowledge items an AI node may consult.
type KnowledgeScope struct {
	ItemIDs         []string `json:"item_ids,omitempty" mapstructure:"item_ids"`
	TopK            int      `json:"top_k,omitempty" mapstructure:"top_k" validate:"gte=0"`
	BusinessProfile bool     `json:"business_profile,omitempty" mapstructure:"business_profile"`
	Disabled        bool     `json:"disabled,omitempty" mapstructure:"disabled"`
}

// Button is a quick-reply option attached to a static message.
type Button struct {
	Title   string `json:"title" mapstructure:"title" validate:"required"`
	Payload string `json:"payload,omitempty" mapstructure:"payload"`
}

// SendMessageConfig emits fixed text.
type SendMessageConfig struct {
	Text         string   `json:"text" mapstructure:"text" validate:"required"`
	Buttons      []Button `json:"buttons,omitempty" mapstructure:"buttons" validate:"dive"`
	Tags         []string `json:"tags,omitempty" mapstructure:"tags"`
	WaitForReply bool     `json:"wait_for_reply,omitempty" mapstructure:"wait_for_reply"`
}

// AIReplyConfig produces one grounded answer per turn.
type AIReplyConfig struct {
	SystemPrompt      string         `json:"system_prompt,omitempty" mapstructure:"system_prompt"`
	Model             ModelSettings  `json:"model" mapstructure:"model"`
	Knowledge         KnowledgeScope `json:"knowledge" mapstructure:"knowledge"`
	MaxReplySentences int            `json:"max_reply_sentences,omitempty" mapstructure:"max_reply_sentences" validate:"gte=0"`
	HistoryLimit      int            `json:"history_limit,omitempty" mapstructure:"history_limit" validate:"gte=0"`
}

// AgentStep is one stage of a multi-turn agent flow.
type AgentStep struct {
	ID             string   `json:"id" mapstructure:"id" validate:"required"`
	Goal           string   `json:"goal" mapstructure:"goal" validate:"required"`
	ExpectedFields []string `json:"expected_fields,omitempty" mapstructure:"expected_fields"`
}

// SlotDefinition declares a value the agent should collect.
type SlotDefinition struct {
	Name        string `json:"name" mapstructure:"name" validate:"required"`
	Description string `json:"description,omitempty" mapstructure:"description"`
	Required    bool   `json:"required,omitempty" mapstructure:"required"`
}

// AIAgentConfig drives a step-based, slot-collecting conversation.
type AIAgentConfig struct {
	SystemPrompt      string           `json:"system_prompt,omitempty" mapstructure:"system_prompt"`
	Model             ModelSettings    `json:"model" mapstructure:"model"`
	Knowledge         KnowledgeScope   `json:"knowledge" mapstructure:"knowledge"`
	Steps             []AgentStep      `json:"steps" mapstructure:"steps" validate:"min=1,dive"`
	Slots             []SlotDefinition `json:"slots,omitempty" mapstructure:"slots" validate:"dive"`
	EndConditions     []string         `json:"end_conditions,omitempty" mapstructure:"end_conditions"`
	StopConditions    []string         `json:"stop_conditions,omitempty" mapstructure:"stop_conditions"`
	MaxQuestions      int              `json:"max_questions,omitempty" mapstructure:"max_questions" validate:"gte=0"`
	MaxReplySentences int              `json:"max_reply_sentences,omitempty" mapstructure:"max_reply_sentences" validate:"gte=0"`
	HistoryLimit      int              `json:"history_limit,omitempty" mapstructure:"history_limit" validate:"gte=0"`
}

// ToolDefinition describes a tool the model may request. Execution belongs to the caller.
type ToolDefinition struct {
	Name        string         `json:"name" mapstructure:"name" validate:"required"`
	Description string         `json:"description,omitempty" mapstructure:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" mapstructure:"parameters"`
}

// LangchainAgentConfig drives a tool-capable agent loop.
type LangchainAgentConfig struct {
	SystemPrompt      string           `json:"system_prompt,omitempty" mapstructure:"system_prompt"`
	Model             ModelSettings    `json:"model" mapstructure:"model"`
	Knowledge         KnowledgeScope   `json:"knowledge" mapstructure:"knowledge"`
	Tools             []ToolDefinition `json:"tools,omitempty" mapstructure:"tools" validate:"dive"`
	ToolChoice        string           `json:"tool_choice,omitempty" mapstructure:"tool_choice"`
	MaxIterations     int              `json:"max_iterations,omitempty" mapstructure:"max_iterations" validate:"gte=0"`
	EndConditions     []string         `json:"end_conditions,omitempty" mapstructure:"end_conditions"`
	StopConditions    []string         `json:"stop_conditions,omitempty" mapstructure:"stop_conditions"`
	MaxReplySentences int              `json:"max_reply_sentences,omitempty" mapstructure:"max_reply_sentences" validate:"gte=0"`
	HistoryLimit      int              `json:"history_limit,omitempty" mapstructure:"history_limit" validate:"gte=0"`
}

// IntentDefinition is one label a classifier may return.
type IntentDefinition struct {
	Name        string `json:"name" mapstructure:"name" validate:"required"`
	Description string `json:"description,omitempty" mapstructure:"description"`
}

// DetectIntentConfig classifies the incoming message into a variable.
type DetectIntentConfig struct {
	Model        ModelSettings      `json:"model" mapstructure:"model"`
	Intents      []IntentDefinition `json:"intents" mapstructure:"intents" validate:"min=1,dive"`
	Instructions string             `json:"instructions,omitempty" mapstructure:"instructions"`
	Variable     string             `json:"variable,omitempty" mapstructure:"variable"`
}

// TargetVariable returns the variable the intent is stored under.
func (c *DetectIntentConfig) TargetVariable() string {
	if c.Variable == "" {
		return "intent"
	}
	return c.Variable
}

// RouterMatchMode selects how edge conditions are evaluated.
type RouterMatchMode string

const (
	RouterMatchIntent   RouterMatchMode = "intent"
	RouterMatchKeyword  RouterMatchMode = "keyword"
	RouterMatchVariable RouterMatchMode = "variable"
	RouterMatchRegex    RouterMatchMode = "regex"
)

// RouterConfig picks one outgoing edge. Edges are evaluated in declaration order.
type RouterConfig struct {
	MatchMode     RouterMatchMode `json:"match_mode" mapstructure:"match_mode" validate:"required,oneof=intent keyword variable regex"`
	Variable      string          `json:"variable,omitempty" mapstructure:"variable"`
	DefaultTarget string          `json:"default_target,omitempty" mapstructure:"default_target"`
}

// HandoffConfig transfers the conversation to a human.
type HandoffConfig struct {
	Topic   string `json:"topic,omitempty" mapstructure:"topic"`
	Summary string `json:"summary,omitempty" mapstructure:"summary"`
	Message string `json:"message,omitempty" mapstructure:"message"`
}

func (*SendMessageConfig) Kind() NodeKind    { return NodeKindSendMessage }
func (*AIReplyConfig) Kind() NodeKind        { return NodeKindAIReply }
func (*AIAgentConfig) Kind() NodeKind        { return NodeKindAIAgent }
func (*LangchainAgentConfig) Kind() NodeKind { return NodeKindLangchainAgent }
func (*DetectIntentConfig) Kind() NodeKind   { return NodeKindDetectIntent }
func (*RouterConfig) Kind() NodeKind         { return NodeKindRouter }
func (*HandoffConfig) Kind() NodeKind        { return NodeKindHandoff }

func (*SendMessageConfig) sealed()    {}
func (*AIReplyConfig) sealed()        {}
func (*AIAgentConfig) sealed()        {}
func (*LangchainAgentConfig) sealed() {}
func (*DetectIntentConfig) sealed()   {}
func (*RouterConfig) sealed()         {}
func (*HandoffConfig) sealed()        {}
