package ai

// ReplyOutput is the contract of a single grounded answer.
type ReplyOutput struct {
	ReplyText string `json:"reply_text" jsonschema:"description=The message to send to the customer"`
}

// IntentOutput is the contract of the intent classifier.
type IntentOutput struct {
	Intent     string  `json:"intent" jsonschema:"description=One of the allowed intent names or unknown"`
	Confidence float64 `json:"confidence,omitempty" jsonschema:"minimum=0,maximum=1"`
}

// AgentOutput is the contract of a step-based agent turn.
type AgentOutput struct {
	ReplyText       string            `json:"reply_text" jsonschema:"description=The message to send to the customer"`
	AdvanceStep     bool              `json:"advance_step,omitempty" jsonschema:"description=True when the current step goal is met"`
	EndConversation bool              `json:"end_conversation,omitempty" jsonschema:"description=True when an end condition is met"`
	StepSummary     string            `json:"step_summary,omitempty"`
	CollectedFields map[string]string `json:"collected_fields,omitempty" jsonschema:"description=Slot values learned this turn"`
	MissingFields   []string          `json:"missing_fields,omitempty" jsonschema:"description=Required slots still unknown"`
	AskedQuestion   bool              `json:"asked_question,omitempty" jsonschema:"description=True when reply_text asks the customer a question"`
	ShouldStop      bool              `json:"should_stop,omitempty" jsonschema:"description=True when a stop condition is met and a human must take over"`
	StopReason      string            `json:"stop_reason,omitempty"`
}

// ToolRequest is a tool invocation proposed by the model.
type ToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Rationale string         `json:"rationale,omitempty"`
}

// ToolAgentOutput is the contract of a tool-capable agent turn.
type ToolAgentOutput struct {
	ReplyText       string        `json:"reply_text" jsonschema:"description=The message to send to the customer"`
	ShouldContinue  bool          `json:"should_continue,omitempty" jsonschema:"description=True when the task needs another turn"`
	AskedQuestion   bool          `json:"asked_question,omitempty"`
	EndConversation bool          `json:"end_conversation,omitempty"`
	ShouldStop      bool          `json:"should_stop,omitempty" jsonschema:"description=True when a stop condition is met and a human must take over"`
	StopReason      string        `json:"stop_reason,omitempty"`
	ToolCalls       []ToolRequest `json:"tool_calls,omitempty"`
}
