package domain

// TurnResult is what one call to the interpreter produced.
type TurnResult struct {
	Session    *Session          `json:"session"`
	Messages   []OutgoingMessage `json:"messages,omitempty"`
	ToolCalls  []ToolCall        `json:"tool_calls,omitempty"`
	Escalation *Escalation       `json:"escalation,omitempty"`
	Visited    []string          `json:"visited,omitempty"`
	// Terminal is set when the session no longer runs automation: handed off or completed.
	Terminal bool `json:"terminal,omitempty"`
	// Skipped is set when the session was paused or handed off and no automation ran.
	Skipped bool `json:"skipped,omitempty"`
	// Degraded is set when a provider failed and the deferral reply was sent.
	Degraded bool `json:"degraded,omitempty"`
}
