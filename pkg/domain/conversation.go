package domain

import "time"

// Channel separates real traffic from simulated traffic.
type Channel string

const (
	ChannelProduction Channel = "production"
	ChannelPreview    Channel = "preview"
)

// Sender identifies who wrote a message.
type Sender string

const (
	SenderCustomer   Sender = "customer"
	SenderAI         Sender = "ai"
	SenderAutomation Sender = "automation"
	SenderAgent      Sender = "agent"
)

// Persona shapes the simulated customer in preview conversations.
type Persona struct {
	Name    string         `json:"name,omitempty"`
	Handle  string         `json:"handle,omitempty"`
	Locale  string         `json:"locale,omitempty"`
	Profile map[string]any `json:"profile,omitempty"`
}

// Conversation is a DM thread between a business account and a customer.
type Conversation struct {
	ID          string   `json:"id"`
	WorkspaceID string   `json:"workspace_id"`
	AccountID   string   `json:"account_id"`
	ContactName string   `json:"contact_name,omitempty"`
	Channel     Channel  `json:"channel"`
	Persona     *Persona `json:"persona,omitempty"`
}

// Message is one entry of a conversation transcript.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	From           Sender    `json:"from"`
	Text           string    `json:"text"`
	Buttons        []Button  `json:"buttons,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// OutgoingMessage is a reply produced by a turn, before persistence.
type OutgoingMessage struct {
	ID      string   `json:"id,omitempty"`
	From    Sender   `json:"from"`
	Text    string   `json:"text"`
	Buttons []Button `json:"buttons,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	NodeID  string   `json:"node_id,omitempty"`
}

// KnowledgeItem is a document or snippet the workspace has authored.
type KnowledgeItem struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// BusinessProfile describes the business to the model.
type BusinessProfile struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Tone        string `json:"tone,omitempty"`
	Hours       string `json:"hours,omitempty"`
	Website     string `json:"website,omitempty"`
}

// Escalation asks a human to take over a conversation.
type Escalation struct {
	ConversationID string `json:"conversation_id"`
	SessionID      string `json:"session_id"`
	Topic          string `json:"topic"`
	Reason         string `json:"reason"`
	Summary        string `json:"summary"`
}

// MessageContext carries routing metadata for trigger evaluation.
type MessageContext struct {
	Channel        string `json:"channel,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	FirstMessage   bool   `json:"first_message,omitempty"`
}

// ToolCall is a tool invocation requested by an agent node. The caller executes it.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Rationale string         `json:"rationale,omitempty"`
}
