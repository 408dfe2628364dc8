package dsl

import (
	"fmt"

	"github.com/aretw0/replyflow/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	id      string
	config  domain.NodeConfig
	edges   []domain.Edge
	label   string
	builder *Builder
}

// Send makes the node emit fixed text and chain to the next node.
func (n *NodeBuilder) Send(text string) *NodeBuilder {
	n.config = &domain.SendMessageConfig{Text: text}
	return n
}

// Buttons attaches quick replies to a send node.
func (n *NodeBuilder) Buttons(buttons ...domain.Button) *NodeBuilder {
	if cfg, ok := n.expect(domain.NodeKindSendMessage).(*domain.SendMessageConfig); ok {
		cfg.Buttons = append(cfg.Buttons, buttons...)
	}
	return n
}

// Tags labels the messages of a send node.
func (n *NodeBuilder) Tags(tags ...string) *NodeBuilder {
	if cfg, ok := n.expect(domain.NodeKindSendMessage).(*domain.SendMessageConfig); ok {
		cfg.Tags = append(cfg.Tags, tags...)
	}
	return n
}

// WaitForReply makes a send node end the turn after advancing.
func (n *NodeBuilder) WaitForReply() *NodeBuilder {
	if cfg, ok := n.expect(domain.NodeKindSendMessage).(*domain.SendMessageConfig); ok {
		cfg.WaitForReply = true
	}
	return n
}

// AIReply makes the node answer every turn with a grounded model reply.
func (n *NodeBuilder) AIReply(prompt string) *NodeBuilder {
	n.config = &domain.AIReplyConfig{SystemPrompt: prompt}
	return n
}

// Agent makes the node a step-based slot-collecting agent.
func (n *NodeBuilder) Agent(prompt string, steps ...domain.AgentStep) *NodeBuilder {
	n.config = &domain.AIAgentConfig{SystemPrompt: prompt, Steps: steps}
	return n
}

// Slots declares the values an agent collects.
func (n *NodeBuilder) Slots(slots ...domain.SlotDefinition) *NodeBuilder {
	if cfg, ok := n.expect(domain.NodeKindAIAgent).(*domain.AIAgentConfig); ok {
		cfg.Slots = append(cfg.Slots, slots...)
	}
	return n
}

// MaxQuestions bounds how many questions an agent may ask.
func (n *NodeBuilder) MaxQuestions(max int) *NodeBuilder {
	if cfg, ok := n.expect(domain.NodeKindAIAgent).(*domain.AIAgentConfig); ok {
		cfg.MaxQuestions = max
	}
	return n
}

// ToolAgent makes the node a tool-capable agent loop.
func (n *NodeBuilder) ToolAgent(prompt string, tools ...domain.ToolDefinition) *NodeBuilder {
	n.config = &domain.LangchainAgentConfig{SystemPrompt: prompt, Tools: tools}
	return n
}

// MaxIterations caps the turns a tool agent may run.
func (n *NodeBuilder) MaxIterations(max int) *NodeBuilder {
	if cfg, ok := n.expect(domain.NodeKindLangchainAgent).(*domain.LangchainAgentConfig); ok {
		cfg.MaxIterations = max
	}
	return n
}

// DetectIntent classifies the incoming message into variable.
func (n *NodeBuilder) DetectIntent(variable string, intents ...string) *NodeBuilder {
	cfg := &domain.DetectIntentConfig{Variable: variable}
	for _, name := range intents {
		cfg.Intents = append(cfg.Intents, domain.IntentDefinition{Name: name})
	}
	n.config = cfg
	return n
}

// Router makes the node pick one outgoing edge using mode.
func (n *NodeBuilder) Router(mode domain.RouterMatchMode) *NodeBuilder {
	n.config = &domain.RouterConfig{MatchMode: mode}
	return n
}

// Variable sets the variable a variable-mode router compares against.
func (n *NodeBuilder) Variable(name string) *NodeBuilder {
	if cfg, ok := n.expect(domain.NodeKindRouter).(*domain.RouterConfig); ok {
		cfg.Variable = name
	}
	return n
}

// Default sets the router fallback target.
func (n *NodeBuilder) Default(target string) *NodeBuilder {
	if cfg, ok := n.expect(domain.NodeKindRouter).(*domain.RouterConfig); ok {
		cfg.DefaultTarget = target
	}
	return n
}

// Handoff makes the node transfer the conversation to a human.
func (n *NodeBuilder) Handoff(topic, summary, message string) *NodeBuilder {
	n.config = &domain.HandoffConfig{Topic: topic, Summary: summary, Message: message}
	return n
}

// Config sets an arbitrary config, for settings without a shortcut.
func (n *NodeBuilder) Config(cfg domain.NodeConfig) *NodeBuilder {
	n.config = cfg
	return n
}

// Label sets the human-readable node name.
func (n *NodeBuilder) Label(label string) *NodeBuilder {
	n.label = label
	return n
}

// Go adds an unconditional transition to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.edges = append(n.edges, domain.Edge{To: target})
	return n
}

// Branch adds a conditional transition to the target node.
func (n *NodeBuilder) Branch(condition string, target string) *NodeBuilder {
	n.edges = append(n.edges, domain.Edge{Condition: condition, To: target})
	return n
}

// Add continues with another node of the same builder.
func (n *NodeBuilder) Add(id string) *NodeBuilder {
	return n.builder.Add(id)
}

func (n *NodeBuilder) expect(kind domain.NodeKind) domain.NodeConfig {
	if n.config == nil || n.config.Kind() != kind {
		n.builder.fail(fmt.Errorf("node %q: option requires a %s node", n.id, kind))
		return nil
	}
	return n.config
}
