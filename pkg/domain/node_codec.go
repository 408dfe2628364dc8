package domain

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// NewNodeConfig returns an empty config value for kind.
func NewNodeConfig(kind NodeKind) (NodeConfig, error) {
	switch kind {
	case NodeKindSendMessage:
		return &SendMessageConfig{}, nil
	case NodeKindAIReply:
		return &AIReplyConfig{}, nil
	case NodeKindAIAgent:
		return &AIAgentConfig{}, nil
	case NodeKindLangchainAgent:
		return &LangchainAgentConfig{}, nil
	case NodeKindDetectIntent:
		return &DetectIntentConfig{}, nil
	case NodeKindRouter:
		return &RouterConfig{}, nil
	case NodeKindHandoff:
		return &HandoffConfig{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownNodeKind, kind)
}

// DecodeNodeConfig converts a loosely typed config map into the variant for kind.
// Unknown keys are rejected so authoring typos surface at load time.
func DecodeNodeConfig(kind NodeKind, raw map[string]any) (NodeConfig, error) {
	cfg, err := NewNodeConfig(kind)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return cfg, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", kind, err)
	}
	return cfg, nil
}

type nodeJSON struct {
	ID     string         `json:"id"`
	Type   NodeKind       `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// MarshalJSON writes the node as {"id", "type", "config"}.
func (n Node) MarshalJSON() ([]byte, error) {
	if n.Config == nil {
		return nil, fmt.Errorf("node %q has no config", n.ID)
	}
	raw, err := json.Marshal(n.Config)
	if err != nil {
		return nil, err
	}
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return json.Marshal(nodeJSON{ID: n.ID, Type: n.Config.Kind(), Config: cfg})
}

// UnmarshalJSON reads the {"id", "type", "config"} form.
func (n *Node) UnmarshalJSON(data []byte) error {
	var doc nodeJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	cfg, err := DecodeNodeConfig(doc.Type, doc.Config)
	if err != nil {
		return fmt.Errorf("node %q: %w", doc.ID, err)
	}
	n.ID = doc.ID
	n.Config = cfg
	return nil
}
