package ai

import "strings"

// Capabilities lists the optional sampling parameters a model family accepts.
type Capabilities struct {
	Temperature     bool
	ReasoningEffort bool
}

// families is matched by prefix, most specific first.
var families = []struct {
	prefix string
	caps   Capabilities
}{
	{"gpt-5", Capabilities{ReasoningEffort: true}},
	{"o1", Capabilities{ReasoningEffort: true}},
	{"o3", Capabilities{ReasoningEffort: true}},
	{"o4", Capabilities{ReasoningEffort: true}},
	{"gpt-4", Capabilities{Temperature: true}},
	{"gpt-3.5", Capabilities{Temperature: true}},
	{"gemini-2.5", Capabilities{Temperature: true, ReasoningEffort: true}},
	{"gemini-3", Capabilities{Temperature: true, ReasoningEffort: true}},
	{"gemini-", Capabilities{Temperature: true}},
	{"claude-", Capabilities{Temperature: true}},
	{"mistral", Capabilities{Temperature: true}},
	{"llama", Capabilities{Temperature: true}},
}

// CapabilitiesOf returns what the family of model accepts. Unknown families accept nothing.
func CapabilitiesOf(model string) Capabilities {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	for _, f := range families {
		if strings.HasPrefix(m, f.prefix) {
			return f.caps
		}
	}
	return Capabilities{}
}

// applyCapabilities drops parameters the model family would reject.
func applyCapabilities(req *Request) {
	caps := CapabilitiesOf(req.Model)
	if !caps.Temperature {
		req.Temperature = nil
	}
	if !caps.ReasoningEffort {
		req.ReasoningEffort = ""
	}
}
