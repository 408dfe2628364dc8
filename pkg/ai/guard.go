package ai

import "strings"

// Guard rejects replies that contain phrases the business never wants sent,
// such as promises of refunds or legal advice.
type Guard struct {
	phrases []string
}

// NewGuard creates a guard for the given phrases. Matching is case-insensitive.
func NewGuard(phrases ...string) *Guard {
	g := &Guard{}
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			g.phrases = append(g.phrases, p)
		}
	}
	return g
}

// Check returns the first banned phrase contained in text.
func (g *Guard) Check(text string) (string, bool) {
	if g == nil || len(g.phrases) == 0 {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, p := range g.phrases {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}
