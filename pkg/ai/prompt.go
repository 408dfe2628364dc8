package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aretw0/replyflow/pkg/domain"
)

// DefaultHistoryLimit caps the transcript sent to a model.
const DefaultHistoryLimit = 20

// maxItemChars truncates a single knowledge item in the prompt, in runes.
const maxItemChars = 1500

// Section is a titled block of the system prompt.
type Section struct {
	Title string
	Body  string
}

// PromptInput is everything an executor knows about the turn.
type PromptInput struct {
	Instructions string
	Business     *domain.BusinessProfile
	Knowledge    []domain.KnowledgeItem
	Task         []Section
	History      []domain.Message
	Incoming     string
	HistoryLimit int
}

// BuildPrompt renders the system prompt and the chat transcript.
// History is trimmed to the most recent HistoryLimit messages, oldest first.
func BuildPrompt(in PromptInput) (string, []Message) {
	var b strings.Builder

	instructions := strings.TrimSpace(in.Instructions)
	if instructions == "" {
		instructions = "You are a helpful assistant answering direct messages for a business. Be brief and accurate."
	}
	writeSection(&b, "Instructions", instructions)

	if p := in.Business; p != nil {
		var pb strings.Builder
		fmt.Fprintf(&pb, "Name: %s\n", p.Name)
		if p.Description != "" {
			fmt.Fprintf(&pb, "About: %s\n", p.Description)
		}
		if p.Hours != "" {
			fmt.Fprintf(&pb, "Hours: %s\n", p.Hours)
		}
		if p.Website != "" {
			fmt.Fprintf(&pb, "Website: %s\n", p.Website)
		}
		if p.Tone != "" {
			fmt.Fprintf(&pb, "Tone of voice: %s\n", p.Tone)
		}
		writeSection(&b, "Business", pb.String())
	}

	if len(in.Knowledge) > 0 {
		var kb strings.Builder
		kb.WriteString("Answer only from the material below. If it does not cover the question, say you will check and get back.\n")
		for i, it := range in.Knowledge {
			content := it.Content
			if utf8.RuneCountInString(content) > maxItemChars {
				content = string([]rune(content)[:maxItemChars]) + "…"
			}
			fmt.Fprintf(&kb, "\n[%d] %s\n%s\n", i+1, it.Title, content)
		}
		writeSection(&b, "Knowledge", kb.String())
	}

	for _, s := range in.Task {
		writeSection(&b, s.Title, s.Body)
	}

	return strings.TrimSpace(b.String()), transcript(in.History, in.Incoming, in.HistoryLimit)
}

func writeSection(b *strings.Builder, title, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(b, "## %s\n%s\n\n", title, body)
}

func transcript(history []domain.Message, incoming string, limit int) []Message {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	msgs := make([]Message, 0, len(history)+1)
	for _, m := range history {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		msgs = append(msgs, Message{Role: roleOf(m.From), Content: text})
	}

	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return msgs
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == RoleUser && msgs[n-1].Content == incoming {
		return msgs
	}
	return append(msgs, Message{Role: RoleUser, Content: incoming})
}

func roleOf(from domain.Sender) Role {
	if from == domain.SenderCustomer {
		return RoleUser
	}
	return RoleAssistant
}

// Bullets renders items as a dash list, or "none".
func Bullets(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return "- " + strings.Join(items, "\n- ")
}

// contractInstructions tells a free-text model how to answer.
func contractInstructions(s *Schema) string {
	return "## Output\nRespond with a single JSON object and nothing else, matching this JSON Schema:\n" + s.JSON()
}
