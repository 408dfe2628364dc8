package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencePattern         = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\\s*\\n?(.*?)\\s*```$")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	doubleCommaPattern   = regexp.MustCompile(`,(\s*,)+`)
	danglingValuePattern = regexp.MustCompile(`^(\s*:)\s*([,}\]])`)
	danglingEndPattern   = regexp.MustCompile(`^(\s*:)\s*$`)
)

// StripCodeFence removes a surrounding markdown code fence, if any.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ParseJSON decodes model output into v using ExtractJSON.
func ParseJSON(raw string, v any) error {
	msg, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(msg, v)
}

// ExtractJSON returns the first JSON value in model output. It strips code
// fences and leading prose, tries a direct parse, then one bounded repair pass.
// When the repaired text still does not parse the error of the first attempt is
// returned, so callers see what the model actually sent.
func ExtractJSON(raw string) (json.RawMessage, error) {
	text := StripCodeFence(raw)
	if start := strings.IndexAny(text, "{["); start > 0 {
		text = text[start:]
	}

	var msg json.RawMessage
	firstErr := decodeFirst(text, &msg)
	if firstErr == nil {
		return msg, nil
	}
	if err := decodeFirst(RepairJSON(text), &msg); err != nil {
		return nil, firstErr
	}
	return msg, nil
}

// decodeFirst decodes the first JSON value of s, ignoring trailing prose.
func decodeFirst(s string, v any) error {
	return json.NewDecoder(strings.NewReader(s)).Decode(v)
}

// RepairJSON fixes the malformations models commonly produce: trailing commas,
// doubled commas, keys without a value and unclosed objects or arrays.
// Valid input is returned unchanged.
func RepairJSON(s string) string {
	if json.Valid([]byte(s)) {
		return s
	}
	s = closeOpenString(s)
	s = rewriteOutsideStrings(s, func(run string, afterKey, last bool) string {
		run = doubleCommaPattern.ReplaceAllString(run, ",")
		if afterKey {
			run = danglingValuePattern.ReplaceAllString(run, "$1 null$2")
			if last {
				run = danglingEndPattern.ReplaceAllString(run, "$1 null")
			}
		}
		return run
	})
	s = balanceBrackets(s)
	return rewriteOutsideStrings(s, func(run string, _, _ bool) string {
		return trailingCommaPattern.ReplaceAllString(run, "$1")
	})
}

// rewriteOutsideStrings applies fn to each run of text between string
// literals, leaving the literals untouched. afterKey is set when the run
// follows a literal, last when it ends the input.
func rewriteOutsideStrings(s string, fn func(run string, afterKey, last bool) string) string {
	var b strings.Builder
	start, afterKey := 0, false
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				b.WriteString(s[start : i+1])
				start, afterKey = i+1, true
			}
			continue
		}
		if c == '"' {
			b.WriteString(fn(s[start:i], afterKey, false))
			start, inString = i, true
		}
	}
	if inString {
		b.WriteString(s[start:])
	} else {
		b.WriteString(fn(s[start:], afterKey, true))
	}
	return b.String()
}

// closeOpenString terminates a string literal cut off by truncated output.
func closeOpenString(s string) string {
	inString, escaped := false, false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && inString:
			escaped = true
		case r == '"':
			inString = !inString
		}
	}
	if inString {
		return s + `"`
	}
	return s
}

// balanceBrackets appends the closers for every unclosed { or [, ignoring
// brackets inside string literals.
func balanceBrackets(s string) string {
	var stack []rune
	inString, escaped := false, false
	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == r {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 {
		return s
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(s, " \t\r\n"))
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteRune(stack[i])
	}
	return b.String()
}
