package analyses

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	leadingFence  = regexp.MustCompile("^```(?:json|JSON)?\\s*")
	trailingFence = regexp.MustCompile("\\s*```$")
)

// ParseTolerant parses model output into an object, repairing truncated
// output and raw newlines inside strings when the direct parse fails.
// The original syntax error is returned when no repair succeeds.
func ParseTolerant(text string) (map[string]any, error) {
	cleaned := stripFences(text)

	parsed, err := parseObject(cleaned)
	if err == nil {
		return parsed, nil
	}
	if !looksTruncated(err) {
		return nil, err
	}

	escaped := escapeNewlinesInStrings(cleaned)
	candidates := []string{
		closeOpenStructures(cleaned),
		escaped,
		closeOpenStructures(escaped),
	}
	for _, candidate := range candidates {
		if candidate == cleaned {
			continue
		}
		if repaired, repairErr := parseObject(candidate); repairErr == nil {
			return repaired, nil
		}
	}
	return nil, err
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func parseObject(text string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("model output is not a JSON object")
	}
	return out, nil
}

// looksTruncated matches the decoder errors produced by output cut off
// mid-structure, by control characters inside a string or by an escape
// sequence broken off at the cut.
func looksTruncated(err error) bool {
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return false
	}
	msg := syntaxErr.Error()
	return strings.Contains(msg, "unexpected end of JSON input") ||
		strings.Contains(msg, "in string literal") ||
		strings.Contains(msg, "in string escape code")
}

// closeOpenStructures terminates a dangling string and closes every open
// array and object in reverse order of opening. Text already ending in a
// closing bracket is returned unchanged.
func closeOpenStructures(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.HasSuffix(trimmed, "}") || strings.HasSuffix(trimmed, "]") {
		return trimmed
	}

	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(trimmed); i++ {
		ch := trimmed[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(trimmed)
	if inString {
		if escaped {
			// drop the dangling backslash so the closing quote is not escaped
			s := b.String()
			b.Reset()
			b.WriteString(s[:len(s)-1])
		}
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

// escapeNewlinesInStrings rewrites raw CR, LF and tab characters inside
// string values as escape sequences. Whitespace between tokens is kept.
func escapeNewlinesInStrings(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if !inString {
			if ch == '"' {
				inString = true
			}
			b.WriteByte(ch)
			continue
		}
		if escaped {
			escaped = false
			b.WriteByte(ch)
			continue
		}
		switch ch {
		case '\\':
			escaped = true
			b.WriteByte(ch)
		case '"':
			inString = false
			b.WriteByte(ch)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
