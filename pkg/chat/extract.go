package chat

import (
	"encoding/json"
	"regexp"
	"strings"
)

// CompletedMessage is shown in clean mode when a reply held nothing but tool calls.
const CompletedMessage = "✓ Task completed successfully"

var (
	callStart    = regexp.MustCompile(`^[A-Za-z_][\w.-]*\s*:\s*\{`)
	callLine     = regexp.MustCompile(`^\w+:\s*{`)
	bareJSONLine = regexp.MustCompile(`^\s*["']\w+["']:\s*`)
)

// ParsedToolCall is one tool invocation found in model output.
type ParsedToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Extract finds every tool call of the form
//
//	tool_name: { "name": "tool_name", "args": { ... } }
//
// in text, in order. The JSON object may span several lines. Fragments that do not parse are
// skipped one line at a time, so a broken call never hides the calls after it.
func Extract(text string) []ParsedToolCall {
	lines := strings.Split(text, "\n")
	var calls []ParsedToolCall

	for i := 0; i < len(lines); {
		line := strings.TrimSpace(lines[i])
		if !callStart.MatchString(line) {
			i++
			continue
		}

		block, next := accumulate(lines, i, line[strings.Index(line, "{"):])
		call, ok := decodeCall(block)
		if !ok {
			i++
			continue
		}
		calls = append(calls, call)
		i = next
	}
	return calls
}

// accumulate joins lines starting at first until brace depth returns to zero or input ends.
// It returns the joined text and the index of the line after the block.
func accumulate(lines []string, start int, first string) (string, int) {
	var sb strings.Builder
	depth := 0
	j := start
	for j < len(lines) {
		part := first
		if j > start {
			part = strings.TrimSpace(lines[j])
			sb.WriteByte('\n')
		}
		sb.WriteString(part)
		depth += strings.Count(part, "{") - strings.Count(part, "}")
		j++
		if depth <= 0 {
			break
		}
	}
	return sb.String(), j
}

// balancedSpan returns the first {...} span of s.
func balancedSpan(s string) (string, bool) {
	open := strings.IndexByte(s, '{')
	if open < 0 {
		return "", false
	}
	depth := 0
	for k := open; k < len(s); k++ {
		switch s[k] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[open : k+1], true
			}
		}
	}
	return "", false
}

func decodeCall(block string) (ParsedToolCall, bool) {
	span, ok := balancedSpan(block)
	if !ok {
		return ParsedToolCall{}, false
	}
	var call ParsedToolCall
	if err := json.Unmarshal([]byte(span), &call); err != nil || call.Name == "" {
		return ParsedToolCall{}, false
	}
	if call.Args == nil {
		call.Args = map[string]any{}
	}
	return call, true
}

// Clean strips tool-call lines, bare JSON key lines and blank lines from a reply for display.
func Clean(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || callLine.MatchString(trimmed) || bareJSONLine.MatchString(trimmed) {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.TrimSpace(strings.Join(kept, "\n"))
	if out == "" {
		return CompletedMessage
	}
	return out
}
