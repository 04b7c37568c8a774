package agent

import (
	"encoding/json"
	"strings"
)

// ToolCall is a single tool invocation extracted from model output.
type ToolCall struct {
	Name       string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
}

// ExtractToolCall parses raw completion text into a tool call. Models do
// not reliably emit clean JSON, so candidates are tried in priority order:
//
//  1. fenced blocks labeled json
//  2. any fenced blocks
//  3. a balanced-brace object in free text
//  4. a balanced-bracket array in free text (first element)
//
// Every parse failure falls through to the next strategy; total failure
// returns ok=false. This function never panics.
func ExtractToolCall(text string) (*ToolCall, bool) {
	for _, block := range fencedBlocks(text, true) {
		if call, ok := parseCandidate(block); ok {
			return call, true
		}
	}
	for _, block := range fencedBlocks(text, false) {
		if call, ok := parseCandidate(block); ok {
			return call, true
		}
	}
	if body, ok := balancedSlice(text, '{', '}'); ok {
		if call, ok := parseCandidate(body); ok {
			return call, true
		}
	}
	if body, ok := balancedSlice(text, '[', ']'); ok {
		if call, ok := parseCandidate(body); ok {
			return call, true
		}
	}
	return nil, false
}

// parseCandidate decodes a JSON object (or array, taking the first element)
// and accepts it only when it carries a string tool_name.
func parseCandidate(s string) (*ToolCall, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}

	var obj map[string]any
	switch s[0] {
	case '{':
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return nil, false
		}
	case '[':
		var arr []any
		if err := json.Unmarshal([]byte(s), &arr); err != nil || len(arr) == 0 {
			return nil, false
		}
		first, ok := arr[0].(map[string]any)
		if !ok {
			return nil, false
		}
		obj = first
	default:
		return nil, false
	}

	name, ok := obj["tool_name"].(string)
	if !ok || name == "" {
		return nil, false
	}
	params, _ := obj["parameters"].(map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	return &ToolCall{Name: name, Parameters: params}, true
}

// fencedBlocks returns the contents of ``` fenced blocks. With labeledJSON
// set, only blocks tagged json are returned.
func fencedBlocks(text string, labeledJSON bool) []string {
	var blocks []string
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			return blocks
		}
		rest = rest[start+3:]

		// The fence label runs to the end of the line.
		label := ""
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			label = strings.TrimSpace(rest[:nl])
			rest = rest[nl+1:]
		}

		end := strings.Index(rest, "```")
		if end < 0 {
			return blocks
		}
		body := rest[:end]
		rest = rest[end+3:]

		if labeledJSON && !strings.EqualFold(label, "json") {
			continue
		}
		blocks = append(blocks, body)
	}
}

// balancedSlice finds the first open delimiter and returns the substring up
// to its matching close, honoring JSON string literals and escapes. An
// explicit depth counter is used instead of a regex because parameter
// values may themselves contain braces and brackets.
func balancedSlice(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
