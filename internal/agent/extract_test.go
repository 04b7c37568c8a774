package agent

import (
	"testing"
)

func TestExtractFencedJSON(t *testing.T) {
	text := "好的，我来执行。\n```json\n{\"tool_name\": \"system_command\", \"parameters\": {\"command\": \"ls\"}}\n```\n"
	call, ok := ExtractToolCall(text)
	if !ok {
		t.Fatal("expected tool call")
	}
	if call.Name != "system_command" {
		t.Errorf("unexpected name: %s", call.Name)
	}
	if call.Parameters["command"] != "ls" {
		t.Errorf("unexpected parameters: %+v", call.Parameters)
	}
}

func TestExtractUnlabeledFence(t *testing.T) {
	text := "```\n{\"tool_name\": \"email\", \"parameters\": {\"action\": \"list_emails\"}}\n```"
	call, ok := ExtractToolCall(text)
	if !ok || call.Name != "email" {
		t.Fatalf("expected email call, got %+v ok=%v", call, ok)
	}
}

func TestExtractPrefersLabeledFence(t *testing.T) {
	text := "```\n{\"tool_name\": \"wrong\"}\n```\n```json\n{\"tool_name\": \"right\"}\n```"
	call, ok := ExtractToolCall(text)
	if !ok || call.Name != "right" {
		t.Fatalf("expected labeled block to win, got %+v", call)
	}
}

func TestExtractBareObject(t *testing.T) {
	text := `我需要调用工具 {"tool_name": "knowledge_base", "parameters": {"operation": "search", "query": "发票"}} 来查询。`
	call, ok := ExtractToolCall(text)
	if !ok || call.Name != "knowledge_base" {
		t.Fatalf("expected knowledge_base call, got %+v", call)
	}
	if call.Parameters["query"] != "发票" {
		t.Errorf("unexpected parameters: %+v", call.Parameters)
	}
}

func TestExtractNestedBracesInStrings(t *testing.T) {
	// Parameter values containing braces must not break the scan.
	text := `{"tool_name": "system_command", "parameters": {"command": "echo '{\"a\": 1}' > f.json"}}`
	call, ok := ExtractToolCall(text)
	if !ok {
		t.Fatal("expected tool call with braces inside string")
	}
	want := `echo '{"a": 1}' > f.json`
	if call.Parameters["command"] != want {
		t.Errorf("expected %q, got %q", want, call.Parameters["command"])
	}
}

func TestExtractArrayFirstElement(t *testing.T) {
	text := `[{"tool_name": "first", "parameters": {}}, {"tool_name": "second", "parameters": {}}]`
	call, ok := ExtractToolCall(text)
	if !ok || call.Name != "first" {
		t.Fatalf("expected first array element only, got %+v", call)
	}
}

func TestExtractMissingParametersDefaultsEmpty(t *testing.T) {
	call, ok := ExtractToolCall(`{"tool_name": "ping"}`)
	if !ok {
		t.Fatal("expected tool call")
	}
	if call.Parameters == nil || len(call.Parameters) != 0 {
		t.Errorf("expected empty parameter map, got %+v", call.Parameters)
	}
}

func TestExtractNone(t *testing.T) {
	cases := []string{
		"",
		"这是一个普通的回答，不包含工具调用。",
		"不完整的 JSON: {\"tool_name\": \"x\"",
		`{"not_a_tool": "x"}`,
		`{"tool_name": 42}`,
		"```json\nnot json at all\n```",
		"[1, 2, 3]",
	}
	for _, text := range cases {
		if call, ok := ExtractToolCall(text); ok {
			t.Errorf("expected no call for %q, got %+v", text, call)
		}
	}
}
