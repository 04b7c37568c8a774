package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

type fakeTool struct {
	def     Definition
	payload any
	err     error
	gotArgs map[string]any
}

func (f *fakeTool) Definition() Definition { return f.def }
func (f *fakeTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	f.gotArgs = params
	return f.payload, f.err
}

func TestRegistryValidateCall(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{def: Definition{
		Name:        "demo",
		Description: "demo tool",
		Parameters: map[string]ParamSpec{
			"alpha": {Type: "string", Required: true},
			"beta":  {Type: "string", Required: true},
			"gamma": {Type: "string"},
		},
	}})

	err := r.ValidateCall("nope", nil)
	if err == nil || err.Error() != "Unknown tool: nope" {
		t.Errorf("expected unknown tool error, got %v", err)
	}

	// All missing required params reported at once.
	err = r.ValidateCall("demo", map[string]any{"gamma": "x"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "alpha") || !strings.Contains(err.Error(), "beta") {
		t.Errorf("expected both missing params in error, got: %v", err)
	}

	// Empty string counts as missing.
	err = r.ValidateCall("demo", map[string]any{"alpha": "", "beta": "ok"})
	if err == nil || !strings.Contains(err.Error(), "alpha") {
		t.Errorf("expected alpha reported missing, got: %v", err)
	}

	if err := r.ValidateCall("demo", map[string]any{"alpha": "a", "beta": "b"}); err != nil {
		t.Errorf("expected valid call, got: %v", err)
	}
}

func TestRegistryExecuteWrapping(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{
		def:     Definition{Name: "ok", Parameters: map[string]ParamSpec{}},
		payload: map[string]any{"value": 42},
	})

	res := r.Execute(context.Background(), "ok", nil)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	payload, ok := res.Result.(map[string]any)
	if !ok || payload["value"] != 42 {
		t.Errorf("unexpected payload: %+v", res.Result)
	}

	res = r.Execute(context.Background(), "missing", nil)
	if res.Success || res.Message != "Unknown tool: missing" {
		t.Errorf("expected unknown-tool failure, got %+v", res)
	}
}

func TestRegistryExecuteFillsDefaults(t *testing.T) {
	tool := &fakeTool{
		def: Definition{
			Name: "defaults",
			Parameters: map[string]ParamSpec{
				"limit": {Type: "integer", Default: 10},
			},
		},
		payload: "ok",
	}
	r := NewRegistry()
	r.Register(tool)

	r.Execute(context.Background(), "defaults", map[string]any{})
	if got := GetInt(tool.gotArgs, "limit", 0); got != 10 {
		t.Errorf("expected default limit 10, got %d", got)
	}

	r.Execute(context.Background(), "defaults", map[string]any{"limit": 3})
	if got := GetInt(tool.gotArgs, "limit", 0); got != 3 {
		t.Errorf("expected caller limit 3, got %d", got)
	}
}

func TestRegistryCatalog(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{def: Definition{
		Name:        "demo",
		Description: "does demo things",
		Parameters: map[string]ParamSpec{
			"mode": {Type: "string", Required: true, Enum: []string{"a", "b"}},
		},
	}})
	r.RegisterDefinition(Definition{Name: "task_complete", Description: "signal that the task is finished"})

	catalog := r.Catalog()
	if !strings.Contains(catalog, "demo: does demo things") {
		t.Errorf("catalog missing tool line:\n%s", catalog)
	}
	if !strings.Contains(catalog, "[a|b]") {
		t.Errorf("catalog missing enum values:\n%s", catalog)
	}
	if !strings.Contains(catalog, "task_complete") {
		t.Errorf("catalog missing definition-only tool:\n%s", catalog)
	}

	// Definition-only tools validate without an executable.
	if err := r.ValidateCall("task_complete", nil); err != nil {
		t.Errorf("expected task_complete to validate, got: %v", err)
	}
}

func TestGetHelpers(t *testing.T) {
	params := map[string]any{
		"str":   "hello",
		"int":   42,
		"float": 3.14,
		"bool":  true,
	}

	if GetString(params, "str", "") != "hello" {
		t.Error("GetString failed")
	}
	if GetString(params, "missing", "default") != "default" {
		t.Error("GetString default failed")
	}
	if GetInt(params, "int", 0) != 42 {
		t.Error("GetInt failed for int")
	}
	if GetInt(params, "float", 0) != 3 {
		t.Error("GetInt failed for float")
	}
	if GetBool(params, "bool", false) != true {
		t.Error("GetBool failed")
	}
	if GetBool(params, "missing", true) != true {
		t.Error("GetBool default failed")
	}
}

func TestSystemCommandTool(t *testing.T) {
	tool := NewSystemCommandTool(5*time.Second, "")

	payload, err := tool.Execute(context.Background(), map[string]any{"command": "echo hello"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	out := payload.(CommandOutput)
	if !strings.Contains(out.Stdout, "hello") {
		t.Errorf("expected stdout to contain hello, got %q", out.Stdout)
	}
	if out.ReturnCode != 0 {
		t.Errorf("expected return code 0, got %d", out.ReturnCode)
	}

	// Non-zero exit code is reported, not an error.
	payload, err = tool.Execute(context.Background(), map[string]any{"command": "exit 3"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	out = payload.(CommandOutput)
	if out.ReturnCode != 3 {
		t.Errorf("expected return code 3, got %d", out.ReturnCode)
	}

	// stderr is captured.
	payload, _ = tool.Execute(context.Background(), map[string]any{"command": "echo oops >&2"})
	out = payload.(CommandOutput)
	if !strings.Contains(out.Stderr, "oops") {
		t.Errorf("expected stderr captured, got %q", out.Stderr)
	}
}

func TestSystemCommandDenied(t *testing.T) {
	tool := NewSystemCommandTool(5*time.Second, "")

	payload, err := tool.Execute(context.Background(), map[string]any{"command": "rm -rf /"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	out := payload.(CommandOutput)
	if out.ReturnCode != 1 {
		t.Errorf("expected refusal return code 1, got %d", out.ReturnCode)
	}
	if !strings.Contains(out.Stderr, "refused") {
		t.Errorf("expected refusal message, got %q", out.Stderr)
	}
}

func TestSystemCommandTimeout(t *testing.T) {
	tool := NewSystemCommandTool(100*time.Millisecond, "")

	payload, err := tool.Execute(context.Background(), map[string]any{"command": "sleep 5"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	out := payload.(CommandOutput)
	if out.ReturnCode != -1 {
		t.Errorf("expected return code -1 on timeout, got %d", out.ReturnCode)
	}
	if !strings.Contains(out.Stderr, "timed out") {
		t.Errorf("expected timeout message, got %q", out.Stderr)
	}
}
