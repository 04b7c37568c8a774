// Package tools provides the tool framework and implementations for the agent.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ParamSpec describes a single tool parameter.
type ParamSpec struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// Definition describes a tool for validation and prompt building.
type Definition struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]ParamSpec `json:"parameters"`
	Examples    []string             `json:"examples,omitempty"`
}

// Tool is the interface that all agent tools must implement.
type Tool interface {
	// Definition returns the tool's name, description and parameter schema.
	Definition() Definition
	// Execute runs the tool with the given parameters.
	// The returned payload is wrapped by the registry; errors become
	// failure results rather than propagating to the agent loop.
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// Result is the normalized outcome of a tool execution.
// Successful executions carry the tool payload in Result; failures carry
// a human-readable Message.
type Result struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
}

// Registry manages tool registration, validation and execution.
type Registry struct {
	tools     map[string]Tool
	order     []string
	extraDefs []Definition
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	name := tool.Definition().Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

// RegisterDefinition adds a catalog-only definition. It appears in the
// prompt catalog but has no executable behind it; the agent loop handles
// such tools itself.
func (r *Registry) RegisterDefinition(def Definition) {
	r.extraDefs = append(r.extraDefs, def)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools in registration order.
func (r *Registry) List() []Tool {
	result := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.tools[name])
	}
	return result
}

// Definitions returns all tool definitions, including catalog-only ones.
func (r *Registry) Definitions() []Definition {
	result := make([]Definition, 0, len(r.order)+len(r.extraDefs))
	for _, name := range r.order {
		result = append(result, r.tools[name].Definition())
	}
	result = append(result, r.extraDefs...)
	return result
}

// ValidateCall checks that the tool exists and all required parameters are
// present. All missing parameters are reported in a single error.
func (r *Registry) ValidateCall(name string, params map[string]any) error {
	tool, ok := r.tools[name]
	if !ok {
		for _, def := range r.extraDefs {
			if def.Name == name {
				return nil
			}
		}
		return fmt.Errorf("Unknown tool: %s", name)
	}

	def := tool.Definition()
	var missing []string
	for pname, spec := range def.Parameters {
		if !spec.Required {
			continue
		}
		if v, ok := params[pname]; !ok || v == nil || v == "" {
			missing = append(missing, pname)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("Missing required parameters for %s: %s", name, strings.Join(missing, ", "))
	}
	return nil
}

// Execute validates and runs a tool by name, normalizing the outcome.
// It never returns a Go error: unknown tools, validation failures and
// execution errors all become failure Results.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) Result {
	if err := r.ValidateCall(name, params); err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	tool, ok := r.tools[name]
	if !ok {
		return Result{Success: false, Message: fmt.Sprintf("Unknown tool: %s", name)}
	}

	// Fill declared defaults for absent optional params.
	def := tool.Definition()
	filled := make(map[string]any, len(params))
	for k, v := range params {
		filled[k] = v
	}
	for pname, spec := range def.Parameters {
		if spec.Default == nil {
			continue
		}
		if _, ok := filled[pname]; !ok {
			filled[pname] = spec.Default
		}
	}

	payload, err := tool.Execute(ctx, filled)
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	return Result{Success: true, Result: payload}
}

// Catalog renders the tool definitions as prompt-ready text.
func (r *Registry) Catalog() string {
	var b strings.Builder
	for _, def := range r.Definitions() {
		fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
		pnames := make([]string, 0, len(def.Parameters))
		for pname := range def.Parameters {
			pnames = append(pnames, pname)
		}
		sort.Strings(pnames)
		for _, pname := range pnames {
			spec := def.Parameters[pname]
			req := "optional"
			if spec.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "    %s (%s, %s): %s", pname, spec.Type, req, spec.Description)
			if len(spec.Enum) > 0 {
				fmt.Fprintf(&b, " [%s]", strings.Join(spec.Enum, "|"))
			}
			b.WriteString("\n")
		}
		for _, ex := range def.Examples {
			fmt.Fprintf(&b, "    example: %s\n", ex)
		}
	}
	return b.String()
}

// GetString extracts a string parameter with a default value.
func GetString(params map[string]any, key string, defaultVal string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

// GetInt extracts an int parameter with a default value.
func GetInt(params map[string]any, key string, defaultVal int) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return defaultVal
}

// GetBool extracts a bool parameter with a default value.
func GetBool(params map[string]any, key string, defaultVal bool) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}
