// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"fmt"
	"sort"
)

// Handler executes one action. params is the decoded Action Input and
// is never nil. A returned error becomes an "Error: " observation.
type Handler func(ctx context.Context, rc *RunContext, params map[string]any) (string, error)

// Tool represents a callable tool.
type Tool struct {
	Action      Action
	Description string
	// Example is a sample Action Input shown in the text protocol prompt.
	Example    string
	Parameters map[string]any
	Handler    Handler
}

// Name returns the tool's wire name.
func (t *Tool) Name() string { return t.Action.String() }

// Registry holds available tools keyed by action.
type Registry struct {
	tools map[Action]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[Action]*Tool)}
}

// Register adds a tool to the registry, replacing any tool already
// registered for the same action.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Handler == nil {
		return fmt.Errorf("register tool: handler is required")
	}
	if t.Action == ActionUnsupported {
		return fmt.Errorf("register tool: %w", ErrUnknownAction)
	}
	r.tools[t.Action] = t
	return nil
}

// Get retrieves a tool by action.
func (r *Registry) Get(a Action) *Tool {
	return r.tools[a]
}

// Tools returns the registered tools in action order.
func (r *Registry) Tools() []*Tool {
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return out
}

// List returns all tools in function-calling format for the LLM.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, t := range r.Tools() {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name(),
				"description": t.Description,
				"parameters":  params,
			},
		})
	}
	return result
}

// Call runs the handler for name. Unknown names and known actions
// without a handler both return an [UnknownActionError]; the latter
// wraps [ErrToolUnavailable]. Call does not recover panics.
func (r *Registry) Call(ctx context.Context, rc *RunContext, name string, params map[string]any) (string, error) {
	a := ParseActionName(name)
	if a == ActionUnsupported {
		return "", &UnknownActionError{Name: name}
	}
	t := r.tools[a]
	if t == nil {
		return "", &UnknownActionError{Name: name, Err: &ErrToolUnavailable{ToolName: name}}
	}
	if params == nil {
		params = map[string]any{}
	}
	return t.Handler(ctx, rc, params)
}
