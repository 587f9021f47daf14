package llm

import (
	"encoding/base64"
	"log/slog"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message is a provider-neutral chat message.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	Images     []Image    `json:"images,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Image is an inline image attached to a user message.
type Image struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// Base64 returns the image bytes in standard base64 encoding.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// ToolCall is a native function call returned by the model.
type ToolCall struct {
	ID       string       `json:"id,omitempty"` // provider-assigned; Anthropic needs it for tool_result correlation
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function a model wants invoked and its arguments.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the unified response from any provider. Wire format
// conversion happens at provider boundaries.
type ChatResponse struct {
	Model        string
	Message      Message
	FinishReason string

	// Token usage as reported by the provider. Zero when the provider
	// does not report usage.
	InputTokens  int
	OutputTokens int
}

// FirstToolCall returns the first native tool call, if any.
func (r *ChatResponse) FirstToolCall() (ToolCall, bool) {
	if r == nil || len(r.Message.ToolCalls) == 0 {
		return ToolCall{}, false
	}
	return r.Message.ToolCalls[0], true
}

// splitSystem separates leading and interleaved system messages from
// the conversation. Providers that carry the system prompt out of band
// use it.
func splitSystem(messages []Message) (system string, rest []Message) {
	var parts []string
	for _, m := range messages {
		if m.Role == "system" {
			parts = append(parts, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	for i, p := range parts {
		if i > 0 {
			system += "\n\n"
		}
		system += p
	}
	return system, rest
}

// toolFunction extracts name, description and parameters from an
// OpenAI-style tool definition.
func toolFunction(tool map[string]any) (name, desc string, params any, ok bool) {
	fn, ok := tool["function"].(map[string]any)
	if !ok {
		return "", "", nil, false
	}
	name, _ = fn["name"].(string)
	desc, _ = fn["description"].(string)
	params = fn["parameters"]
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return name, desc, params, name != ""
}
