// Package llm provides the model clients the designer agent talks to.
package llm

import "context"

// Client is the interface that all LLM providers implement.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	// tools carries OpenAI-style function definitions and may be nil,
	// in which case the provider is asked for plain text only.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
