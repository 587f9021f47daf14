package agent

import (
	"strings"

	"github.com/nugget/designer-agent/internal/prompts"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// History is the append-only conversation of one run. Every model call
// replays the full history; nothing is truncated or summarized.
type History struct {
	msgs []Message
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// Append adds one turn.
func (h *History) Append(role, content string) {
	h.msgs = append(h.msgs, Message{Role: role, Content: content})
}

// AppendExchange adds the model's raw response followed by the tool
// observation as a user turn.
func (h *History) AppendExchange(response, observation string) {
	h.Append(RoleAssistant, response)
	h.Append(RoleUser, prompts.Observation(observation))
}

// Messages returns a copy of the turns in order.
func (h *History) Messages() []Message {
	return append([]Message(nil), h.msgs...)
}

// Len returns the number of turns.
func (h *History) Len() int { return len(h.msgs) }

// Text joins every turn's content with newlines. It is the input used
// for token estimation.
func (h *History) Text() string {
	parts := make([]string, len(h.msgs))
	for i, m := range h.msgs {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}
