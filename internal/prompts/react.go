package prompts

import (
	"fmt"
	"strings"
)

// ToolDoc describes one tool in the text protocol prompt.
type ToolDoc struct {
	Name        string
	Description string
	// Example is a sample Action Input object.
	Example string
}

const reactHeader = `You are a professional slide designer agent. You create high quality
slides from the user's request.

## How you work: ReAct (Reasoning + Acting)

You operate in a loop:
1. Thought: analyze the situation and decide what to do next
2. Action: run one tool
3. Observation: read the tool's result
4. (repeat)
5. Final Answer: report the final result

## Available tools
`

const reactFooter = `
## Output format

Always answer in exactly this form:

` + "```" + `
Thought: [your analysis and the reason for the next action]
Action: [tool name]
Action Input: [parameters as a JSON object]
` + "```" + `

or, when you are done:

` + "```" + `
Thought: [confirmation that the work is complete]
Final Answer: [your final reply to the user]
` + "```" + `

## Rules

1. Do not use tools you do not need. A simple request needs no web_search.
2. Always run design, then generate, then ask_feedback, in that order.
3. Exactly one action per response.
4. Repeat ask_feedback until the user says the result is OK.
5. Use regenerate_background for image changes and update_text for text changes.
6. When the user names a brand site or URL, read it with fetch_page and take its colors.

## Design guidelines

- There are only two element types: background (one finished image) and text (editable).
- People, illustration and decoration all belong in the background.
- No cut-out or pasted-on look.
- Take text colors from the palette; avoid plain white everywhere.
- Keep it simple and use whitespace.
`

// ReActSystemPrompt returns the system prompt for the text protocol,
// documenting each tool in the order given.
func ReActSystemPrompt(tools []ToolDoc) string {
	var sb strings.Builder
	sb.WriteString(reactHeader)
	for i, t := range tools {
		fmt.Fprintf(&sb, "\n### %d. %s\n%s\n", i+1, t.Name, t.Description)
		if t.Example != "" {
			fmt.Fprintf(&sb, "```\nAction: %s\nAction Input: %s\n```\n", t.Name, t.Example)
		}
	}
	sb.WriteString(reactFooter)
	return sb.String()
}

// InitialTurn combines the system prompt and the user's request into the
// single opening user turn.
func InitialTurn(systemPrompt, userPrompt string, hasReference bool) string {
	turn := systemPrompt + "\n\n## User request\n" + userPrompt
	if hasReference {
		turn += "\n\n(A reference image is attached. Use it as a style reference.)"
	}
	return turn
}

// CorrectiveTurn is sent when a response contained neither an action nor
// a final answer.
const CorrectiveTurn = "Please run an action. Specify both Action: and Action Input:."

// Observation formats a tool result as the next user turn.
func Observation(result string) string {
	return "Observation: " + result
}
