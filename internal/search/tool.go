package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nugget/designer-agent/internal/tools"
)

// maxObservation bounds the text returned to the model.
const maxObservation = 1500

// Register adds the web_search tool backed by mgr.
func Register(reg *tools.Registry, mgr *Manager) error {
	return reg.Register(&tools.Tool{
		Action: tools.ActionWebSearch,
		Description: "Search the web for current design trends and reference information.\n" +
			"- Use when trend research or an industry's visual style is needed\n" +
			"- Skip when the request already has enough information",
		Example:    `{"query": "2025 social media ad design trends"}`,
		Parameters: ToolDefinition(),
		Handler:    ToolHandler(mgr),
	})
}

// ToolHandler returns the web_search handler. It wraps the Manager's
// search method for use as an agent tool.
func ToolHandler(mgr *Manager) tools.Handler {
	return func(ctx context.Context, _ *tools.RunContext, args map[string]any) (string, error) {
		query, _ := args["query"].(string)
		query = strings.TrimSpace(query)
		if query == "" {
			return "", errors.New("query is required")
		}

		opts := Options{}

		if count, ok := args["count"].(float64); ok && count > 0 {
			opts.Count = min(int(count), 10)
		}
		if lang, ok := args["language"].(string); ok {
			opts.Language = lang
		}

		// Allow explicit provider selection, fall back to primary.
		var results []Result
		var err error
		if provider, ok := args["provider"].(string); ok && provider != "" {
			results, err = mgr.SearchWith(ctx, provider, query, opts)
		} else {
			results, err = mgr.Search(ctx, query, opts)
		}
		if err != nil {
			return "", err
		}

		out := fmt.Sprintf("Search results for %q:\n\n%s", query, FormatResults(results))
		if len(out) > maxObservation {
			out = out[:maxObservation]
		}
		return strings.ToValidUTF8(out, ""), nil
	}
}

// ToolDefinition returns the JSON Schema parameters for the web_search tool.
func ToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query string.",
			},
			"count": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results to return (1-10). Default: 5.",
			},
			"language": map[string]any{
				"type":        "string",
				"description": "ISO 639-1 language code for results (e.g., 'en', 'ja').",
			},
			"provider": map[string]any{
				"type":        "string",
				"description": "Search provider to use. Omit for default.",
			},
		},
		"required": []string{"query"},
	}
}

// FormatResults builds a human-readable result string.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(r.Title)
		if r.Source != "" {
			sb.WriteString(" [")
			sb.WriteString(r.Source)
			sb.WriteString("]")
		}
		sb.WriteString("\n   ")
		sb.WriteString(r.URL)
		if r.Snippet != "" {
			sb.WriteString("\n   ")
			sb.WriteString(r.Snippet)
		}
	}
	return sb.String()
}
