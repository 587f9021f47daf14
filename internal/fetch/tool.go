package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nugget/designer-agent/internal/tools"
)

// maxObservation bounds the text returned to the model.
const maxObservation = 1500

// Register adds the fetch_page tool backed by f.
func Register(reg *tools.Registry, f *Fetcher) error {
	return reg.Register(&tools.Tool{
		Action: tools.ActionFetchPage,
		Description: "Read a web page such as a brand guide or product site.\n" +
			"- Use when the request names a URL or brand site to match\n" +
			"- Returns the page title, description, main colors and text",
		Example:    `{"url": "https://example.com/brand"}`,
		Parameters: ToolDefinition(),
		Handler:    ToolHandler(f),
	})
}

// ToolHandler returns the fetch_page handler.
func ToolHandler(f *Fetcher) tools.Handler {
	return func(ctx context.Context, _ *tools.RunContext, args map[string]any) (string, error) {
		url, _ := args["url"].(string)
		if strings.TrimSpace(url) == "" {
			return "", errors.New("url is required")
		}
		maxChars := 0
		if mc, ok := args["max_chars"].(float64); ok && mc > 0 {
			maxChars = int(mc)
		}

		page, err := f.Fetch(ctx, url, maxChars)
		if err != nil {
			return "", err
		}
		return truncateRunes(FormatPage(page), maxObservation), nil
	}
}

// FormatPage renders a page as the observation text.
func FormatPage(p *Page) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Page: %s\n", p.URL)
	if p.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", p.Title)
	}
	if p.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", p.Description)
	}
	if p.ThemeColor != "" {
		fmt.Fprintf(&sb, "Theme color: %s\n", p.ThemeColor)
	}
	if len(p.Colors) > 0 {
		fmt.Fprintf(&sb, "Colors: %s\n", strings.Join(p.Colors, ", "))
	}
	sb.WriteString("\n")
	sb.WriteString(p.Text)
	return sb.String()
}

// ToolDefinition returns the JSON Schema parameters for fetch_page.
func ToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL of the page to read.",
			},
			"max_chars": map[string]any{
				"type":        "integer",
				"description": "Maximum characters of page text to extract. Default: 20000.",
			},
		},
		"required": []string{"url"},
	}
}
