package references

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nugget/designer-agent/internal/tools"
)

// DefaultLimit is the number of references returned per search.
const DefaultLimit = 3

// Register adds the reference_search tool backed by ds.
func Register(reg *tools.Registry, ds *Dataset) error {
	return reg.Register(&tools.Tool{
		Action: tools.ActionReferenceSearch,
		Description: "Search the internal dataset for reference designs.\n" +
			"- Use when similar designs would help\n" +
			"- Parameters: category, taste, palette",
		Example: `{"category": "social media banner", "taste": ["cool", "premium"], "palette": ["blue"]}`,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{"type": "string", "description": "Design category, matched as a substring."},
				"taste":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Taste tags."},
				"palette":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Palette names."},
			},
		},
		Handler: func(_ context.Context, _ *tools.RunContext, params map[string]any) (string, error) {
			category, _ := params["category"].(string)
			refs := ds.Search(Query{
				Category: category,
				Taste:    stringList(params["taste"]),
				Palette:  stringList(params["palette"]),
				Limit:    DefaultLimit,
			})
			return FormatReferences(refs), nil
		},
	})
}

// FormatReferences renders search results for the model.
func FormatReferences(refs []Reference) string {
	if len(refs) == 0 {
		return "No matching reference designs found."
	}

	lines := []string{fmt.Sprintf("Found %d reference designs:\n", len(refs))}
	for _, ref := range refs {
		lines = append(lines,
			fmt.Sprintf("- **%s** (%s)", ref.Category, ref.ID),
			"  Taste: "+strings.Join(ref.Taste, ", "),
			"  Palette: "+strings.Join(ref.Palette, ", "),
			"  Comment: "+ref.Comment,
		)
		if len(ref.Features) > 0 {
			if data, err := json.Marshal(ref.Features); err == nil {
				lines = append(lines, "  Features: "+string(data))
			}
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// stringList accepts a JSON array of strings or a single string.
func stringList(v any) []string {
	switch x := v.(type) {
	case string:
		if x == "" {
			return nil
		}
		return []string{x}
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return x
	}
	return nil
}
