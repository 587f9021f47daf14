package prompts

import "fmt"

const designTemplate = `Generate a slide design JSON from the information below.

## User request
%s

## Analysis so far
%s

## Reference image
%s

## JSON format

` + "```json" + `
{
  "meta": {
    "theme": "theme name",
    "mood": "mood",
    "color_scheme": {
      "primary": "#primary",
      "secondary": "#secondary",
      "accent": "#accent",
      "background": "#background"
    }
  },
  "elements": [
    {
      "type": "background",
      "prompt": "A narrative description of the finished image, including any people and decoration.",
      "style": {
        "lighting": "lighting",
        "color_tone": "color tone",
        "texture": "texture"
      }
    },
    {
      "type": "text",
      "id": "unique-id",
      "content": "text to display",
      "position": {"x": 100, "y": 400, "width": 800, "height": 150},
      "style": {
        "fontSize": 72,
        "fontWeight": "bold",
        "color": "#color",
        "align": "left"
      }
    }
  ]
}
` + "```" + `

## Rules
1. Elements are background and text only.
2. People, illustration and decoration go in the background (generated as one picture).
3. Take text colors from the palette; avoid plain white everywhere.
4. No cut-out or pasted-on look.

Output only the JSON.`

// DesignPrompt returns the prompt for the design tool.
func DesignPrompt(userPrompt, reasoning string, hasReference bool) string {
	ref := "None"
	if hasReference {
		ref = "A reference image is attached (use it as a style reference)."
	}
	return fmt.Sprintf(designTemplate, userPrompt, reasoning, ref)
}
