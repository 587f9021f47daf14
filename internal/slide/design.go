// Package slide holds the slide design document produced by the design
// tool and the rendering contract used to turn it into a slide.
//
// A design has exactly two kinds of element: a single background image
// described by a prompt, and any number of editable text boxes. People,
// illustration and decoration all belong to the background.
package slide

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Element types.
const (
	TypeBackground = "background"
	TypeText       = "text"
)

// Design is the slide design document.
type Design struct {
	Meta     Meta      `json:"meta"`
	Elements []Element `json:"elements"`
}

// Meta describes the overall theme of a design.
type Meta struct {
	Theme       string      `json:"theme,omitempty"`
	Mood        string      `json:"mood,omitempty"`
	ColorScheme ColorScheme `json:"color_scheme"`
}

// ColorScheme is the design palette as hex colors.
type ColorScheme struct {
	Primary    string `json:"primary,omitempty"`
	Secondary  string `json:"secondary,omitempty"`
	Accent     string `json:"accent,omitempty"`
	Background string `json:"background,omitempty"`
}

// Element is one background or text element. Background elements use
// Prompt and the lighting/tone/texture style fields; text elements use
// ID, Content, Position and the typographic style fields.
type Element struct {
	Type     string    `json:"type"`
	ID       string    `json:"id,omitempty"`
	Prompt   string    `json:"prompt,omitempty"`
	Content  string    `json:"content,omitempty"`
	Position *Position `json:"position,omitempty"`
	Style    Style     `json:"style"`
}

// Position is a text box in slide pixels (1920x1080 canvas).
type Position struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Style carries the style fields of either element type.
type Style struct {
	Lighting   string `json:"lighting,omitempty"`
	ColorTone  string `json:"color_tone,omitempty"`
	Texture    string `json:"texture,omitempty"`
	FontSize   int    `json:"fontSize,omitempty"`
	FontWeight string `json:"fontWeight,omitempty"`
	FontStyle  string `json:"fontStyle,omitempty"`
	Color      string `json:"color,omitempty"`
	Align      string `json:"align,omitempty"`
}

// Description renders the background style as the sentence handed to the
// image generator, e.g. "Lighting: soft. Color tone: warm".
func (s Style) Description() string {
	var parts []string
	if s.Lighting != "" {
		parts = append(parts, "Lighting: "+s.Lighting)
	}
	if s.ColorTone != "" {
		parts = append(parts, "Color tone: "+s.ColorTone)
	}
	if s.Texture != "" {
		parts = append(parts, "Texture: "+s.Texture)
	}
	return strings.Join(parts, ". ")
}

// Background returns the first background element, or nil.
func (d *Design) Background() *Element {
	for i := range d.Elements {
		if d.Elements[i].Type == TypeBackground {
			return &d.Elements[i]
		}
	}
	return nil
}

// Text returns the text element with the given ID, or nil.
func (d *Design) Text(id string) *Element {
	for i := range d.Elements {
		if d.Elements[i].Type == TypeText && d.Elements[i].ID == id {
			return &d.Elements[i]
		}
	}
	return nil
}

// Clone returns a deep copy of d.
func (d *Design) Clone() *Design {
	out := &Design{Meta: d.Meta, Elements: make([]Element, len(d.Elements))}
	for i, e := range d.Elements {
		if e.Position != nil {
			p := *e.Position
			e.Position = &p
		}
		out.Elements[i] = e
	}
	return out
}

// ParseDesign decodes a design document.
func ParseDesign(data []byte) (*Design, error) {
	var d Design
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode design: %w", err)
	}
	return &d, nil
}

// DesignFromMap converts a decoded tool argument into a Design.
func DesignFromMap(m map[string]any) (*Design, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode design argument: %w", err)
	}
	return ParseDesign(data)
}

// Indent returns the design as two-space indented JSON.
func (d *Design) Indent() string {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// SaveDesign writes the design as design.json in dir, creating dir if
// needed, and returns the file path.
func SaveDesign(dir string, d *Design) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, "design.json")
	if err := os.WriteFile(path, []byte(d.Indent()+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write design: %w", err)
	}
	return path, nil
}
