package slide

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Text box defaults applied when a design omits a field.
const (
	DefaultX          = 960
	DefaultY          = 400
	DefaultWidth      = 1600
	DefaultHeight     = 100
	DefaultFontSize   = 48
	DefaultFontWeight = "normal"
	DefaultFontStyle  = "normal"
	DefaultColor      = "#FFFFFF"
	DefaultAlign      = "center"
)

// Image is an encoded raster image.
type Image struct {
	MIMEType string
	Data     []byte
}

// Ext returns a file extension for the image's MIME type.
func (i Image) Ext() string {
	switch strings.ToLower(i.MIMEType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// RenderedElement is a positioned element ready for layout. Background
// elements carry Image; text elements carry Content, Position and Style
// with every default filled in.
type RenderedElement struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Content  string   `json:"content,omitempty"`
	Position Position `json:"bbox"`
	Style    Style    `json:"style"`
	Image    *Image   `json:"-"`
	File     string   `json:"file,omitempty"`
}

// Rendered is the output of one render.
type Rendered struct {
	Path           string            `json:"path"`
	BackgroundPath string            `json:"background_path,omitempty"`
	Elements       []RenderedElement `json:"elements"`
}

// TextIDs returns the IDs of all text elements, in order.
func (r *Rendered) TextIDs() []string {
	var ids []string
	for _, e := range r.Elements {
		if e.Type == TypeText {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// Renderer lays out rendered elements into a slide under dir.
type Renderer interface {
	Render(ctx context.Context, dir string, elements []RenderedElement) (*Rendered, error)
}

// TextElement builds the rendered form of a design text element with
// defaults applied. index is the element's position in the design and
// names elements that have no ID.
func TextElement(e Element, index int) RenderedElement {
	pos := Position{X: DefaultX, Y: DefaultY, Width: DefaultWidth, Height: DefaultHeight}
	if e.Position != nil {
		pos = *e.Position
	}
	st := e.Style
	if st.FontSize == 0 {
		st.FontSize = DefaultFontSize
	}
	if st.FontWeight == "" {
		st.FontWeight = DefaultFontWeight
	}
	if st.FontStyle == "" {
		st.FontStyle = DefaultFontStyle
	}
	if st.Color == "" {
		st.Color = DefaultColor
	}
	if st.Align == "" {
		st.Align = DefaultAlign
	}
	return RenderedElement{
		ID:       elementID(e, index),
		Type:     TypeText,
		Content:  e.Content,
		Position: pos,
		Style:    Style{FontSize: st.FontSize, FontWeight: st.FontWeight, FontStyle: st.FontStyle, Color: st.Color, Align: st.Align},
	}
}

// BackgroundElement builds the rendered form of a background element.
func BackgroundElement(e Element, index int, img *Image) RenderedElement {
	return RenderedElement{
		ID:       elementID(e, index),
		Type:     TypeBackground,
		Position: Position{Width: 1920, Height: 1080},
		Image:    img,
	}
}

func elementID(e Element, index int) string {
	if e.ID != "" {
		return e.ID
	}
	return fmt.Sprintf("%s_%d", e.Type, index)
}

// ManifestRenderer writes the layout as slide.json next to the
// background image. Presentation encoding is left to downstream tools
// that read the manifest.
type ManifestRenderer struct {
	now func() time.Time
}

// NewManifestRenderer returns a renderer that writes JSON manifests.
func NewManifestRenderer() *ManifestRenderer {
	return &ManifestRenderer{now: time.Now}
}

type manifest struct {
	GeneratedAt string            `json:"generated_at"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Elements    []RenderedElement `json:"elements"`
}

// Render writes any background images and the manifest into dir.
func (m *ManifestRenderer) Render(ctx context.Context, dir string, elements []RenderedElement) (*Rendered, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	out := &Rendered{Elements: make([]RenderedElement, len(elements))}
	copy(out.Elements, elements)

	for i := range out.Elements {
		e := &out.Elements[i]
		if e.Type != TypeBackground || e.Image == nil || len(e.Image.Data) == 0 {
			continue
		}
		path := filepath.Join(dir, e.ID+e.Image.Ext())
		if err := os.WriteFile(path, e.Image.Data, 0o644); err != nil {
			return nil, fmt.Errorf("write background: %w", err)
		}
		e.File = path
		if out.BackgroundPath == "" {
			out.BackgroundPath = path
		}
	}

	data, err := json.MarshalIndent(manifest{
		GeneratedAt: m.now().UTC().Format(time.RFC3339),
		Width:       1920,
		Height:      1080,
		Elements:    out.Elements,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	out.Path = filepath.Join(dir, "slide.json")
	if err := os.WriteFile(out.Path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return out, nil
}
