package design

import (
	"context"
	"errors"
	"fmt"

	"github.com/nugget/designer-agent/internal/llm"
	"github.com/nugget/designer-agent/internal/slide"
)

// GeneratedImage is an image produced by an [ImageGenerator] with the
// usage the provider reported for it.
type GeneratedImage struct {
	Image        slide.Image
	Model        string
	InputTokens  int
	OutputTokens int
}

// ImageGenerator produces a background image from a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (*GeneratedImage, error)
}

// ModelImageGenerator asks an image-capable chat model for a picture
// and returns the first inline image of the reply.
type ModelImageGenerator struct {
	Client llm.Client
	Model  string
}

var errNoImage = errors.New("model returned no image")

// Generate implements [ImageGenerator].
func (g *ModelImageGenerator) Generate(ctx context.Context, prompt string) (*GeneratedImage, error) {
	resp, err := g.Client.Chat(ctx, g.Model, []llm.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return nil, fmt.Errorf("image model %s: %w", g.Model, err)
	}
	if len(resp.Message.Images) == 0 {
		return nil, errNoImage
	}
	img := resp.Message.Images[0]
	return &GeneratedImage{
		Image:        slide.Image{MIMEType: img.MIMEType, Data: img.Data},
		Model:        g.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}
