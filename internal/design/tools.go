// Package design implements the slide design tools: design synthesis,
// slide generation, feedback collection and targeted revisions of the
// background and text.
package design

import (
	"context"
	"log/slog"

	"github.com/nugget/designer-agent/internal/llm"
	"github.com/nugget/designer-agent/internal/slide"
	"github.com/nugget/designer-agent/internal/tools"
	"github.com/nugget/designer-agent/internal/trace"
)

// Config configures the design tools.
type Config struct {
	// Client and Model serve the design and prompt rewrite calls.
	Client llm.Client
	Model  string
	// Images renders backgrounds. Nil leaves slides without a background.
	Images ImageGenerator
	// Renderer lays out slides. Nil selects the JSON manifest renderer.
	Renderer slide.Renderer
	// Prompter answers ask_feedback when the run supplies none. Nil
	// reads from stdin.
	Prompter tools.Prompter
	Logger   *slog.Logger
}

// Tools holds the collaborators shared by the design handlers. All
// per-run state lives in the [tools.RunContext].
type Tools struct {
	client   llm.Client
	model    string
	images   ImageGenerator
	renderer slide.Renderer
	prompter tools.Prompter
	logger   *slog.Logger
}

// New creates the design tools.
func New(cfg Config) *Tools {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = slide.NewManifestRenderer()
	}
	prompter := cfg.Prompter
	if prompter == nil {
		prompter = NewStdinPrompter(nil, nil)
	}
	return &Tools{
		client:   cfg.Client,
		model:    cfg.Model,
		images:   cfg.Images,
		renderer: renderer,
		prompter: prompter,
		logger:   logger.With("component", "design"),
	}
}

// Register adds every design tool to reg.
func (t *Tools) Register(reg *tools.Registry) error {
	for _, tool := range []*tools.Tool{
		{
			Action: tools.ActionDesign,
			Description: "Generate the slide design JSON.\n" +
				"- Required: always run it\n" +
				"- reasoning: summarize your thinking and research so far",
			Example: `{"user_prompt": "the user's original request", "reasoning": "your analysis so far"}`,
			Parameters: objectSchema(map[string]any{
				"user_prompt": stringProp("The user's original request."),
				"reasoning":   stringProp("Summary of the analysis so far."),
			}),
			Handler: t.handleDesign,
		},
		{
			Action: tools.ActionGenerate,
			Description: "Generate the background image and lay out the slide from the design JSON.\n" +
				"- Required: always run it after design",
			Example: `{"design": {design JSON}}`,
			Parameters: objectSchema(map[string]any{
				"design": map[string]any{"type": "object", "description": "Design JSON. Omit to use the last design."},
			}),
			Handler: t.handleGenerate,
		},
		{
			Action: tools.ActionAskFeedback,
			Description: "Ask the user for feedback.\n" +
				"- Use after generation to get the user's confirmation\n" +
				"- Required: always run it after generate",
			Example:    `{"question": "Please review the result. Anything to change?"}`,
			Parameters: objectSchema(map[string]any{"question": stringProp("Question to show the user.")}),
			Handler:    t.handleAskFeedback,
		},
		{
			Action: tools.ActionRegenerateBackground,
			Description: "Regenerate only the background image (subject position, color tone and so on).\n" +
				"- Use when the user's feedback is about the image\n" +
				"- Put the user's correction in feedback",
			Example:    `{"feedback": "make the person larger"}`,
			Parameters: objectSchema(map[string]any{"feedback": stringProp("The user's correction.")}),
			Handler:    t.handleRegenerateBackground,
		},
		{
			Action: tools.ActionUpdateText,
			Description: "Change a text element (content, color, size and so on).\n" +
				"- Use when the user's feedback is about text\n" +
				"- element_id selects the element, changes holds the new values",
			Example: `{"element_id": "headline-2", "changes": {"content": "AI driven", "color": "#3B82F6"}}`,
			Parameters: objectSchema(map[string]any{
				"element_id": stringProp("ID of the text element."),
				"changes": map[string]any{
					"type":        "object",
					"description": "Any of content, color, fontSize, fontWeight, align.",
				},
			}),
			Handler: t.handleUpdateText,
		},
		{
			Action:      tools.ActionSaveDesign,
			Description: "Save the current design JSON to the session directory.",
			Example:     `{}`,
			Handler:     t.handleSaveDesign,
		},
	} {
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// complete runs a single-turn model call inside a model span.
func (t *Tools) complete(ctx context.Context, rc *tools.RunContext, span, prompt string, images []llm.Image) (string, error) {
	var spanID string
	if rc.Trace != nil {
		spanID = rc.Trace.StartSpan(span, trace.KindModel, prompt)
	}

	resp, err := t.client.Chat(ctx, t.model, []llm.Message{{Role: "user", Content: prompt, Images: images}}, nil)
	if err != nil {
		if spanID != "" {
			rc.Trace.EndSpan(spanID, "Error: "+err.Error())
		}
		return "", err
	}

	text := resp.Message.Content
	if spanID != "" {
		rc.Trace.EndSpan(spanID, text, trace.UsageOptions(t.model, resp.InputTokens, resp.OutputTokens, prompt, text)...)
	}
	return text, nil
}

func referenceImages(rc *tools.RunContext) []llm.Image {
	if !rc.HasReference() {
		return nil
	}
	return []llm.Image{{MIMEType: rc.ReferenceImage.MIMEType, Data: rc.ReferenceImage.Data}}
}

func objectSchema(props map[string]any) map[string]any {
	return map[string]any{"type": "object", "properties": props}
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}
