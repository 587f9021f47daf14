package design

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/nugget/designer-agent/internal/prompts"
	"github.com/nugget/designer-agent/internal/slide"
	"github.com/nugget/designer-agent/internal/tools"
	"github.com/nugget/designer-agent/internal/trace"
)

// designSummaryLimit bounds the design JSON echoed back to the model.
const designSummaryLimit = 1500

// jsonBlock matches from the first opening brace to the last closing one.
var jsonBlock = regexp.MustCompile(`(?s)\{.*\}`)

var errNoDesign = errors.New("design is required; run 'design' action first")

func (t *Tools) handleDesign(ctx context.Context, rc *tools.RunContext, params map[string]any) (string, error) {
	userPrompt, _ := params["user_prompt"].(string)
	if userPrompt == "" {
		userPrompt = rc.Prompt
	}
	reasoning, _ := params["reasoning"].(string)

	prompt := prompts.DesignPrompt(userPrompt, reasoning, rc.HasReference())
	text, err := t.complete(ctx, rc, "design_generation", prompt, referenceImages(rc))
	if err != nil {
		return "", fmt.Errorf("design generation: %w", err)
	}

	block := jsonBlock.FindString(text)
	if block == "" {
		return "", fmt.Errorf("failed to parse design JSON: %s", trace.Truncate(text, 200))
	}
	d, err := slide.ParseDesign([]byte(block))
	if err != nil {
		return "", fmt.Errorf("failed to parse design JSON: %w", err)
	}
	rc.Design = d

	if _, err := slide.SaveDesign(rc.OutputDir(), d); err != nil {
		t.logger.Warn("design not saved", "session_id", rc.SessionID, "error", err)
	}

	t.logger.Info("design generated",
		"session_id", rc.SessionID,
		"theme", d.Meta.Theme,
		"elements", len(d.Elements),
	)
	return "Design JSON generated.\n" + trace.Truncate(d.Indent(), designSummaryLimit), nil
}

func (t *Tools) handleGenerate(ctx context.Context, rc *tools.RunContext, params map[string]any) (string, error) {
	if raw, ok := params["design"].(map[string]any); ok && len(raw) > 0 {
		d, err := slide.DesignFromMap(raw)
		if err != nil {
			return "", err
		}
		rc.Design = d
	}
	if rc.Design == nil {
		return "", errNoDesign
	}

	var elements []slide.RenderedElement
	for i, e := range rc.Design.Elements {
		switch e.Type {
		case slide.TypeBackground:
			img, err := t.background(ctx, rc, e)
			if err != nil {
				t.logger.Warn("background generation failed", "session_id", rc.SessionID, "error", err)
				continue
			}
			if img == nil {
				continue
			}
			elements = append(elements, slide.BackgroundElement(e, i, img))
		case slide.TypeText:
			if e.Content == "" {
				continue
			}
			elements = append(elements, slide.TextElement(e, i))
		}
	}

	rendered, err := t.renderer.Render(ctx, rc.OutputDir(), elements)
	if err != nil {
		return "", fmt.Errorf("render slide: %w", err)
	}
	rc.Rendered = rendered

	return fmt.Sprintf("Slide generated.\nOutput: %s\nElements: %d\nText IDs: %s",
		rendered.Path, len(rendered.Elements), strings.Join(rendered.TextIDs(), ", ")), nil
}

func (t *Tools) handleAskFeedback(ctx context.Context, rc *tools.RunContext, params map[string]any) (string, error) {
	question, _ := params["question"].(string)
	if question == "" {
		question = "Please review the result. Anything to change?"
	}

	p := rc.Prompter
	if p == nil {
		p = t.prompter
	}
	answer, err := p.Ask(ctx, rc, question)
	if err != nil {
		return "", fmt.Errorf("ask feedback: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = "OK"
	}
	rc.LastFeedback = answer
	return "User feedback: " + answer, nil
}

func (t *Tools) handleRegenerateBackground(ctx context.Context, rc *tools.RunContext, params map[string]any) (string, error) {
	if rc.Design == nil {
		return "", errNoDesign
	}
	bg := rc.Design.Background()
	if bg == nil {
		return "", errors.New("the design has no background element")
	}
	feedback, _ := params["feedback"].(string)
	if feedback == "" {
		feedback = rc.LastFeedback
	}

	rewritten, err := t.complete(ctx, rc, "background_prompt_rewrite", prompts.BackgroundRewritePrompt(bg.Prompt, feedback), nil)
	if err != nil {
		return "", fmt.Errorf("failed to rewrite prompt - %w", err)
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return "", errors.New("failed to rewrite prompt - empty response")
	}

	// The design keeps its old prompt unless a matching image exists.
	next := *bg
	next.Prompt = rewritten
	img, err := t.background(ctx, rc, next)
	if err != nil {
		return "", fmt.Errorf("regenerate background: %w", err)
	}
	if img == nil {
		return "", errors.New("no image generator is configured")
	}
	bg.Prompt = rewritten

	elements := t.currentElements(rc)
	idx := slices.IndexFunc(elements, func(e slide.RenderedElement) bool { return e.Type == slide.TypeBackground })
	el := slide.BackgroundElement(*bg, slices.IndexFunc(rc.Design.Elements, func(e slide.Element) bool {
		return e.Type == slide.TypeBackground
	}), img)
	if idx >= 0 {
		elements[idx] = el
	} else {
		elements = append([]slide.RenderedElement{el}, elements...)
	}

	if err := t.rerender(ctx, rc, elements); err != nil {
		return "", err
	}
	return "Background regenerated.\nNew prompt: " + trace.Truncate(rewritten, 300) + "\nOutput: " + rc.Rendered.Path, nil
}

// textChanges are the text properties update_text may set.
type textChanges struct {
	Content    *string `json:"content"`
	Color      *string `json:"color"`
	FontSize   *int    `json:"fontSize"`
	FontWeight *string `json:"fontWeight"`
	Align      *string `json:"align"`
}

func (c textChanges) apply(content *string, st *slide.Style) {
	if c.Content != nil {
		*content = *c.Content
	}
	if c.Color != nil {
		st.Color = *c.Color
	}
	if c.FontSize != nil {
		st.FontSize = *c.FontSize
	}
	if c.FontWeight != nil {
		st.FontWeight = *c.FontWeight
	}
	if c.Align != nil {
		st.Align = *c.Align
	}
}

func (t *Tools) handleUpdateText(ctx context.Context, rc *tools.RunContext, params map[string]any) (string, error) {
	id, _ := params["element_id"].(string)
	if id == "" {
		return "", errors.New("element_id is required")
	}
	if rc.Design == nil {
		return "", errNoDesign
	}

	var changes textChanges
	if raw, ok := params["changes"].(map[string]any); ok {
		data, err := json.Marshal(raw)
		if err != nil {
			return "", fmt.Errorf("encode changes: %w", err)
		}
		if err := json.Unmarshal(data, &changes); err != nil {
			return "", fmt.Errorf("invalid changes: %w", err)
		}
	}

	elements := t.currentElements(rc)
	found := false
	for i := range elements {
		if elements[i].Type == slide.TypeText && elements[i].ID == id {
			changes.apply(&elements[i].Content, &elements[i].Style)
			found = true
		}
	}
	if e := rc.Design.Text(id); e != nil {
		changes.apply(&e.Content, &e.Style)
		if !found {
			elements = append(elements, slide.TextElement(*e, 0))
			found = true
		}
	}
	if !found {
		ids := (&slide.Rendered{Elements: elements}).TextIDs()
		return "", fmt.Errorf("text element %q not found; available: %s", id, strings.Join(ids, ", "))
	}

	if err := t.rerender(ctx, rc, elements); err != nil {
		return "", err
	}
	return fmt.Sprintf("Text %q updated.\nOutput: %s", id, rc.Rendered.Path), nil
}

func (t *Tools) handleSaveDesign(_ context.Context, rc *tools.RunContext, _ map[string]any) (string, error) {
	if rc.Design == nil {
		return "", errNoDesign
	}
	path, err := slide.SaveDesign(rc.OutputDir(), rc.Design)
	if err != nil {
		return "", err
	}
	return "Design saved: " + path, nil
}

// background generates the image for a background element. It returns
// nil with no error when no generator is configured.
func (t *Tools) background(ctx context.Context, rc *tools.RunContext, e slide.Element) (*slide.Image, error) {
	if t.images == nil {
		return nil, nil
	}
	prompt := prompts.ImagePrompt(e.Prompt, e.Style.Description())

	var spanID string
	if rc.Trace != nil {
		spanID = rc.Trace.StartSpan("background_generation", trace.KindModel, prompt)
	}
	gen, err := t.images.Generate(ctx, prompt)
	if err != nil {
		if spanID != "" {
			rc.Trace.EndSpan(spanID, "Error: "+err.Error())
		}
		return nil, err
	}
	if spanID != "" {
		out := fmt.Sprintf("image %s (%d bytes)", gen.Image.MIMEType, len(gen.Image.Data))
		rc.Trace.EndSpan(spanID, out, trace.UsageOptions(gen.Model, gen.InputTokens, gen.OutputTokens, prompt, "")...)
	}
	return &gen.Image, nil
}

// currentElements returns a copy of the last render's elements, or the
// design laid out without a background when nothing has been rendered.
func (t *Tools) currentElements(rc *tools.RunContext) []slide.RenderedElement {
	if rc.Rendered != nil {
		return slices.Clone(rc.Rendered.Elements)
	}
	var out []slide.RenderedElement
	for i, e := range rc.Design.Elements {
		if e.Type == slide.TypeText && e.Content != "" {
			out = append(out, slide.TextElement(e, i))
		}
	}
	return out
}

func (t *Tools) rerender(ctx context.Context, rc *tools.RunContext, elements []slide.RenderedElement) error {
	rendered, err := t.renderer.Render(ctx, rc.OutputDir(), elements)
	if err != nil {
		return fmt.Errorf("render slide: %w", err)
	}
	rc.Rendered = rendered
	return nil
}
