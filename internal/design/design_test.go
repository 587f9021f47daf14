package design

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugget/designer-agent/internal/llm"
	"github.com/nugget/designer-agent/internal/slide"
	"github.com/nugget/designer-agent/internal/tools"
	"github.com/nugget/designer-agent/internal/trace"
)

// fakeLLM returns replies in order and records each prompt.
type fakeLLM struct {
	replies []string
	err     error
	prompts []string
	images  [][]llm.Image
}

func (f *fakeLLM) Chat(_ context.Context, _ string, msgs []llm.Message, _ []map[string]any) (*llm.ChatResponse, error) {
	f.prompts = append(f.prompts, msgs[0].Content)
	f.images = append(f.images, msgs[0].Images)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: r}, InputTokens: 10, OutputTokens: 5}, nil
}

func (f *fakeLLM) Ping(context.Context) error { return nil }

type fakeImages struct {
	prompts []string
	err     error
}

func (f *fakeImages) Generate(_ context.Context, prompt string) (*GeneratedImage, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return nil, f.err
	}
	return &GeneratedImage{Image: slide.Image{MIMEType: "image/png", Data: []byte("png")}, Model: "image-model"}, nil
}

type staticPrompter string

func (s staticPrompter) Ask(context.Context, *tools.RunContext, string) (string, error) {
	return string(s), nil
}

const sampleDesign = `{
  "meta": {"theme": "launch", "mood": "bold", "color_scheme": {"primary": "#112233"}},
  "elements": [
    {"type": "background", "prompt": "a city at dusk", "style": {"lighting": "soft", "color_tone": "warm", "texture": "grain"}},
    {"type": "text", "id": "title", "content": "Launch Day", "style": {"fontSize": 72, "color": "#FFEEDD"}},
    {"type": "text", "content": "subtitle here"},
    {"type": "text", "id": "empty", "content": ""}
  ]
}`

func newHarness(t *testing.T, llmc *fakeLLM, imgs ImageGenerator) (*tools.Registry, *tools.RunContext) {
	t.Helper()
	tl := New(Config{Client: llmc, Model: "test-model", Images: imgs, Prompter: staticPrompter("")})
	reg := tools.NewRegistry()
	require.NoError(t, tl.Register(reg))
	rc := tools.NewRunContext("AB12-3456", "make a launch slide", nil, t.TempDir(), trace.New("AB12-3456"))
	return reg, rc
}

func TestRegister(t *testing.T) {
	reg, _ := newHarness(t, &fakeLLM{}, nil)
	for _, a := range []tools.Action{
		tools.ActionDesign, tools.ActionGenerate, tools.ActionAskFeedback,
		tools.ActionRegenerateBackground, tools.ActionUpdateText, tools.ActionSaveDesign,
	} {
		assert.NotNil(t, reg.Get(a), a.String())
	}
}

func TestDesign_ParsesAndSaves(t *testing.T) {
	llmc := &fakeLLM{replies: []string{"Here you go:\n```json\n" + sampleDesign + "\n```"}}
	reg, rc := newHarness(t, llmc, nil)

	out, err := reg.Call(context.Background(), rc, "design", map[string]any{"reasoning": "bold launch"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Design JSON generated.\n"))
	require.NotNil(t, rc.Design)
	assert.Equal(t, "launch", rc.Design.Meta.Theme)
	assert.Len(t, rc.Design.Elements, 4)

	require.Len(t, llmc.prompts, 1)
	assert.Contains(t, llmc.prompts[0], "make a launch slide")
	assert.Contains(t, llmc.prompts[0], "bold launch")

	_, err = os.Stat(filepath.Join(rc.OutputDir(), "design.json"))
	assert.NoError(t, err)

	spans := rc.Trace.Spans()
	require.Len(t, spans, 1)
	assert.Equal(t, "design_generation", spans[0].Name)
	assert.Equal(t, 10, spans[0].InputTokens)
	assert.False(t, spans[0].Estimated)
}

func TestDesign_AttachesReferenceImage(t *testing.T) {
	llmc := &fakeLLM{replies: []string{sampleDesign}}
	reg, rc := newHarness(t, llmc, nil)
	rc.ReferenceImage = &slide.Image{MIMEType: "image/jpeg", Data: []byte("jpg")}

	_, err := reg.Call(context.Background(), rc, "design", nil)
	require.NoError(t, err)
	require.Len(t, llmc.images[0], 1)
	assert.Equal(t, "image/jpeg", llmc.images[0][0].MIMEType)
}

func TestDesign_NoJSON(t *testing.T) {
	reg, rc := newHarness(t, &fakeLLM{replies: []string{"I cannot do that"}}, nil)

	_, err := reg.Call(context.Background(), rc, "design", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse design JSON: I cannot do that")
	assert.Nil(t, rc.Design)
}

func TestDesign_ModelError(t *testing.T) {
	reg, rc := newHarness(t, &fakeLLM{err: errors.New("quota")}, nil)

	_, err := reg.Call(context.Background(), rc, "design", nil)
	require.Error(t, err)
	spans := rc.Trace.Spans()
	require.Len(t, spans, 1)
	assert.Equal(t, "Error: quota", spans[0].Output)
}

func TestGenerate_RequiresDesign(t *testing.T) {
	reg, rc := newHarness(t, &fakeLLM{}, nil)

	_, err := reg.Call(context.Background(), rc, "generate", nil)
	require.Error(t, err)
	assert.Equal(t, "design is required; run 'design' action first", err.Error())
}

func TestGenerate_LaysOutSlide(t *testing.T) {
	imgs := &fakeImages{}
	reg, rc := newHarness(t, &fakeLLM{}, imgs)
	d, err := slide.ParseDesign([]byte(sampleDesign))
	require.NoError(t, err)
	rc.Design = d

	out, err := reg.Call(context.Background(), rc, "generate", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Slide generated.")
	assert.Contains(t, out, "Text IDs: title, text_2")

	require.NotNil(t, rc.Rendered)
	assert.Len(t, rc.Rendered.Elements, 3, "empty text is skipped")
	assert.FileExists(t, rc.Rendered.Path)
	assert.FileExists(t, rc.Rendered.BackgroundPath)

	require.Len(t, imgs.prompts, 1)
	assert.Contains(t, imgs.prompts[0], "a city at dusk")
	assert.Contains(t, imgs.prompts[0], "Lighting: soft")

	sub := rc.Rendered.Elements[2]
	assert.Equal(t, slide.DefaultFontSize, sub.Style.FontSize)
	assert.Equal(t, slide.DefaultColor, sub.Style.Color)
}

func TestGenerate_DesignParamReplacesCurrent(t *testing.T) {
	reg, rc := newHarness(t, &fakeLLM{}, nil)
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(sampleDesign), &raw))

	_, err := reg.Call(context.Background(), rc, "generate", map[string]any{"design": raw})
	require.NoError(t, err)
	require.NotNil(t, rc.Design)
	assert.Equal(t, "launch", rc.Design.Meta.Theme)
	assert.Empty(t, rc.Rendered.BackgroundPath, "no generator configured")
}

func TestGenerate_BackgroundFailureKeepsText(t *testing.T) {
	reg, rc := newHarness(t, &fakeLLM{}, &fakeImages{err: errors.New("image quota")})
	d, err := slide.ParseDesign([]byte(sampleDesign))
	require.NoError(t, err)
	rc.Design = d

	_, err = reg.Call(context.Background(), rc, "generate", nil)
	require.NoError(t, err)
	assert.Len(t, rc.Rendered.Elements, 2)
	assert.Equal(t, []string{"title", "text_2"}, rc.Rendered.TextIDs())
}

func TestAskFeedback(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{"empty approves", "", "User feedback: OK"},
		{"answer", "  bigger title \n", "User feedback: bigger title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, rc := newHarness(t, &fakeLLM{}, nil)
			rc.Prompter = staticPrompter(tt.answer)

			out, err := reg.Call(context.Background(), rc, "ask_feedback", map[string]any{"question": "ok?"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
			assert.Equal(t, strings.TrimPrefix(tt.want, "User feedback: "), rc.LastFeedback)
		})
	}
}

func TestRegenerateBackground(t *testing.T) {
	llmc := &fakeLLM{replies: []string{"  a city at dawn, person larger  "}}
	imgs := &fakeImages{}
	reg, rc := newHarness(t, llmc, imgs)
	d, err := slide.ParseDesign([]byte(sampleDesign))
	require.NoError(t, err)
	rc.Design = d
	_, err = reg.Call(context.Background(), rc, "generate", nil)
	require.NoError(t, err)

	out, err := reg.Call(context.Background(), rc, "regenerate_background", map[string]any{"feedback": "make the person larger"})
	require.NoError(t, err)
	assert.Contains(t, out, "Background regenerated.")
	assert.Equal(t, "a city at dawn, person larger", rc.Design.Background().Prompt)
	assert.Contains(t, llmc.prompts[0], "make the person larger")
	require.Len(t, imgs.prompts, 2)
	assert.Contains(t, imgs.prompts[1], "a city at dawn")
	assert.Len(t, rc.Rendered.Elements, 3)

	var names []string
	for _, s := range rc.Trace.Spans() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"background_generation", "background_prompt_rewrite", "background_generation"}, names)
}

func TestRegenerateBackground_RewriteFails(t *testing.T) {
	reg, rc := newHarness(t, &fakeLLM{err: errors.New("down")}, &fakeImages{})
	d, err := slide.ParseDesign([]byte(sampleDesign))
	require.NoError(t, err)
	rc.Design = d

	_, err = reg.Call(context.Background(), rc, "regenerate_background", map[string]any{"feedback": "x"})
	require.Error(t, err)
	assert.Equal(t, "failed to rewrite prompt - down", err.Error())
}

func TestRegenerateBackground_ImageFailsKeepsPrompt(t *testing.T) {
	imgs := &fakeImages{err: errors.New("quota")}
	reg, rc := newHarness(t, &fakeLLM{replies: []string{"a city at dawn"}}, imgs)
	d, err := slide.ParseDesign([]byte(sampleDesign))
	require.NoError(t, err)
	rc.Design = d

	_, err = reg.Call(context.Background(), rc, "regenerate_background", map[string]any{"feedback": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regenerate background")
	require.Len(t, imgs.prompts, 1)
	assert.Contains(t, imgs.prompts[0], "a city at dawn")
	assert.Equal(t, "a city at dusk", rc.Design.Background().Prompt)
}

func TestRegenerateBackground_NoGeneratorKeepsPrompt(t *testing.T) {
	reg, rc := newHarness(t, &fakeLLM{replies: []string{"a city at dawn"}}, nil)
	d, err := slide.ParseDesign([]byte(sampleDesign))
	require.NoError(t, err)
	rc.Design = d

	_, err = reg.Call(context.Background(), rc, "regenerate_background", map[string]any{"feedback": "x"})
	require.EqualError(t, err, "no image generator is configured")
	assert.Equal(t, "a city at dusk", rc.Design.Background().Prompt)
}

func TestUpdateText(t *testing.T) {
	reg, rc := newHarness(t, &fakeLLM{}, nil)
	d, err := slide.ParseDesign([]byte(sampleDesign))
	require.NoError(t, err)
	rc.Design = d
	_, err = reg.Call(context.Background(), rc, "generate", nil)
	require.NoError(t, err)

	_, err = reg.Call(context.Background(), rc, "update_text", map[string]any{
		"element_id": "title",
		"changes":    map[string]any{"content": "Launch Night", "color": "#3B82F6", "fontSize": float64(96)},
	})
	require.NoError(t, err)

	assert.Equal(t, "Launch Night", rc.Design.Text("title").Content)
	assert.Equal(t, "#3B82F6", rc.Design.Text("title").Style.Color)
	el := rc.Rendered.Elements[0]
	assert.Equal(t, "Launch Night", el.Content)
	assert.Equal(t, 96, el.Style.FontSize)
}

func TestUpdateText_Errors(t *testing.T) {
	reg, rc := newHarness(t, &fakeLLM{}, nil)

	_, err := reg.Call(context.Background(), rc, "update_text", map[string]any{})
	require.EqualError(t, err, "element_id is required")

	d, err := slide.ParseDesign([]byte(sampleDesign))
	require.NoError(t, err)
	rc.Design = d
	_, err = reg.Call(context.Background(), rc, "generate", nil)
	require.NoError(t, err)

	_, err = reg.Call(context.Background(), rc, "update_text", map[string]any{"element_id": "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: title, text_2")
}

func TestSaveDesign(t *testing.T) {
	reg, rc := newHarness(t, &fakeLLM{}, nil)

	_, err := reg.Call(context.Background(), rc, "save_design", nil)
	require.Error(t, err)

	rc.Design = &slide.Design{Meta: slide.Meta{Theme: "t"}}
	out, err := reg.Call(context.Background(), rc, "save_design", nil)
	require.NoError(t, err)
	assert.Equal(t, "Design saved: "+filepath.Join(rc.OutputDir(), "design.json"), out)
}

func TestStdinPrompter(t *testing.T) {
	var out strings.Builder
	p := NewStdinPrompter(strings.NewReader("looks good\n\n"), &out)
	rc := &tools.RunContext{Rendered: &slide.Rendered{Path: "/tmp/s/slide.json"}}

	a, err := p.Ask(context.Background(), rc, "Feedback?")
	require.NoError(t, err)
	assert.Equal(t, "looks good", a)
	assert.Contains(t, out.String(), "Feedback?")
	assert.Contains(t, out.String(), "/tmp/s/slide.json")

	a, err = p.Ask(context.Background(), rc, "Again?")
	require.NoError(t, err)
	assert.Equal(t, "OK", a)

	a, err = p.Ask(context.Background(), rc, "EOF?")
	require.NoError(t, err)
	assert.Equal(t, "OK", a)
}

func TestAutoPrompter(t *testing.T) {
	var seen string
	p := AutoPrompter{Notify: func(_ *tools.RunContext, q string) { seen = q }}
	a, err := p.Ask(context.Background(), nil, "Feedback?")
	require.NoError(t, err)
	assert.Equal(t, "OK", a)
	assert.Equal(t, "Feedback?", seen)
}

func TestModelImageGenerator(t *testing.T) {
	client := &imageLLM{resp: &llm.ChatResponse{Message: llm.Message{
		Images: []llm.Image{{MIMEType: "image/webp", Data: []byte("w")}},
	}, InputTokens: 3}}
	g := &ModelImageGenerator{Client: client, Model: "img"}

	gen, err := g.Generate(context.Background(), "draw")
	require.NoError(t, err)
	assert.Equal(t, "image/webp", gen.Image.MIMEType)
	assert.Equal(t, "img", gen.Model)
	assert.Equal(t, 3, gen.InputTokens)

	client.resp = &llm.ChatResponse{Message: llm.Message{Content: "sorry"}}
	_, err = g.Generate(context.Background(), "draw")
	assert.ErrorIs(t, err, errNoImage)
}

type imageLLM struct{ resp *llm.ChatResponse }

func (c *imageLLM) Chat(context.Context, string, []llm.Message, []map[string]any) (*llm.ChatResponse, error) {
	return c.resp, nil
}

func (c *imageLLM) Ping(context.Context) error { return nil }
