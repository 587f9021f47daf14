package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugget/designer-agent/internal/trace"
)

func TestParseActionName(t *testing.T) {
	for _, a := range Actions() {
		assert.Equal(t, a, ParseActionName(a.String()), a.String())
	}
	assert.Equal(t, ActionUnsupported, ParseActionName("bar"))
	assert.Equal(t, ActionUnsupported, ParseActionName("Design"))
	assert.Equal(t, ActionUnsupported, ParseActionName(""))
	assert.Equal(t, "unsupported", ActionUnsupported.String())
	assert.Len(t, Actions(), 9)
}

func echoTool(a Action) *Tool {
	return &Tool{
		Action:      a,
		Description: "echo " + a.String(),
		Handler: func(_ context.Context, _ *RunContext, params map[string]any) (string, error) {
			v, _ := params["v"].(string)
			return "ok " + v, nil
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool(ActionDesign)))
	require.NoError(t, r.Register(echoTool(ActionWebSearch)))

	err := r.Register(&Tool{Action: ActionUnsupported, Handler: echoTool(ActionDesign).Handler})
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Error(t, r.Register(&Tool{Action: ActionGenerate}))

	tools := r.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, ActionWebSearch, tools[0].Action)
	assert.Equal(t, ActionDesign, tools[1].Action)
	assert.Nil(t, r.Get(ActionGenerate))
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool(ActionAskFeedback)))

	list := r.List()
	require.Len(t, list, 1)
	fn := list[0]["function"].(map[string]any)
	assert.Equal(t, "ask_feedback", fn["name"])
	assert.Equal(t, "object", fn["parameters"].(map[string]any)["type"])
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool(ActionDesign)))
	require.NoError(t, r.Register(&Tool{
		Action: ActionGenerate,
		Handler: func(context.Context, *RunContext, map[string]any) (string, error) {
			return "", errors.New("boom")
		},
	}))
	require.NoError(t, r.Register(&Tool{
		Action: ActionUpdateText,
		Handler: func(context.Context, *RunContext, map[string]any) (string, error) {
			panic("boom")
		},
	}))
	require.NoError(t, r.Register(&Tool{
		Action: ActionSaveDesign,
		Handler: func(context.Context, *RunContext, map[string]any) (string, error) {
			return strings.Repeat("x", 2000), nil
		},
	}))
	return NewDispatcher(r, nil)
}

func TestDispatch(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		action string
		input  map[string]any
		want   string
	}{
		{"success", "design", map[string]any{"v": "x"}, "ok x"},
		{"nil input", "design", nil, "ok "},
		{"unknown", "bar", nil, "Error: Unknown tool 'bar'"},
		{"handler error", "generate", nil, "Error: boom"},
		{"panic", "update_text", nil, "Error: boom"},
		{"unregistered", "web_search", nil, "Error: Unknown tool 'web_search'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := NewRunContext("AB12-3456", "p", nil, t.TempDir(), nil)
			assert.Equal(t, tt.want, d.Dispatch(ctx, rc, tt.action, tt.input))
		})
	}
}

func TestRegistryCall_KnownActionNotRegistered(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call(context.Background(), nil, "web_search", nil)
	require.Error(t, err)
	assert.Equal(t, "Unknown tool 'web_search'", err.Error())
	assert.ErrorIs(t, err, ErrUnknownAction)

	var unavailable *ErrToolUnavailable
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "web_search", unavailable.ToolName)

	d := NewDispatcher(r, nil)
	assert.Equal(t, "Error: Unknown tool 'web_search'",
		d.Dispatch(context.Background(), nil, "web_search", nil))
}

func TestDispatch_NilRunContext(t *testing.T) {
	d := newTestDispatcher(t)
	assert.Equal(t, "ok ", d.Dispatch(context.Background(), nil, "design", nil))
}

func TestDispatch_ToolSpans(t *testing.T) {
	d := newTestDispatcher(t)
	acct := trace.New("AB12-3456")
	rc := NewRunContext("AB12-3456", "p", nil, t.TempDir(), acct)

	d.Dispatch(context.Background(), rc, "design", map[string]any{"v": "y"})
	d.Dispatch(context.Background(), rc, "bar", nil)
	d.Dispatch(context.Background(), rc, "update_text", nil)
	long := d.Dispatch(context.Background(), rc, "save_design", nil)

	spans := acct.Spans()
	require.Len(t, spans, 4)
	assert.Equal(t, "tool_design", spans[0].Name)
	assert.Equal(t, trace.KindTool, spans[0].Kind)
	assert.Contains(t, spans[0].Input, `"action":"design"`)
	assert.Equal(t, "ok y", spans[0].Output)

	assert.Equal(t, "tool_bar", spans[1].Name)
	assert.Equal(t, "Error: Unknown tool 'bar'", spans[1].Output)

	assert.Equal(t, "Error: boom", spans[2].Output)
	for _, s := range spans {
		assert.True(t, s.Sealed(), s.Name)
		assert.Zero(t, s.InputTokens+s.OutputTokens)
	}

	// The observation is complete; only the span record is truncated.
	assert.Len(t, long, 2000)
	assert.Len(t, spans[3].Output, trace.SummaryLimit)
}
