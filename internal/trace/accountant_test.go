package trace

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugget/designer-agent/internal/config"
)

func testPricing() map[string]config.PricingEntry {
	return map[string]config.PricingEntry{
		"known-model": {InputPerMillion: 1.25, OutputPerMillion: 10.00},
	}
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	t := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

type recordingSink struct {
	started []Span
	ended   []Span
	traces  []TraceInfo
	begun   []TraceInfo
	events  []Entry
	err     error
}

func (r *recordingSink) SpanStarted(s Span) error { r.started = append(r.started, s); return r.err }
func (r *recordingSink) SpanEnded(s Span) error   { r.ended = append(r.ended, s); return r.err }
func (r *recordingSink) TraceEnded(t TraceInfo) error {
	r.traces = append(r.traces, t)
	return r.err
}
func (r *recordingSink) TraceStarted(t TraceInfo) error { r.begun = append(r.begun, t); return r.err }
func (r *recordingSink) EventLogged(_, _ string, e Entry) error {
	r.events = append(r.events, e)
	return r.err
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"ab", 1},
		{"abcdef", 2},
		{"デザインを作成", 2}, // seven runes
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.text), "%q", tt.text)
	}
}

func TestEndSpan_Cost(t *testing.T) {
	a := New("ABCD-1234", WithPricing(testPricing()))

	id := a.StartSpan("agent_iteration_1", KindModel, "prompt")
	a.EndSpan(id, "response", WithModel("known-model"), WithTokens(1_000_000, 500_000))

	span, ok := a.Span(id)
	require.True(t, ok)
	assert.InDelta(t, 6.25, span.CostUSD, 1e-9)
	assert.InDelta(t, 6.25, a.Summary().TotalCostUSD, 1e-9)
}

func TestEndSpan_UnknownModelCostsNothing(t *testing.T) {
	a := New("ABCD-1234", WithPricing(testPricing()))

	id := a.StartSpan("agent_iteration_1", KindModel, "")
	a.EndSpan(id, "", WithModel("unlisted"), WithTokens(5_000_000, 5_000_000))

	sum := a.Summary()
	assert.Zero(t, sum.TotalCostUSD)
	assert.Equal(t, 10_000_000, sum.TotalTokens, "tokens still count without pricing")
}

func TestEndSpan_SealedOnce(t *testing.T) {
	a := New("ABCD-1234", WithPricing(testPricing()))

	id := a.StartSpan("design", KindModel, "")
	a.EndSpan(id, "first", WithModel("known-model"), WithTokens(100, 100))
	a.EndSpan(id, "second", WithModel("known-model"), WithTokens(999, 999))
	a.EndSpan("no-such-span", "x", WithTokens(1, 1))

	span, _ := a.Span(id)
	assert.Equal(t, "first", span.Output)
	assert.Equal(t, 100, span.InputTokens)
	assert.Equal(t, 200, a.Summary().TotalTokens)
}

func TestTotalsAreMonotonic(t *testing.T) {
	a := New("ABCD-1234", WithPricing(testPricing()))

	var prev Summary
	for i, tokens := range []int{10, 0, 250, -5, 40} {
		id := a.StartSpan("step", KindModel, "")
		a.EndSpan(id, "", WithModel("known-model"), WithTokens(tokens, tokens))
		cur := a.Summary()
		assert.GreaterOrEqual(t, cur.TotalInputTokens, prev.TotalInputTokens, "step %d", i)
		assert.GreaterOrEqual(t, cur.TotalOutputTokens, prev.TotalOutputTokens, "step %d", i)
		assert.GreaterOrEqual(t, cur.TotalCostUSD, prev.TotalCostUSD, "step %d", i)
		prev = cur
	}
	assert.Equal(t, 300, prev.TotalInputTokens)
}

func TestSummary_EventsCountAndRounding(t *testing.T) {
	a := New("ABCD-1234", WithPricing(testPricing()), WithClock(stepClock()))

	a.StartTrace("designer_agent_run", map[string]any{"prompt": "x"})
	id := a.StartSpan("agent_iteration_1", KindModel, "")
	a.EndSpan(id, "", WithModel("known-model"), WithTokens(1, 1))
	a.LogEvent("session_note", map[string]any{"k": "v"})

	sum := a.Summary()
	assert.Equal(t, "ABCD-1234", sum.SessionID)
	assert.Equal(t, 4, sum.EventsCount)
	assert.Equal(t, 0.000011, sum.TotalCostUSD)

	final := a.EndTrace(map[string]any{"success": true})
	assert.Equal(t, 5, final.EventsCount)
}

func TestSpans_TruncatesSummaries(t *testing.T) {
	a := New("ABCD-1234")
	long := make([]byte, 2*SummaryLimit)
	for i := range long {
		long[i] = 'x'
	}

	id := a.StartSpan("web_search", KindTool, string(long))
	a.EndSpan(id, string(long))

	spans := a.Spans()
	require.Len(t, spans, 1)
	assert.Len(t, spans[0].Input, SummaryLimit)
	assert.Len(t, spans[0].Output, SummaryLimit)
	assert.Zero(t, spans[0].CostUSD, "tool spans without a model cost nothing")
}

func TestSinks_ReceiveLifecycle(t *testing.T) {
	sink := &recordingSink{}
	a := New("ABCD-1234", WithSink(sink), WithClock(stepClock()))
	require.True(t, a.Enabled())

	a.StartTrace("run", nil)
	id := a.StartSpan("generate", KindTool, "in")
	a.EndSpan(id, "out")
	a.LogEvent("note", nil)
	a.EndTrace("done")

	require.Len(t, sink.begun, 1)
	require.Len(t, sink.started, 1)
	require.Len(t, sink.ended, 1)
	require.Len(t, sink.events, 1)
	require.Len(t, sink.traces, 1)

	assert.Equal(t, a.TraceID(), sink.started[0].TraceID)
	assert.Equal(t, time.Second, sink.ended[0].Duration())
	assert.Equal(t, "done", sink.traces[0].Output)
}

func TestSinkErrorsDoNotPropagate(t *testing.T) {
	sink := &recordingSink{err: errors.New("sink down")}
	a := New("ABCD-1234", WithSink(sink), WithPricing(testPricing()))

	a.StartTrace("run", nil)
	id := a.StartSpan("agent_iteration_1", KindModel, "")
	a.EndSpan(id, "", WithModel("known-model"), WithTokens(1_000_000, 0))
	sum := a.EndTrace(nil)

	assert.InDelta(t, 1.25, sum.TotalCostUSD, 1e-9)
}

func TestNoSink(t *testing.T) {
	a := New("ABCD-1234", WithSink(nil))
	assert.False(t, a.Enabled())

	id := a.StartSpan("x", KindTool, "")
	a.EndSpan(id, "ok")
	assert.Equal(t, 2, a.Summary().EventsCount)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abc", 2))
	// "é" is two bytes; cutting inside it backs off to the rune start.
	assert.Equal(t, "a", Truncate("aé", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestUsageOptions(t *testing.T) {
	a := New("S1", WithPricing(map[string]config.PricingEntry{"m": {InputPerMillion: 1, OutputPerMillion: 1}}))

	reported := a.StartSpan("llm_iteration_1", KindModel, "")
	a.EndSpan(reported, "out", UsageOptions("m", 10, 0, "ignored input", "ignored")...)
	estimated := a.StartSpan("llm_iteration_2", KindModel, "")
	a.EndSpan(estimated, "out", UsageOptions("m", 0, 0, "123456789", "abc")...)

	r, _ := a.Span(reported)
	assert.Equal(t, 10, r.InputTokens)
	assert.Equal(t, 0, r.OutputTokens)
	assert.False(t, r.Estimated)

	e, _ := a.Span(estimated)
	assert.Equal(t, 3, e.InputTokens)
	assert.Equal(t, 1, e.OutputTokens)
	assert.True(t, e.Estimated)
	assert.Equal(t, "m", e.Model)
}
