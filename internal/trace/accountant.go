package trace

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/designer-agent/internal/config"
	"github.com/nugget/designer-agent/internal/usage"
)

// Accountant records spans for one run and keeps running totals. The
// totals only grow. An Accountant belongs to a single run and is not
// safe for concurrent use.
type Accountant struct {
	sessionID string
	traceID   string
	pricing   map[string]config.PricingEntry
	sinks     []Sink
	logger    *slog.Logger
	now       func() time.Time

	trace   TraceInfo
	spans   map[string]*Span
	order   []string
	entries []Entry

	totalIn   int
	totalOut  int
	totalCost float64
}

// Option configures an Accountant.
type Option func(*Accountant)

// WithPricing sets the per-model pricing table used for span costs.
func WithPricing(p map[string]config.PricingEntry) Option {
	return func(a *Accountant) { a.pricing = p }
}

// WithSink adds a sink. Nil sinks are ignored.
func WithSink(s Sink) Option {
	return func(a *Accountant) {
		if s != nil {
			a.sinks = append(a.sinks, s)
		}
	}
}

// WithLogger sets the logger used for sink failures.
func WithLogger(l *slog.Logger) Option {
	return func(a *Accountant) { a.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Accountant) { a.now = now }
}

// New creates an accountant for sessionID.
func New(sessionID string, opts ...Option) *Accountant {
	a := &Accountant{
		sessionID: sessionID,
		traceID:   newID(),
		logger:    slog.Default(),
		now:       time.Now,
		spans:     make(map[string]*Span),
	}
	for _, o := range opts {
		o(a)
	}
	a.logger = a.logger.With("component", "trace", "session_id", sessionID)
	return a
}

// SessionID returns the session this accountant records.
func (a *Accountant) SessionID() string { return a.sessionID }

// TraceID returns the identifier sinks use for this run.
func (a *Accountant) TraceID() string { return a.traceID }

// Enabled reports whether any external sink is attached.
func (a *Accountant) Enabled() bool { return len(a.sinks) > 0 }

// StartTrace marks the beginning of the run.
func (a *Accountant) StartTrace(name string, input any) {
	now := a.now()
	a.trace = TraceInfo{
		ID:        a.traceID,
		SessionID: a.sessionID,
		Name:      name,
		Input:     input,
		Started:   now,
	}
	a.record(Entry{Type: EntryTraceStart, Name: name, Timestamp: now})

	for _, s := range a.sinks {
		ts, ok := s.(TraceStarter)
		if !ok {
			continue
		}
		if err := ts.TraceStarted(a.trace); err != nil {
			a.logger.Warn("trace sink failed", "op", "trace_start", "error", err)
		}
	}
}

// EndTrace marks the end of the run and returns the final summary.
// The trace_end entry is counted in the returned summary.
func (a *Accountant) EndTrace(output any) Summary {
	now := a.now()
	a.record(Entry{Type: EntryTraceEnd, Timestamp: now})

	if a.trace.ID == "" {
		a.trace = TraceInfo{ID: a.traceID, SessionID: a.sessionID, Started: now}
	}
	a.trace.Output = output
	a.trace.Ended = now
	a.trace.Summary = a.Summary()
	for _, s := range a.sinks {
		if err := s.TraceEnded(a.trace); err != nil {
			a.logger.Warn("trace sink failed", "op", "trace_end", "error", err)
		}
	}
	return a.trace.Summary
}

// StartSpan opens a span and returns its ID.
func (a *Accountant) StartSpan(name string, kind Kind, input string) string {
	now := a.now()
	span := &Span{
		ID:        newID(),
		TraceID:   a.traceID,
		SessionID: a.sessionID,
		Name:      name,
		Kind:      kind,
		Input:     Truncate(input, SummaryLimit),
		Started:   now,
	}
	a.spans[span.ID] = span
	a.order = append(a.order, span.ID)
	a.record(Entry{
		Type:      EntrySpanStart,
		Name:      name,
		SpanID:    span.ID,
		Data:      map[string]any{"kind": string(kind)},
		Timestamp: now,
	})

	for _, s := range a.sinks {
		if err := s.SpanStarted(*span); err != nil {
			a.logger.Warn("trace sink failed", "op", "span_start", "span", name, "error", err)
		}
	}
	return span.ID
}

// EndOption sets optional fields when a span is sealed.
type EndOption func(*Span)

// WithModel names the model a span called. Only spans with a priced
// model accrue cost.
func WithModel(name string) EndOption {
	return func(s *Span) { s.Model = name }
}

// WithTokens sets the span's token counts. Negative counts become zero.
func WithTokens(in, out int) EndOption {
	return func(s *Span) {
		s.InputTokens = max(0, in)
		s.OutputTokens = max(0, out)
	}
}

// WithEstimated marks the token counts as heuristic estimates.
func WithEstimated() EndOption {
	return func(s *Span) { s.Estimated = true }
}

// UsageOptions returns the end options for a model span. Provider
// counts are used when either is positive; otherwise both sides are
// estimated from the text and the span is marked estimated.
func UsageOptions(model string, reportedIn, reportedOut int, input, output string) []EndOption {
	opts := []EndOption{WithModel(model)}
	if reportedIn > 0 || reportedOut > 0 {
		return append(opts, WithTokens(reportedIn, reportedOut))
	}
	return append(opts,
		WithTokens(EstimateTokens(input), EstimateTokens(output)),
		WithEstimated(),
	)
}

// EndSpan seals a span, computes its cost and adds it to the totals.
// Ending an unknown or already sealed span is ignored.
func (a *Accountant) EndSpan(id, output string, opts ...EndOption) {
	span, ok := a.spans[id]
	if !ok {
		a.logger.Warn("end of unknown span ignored", "span_id", id)
		return
	}
	if span.Sealed() {
		a.logger.Debug("span already sealed", "span_id", id, "span", span.Name)
		return
	}

	for _, o := range opts {
		o(span)
	}
	span.Output = Truncate(output, SummaryLimit)
	span.Ended = a.now()
	if span.Model != "" {
		span.CostUSD = usage.ComputeCost(span.Model, span.InputTokens, span.OutputTokens, a.pricing)
	}

	a.totalIn += span.InputTokens
	a.totalOut += span.OutputTokens
	a.totalCost += span.CostUSD

	a.record(Entry{
		Type:   EntrySpanEnd,
		Name:   span.Name,
		SpanID: id,
		Data: map[string]any{
			"model":         span.Model,
			"input_tokens":  span.InputTokens,
			"output_tokens": span.OutputTokens,
			"cost_usd":      round6(span.CostUSD),
		},
		Timestamp: span.Ended,
	})

	for _, s := range a.sinks {
		if err := s.SpanEnded(*span); err != nil {
			a.logger.Warn("trace sink failed", "op", "span_end", "span", span.Name, "error", err)
		}
	}
}

// LogEvent records an ad-hoc event in the local log and forwards it to
// sinks that accept events.
func (a *Accountant) LogEvent(name string, data map[string]any) {
	e := Entry{Type: EntryEvent, Name: name, Data: data, Timestamp: a.now()}
	a.record(e)

	for _, s := range a.sinks {
		el, ok := s.(EventLogger)
		if !ok {
			continue
		}
		if err := el.EventLogged(a.traceID, a.sessionID, e); err != nil {
			a.logger.Warn("trace sink failed", "op", "event", "event", name, "error", err)
		}
	}
}

// Summary returns the current totals. Cost is rounded to six decimals.
func (a *Accountant) Summary() Summary {
	return Summary{
		SessionID:         a.sessionID,
		TotalInputTokens:  a.totalIn,
		TotalOutputTokens: a.totalOut,
		TotalTokens:       a.totalIn + a.totalOut,
		TotalCostUSD:      round6(a.totalCost),
		EventsCount:       len(a.entries),
	}
}

// Span returns a copy of the span with the given ID.
func (a *Accountant) Span(id string) (Span, bool) {
	s, ok := a.spans[id]
	if !ok {
		return Span{}, false
	}
	return *s, true
}

// Spans returns copies of all spans in start order.
func (a *Accountant) Spans() []Span {
	out := make([]Span, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.spans[id])
	}
	return out
}

// Entries returns a copy of the local log.
func (a *Accountant) Entries() []Entry {
	return append([]Entry(nil), a.entries...)
}

func (a *Accountant) record(e Entry) {
	a.entries = append(a.entries, e)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
