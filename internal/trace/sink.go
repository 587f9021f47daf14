package trace

import (
	"context"
	"errors"
	"time"

	"github.com/nugget/designer-agent/internal/events"
	"github.com/nugget/designer-agent/internal/usage"
)

// Sink receives span and trace lifecycle notifications. Errors are
// logged by the accountant and never change the run's control flow.
type Sink interface {
	SpanStarted(s Span) error
	SpanEnded(s Span) error
	TraceEnded(t TraceInfo) error
}

// TraceStarter is implemented by sinks that want the start of a run.
type TraceStarter interface {
	TraceStarted(t TraceInfo) error
}

// EventLogger is implemented by sinks that accept ad-hoc events.
type EventLogger interface {
	EventLogged(traceID, sessionID string, e Entry) error
}

// MultiSink fans notifications out to several sinks, joining any errors.
type MultiSink []Sink

func (m MultiSink) SpanStarted(s Span) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.SpanStarted(s))
	}
	return errors.Join(errs...)
}

func (m MultiSink) SpanEnded(s Span) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.SpanEnded(s))
	}
	return errors.Join(errs...)
}

func (m MultiSink) TraceEnded(t TraceInfo) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.TraceEnded(t))
	}
	return errors.Join(errs...)
}

func (m MultiSink) TraceStarted(t TraceInfo) error {
	var errs []error
	for _, sink := range m {
		if ts, ok := sink.(TraceStarter); ok {
			errs = append(errs, ts.TraceStarted(t))
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) EventLogged(traceID, sessionID string, e Entry) error {
	var errs []error
	for _, sink := range m {
		if el, ok := sink.(EventLogger); ok {
			errs = append(errs, el.EventLogged(traceID, sessionID, e))
		}
	}
	return errors.Join(errs...)
}

// BusSink mirrors spans onto the event bus so live observers can follow
// token spend as it happens.
type BusSink struct {
	Bus *events.Bus
}

func (b BusSink) SpanStarted(s Span) error {
	b.Bus.Emit(s.SessionID, events.SourceTrace, events.KindSpanStart, map[string]any{
		"span_id": s.ID,
		"name":    s.Name,
		"kind":    string(s.Kind),
	})
	return nil
}

func (b BusSink) SpanEnded(s Span) error {
	b.Bus.Emit(s.SessionID, events.SourceTrace, events.KindSpanEnd, map[string]any{
		"span_id":       s.ID,
		"name":          s.Name,
		"kind":          string(s.Kind),
		"model":         s.Model,
		"input_tokens":  s.InputTokens,
		"output_tokens": s.OutputTokens,
		"cost_usd":      round6(s.CostUSD),
		"duration_ms":   s.Duration().Milliseconds(),
	})
	return nil
}

func (b BusSink) TraceEnded(TraceInfo) error { return nil }

// UsageRecorder is the subset of [usage.Store] the usage sink needs.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// UsageSink persists every sealed model span as a usage record.
type UsageSink struct {
	Store UsageRecorder
	// Provider maps a model name to its provider for the record.
	Provider func(model string) string
	// Timeout bounds each insert. Zero means five seconds.
	Timeout time.Duration
}

func (u UsageSink) SpanStarted(Span) error { return nil }

func (u UsageSink) SpanEnded(s Span) error {
	if s.Kind != KindModel || s.Model == "" || u.Store == nil {
		return nil
	}
	provider := ""
	if u.Provider != nil {
		provider = u.Provider(s.Model)
	}
	timeout := u.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return u.Store.Record(ctx, usage.Record{
		Timestamp:    s.Ended,
		SessionID:    s.SessionID,
		SpanID:       s.ID,
		SpanName:     s.Name,
		Model:        s.Model,
		Provider:     provider,
		InputTokens:  s.InputTokens,
		OutputTokens: s.OutputTokens,
		CostUSD:      s.CostUSD,
		Estimated:    s.Estimated,
	})
}

func (u UsageSink) TraceEnded(TraceInfo) error { return nil }
