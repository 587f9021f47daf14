// Package trace records the spans of an agent run and accounts for the
// tokens and dollars they consume.
//
// An [Accountant] is created per run. Every model call and every tool
// dispatch is bracketed by StartSpan/EndSpan; the accountant keeps the
// spans and an ordered entry log locally and forwards them to optional
// sinks (an HTTP ingestion endpoint, the event bus, the usage store).
package trace

import (
	"time"
	"unicode/utf8"
)

// Kind distinguishes model spans from tool spans.
type Kind string

const (
	KindModel Kind = "model"
	KindTool  Kind = "tool"
)

// SummaryLimit caps span input and output summaries.
const SummaryLimit = 500

// Span is a timed record of one model call or tool dispatch. Output,
// model, token and cost fields are written once by EndSpan.
type Span struct {
	ID           string    `json:"id"`
	TraceID      string    `json:"trace_id"`
	SessionID    string    `json:"session_id"`
	Name         string    `json:"name"`
	Kind         Kind      `json:"kind"`
	Input        string    `json:"input,omitempty"`
	Output       string    `json:"output,omitempty"`
	Model        string    `json:"model,omitempty"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Estimated    bool      `json:"estimated,omitempty"`
	CostUSD      float64   `json:"cost_usd"`
	Started      time.Time `json:"started"`
	Ended        time.Time `json:"ended,omitzero"`
}

// Sealed reports whether EndSpan has been called.
func (s Span) Sealed() bool { return !s.Ended.IsZero() }

// Duration is the span's wall time, zero while open.
func (s Span) Duration() time.Duration {
	if !s.Sealed() {
		return 0
	}
	return s.Ended.Sub(s.Started)
}

// Summary is the run-wide token and cost snapshot.
type Summary struct {
	SessionID         string  `json:"session_id"`
	TotalInputTokens  int     `json:"total_input_tokens"`
	TotalOutputTokens int     `json:"total_output_tokens"`
	TotalTokens       int     `json:"total_tokens"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
	EventsCount       int     `json:"events_count"`
}

// Entry types recorded in the local log.
const (
	EntryTraceStart = "trace_start"
	EntryTraceEnd   = "trace_end"
	EntrySpanStart  = "span_start"
	EntrySpanEnd    = "span_end"
	EntryEvent      = "event"
)

// Entry is one line of the accountant's local log. EventsCount in the
// summary is the number of entries.
type Entry struct {
	Type      string         `json:"type"`
	Name      string         `json:"name,omitempty"`
	SpanID    string         `json:"span_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// TraceInfo describes a whole run for sinks.
type TraceInfo struct {
	ID        string
	SessionID string
	Name      string
	Input     any
	Output    any
	Started   time.Time
	Ended     time.Time
	Summary   Summary
}

// EstimateTokens approximates the token count of text as one token per
// three characters, with a floor of one for non-empty text. It is a
// crude estimate, not a provider-accurate count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return max(1, utf8.RuneCountInString(text)/3)
}

// Truncate shortens s to at most limit bytes without splitting a rune.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
