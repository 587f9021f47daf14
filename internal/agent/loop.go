// Package agent implements the core agent loop.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/designer-agent/internal/config"
	"github.com/nugget/designer-agent/internal/events"
	"github.com/nugget/designer-agent/internal/llm"
	"github.com/nugget/designer-agent/internal/prompts"
	"github.com/nugget/designer-agent/internal/slide"
	"github.com/nugget/designer-agent/internal/tools"
	"github.com/nugget/designer-agent/internal/trace"
)

// DefaultMaxIterations bounds a run when neither the request nor the
// loop configuration sets a limit.
const DefaultMaxIterations = 10

// ObservationRecordLimit bounds the observation kept in each
// [ToolInvocation]. The model always sees the full observation.
const ObservationRecordLimit = 500

// ErrMaxIterations is the Result.Error of a run that never produced a
// final answer.
const ErrMaxIterations = "Max iterations reached"

// Request represents an incoming agent request.
type Request struct {
	Prompt         string       `json:"prompt"`
	ReferenceImage *slide.Image `json:"-"`
	MaxIterations  int          `json:"max_iterations,omitempty"`
	SessionID      string       `json:"session_id,omitempty"`

	// Prompter answers ask_feedback for this run. Nil uses the tool's
	// default.
	Prompter tools.Prompter `json:"-"`
}

// ToolInvocation records one dispatched action.
type ToolInvocation struct {
	Action      string         `json:"action"`
	Input       map[string]any `json:"input"`
	Observation string         `json:"observation"`
}

// Result is the outcome of a run. Run always returns one; failures are
// reported through Success and Error.
type Result struct {
	SessionID       string           `json:"session_id"`
	Success         bool             `json:"success"`
	FinalAnswer     string           `json:"final_answer,omitempty"`
	ToolInvocations []ToolInvocation `json:"tools_executed"`
	Iterations      int              `json:"iterations"`
	Error           string           `json:"error,omitempty"`
	Trace           trace.Summary    `json:"tracing_summary"`
	Rendered        *slide.Rendered  `json:"result,omitempty"`
	Model           string           `json:"model"`
	StartedAt       time.Time        `json:"started_at"`
	Duration        time.Duration    `json:"duration_ns"`
}

// RunState is the loop's bookkeeping for one run. Only the loop
// mutates it.
type RunState struct {
	SessionID     string
	MaxIterations int
	Iteration     int
	Result        *Result
}

// StreamEventKind identifies the type of stream event.
type StreamEventKind string

const (
	KindSessionStart StreamEventKind = "session_start"
	KindThought      StreamEventKind = "thought"
	KindToolStart    StreamEventKind = "tool_start"
	KindToolEnd      StreamEventKind = "tool_end"
	KindMessage      StreamEventKind = "message"
	KindError        StreamEventKind = "error"
)

// StreamEvent is a progress notification from a run. Consumers switch
// on Kind to determine which fields are set.
type StreamEvent struct {
	Kind      StreamEventKind
	SessionID string

	// Content is set for thought, message and error events.
	Content string

	// Tool and Input are set for tool events; Result and Status
	// ("completed" or "error") for tool_end.
	Tool   string
	Input  map[string]any
	Result string
	Status string
}

// StreamCallback receives stream events. It is called synchronously
// from the run's goroutine.
type StreamCallback func(event StreamEvent)

// Config configures a Loop.
type Config struct {
	Client        llm.Client
	Model         string
	Dispatcher    *tools.Dispatcher
	Logger        *slog.Logger
	MaxIterations int
	// NativeTools offers the registry to the model as function
	// definitions and prefers a returned tool call over text parsing.
	NativeTools bool
	Pricing     map[string]config.PricingEntry
	// Sink receives spans of every run. Optional.
	Sink trace.Sink
	// Bus receives run progress events. Optional.
	Bus       *events.Bus
	OutputDir string
}

// Loop is the core agent execution loop. A Loop holds no per-run state
// and may serve runs concurrently.
type Loop struct {
	client        llm.Client
	model         string
	dispatcher    *tools.Dispatcher
	logger        *slog.Logger
	baseLogger    *slog.Logger
	maxIterations int
	nativeTools   bool
	pricing       map[string]config.PricingEntry
	sink          trace.Sink
	bus           *events.Bus
	outputDir     string
	systemPrompt  string
}

// NewLoop creates a new agent loop.
func NewLoop(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	pricing := cfg.Pricing
	if pricing == nil {
		pricing = config.DefaultPricing()
	}
	l := &Loop{
		client:        cfg.Client,
		model:         cfg.Model,
		dispatcher:    cfg.Dispatcher,
		logger:        logger.With("component", "agent"),
		baseLogger:    logger,
		maxIterations: maxIter,
		nativeTools:   cfg.NativeTools,
		pricing:       pricing,
		sink:          cfg.Sink,
		bus:           cfg.Bus,
		outputDir:     cfg.OutputDir,
	}
	l.systemPrompt = prompts.ReActSystemPrompt(toolDocs(cfg.Dispatcher.Registry()))
	return l
}

// Model returns the model the loop calls.
func (l *Loop) Model() string { return l.model }

// SystemPrompt returns the text protocol prompt sent in the first turn.
func (l *Loop) SystemPrompt() string { return l.systemPrompt }

func toolDocs(reg *tools.Registry) []prompts.ToolDoc {
	var docs []prompts.ToolDoc
	for _, t := range reg.Tools() {
		docs = append(docs, prompts.ToolDoc{Name: t.Name(), Description: t.Description, Example: t.Example})
	}
	return docs
}

// Run executes the thought/action/observation loop until the model
// gives a final answer, the model call fails, or the iteration limit is
// reached.
func (l *Loop) Run(ctx context.Context, req *Request, stream StreamCallback) *Result {
	started := time.Now()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	state := &RunState{SessionID: sessionID, MaxIterations: req.MaxIterations}
	if state.MaxIterations <= 0 {
		state.MaxIterations = l.maxIterations
	}

	log := l.logger.With("session_id", sessionID)
	emit := func(ev StreamEvent) {
		ev.SessionID = sessionID
		if stream != nil {
			stream(ev)
		}
	}

	acct := trace.New(sessionID,
		trace.WithPricing(l.pricing),
		trace.WithSink(l.sink),
		trace.WithLogger(l.baseLogger),
	)
	rc := tools.NewRunContext(sessionID, req.Prompt, req.ReferenceImage, l.outputDir, acct)
	rc.Prompter = req.Prompter

	finish := func(res *Result) *Result {
		res.SessionID = sessionID
		res.Model = l.model
		res.StartedAt = started
		res.Duration = time.Since(started)
		res.Rendered = rc.Rendered
		state.Result = res

		attrs := []any{
			"success", res.Success,
			"iterations", res.Iterations,
			"tools", len(res.ToolInvocations),
			"tokens", res.Trace.TotalTokens,
			"cost_usd", res.Trace.TotalCostUSD,
			"elapsed", res.Duration.Round(time.Millisecond),
		}
		if res.Success {
			log.Info("agent run completed", attrs...)
		} else {
			log.Warn("agent run failed", append(attrs, "error", res.Error)...)
		}
		l.bus.Emit(sessionID, events.SourceAgent, events.KindRunComplete, map[string]any{
			"success":    res.Success,
			"iterations": res.Iterations,
			"error":      res.Error,
			"tokens":     res.Trace.TotalTokens,
			"cost_usd":   res.Trace.TotalCostUSD,
		})
		return res
	}

	log.Info("agent run started",
		"model", l.model,
		"max_iterations", state.MaxIterations,
		"has_reference", rc.HasReference(),
	)
	emit(StreamEvent{Kind: KindSessionStart})
	l.bus.Emit(sessionID, events.SourceAgent, events.KindRunStart, map[string]any{
		"prompt": trace.Truncate(req.Prompt, trace.SummaryLimit),
		"model":  l.model,
	})
	acct.StartTrace("designer_agent", map[string]any{
		"user_prompt":   req.Prompt,
		"has_reference": rc.HasReference(),
	})

	history := NewHistory()
	history.Append(RoleUser, prompts.InitialTurn(l.systemPrompt, req.Prompt, rc.HasReference()))

	var toolDefs []map[string]any
	if l.nativeTools {
		toolDefs = l.dispatcher.Registry().List()
	}

	var invocations []ToolInvocation

	for state.Iteration = 0; state.Iteration < state.MaxIterations; state.Iteration++ {
		n := state.Iteration + 1
		spanID := acct.StartSpan(fmt.Sprintf("llm_iteration_%d", n), trace.KindModel,
			modelSpanInput(n, history.Len()))
		inputText := history.Text()

		log.Debug("calling LLM", "iteration", n, "messages", history.Len())
		resp, err := l.client.Chat(ctx, l.model, toLLMMessages(history, rc.ReferenceImage), toolDefs)
		if err != nil {
			msg := err.Error()
			acct.EndSpan(spanID, "Error: "+msg)
			emit(StreamEvent{Kind: KindError, Content: msg})
			summary := acct.EndTrace(map[string]any{"success": false, "error": msg})
			return finish(&Result{
				Error:           msg,
				Iterations:      state.Iteration,
				ToolInvocations: invocations,
				Trace:           summary,
			})
		}

		text := resp.Message.Content
		acct.EndSpan(spanID, text, trace.UsageOptions(l.model, resp.InputTokens, resp.OutputTokens, inputText, text)...)

		parsed, raw := l.parse(resp)
		if parsed.Thought != "" {
			emit(StreamEvent{Kind: KindThought, Content: trace.Truncate(parsed.Thought, trace.SummaryLimit)})
			l.bus.Emit(sessionID, events.SourceAgent, events.KindThought, map[string]any{
				"iteration": n,
				"thought":   trace.Truncate(parsed.Thought, trace.SummaryLimit),
			})
		}

		if parsed.HasFinalAnswer {
			emit(StreamEvent{Kind: KindMessage, Content: parsed.FinalAnswer})
			summary := acct.EndTrace(map[string]any{
				"success":      true,
				"final_answer": trace.Truncate(parsed.FinalAnswer, trace.SummaryLimit),
				"iterations":   n,
			})
			return finish(&Result{
				Success:         true,
				FinalAnswer:     parsed.FinalAnswer,
				ToolInvocations: invocations,
				Iterations:      n,
				Trace:           summary,
			})
		}

		if parsed.Action == "" {
			log.Warn("no action in response, asking again", "iteration", n)
			acct.LogEvent("corrective_turn", map[string]any{
				"iteration": n,
				"response":  trace.Truncate(raw, 200),
			})
			history.Append(RoleAssistant, raw)
			history.Append(RoleUser, prompts.CorrectiveTurn)
			continue
		}

		input := parsed.ActionInput
		if input == nil {
			input = map[string]any{}
		}
		log.Info("dispatching tool", "iteration", n, "tool", parsed.Action)
		emit(StreamEvent{Kind: KindToolStart, Tool: parsed.Action, Input: input})
		l.bus.Emit(sessionID, events.SourceTool, events.KindToolStart, map[string]any{
			"iteration": n,
			"tool":      parsed.Action,
		})

		observation := l.dispatcher.Dispatch(ctx, rc, parsed.Action, input)

		status := "completed"
		if strings.HasPrefix(observation, "Error:") {
			status = "error"
		}
		emit(StreamEvent{
			Kind:   KindToolEnd,
			Tool:   parsed.Action,
			Result: trace.Truncate(observation, trace.SummaryLimit),
			Status: status,
		})
		l.bus.Emit(sessionID, events.SourceTool, events.KindToolEnd, map[string]any{
			"iteration": n,
			"tool":      parsed.Action,
			"status":    status,
		})

		invocations = append(invocations, ToolInvocation{
			Action:      parsed.Action,
			Input:       input,
			Observation: trace.Truncate(observation, ObservationRecordLimit),
		})
		history.AppendExchange(raw, observation)
	}

	emit(StreamEvent{Kind: KindError, Content: ErrMaxIterations})
	summary := acct.EndTrace(map[string]any{
		"success":    false,
		"error":      ErrMaxIterations,
		"iterations": state.MaxIterations,
	})
	return finish(&Result{
		Error:           ErrMaxIterations,
		Iterations:      state.MaxIterations,
		ToolInvocations: invocations,
		Trace:           summary,
	})
}

// parse turns a model response into an action. A native tool call wins
// when native tools are enabled; its text form is returned as the raw
// response so the history stays in the text protocol.
func (l *Loop) parse(resp *llm.ChatResponse) (ParsedAction, string) {
	text := resp.Message.Content
	tc, ok := resp.FirstToolCall()
	if !l.nativeTools || !ok {
		return ParseAction(text), text
	}

	p := ParseAction(text)
	thought := p.Thought
	if thought == "" {
		thought = strings.TrimSpace(text)
	}
	args := tc.Function.Arguments
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		data = []byte("{}")
	}

	var raw strings.Builder
	if thought != "" {
		fmt.Fprintf(&raw, "Thought: %s\n", thought)
	}
	fmt.Fprintf(&raw, "Action: %s\nAction Input: %s", tc.Function.Name, data)

	return ParsedAction{Thought: thought, Action: tc.Function.Name, ActionInput: args}, raw.String()
}

func modelSpanInput(iteration, historyLen int) string {
	data, _ := json.Marshal(map[string]int{"iteration": iteration, "history_length": historyLen})
	return string(data)
}

// toLLMMessages converts the history for the provider. The reference
// image rides on the opening turn.
func toLLMMessages(h *History, ref *slide.Image) []llm.Message {
	msgs := h.Messages()
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	if len(out) > 0 && ref != nil && len(ref.Data) > 0 {
		out[0].Images = []llm.Image{{MIMEType: ref.MIMEType, Data: ref.Data}}
	}
	return out
}
