package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/designer-agent/internal/agent"
	"github.com/nugget/designer-agent/internal/design"
	"github.com/nugget/designer-agent/internal/slide"
	"github.com/nugget/designer-agent/internal/tools"
	"github.com/nugget/designer-agent/internal/trace"
)

// RunRequest is the body of POST /v1/agent/run.
type RunRequest struct {
	Prompt string `json:"prompt"`
	// ImageBase64 is a reference image, raw base64 or a data URL.
	ImageBase64   string `json:"imageBase64,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
	MaxIterations int    `json:"maxIterations,omitempty"`
	// Stream selects NDJSON progress events. Defaults to true.
	Stream *bool `json:"stream,omitempty"`
}

// Event is one NDJSON line of a streamed run.
type Event struct {
	Type           string   `json:"type"`
	SessionID      string   `json:"sessionId,omitempty"`
	Content        string   `json:"content,omitempty"`
	Tool           string   `json:"tool,omitempty"`
	Input          string   `json:"input,omitempty"`
	Status         string   `json:"status,omitempty"`
	Result         string   `json:"result,omitempty"`
	Question       string   `json:"question,omitempty"`
	SlidePath      string   `json:"slidePath,omitempty"`
	BackgroundPath string   `json:"backgroundPath,omitempty"`
	Count          int      `json:"count,omitempty"`
	Tools          []string `json:"tools,omitempty"`
	Success        *bool    `json:"success,omitempty"`

	TotalTokens  int     `json:"totalTokens,omitempty"`
	InputTokens  int     `json:"inputTokens,omitempty"`
	OutputTokens int     `json:"outputTokens,omitempty"`
	TotalCost    float64 `json:"totalCost,omitempty"`
}

// Limits applied to streamed event payloads.
const (
	eventInputLimit   = 200
	eventResultLimit  = 300
	eventThoughtLimit = 500
)

func decodeImage(s string) (*slide.Image, error) {
	if s == "" {
		return nil, nil
	}
	mime := ""
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, errors.New("malformed data URL")
		}
		mime, _, _ = strings.Cut(header, ";")
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("unsupported image type %q", mime)
	}
	return &slide.Image{MIMEType: mime, Data: data}, nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "agent not configured")
		return
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.errorResponse(w, http.StatusBadRequest, "Prompt is required")
		return
	}
	if req.SessionID != "" && !agent.ValidSessionID(req.SessionID) {
		s.errorResponse(w, http.StatusBadRequest, "invalid session ID")
		return
	}
	img, err := decodeImage(req.ImageBase64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	agentReq := &agent.Request{
		Prompt:         req.Prompt,
		ReferenceImage: img,
		MaxIterations:  req.MaxIterations,
		SessionID:      req.SessionID,
	}
	if agentReq.SessionID == "" {
		agentReq.SessionID = agent.NewSessionID()
	}

	if req.Stream != nil && !*req.Stream {
		agentReq.Prompter = design.AutoPrompter{}
		res := s.runner.Run(r.Context(), agentReq, nil)
		s.record(r, req.Prompt, res)
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, res, s.logger)
		return
	}

	s.streamRun(w, r, req.Prompt, agentReq)
}

func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, prompt string, agentReq *agent.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	send := func(ev Event) {
		if err := enc.Encode(ev); err != nil {
			s.logger.Debug("failed to write event", "type", ev.Type, "error", err)
			return
		}
		if err := rc.Flush(); err != nil {
			s.logger.Debug("failed to flush event", "error", err)
		}
		// Long tool calls must not trip the write timeout.
		if err := rc.SetWriteDeadline(time.Now().Add(2 * time.Minute)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			s.logger.Debug("failed to reset write deadline", "error", err)
		}
	}

	agentReq.Prompter = design.AutoPrompter{Notify: func(run *tools.RunContext, question string) {
		ev := Event{Type: "waiting_feedback", Question: question}
		if run != nil && run.Rendered != nil {
			ev.SlidePath = run.Rendered.Path
			ev.BackgroundPath = run.Rendered.BackgroundPath
		}
		send(ev)
	}}

	res := s.runner.Run(r.Context(), agentReq, func(ev agent.StreamEvent) {
		send(streamEvent(ev))
	})
	s.record(r, prompt, res)

	names := make([]string, len(res.ToolInvocations))
	for i, inv := range res.ToolInvocations {
		names[i] = inv.Action
	}
	send(Event{Type: "iterations", Count: res.Iterations, Tools: names})

	if res.Success && res.Rendered != nil {
		send(Event{
			Type:           "slide_generated",
			SessionID:      res.SessionID,
			SlidePath:      res.Rendered.Path,
			BackgroundPath: res.Rendered.BackgroundPath,
		})
	}
	send(Event{
		Type:         "tracing_summary",
		TotalTokens:  res.Trace.TotalTokens,
		InputTokens:  res.Trace.TotalInputTokens,
		OutputTokens: res.Trace.TotalOutputTokens,
		TotalCost:    res.Trace.TotalCostUSD,
	})
	success := res.Success
	send(Event{Type: "done", SessionID: res.SessionID, Success: &success})
}

// streamEvent converts a loop event to its wire form.
func streamEvent(ev agent.StreamEvent) Event {
	out := Event{Type: string(ev.Kind)}
	switch ev.Kind {
	case agent.KindSessionStart:
		out.SessionID = ev.SessionID
	case agent.KindThought:
		out.Content = trace.Truncate(ev.Content, eventThoughtLimit)
	case agent.KindToolStart:
		out.Tool = ev.Tool
		input, _ := json.Marshal(ev.Input)
		out.Input = trace.Truncate(string(input), eventInputLimit)
	case agent.KindToolEnd:
		out.Tool = ev.Tool
		out.Status = ev.Status
		out.Result = trace.Truncate(ev.Result, eventResultLimit)
	case agent.KindError:
		out.Content = "An error occurred: " + ev.Content
	default:
		out.Content = ev.Content
	}
	return out
}

// record stores the finished run. A canceled request still gets its
// run recorded.
func (s *Server) record(r *http.Request, prompt string, res *agent.Result) {
	if s.runs == nil {
		return
	}
	ctx := context.WithoutCancel(r.Context())
	if err := s.runs.Record(ctx, prompt, res); err != nil {
		s.logger.Warn("run not recorded", "session_id", res.SessionID, "error", err)
	}
}
