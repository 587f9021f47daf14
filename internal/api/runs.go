package api

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/nugget/designer-agent/internal/agent"
	"github.com/nugget/designer-agent/internal/runlog"
	"github.com/nugget/designer-agent/internal/usage"
)

// RunDetail is a stored run with its final answer rendered as HTML.
type RunDetail struct {
	*runlog.Run
	FinalAnswerHTML string `json:"final_answer_html,omitempty"`
}

func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "run log not configured")
		return
	}
	runs, err := s.runs.List(r.Context(), parseIntParam(r, "limit", 50))
	if err != nil {
		s.logger.Error("list runs failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*runlog.Run{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"runs": runs, "count": len(runs)}, s.logger)
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "run log not configured")
		return
	}
	id := r.PathValue("id")
	if !agent.ValidSessionID(id) {
		s.errorResponse(w, http.StatusBadRequest, "invalid session ID")
		return
	}
	run, err := s.runs.Get(r.Context(), id)
	if errors.Is(err, runlog.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run failed", "session_id", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	detail := RunDetail{Run: run}
	if run.FinalAnswer != "" {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(run.FinalAnswer), &buf); err != nil {
			s.logger.Debug("final answer markdown conversion failed", "session_id", id, "error", err)
		} else {
			detail.FinalAnswerHTML = buf.String()
		}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, detail, s.logger)
}

// UsageReport is the body of GET /v1/usage.
type UsageReport struct {
	Period  string                    `json:"period"`
	Start   time.Time                 `json:"start"`
	End     time.Time                 `json:"end"`
	Total   *usage.Summary            `json:"total"`
	ByModel map[string]*usage.Summary `json:"by_model"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "usage store not configured")
		return
	}
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "today"
	}
	start, end, err := usage.ParsePeriod(period, s.now())
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	total, err := s.usage.Summary(r.Context(), start, end)
	if err != nil {
		s.logger.Error("usage summary failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to summarize usage")
		return
	}
	byModel, err := s.usage.SummaryByModel(r.Context(), start, end)
	if err != nil {
		s.logger.Error("usage by model failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to summarize usage")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, UsageReport{Period: period, Start: start, End: end, Total: total, ByModel: byModel}, s.logger)
}
