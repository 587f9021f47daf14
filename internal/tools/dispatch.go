package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/designer-agent/internal/trace"
)

// Dispatcher executes actions through the registry and turns every
// outcome into an observation string. Nothing a handler does can escape
// as an error or panic.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over reg.
func NewDispatcher(reg *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: reg, logger: logger.With("component", "dispatcher")}
}

// Registry returns the underlying registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch runs the named action inside a "tool_<name>" span and returns
// the observation. Unknown names yield "Error: Unknown tool '<name>'";
// handler errors and panics yield "Error: <message>".
func (d *Dispatcher) Dispatch(ctx context.Context, rc *RunContext, name string, input map[string]any) (observation string) {
	if input == nil {
		input = map[string]any{}
	}

	var spanID string
	if rc != nil && rc.Trace != nil {
		spanID = rc.Trace.StartSpan("tool_"+name, trace.KindTool, spanInput(name, input))
	}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "tool", name, "panic", r)
			observation = fmt.Sprintf("Error: %v", r)
		}
		if spanID != "" {
			rc.Trace.EndSpan(spanID, observation)
		}
		d.logger.Debug("tool finished",
			"tool", name,
			"elapsed", time.Since(start).Round(time.Millisecond),
			"result_len", len(observation),
		)
	}()

	if rc != nil {
		ctx = WithSessionID(ctx, rc.SessionID)
	}
	result, err := d.registry.Call(ctx, rc, name, input)
	if err != nil {
		var unknown *UnknownActionError
		var unavailable *ErrToolUnavailable
		switch {
		case errors.As(err, &unavailable):
			d.logger.Warn("tool not registered", "tool", name)
		case errors.As(err, &unknown):
			d.logger.Warn("unknown tool requested", "tool", name)
		default:
			d.logger.Warn("tool failed", "tool", name, "error", err)
		}
		return "Error: " + err.Error()
	}
	return result
}

func spanInput(name string, input map[string]any) string {
	data, err := json.Marshal(map[string]any{"action": name, "input": input})
	if err != nil {
		return name
	}
	return string(data)
}
