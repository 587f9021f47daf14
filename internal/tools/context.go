package tools

import (
	"context"
	"path/filepath"

	"github.com/nugget/designer-agent/internal/slide"
	"github.com/nugget/designer-agent/internal/trace"
)

// RunContext is the mutable state of one run that tool handlers read and
// update: the request, the working design and the last render. It is
// created per run and passed explicitly to every handler.
type RunContext struct {
	SessionID      string
	Prompt         string
	ReferenceImage *slide.Image

	// OutputRoot is the directory under which per-session output
	// directories are created.
	OutputRoot string

	Design       *slide.Design
	Rendered     *slide.Rendered
	LastFeedback string

	// Trace is the run's accountant. Nil disables tool spans.
	Trace *trace.Accountant

	// Prompter answers ask_feedback. Nil selects the handler's default.
	Prompter Prompter
}

// Prompter collects a reply from the user.
type Prompter interface {
	Ask(ctx context.Context, rc *RunContext, question string) (string, error)
}

// NewRunContext creates the state for a run.
func NewRunContext(sessionID, prompt string, ref *slide.Image, outputRoot string, acct *trace.Accountant) *RunContext {
	return &RunContext{
		SessionID:      sessionID,
		Prompt:         prompt,
		ReferenceImage: ref,
		OutputRoot:     outputRoot,
		Trace:          acct,
	}
}

// OutputDir returns the session's output directory.
func (rc *RunContext) OutputDir() string {
	return filepath.Join(rc.OutputRoot, rc.SessionID)
}

// HasReference reports whether the run was given a reference image.
func (rc *RunContext) HasReference() bool {
	return rc.ReferenceImage != nil && len(rc.ReferenceImage.Data) > 0
}

type contextKey string

const sessionIDKey contextKey = "session_id"

// WithSessionID adds the session ID to the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session ID from the context.
// Returns "" if not set.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}
