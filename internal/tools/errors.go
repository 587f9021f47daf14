// Package tools provides the tool registry and execution framework.
//
// This file defines sentinel error types for tool execution.
package tools

import (
	"errors"
	"fmt"
)

// ErrUnknownAction matches any error produced for an action name that
// is not part of the closed action set.
var ErrUnknownAction = errors.New("unknown action")

// UnknownActionError reports an unrecognized action name. Its message is
// the text the model sees as the observation.
// Err, when set, is the underlying cause, such as an
// [ErrToolUnavailable] for a known action with no handler.
type UnknownActionError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("Unknown tool '%s'", e.Name)
}

// Unwrap returns the underlying cause, if any.
func (e *UnknownActionError) Unwrap() error { return e.Err }

// Is reports whether target is [ErrUnknownAction].
func (e *UnknownActionError) Is(target error) bool {
	return target == ErrUnknownAction
}

// ErrToolUnavailable is returned when a known action has no handler in
// the registry, usually because its collaborator is not configured.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available in this context", e.ToolName)
}
