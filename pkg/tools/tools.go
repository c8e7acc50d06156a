// Package tools defines the tool surface exposed to models: tool
// declarations, call handlers, results, and toolset lifecycle.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eamonnk/agentd/pkg/chat"
)

// ToolHandler executes one tool call. Implementations honor ctx
// cancellation and deadlines.
type ToolHandler func(ctx context.Context, call chat.ToolCall) (*ToolCallResult, error)

// NewHandler adapts a typed handler function into a ToolHandler by
// decoding the call arguments into T. Malformed arguments come back as a
// tool error result, not a transport failure.
func NewHandler[T any](fn func(ctx context.Context, args T) (*ToolCallResult, error)) ToolHandler {
	return func(ctx context.Context, call chat.ToolCall) (*ToolCallResult, error) {
		var args T
		raw := call.Function.Arguments
		if raw == "" {
			raw = "{}"
		}
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return ResultError(fmt.Sprintf("invalid arguments for %s: %v", call.Function.Name, err)), nil
		}
		return fn(ctx, args)
	}
}

// Tool is one callable tool as advertised to the model. Parameters is a
// JSON Schema object describing the arguments.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`

	Handler ToolHandler `json:"-"`
}

// ToolCallResult is the outcome of a tool call. A domain failure sets
// IsError and puts the failure text in Output so the model can react to
// it; the turn keeps going either way.
type ToolCallResult struct {
	Output  string `json:"output"`
	IsError bool   `json:"is_error,omitempty"`
}

// ResultSuccess wraps a successful output.
func ResultSuccess(output string) *ToolCallResult {
	return &ToolCallResult{Output: output}
}

// ResultError wraps a domain failure the model should see.
func ResultError(output string) *ToolCallResult {
	return &ToolCallResult{Output: output, IsError: true}
}

// CallStatus tracks a tool call through its lifetime.
type CallStatus string

const (
	CallStatusPending   CallStatus = "pending"
	CallStatusRunning   CallStatus = "running"
	CallStatusCompleted CallStatus = "completed"
	CallStatusError     CallStatus = "error"
)

// CanTransition reports whether moving from s to next is legal. Terminal
// statuses never transition.
func (s CallStatus) CanTransition(next CallStatus) bool {
	switch s {
	case CallStatusPending:
		return next == CallStatusRunning
	case CallStatusRunning:
		return next == CallStatusCompleted || next == CallStatusError
	default:
		return false
	}
}

// ToolSet is a named group of tools sharing a lifecycle.
type ToolSet interface {
	// Tools lists the currently available tools. For toolsets backed by
	// an external server the list may change between calls.
	Tools(ctx context.Context) ([]Tool, error)
}

// Startable is implemented by toolsets that need explicit setup and
// teardown, such as spawned tool server processes.
type Startable interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
