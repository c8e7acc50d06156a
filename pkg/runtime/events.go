package runtime

import (
	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/tools"
)

// Event is one item on a run's event stream. Type returns the wire name
// used when the event is serialized to clients.
type Event interface {
	Type() string
}

// ContentDeltaEvent carries a fragment of assistant output text.
type ContentDeltaEvent struct {
	AgentName string `json:"agent_name,omitempty"`
	Delta     string `json:"delta"`
}

func (ContentDeltaEvent) Type() string { return "content_delta" }

// ReasoningDeltaEvent carries a fragment of model reasoning text.
type ReasoningDeltaEvent struct {
	AgentName string `json:"agent_name,omitempty"`
	Delta     string `json:"delta"`
}

func (ReasoningDeltaEvent) Type() string { return "reasoning_delta" }

// ToolCallStartEvent marks a tool call moving to running.
type ToolCallStartEvent struct {
	AgentName string        `json:"agent_name,omitempty"`
	ToolCall  chat.ToolCall `json:"tool_call"`
}

func (ToolCallStartEvent) Type() string { return "tool_call" }

// ToolCallResultEvent reports a finished tool call with its terminal status.
type ToolCallResultEvent struct {
	AgentName string           `json:"agent_name,omitempty"`
	ToolCall  chat.ToolCall    `json:"tool_call"`
	Status    tools.CallStatus `json:"status"`
	Output    string           `json:"output"`
}

func (ToolCallResultEvent) Type() string { return "tool_call_result" }

// AgentStepEvent reports a coordination phase change inside a team turn.
type AgentStepEvent struct {
	AgentName string `json:"agent_name,omitempty"`
	Step      string `json:"step"`
	Detail    string `json:"detail,omitempty"`
}

func (AgentStepEvent) Type() string { return "agent_step" }

// MessageCompleteEvent carries the final assistant message of a run. A
// cancelled run still emits one, holding whatever content had streamed.
type MessageCompleteEvent struct {
	AgentName string `json:"agent_name,omitempty"`
	Content   string `json:"content"`
	Partial   bool   `json:"partial,omitempty"`
}

func (MessageCompleteEvent) Type() string { return "message_complete" }

// UsageEvent reports token consumption for one model pass.
type UsageEvent struct {
	AgentName string     `json:"agent_name,omitempty"`
	Usage     chat.Usage `json:"usage"`
}

func (UsageEvent) Type() string { return "usage" }

// ErrorEvent ends a run that failed. Kind distinguishes provider failures
// from engine ones.
type ErrorEvent struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

func (ErrorEvent) Type() string { return "error" }

// StepEvent wraps an inner event with the workflow step that produced it.
type StepEvent struct {
	Step  int   `json:"step"`
	Inner Event `json:"inner"`
}

func (StepEvent) Type() string { return "step" }
