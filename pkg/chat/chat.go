// Package chat defines the provider-neutral message model shared by all
// model backends and the runtime loop.
package chat

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// Message is one entry in a conversation as sent to a model backend.
type Message struct {
	Role             MessageRole   `json:"role"`
	Content          string        `json:"content,omitempty"`
	MultiContent     []MessagePart `json:"multi_content,omitempty"`
	ReasoningContent string        `json:"reasoning_content,omitempty"`

	// ToolCalls is set on assistant messages that requested tool executions.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID correlates a tool-role message with the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// IsError marks a tool-role message carrying a failed result.
	IsError bool `json:"is_error,omitempty"`
}

type MessagePartType string

const (
	MessagePartTypeText     MessagePartType = "text"
	MessagePartTypeImageURL MessagePartType = "image_url"
)

// MessagePart is one block of a multi-part user message (text or image).
type MessagePart struct {
	Type     MessagePartType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *ImageURL       `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// ToolCall is a model-requested function invocation.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: MessageRoleSystem, Content: content}
}

// UserMessage builds a plain-text user message.
func UserMessage(content string) Message {
	return Message{Role: MessageRoleUser, Content: content}
}

// AssistantMessage builds a plain-text assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: MessageRoleAssistant, Content: content}
}

// ToolResultMessage builds a tool-role message answering the given call.
func ToolResultMessage(toolCallID, content string, isError bool) Message {
	return Message{
		Role:       MessageRoleTool,
		Content:    content,
		ToolCallID: toolCallID,
		IsError:    isError,
	}
}
