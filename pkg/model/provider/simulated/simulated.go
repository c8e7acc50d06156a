// Package simulated emulates tool calling on top of backends whose models
// have no native support for it. Tools are described in an injected system
// prompt and the model is asked to respond with fenced tool_call blocks,
// which the stream wrapper parses back into canonical tool call events.
package simulated

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/tools"
)

const (
	openMarker  = "```tool_call"
	closeMarker = "```"
)

// Backend is the provider surface the wrapper decorates.
type Backend interface {
	CreateChatCompletionStream(ctx context.Context, messages []chat.Message, requestTools []tools.Tool) (chat.MessageStream, error)
	ID() string
}

// Provider decorates a backend with prompted tool calling.
type Provider struct {
	inner Backend
}

// Wrap returns a provider that simulates tool calling over inner.
func Wrap(inner Backend) *Provider {
	return &Provider{inner: inner}
}

func (p *Provider) ID() string {
	return p.inner.ID() + "+simulated-tools"
}

func (p *Provider) CreateChatCompletionStream(
	ctx context.Context,
	messages []chat.Message,
	requestTools []tools.Tool,
) (chat.MessageStream, error) {
	if len(requestTools) == 0 {
		return p.inner.CreateChatCompletionStream(ctx, messages, nil)
	}

	converted := convertHistory(messages)
	converted = append([]chat.Message{chat.SystemMessage(toolPrompt(requestTools))}, converted...)

	stream, err := p.inner.CreateChatCompletionStream(ctx, converted, nil)
	if err != nil {
		return nil, err
	}
	return newParsingStream(stream), nil
}

// toolPrompt renders the tool directive injected ahead of the conversation.
func toolPrompt(requestTools []tools.Tool) string {
	var sb strings.Builder
	sb.WriteString("You can call the following tools. To call one, respond with a fenced code block tagged tool_call containing a JSON object with \"name\" and \"arguments\" keys, for example:\n\n")
	sb.WriteString("```tool_call\n{\"name\": \"example\", \"arguments\": {\"key\": \"value\"}}\n```\n\n")
	sb.WriteString("Emit at most one tool_call block per response and no other text alongside it. Available tools:\n")
	for _, tool := range requestTools {
		params, _ := json.Marshal(tool.Parameters)
		fmt.Fprintf(&sb, "\n- %s: %s\n  arguments schema: %s\n", tool.Name, tool.Description, params)
	}
	return sb.String()
}

// convertHistory rewrites tool traffic as plain text so the backend never
// sees roles its API rejects without native tool support.
func convertHistory(messages []chat.Message) []chat.Message {
	converted := make([]chat.Message, 0, len(messages))
	for _, msg := range messages {
		switch {
		case msg.Role == chat.MessageRoleAssistant && len(msg.ToolCalls) > 0:
			var sb strings.Builder
			sb.WriteString(msg.Content)
			for _, call := range msg.ToolCalls {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				fmt.Fprintf(&sb, "%s\n{\"name\": %q, \"arguments\": %s}\n%s",
					openMarker, call.Function.Name, argsOrEmpty(call.Function.Arguments), closeMarker)
			}
			converted = append(converted, chat.AssistantMessage(sb.String()))

		case msg.Role == chat.MessageRoleTool:
			converted = append(converted, chat.UserMessage(
				fmt.Sprintf("[Tool result]\n%s", msg.Content)))

		default:
			converted = append(converted, msg)
		}
	}
	return converted
}

func argsOrEmpty(arguments string) string {
	if strings.TrimSpace(arguments) == "" {
		return "{}"
	}
	return arguments
}
