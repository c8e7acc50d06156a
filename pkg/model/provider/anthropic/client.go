// Package anthropic adapts the Anthropic Messages API to the engine's
// provider surface.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/environment"
	"github.com/eamonnk/agentd/pkg/model/provider/options"
	"github.com/eamonnk/agentd/pkg/tools"
)

// safe default accepted by all current Anthropic models
const defaultMaxTokens = 8192

// Client implements provider.Provider over the Anthropic SDK.
type Client struct {
	client anthropic.Client
	config config.Provider
	opts   options.ModelOptions
}

// NewClient creates an Anthropic client from the provider definition.
func NewClient(ctx context.Context, cfg config.Provider, env environment.Provider, opts ...options.Opt) (*Client, error) {
	if env == nil {
		return nil, errors.New("environment provider is required")
	}

	keyName := cfg.APIKeyEnv
	if keyName == "" {
		keyName = "ANTHROPIC_API_KEY"
	}
	apiKey := env.Get(ctx, keyName)
	if apiKey == "" {
		return nil, fmt.Errorf("%s is required", keyName)
	}

	resolved := options.Resolve(opts...)

	requestOptions := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.BaseURL != "" {
		requestOptions = append(requestOptions, option.WithBaseURL(cfg.BaseURL))
	}
	if t := resolved.Transport(); t != nil {
		requestOptions = append(requestOptions, option.WithHTTPClient(&http.Client{Transport: t}))
	}

	slog.Debug("anthropic client created", "model", cfg.Model)

	return &Client{
		client: anthropic.NewClient(requestOptions...),
		config: cfg,
		opts:   resolved,
	}, nil
}

func (c *Client) ID() string {
	return string(c.config.Kind) + "/" + c.config.Model
}

// CreateChatCompletionStream starts a streaming completion.
func (c *Client) CreateChatCompletionStream(
	ctx context.Context,
	messages []chat.Message,
	requestTools []tools.Tool,
) (chat.MessageStream, error) {
	slog.Debug("creating anthropic chat completion stream",
		"model", c.config.Model,
		"message_count", len(messages),
		"tool_count", len(requestTools))

	maxTokens := c.opts.MaxTokens()
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	converted, err := convertMessages(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if len(converted) == 0 {
		return nil, errors.New("no messages to send after conversion")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: maxTokens,
		System:    extractSystemBlocks(messages),
		Messages:  converted,
		Tools:     convertTools(requestTools),
	}
	if c.config.Temperature != nil {
		params.Temperature = param.NewOpt(*c.config.Temperature)
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	return newStreamAdapter(stream), nil
}

// convertMessages converts the neutral history into Anthropic messages.
// Anthropic requires every assistant tool_use to be immediately followed
// by one user message carrying tool_result blocks for exactly those IDs;
// conversion enforces that strictly and groups consecutive tool results.
func convertMessages(messages []chat.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	var pendingToolUseIDs map[string]struct{}

	for i := 0; i < len(messages); i++ {
		msg := &messages[i]
		switch msg.Role {
		case chat.MessageRoleSystem:
			// handled via the top-level System field

		case chat.MessageRoleUser:
			if pendingToolUseIDs != nil {
				return nil, errors.New("assistant tool_use must be immediately followed by tool results")
			}
			if len(msg.MultiContent) > 0 {
				blocks := convertUserMultiContent(msg.MultiContent)
				if len(blocks) > 0 {
					out = append(out, anthropic.NewUserMessage(blocks...))
				}
			} else if txt := strings.TrimSpace(msg.Content); txt != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(txt)))
			}

		case chat.MessageRoleAssistant:
			if pendingToolUseIDs != nil {
				return nil, errors.New("assistant tool_use must be immediately followed by tool results")
			}
			var blocks []anthropic.ContentBlockParamUnion
			if txt := strings.TrimSpace(msg.Content); txt != "" {
				blocks = append(blocks, anthropic.NewTextBlock(txt))
			}
			if len(msg.ToolCalls) > 0 {
				pendingToolUseIDs = make(map[string]struct{}, len(msg.ToolCalls))
				for _, toolCall := range msg.ToolCalls {
					var input map[string]any
					if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &input); err != nil {
						input = map[string]any{}
					}
					if toolCall.ID != "" {
						pendingToolUseIDs[toolCall.ID] = struct{}{}
					}
					blocks = append(blocks, anthropic.ContentBlockParamUnion{
						OfToolUse: &anthropic.ToolUseBlockParam{
							ID:    toolCall.ID,
							Input: input,
							Name:  toolCall.Function.Name,
						},
					})
				}
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}

		case chat.MessageRoleTool:
			if pendingToolUseIDs == nil {
				return nil, fmt.Errorf("unexpected tool result without preceding tool_use (tool_use_id=%q)", msg.ToolCallID)
			}
			// Group consecutive tool results into one user message.
			var blocks []anthropic.ContentBlockParamUnion
			j := i
			for j < len(messages) && messages[j].Role == chat.MessageRoleTool {
				id := messages[j].ToolCallID
				if strings.TrimSpace(id) == "" {
					return nil, errors.New("tool result is missing tool_use_id")
				}
				if _, ok := pendingToolUseIDs[id]; !ok {
					return nil, fmt.Errorf("unexpected tool_result tool_use_id=%q", id)
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(id, strings.TrimSpace(messages[j].Content), messages[j].IsError))
				delete(pendingToolUseIDs, id)
				j++
			}
			if len(pendingToolUseIDs) > 0 {
				missing := make([]string, 0, len(pendingToolUseIDs))
				for id := range pendingToolUseIDs {
					missing = append(missing, id)
				}
				return nil, fmt.Errorf("missing tool_result for tool_use id %s (and %d more)", missing[0], len(missing)-1)
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
			pendingToolUseIDs = nil
			i = j - 1
		}
	}

	if pendingToolUseIDs != nil {
		return nil, errors.New("assistant tool_use present but no subsequent tool results")
	}

	return out, nil
}

func convertUserMultiContent(parts []chat.MessagePart) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case chat.MessagePartTypeText:
			if txt := strings.TrimSpace(part.Text); txt != "" {
				blocks = append(blocks, anthropic.NewTextBlock(txt))
			}
		case chat.MessagePartTypeImageURL:
			if part.ImageURL == nil {
				continue
			}
			if data, mediaType, ok := parseDataURL(part.ImageURL.URL); ok {
				blocks = append(blocks, anthropic.NewImageBlock(anthropic.Base64ImageSourceParam{
					Data:      data,
					MediaType: anthropic.Base64ImageSourceMediaType(mediaType),
				}))
			} else if strings.HasPrefix(part.ImageURL.URL, "http://") || strings.HasPrefix(part.ImageURL.URL, "https://") {
				blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{
					URL: part.ImageURL.URL,
				}))
			}
		}
	}
	return blocks
}

func parseDataURL(url string) (data, mediaType string, ok bool) {
	if !strings.HasPrefix(url, "data:") {
		return "", "", false
	}
	header, payload, found := strings.Cut(url, ",")
	if !found {
		return "", "", false
	}
	mediaType = "image/jpeg"
	for _, candidate := range []string{"image/jpeg", "image/png", "image/gif", "image/webp"} {
		if strings.Contains(header, candidate) {
			mediaType = candidate
			break
		}
	}
	return payload, mediaType, true
}

// extractSystemBlocks collects system-role messages into top-level system
// text blocks.
func extractSystemBlocks(messages []chat.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for i := range messages {
		msg := &messages[i]
		if msg.Role != chat.MessageRoleSystem {
			continue
		}
		if txt := strings.TrimSpace(msg.Content); txt != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: txt})
		}
	}
	return blocks
}

func convertTools(requestTools []tools.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(requestTools))
	for i, tool := range requestTools {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := tool.Parameters["properties"]; ok {
			schema.Properties = props
		}
		if req, ok := tool.Parameters["required"].([]any); ok {
			required := make([]string, 0, len(req))
			for _, r := range req {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
			schema.Required = required
		}
		out[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: schema,
			},
		}
	}
	return out
}
