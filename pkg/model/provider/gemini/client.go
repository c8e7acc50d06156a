// Package gemini adapts the Google Gemini API to the engine's provider
// surface.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/genai"

	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/environment"
	"github.com/eamonnk/agentd/pkg/model/provider/options"
	"github.com/eamonnk/agentd/pkg/tools"
)

// Client implements provider.Provider over the Gemini SDK.
type Client struct {
	client *genai.Client
	config config.Provider
	opts   options.ModelOptions
}

// NewClient creates a Gemini client from the provider definition.
func NewClient(ctx context.Context, cfg config.Provider, env environment.Provider, opts ...options.Opt) (*Client, error) {
	if env == nil {
		return nil, errors.New("environment provider is required")
	}

	keyName := cfg.APIKeyEnv
	if keyName == "" {
		keyName = "GOOGLE_API_KEY"
	}
	apiKey := env.Get(ctx, keyName)
	if apiKey == "" {
		return nil, fmt.Errorf("%s is required", keyName)
	}

	resolved := options.Resolve(opts...)

	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if t := resolved.Transport(); t != nil {
		clientConfig.HTTPClient = &http.Client{Transport: t}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	slog.Debug("gemini client created", "model", cfg.Model)

	return &Client{
		client: client,
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
	slog.Debug("creating gemini chat completion stream",
		"model", c.config.Model,
		"message_count", len(messages),
		"tool_count", len(requestTools))

	contents, system := convertMessages(messages)
	if len(contents) == 0 {
		return nil, errors.New("no messages to send after conversion")
	}

	genConfig := &genai.GenerateContentConfig{}
	if system != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	maxTokens := c.opts.MaxTokens()
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}
	if maxTokens > 0 {
		genConfig.MaxOutputTokens = int32(maxTokens)
	}
	if c.config.Temperature != nil {
		t := float32(*c.config.Temperature)
		genConfig.Temperature = &t
	}
	if len(requestTools) > 0 {
		genConfig.Tools = convertTools(requestTools)
	}

	seq := c.client.Models.GenerateContentStream(ctx, c.config.Model, contents, genConfig)
	return newStreamAdapter(seq), nil
}

// convertMessages maps the neutral history onto Gemini contents. System
// messages are pulled out into the system instruction; tool results become
// function responses correlated by call ID.
func convertMessages(messages []chat.Message) (contents []*genai.Content, system string) {
	// Map tool call IDs back to function names; Gemini correlates
	// responses by name, not ID.
	callNames := map[string]string{}

	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case chat.MessageRoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content

		case chat.MessageRoleUser:
			var parts []*genai.Part
			if len(msg.MultiContent) > 0 {
				for _, part := range msg.MultiContent {
					if part.Type == chat.MessagePartTypeText && part.Text != "" {
						parts = append(parts, &genai.Part{Text: part.Text})
					}
				}
			} else if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
			}

		case chat.MessageRoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, toolCall := range msg.ToolCalls {
				callNames[toolCall.ID] = toolCall.Function.Name
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   toolCall.ID,
						Name: toolCall.Function.Name,
						Args: decodeArgs(toolCall.Function.Arguments),
					},
				})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}

		case chat.MessageRoleTool:
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:   msg.ToolCallID,
						Name: callNames[msg.ToolCallID],
						Response: map[string]any{
							"result": msg.Content,
						},
					},
				}},
			})
		}
	}

	return contents, system
}

func convertTools(requestTools []tools.Tool) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, len(requestTools))
	for i, tool := range requestTools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:                 tool.Name,
			Description:          tool.Description,
			ParametersJsonSchema: tool.Parameters,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}
