// Package openai adapts the OpenAI chat completions API to the engine's
// provider surface. Ollama, OpenRouter and custom endpoints speak the
// same wire format, so this one adapter serves all of them with a
// different base URL and credential.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/environment"
	"github.com/eamonnk/agentd/pkg/model/provider/options"
	"github.com/eamonnk/agentd/pkg/tools"
)

// Client implements provider.Provider over the OpenAI SDK.
type Client struct {
	client openai.Client
	config config.Provider
	opts   options.ModelOptions
}

// kindDefaults maps each compatible backend kind to its default base URL
// and credential name. OpenAI itself uses the SDK default endpoint.
var kindDefaults = map[config.ProviderKind]struct {
	baseURL   string
	apiKeyEnv string
}{
	config.ProviderOpenAI:     {"", "OPENAI_API_KEY"},
	config.ProviderOllama:     {"http://localhost:11434/v1", "OLLAMA_API_KEY"},
	config.ProviderOpenRouter: {"https://openrouter.ai/api/v1", "OPENROUTER_API_KEY"},
	config.ProviderCustom:     {"", "OPENAI_API_KEY"},
}

// NewClient creates a client for an OpenAI-compatible provider definition.
func NewClient(ctx context.Context, cfg config.Provider, env environment.Provider, opts ...options.Opt) (*Client, error) {
	if env == nil {
		return nil, errors.New("environment provider is required")
	}

	defaults, ok := kindDefaults[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("provider kind '%s' is not OpenAI-compatible", cfg.Kind)
	}

	keyName := cfg.APIKeyEnv
	if keyName == "" {
		keyName = defaults.apiKeyEnv
	}
	apiKey := env.Get(ctx, keyName)
	// Local endpoints commonly run without authentication.
	if apiKey == "" && cfg.Kind != config.ProviderOllama && cfg.Kind != config.ProviderCustom {
		return nil, fmt.Errorf("%s is required", keyName)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaults.baseURL
	}
	if baseURL == "" && cfg.Kind == config.ProviderCustom {
		return nil, errors.New("custom provider requires a base_url")
	}

	resolved := options.Resolve(opts...)

	requestOptions := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		requestOptions = append(requestOptions, option.WithBaseURL(baseURL))
	}
	if t := resolved.Transport(); t != nil {
		requestOptions = append(requestOptions, option.WithHTTPClient(&http.Client{Transport: t}))
	}

	slog.Debug("openai-compatible client created", "kind", cfg.Kind, "model", cfg.Model, "base_url", baseURL)

	return &Client{
		client: openai.NewClient(requestOptions...),
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
	if len(messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	slog.Debug("creating openai chat completion stream",
		"kind", c.config.Kind,
		"model", c.config.Model,
		"message_count", len(messages),
		"tool_count", len(requestTools))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.config.Model),
		Messages: convertMessages(messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	maxTokens := c.opts.MaxTokens()
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(maxTokens)
	}
	if c.config.Temperature != nil {
		params.Temperature = openai.Float(*c.config.Temperature)
	}
	if len(requestTools) > 0 {
		params.Tools = convertTools(requestTools)
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	return newStreamAdapter(stream), nil
}

func convertMessages(messages []chat.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case chat.MessageRoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))

		case chat.MessageRoleUser:
			if len(msg.MultiContent) > 0 {
				out = append(out, openai.UserMessage(convertMultiContent(msg.MultiContent)))
			} else {
				out = append(out, openai.UserMessage(msg.Content))
			}

		case chat.MessageRoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			for _, toolCall := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: toolCall.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      toolCall.Function.Name,
						Arguments: toolCall.Function.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

		case chat.MessageRoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return out
}

func convertMultiContent(parts []chat.MessagePart) []openai.ChatCompletionContentPartUnionParam {
	out := make([]openai.ChatCompletionContentPartUnionParam, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case chat.MessagePartTypeText:
			out = append(out, openai.TextContentPart(part.Text))
		case chat.MessagePartTypeImageURL:
			if part.ImageURL != nil {
				out = append(out, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: part.ImageURL.URL,
				}))
			}
		}
	}
	return out
}

func convertTools(requestTools []tools.Tool) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(requestTools))
	for i, tool := range requestTools {
		out[i] = openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.Parameters),
			},
		}
	}
	return out
}
