// Package provider selects and constructs the model backend client for a
// provider definition. Every backend exposes the same streaming surface;
// callers never see a backend's native wire format.
package provider

import (
	"context"
	"fmt"

	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/environment"
	"github.com/eamonnk/agentd/pkg/model/provider/anthropic"
	"github.com/eamonnk/agentd/pkg/model/provider/gemini"
	"github.com/eamonnk/agentd/pkg/model/provider/openai"
	"github.com/eamonnk/agentd/pkg/model/provider/options"
	"github.com/eamonnk/agentd/pkg/model/provider/simulated"
	"github.com/eamonnk/agentd/pkg/tools"
)

// Provider streams chat completions from one model backend.
type Provider interface {
	// CreateChatCompletionStream starts one completion over the given
	// conversation. The returned stream emits canonical events until a
	// done or error event.
	CreateChatCompletionStream(ctx context.Context, messages []chat.Message, requestTools []tools.Tool) (chat.MessageStream, error)

	// ID identifies the backend for logs.
	ID() string
}

// New constructs the client for a provider definition. Backends that are
// wire-compatible with the OpenAI chat completions API share one adapter.
func New(ctx context.Context, cfg config.Provider, env environment.Provider, opts ...options.Opt) (Provider, error) {
	var (
		p   Provider
		err error
	)

	switch cfg.Kind {
	case config.ProviderAnthropic:
		p, err = anthropic.NewClient(ctx, cfg, env, opts...)
	case config.ProviderGoogle:
		p, err = gemini.NewClient(ctx, cfg, env, opts...)
	case config.ProviderOpenAI, config.ProviderOllama, config.ProviderOpenRouter, config.ProviderCustom:
		p, err = openai.NewClient(ctx, cfg, env, opts...)
	default:
		return nil, fmt.Errorf("unsupported provider kind '%s'", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}

	if cfg.SimulateToolCalls {
		p = simulated.Wrap(p)
	}

	return p, nil
}
