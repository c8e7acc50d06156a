// Package invoker resolves tool definitions into executable tools and
// applies the execution policy shared by every handler kind.
package invoker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/tools"
	"github.com/eamonnk/agentd/pkg/tools/builtin"
	"github.com/eamonnk/agentd/pkg/tools/httptool"
	"github.com/eamonnk/agentd/pkg/tools/script"
)

// DefaultTimeout bounds a single tool call unless the caller's context
// imposes a tighter deadline.
const DefaultTimeout = 30 * time.Second

// Invoker turns catalog tool definitions into callable tools.
type Invoker struct {
	registry *builtin.Registry
	client   *http.Client
	timeout  time.Duration
}

// Opt configures an Invoker.
type Opt func(*Invoker)

// WithHTTPClient overrides the client used by http handlers.
func WithHTTPClient(client *http.Client) Opt {
	return func(i *Invoker) { i.client = client }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Opt {
	return func(i *Invoker) { i.timeout = d }
}

// New creates an Invoker backed by the given builtin registry.
func New(registry *builtin.Registry, opts ...Opt) *Invoker {
	inv := &Invoker{
		registry: registry,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Resolve builds the executable tool for one definition. The definition's
// name, description and schema are what the model sees regardless of the
// handler kind behind it.
func (i *Invoker) Resolve(def config.ToolDefinition) (tools.Tool, error) {
	var handler tools.ToolHandler

	switch def.Handler.Type {
	case config.HandlerBuiltin:
		capability, err := i.registry.Lookup(def.Handler.Builtin)
		if err != nil {
			return tools.Tool{}, fmt.Errorf("tool '%s': %w", def.Name, err)
		}
		handler = capability.Handler
		if def.Parameters == nil {
			def.Parameters = capability.Parameters
		}
		if def.Description == "" {
			def.Description = capability.Description
		}
	case config.HandlerHTTP:
		if def.Handler.URL == "" {
			return tools.Tool{}, fmt.Errorf("tool '%s' has no URL", def.Name)
		}
		handler = httptool.NewHandler(def.Handler, i.client)
	case config.HandlerScript:
		if def.Handler.Source == "" {
			return tools.Tool{}, fmt.Errorf("tool '%s' has no script source", def.Name)
		}
		handler = script.NewHandler(def.Handler.Source)
	default:
		return tools.Tool{}, fmt.Errorf("tool '%s' has unknown handler type '%s'", def.Name, def.Handler.Type)
	}

	params, err := tools.SchemaToMap(def.Parameters)
	if err != nil {
		return tools.Tool{}, fmt.Errorf("tool '%s' has an invalid schema: %w", def.Name, err)
	}

	return tools.Tool{
		Name:        def.Name,
		Description: def.Description,
		Parameters:  params,
		Handler:     i.withTimeout(handler),
	}, nil
}

// ResolveAll builds tools for a list of definitions.
func (i *Invoker) ResolveAll(defs []config.ToolDefinition) ([]tools.Tool, error) {
	out := make([]tools.Tool, 0, len(defs))
	for _, def := range defs {
		t, err := i.Resolve(def)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (i *Invoker) withTimeout(handler tools.ToolHandler) tools.ToolHandler {
	return func(ctx context.Context, call chat.ToolCall) (*tools.ToolCallResult, error) {
		ctx, cancel := context.WithTimeout(ctx, i.timeout)
		defer cancel()
		return handler(ctx, call)
	}
}
