package invoker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/tools/builtin"
)

func newInvoker(opts ...Opt) *Invoker {
	return New(builtin.NewRegistry(), opts...)
}

func TestResolveBuiltinFillsSchemaAndDescription(t *testing.T) {
	t.Parallel()

	inv := newInvoker()

	tool, err := inv.Resolve(config.ToolDefinition{
		ID:   "t1",
		Name: "what_time_is_it",
		Handler: config.ToolHandler{
			Type:    config.HandlerBuiltin,
			Builtin: builtin.ToolNameCurrentTime,
		},
	})
	require.NoError(t, err)

	// the definition's name wins, the capability fills the rest
	assert.Equal(t, "what_time_is_it", tool.Name)
	assert.NotEmpty(t, tool.Description)
	assert.NotEmpty(t, tool.Parameters)
	require.NotNil(t, tool.Handler)

	result, err := tool.Handler(context.Background(), chat.ToolCall{
		Function: chat.FunctionCall{Name: "what_time_is_it", Arguments: "{}"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.NotEmpty(t, result.Output)
}

func TestResolveBuiltinKeepsDefinitionOverrides(t *testing.T) {
	t.Parallel()

	inv := newInvoker()

	tool, err := inv.Resolve(config.ToolDefinition{
		ID:          "t1",
		Name:        "calc",
		Description: "custom description",
		Handler: config.ToolHandler{
			Type:    config.HandlerBuiltin,
			Builtin: builtin.ToolNameCalculator,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "custom description", tool.Description)
}

func TestResolveUnknownBuiltin(t *testing.T) {
	t.Parallel()

	inv := newInvoker()

	_, err := inv.Resolve(config.ToolDefinition{
		ID:   "t1",
		Name: "mystery",
		Handler: config.ToolHandler{
			Type:    config.HandlerBuiltin,
			Builtin: "does_not_exist",
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown builtin")
}

func TestResolveHTTPRequiresURL(t *testing.T) {
	t.Parallel()

	inv := newInvoker()

	_, err := inv.Resolve(config.ToolDefinition{
		ID:      "t1",
		Name:    "fetch",
		Handler: config.ToolHandler{Type: config.HandlerHTTP},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no URL")
}

func TestResolveScriptRequiresSource(t *testing.T) {
	t.Parallel()

	inv := newInvoker()

	_, err := inv.Resolve(config.ToolDefinition{
		ID:      "t1",
		Name:    "compute",
		Handler: config.ToolHandler{Type: config.HandlerScript},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no script source")
}

func TestResolveUnknownHandlerType(t *testing.T) {
	t.Parallel()

	inv := newInvoker()

	_, err := inv.Resolve(config.ToolDefinition{
		ID:      "t1",
		Name:    "odd",
		Handler: config.ToolHandler{Type: "grpc"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown handler type")
}

func TestResolveAllStopsAtFirstError(t *testing.T) {
	t.Parallel()

	inv := newInvoker()

	_, err := inv.ResolveAll([]config.ToolDefinition{
		{
			ID:   "t1",
			Name: "clock",
			Handler: config.ToolHandler{
				Type:    config.HandlerBuiltin,
				Builtin: builtin.ToolNameCurrentTime,
			},
		},
		{
			ID:      "t2",
			Name:    "fetch",
			Handler: config.ToolHandler{Type: config.HandlerHTTP},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch")
}

func TestTimeoutBoundsScriptCalls(t *testing.T) {
	t.Parallel()

	inv := newInvoker(WithTimeout(100 * time.Millisecond))

	tool, err := inv.Resolve(config.ToolDefinition{
		ID:   "t1",
		Name: "spin",
		Handler: config.ToolHandler{
			Type:   config.HandlerScript,
			Source: `function handler(args) { while (true) {} }`,
		},
	})
	require.NoError(t, err)

	_, err = tool.Handler(context.Background(), chat.ToolCall{
		Function: chat.FunctionCall{Name: "spin", Arguments: "{}"},
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
