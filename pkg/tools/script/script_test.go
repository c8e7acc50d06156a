package script

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eamonnk/agentd/pkg/chat"
)

func call(name, arguments string) chat.ToolCall {
	return chat.ToolCall{
		ID: "call_1",
		Function: chat.FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}
}

func TestHandlerReturnsString(t *testing.T) {
	t.Parallel()

	handler := NewHandler(`function handler(args) { return "hello " + args.name; }`)

	result, err := handler(context.Background(), call("greet", `{"name":"world"}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "hello world", result.Output)
}

func TestHandlerSerializesObjects(t *testing.T) {
	t.Parallel()

	handler := NewHandler(`function handler(args) { return {sum: args.a + args.b}; }`)

	result, err := handler(context.Background(), call("add", `{"a":2,"b":3}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"sum":5}`, result.Output)
}

func TestHandlerCompileError(t *testing.T) {
	t.Parallel()

	handler := NewHandler(`function handler(args) { return `)

	result, err := handler(context.Background(), call("broken", "{}"))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "compile error")
}

func TestHandlerMissingEntrypoint(t *testing.T) {
	t.Parallel()

	handler := NewHandler(`function other(args) { return 1; }`)

	result, err := handler(context.Background(), call("noop", "{}"))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "handler")
}

func TestHandlerRuntimeError(t *testing.T) {
	t.Parallel()

	handler := NewHandler(`function handler(args) { throw new Error("boom"); }`)

	result, err := handler(context.Background(), call("explode", "{}"))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "boom")
}

func TestHandlerInvalidArguments(t *testing.T) {
	t.Parallel()

	handler := NewHandler(`function handler(args) { return "ok"; }`)

	result, err := handler(context.Background(), call("greet", `{not json`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "invalid arguments")
}

func TestHandlerInterruptedByDeadline(t *testing.T) {
	t.Parallel()

	handler := NewHandler(`function handler(args) { while (true) {} }`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := handler(ctx, call("spin", "{}"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRenderEmptyReturn(t *testing.T) {
	t.Parallel()

	handler := NewHandler(`function handler(args) {}`)

	result, err := handler(context.Background(), call("void", "{}"))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Empty(t, result.Output)
}
