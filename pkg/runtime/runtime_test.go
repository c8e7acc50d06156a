package runtime_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/runtime"
	"github.com/eamonnk/agentd/pkg/session"
	"github.com/eamonnk/agentd/pkg/tools"
)

// fakeProvider scripts one stream per model pass and records every
// request it sees.
type fakeProvider struct {
	mu       sync.Mutex
	respond  func(pass int, messages []chat.Message, requestTools []tools.Tool) []chat.StreamEvent
	requests [][]chat.Message
	toolSets [][]tools.Tool
}

func (f *fakeProvider) CreateChatCompletionStream(_ context.Context, messages []chat.Message, requestTools []tools.Tool) (chat.MessageStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, messages)
	f.toolSets = append(f.toolSets, requestTools)
	return &scriptedStream{events: f.respond(len(f.requests)-1, messages, requestTools)}, nil
}

func (f *fakeProvider) ID() string { return "fake" }

func (f *fakeProvider) passes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type scriptedStream struct {
	events []chat.StreamEvent
	next   int
}

func (s *scriptedStream) Recv() (chat.StreamEvent, error) {
	if s.next >= len(s.events) {
		return chat.StreamEvent{}, chat.ErrStreamExhausted
	}
	ev := s.events[s.next]
	s.next++
	return ev, nil
}

func (s *scriptedStream) Close() error { return nil }

func contentEvents(deltas ...string) []chat.StreamEvent {
	var events []chat.StreamEvent
	for _, d := range deltas {
		events = append(events, chat.StreamEvent{Type: chat.StreamEventContentDelta, Content: d})
	}
	return append(events, chat.StreamEvent{Type: chat.StreamEventDone})
}

func toolCallEvents(id, name, args string) []chat.StreamEvent {
	return []chat.StreamEvent{
		{Type: chat.StreamEventToolCallEnd, ToolCall: &chat.ToolCall{
			ID:   id,
			Type: "function",
			Function: chat.FunctionCall{
				Name:      name,
				Arguments: args,
			},
		}},
		{Type: chat.StreamEventDone},
	}
}

func collect(events <-chan runtime.Event) []runtime.Event {
	var out []runtime.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestRunStreamNoTools(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		respond: func(int, []chat.Message, []tools.Tool) []chat.StreamEvent {
			return contentEvents("Hi", " there")
		},
	}

	rt := runtime.New(config.Agent{Name: "helper"}, provider, nil)
	sess := session.New(session.WithUserMessage("Hello"))

	events := collect(rt.RunStream(context.Background(), sess))

	var deltas []string
	for _, ev := range events {
		if delta, ok := ev.(runtime.ContentDeltaEvent); ok {
			deltas = append(deltas, delta.Delta)
		}
	}
	assert.Equal(t, []string{"Hi", " there"}, deltas)

	complete, ok := events[len(events)-1].(runtime.MessageCompleteEvent)
	require.True(t, ok)
	assert.Equal(t, "Hi there", complete.Content)
	assert.False(t, complete.Partial)

	assert.Equal(t, 1, provider.passes())

	history := sess.History()
	require.Len(t, history, 2)
	assert.Equal(t, chat.MessageRoleAssistant, history[1].Role)
	assert.Equal(t, "Hi there", history[1].Content)
}

func TestRunStreamToolRound(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		respond: func(pass int, _ []chat.Message, _ []tools.Tool) []chat.StreamEvent {
			if pass == 0 {
				return toolCallEvents("call_1", "get_weather", `{"location":"Paris"}`)
			}
			return contentEvents("It's sunny in Paris.")
		},
	}

	weather := tools.Tool{
		Name: "get_weather",
		Handler: func(context.Context, chat.ToolCall) (*tools.ToolCallResult, error) {
			return tools.ResultSuccess(`{"weather":"sunny"}`), nil
		},
	}

	rt := runtime.New(config.Agent{Name: "helper"}, provider, []tools.Tool{weather})
	sess := session.New(session.WithUserMessage("weather in Paris"))

	events := collect(rt.RunStream(context.Background(), sess))

	var sawStart, sawResult bool
	for _, ev := range events {
		switch typed := ev.(type) {
		case runtime.ToolCallStartEvent:
			sawStart = true
			assert.Equal(t, "get_weather", typed.ToolCall.Function.Name)
		case runtime.ToolCallResultEvent:
			sawResult = true
			assert.Equal(t, tools.CallStatusCompleted, typed.Status)
			assert.Equal(t, `{"weather":"sunny"}`, typed.Output)
		}
	}
	assert.True(t, sawStart)
	assert.True(t, sawResult)
	assert.Equal(t, 2, provider.passes())

	// user, assistant(tool calls), tool result, assistant answer
	history := sess.History()
	require.Len(t, history, 4)
	assert.Equal(t, chat.MessageRoleTool, history[2].Role)
	assert.Equal(t, "call_1", history[2].ToolCallID)

	complete, ok := events[len(events)-1].(runtime.MessageCompleteEvent)
	require.True(t, ok)
	assert.Equal(t, "It's sunny in Paris.", complete.Content)
}

func TestRunStreamRoundCap(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		respond: func(_ int, _ []chat.Message, requestTools []tools.Tool) []chat.StreamEvent {
			if len(requestTools) > 0 {
				return toolCallEvents("call", "loop", "{}")
			}
			return contentEvents("giving up")
		},
	}

	loop := tools.Tool{
		Name: "loop",
		Handler: func(context.Context, chat.ToolCall) (*tools.ToolCallResult, error) {
			return tools.ResultSuccess("again"), nil
		},
	}

	rt := runtime.New(config.Agent{Name: "looper", MaxRounds: 3}, provider, []tools.Tool{loop})
	sess := session.New(session.WithUserMessage("go"))

	events := collect(rt.RunStream(context.Background(), sess))

	// 3 tool rounds plus the forced final pass
	assert.Equal(t, 4, provider.passes())
	assert.Empty(t, provider.toolSets[3])

	finalRequest := provider.requests[3]
	last := finalRequest[len(finalRequest)-1]
	assert.Equal(t, chat.MessageRoleSystem, last.Role)
	assert.Contains(t, last.Content, "limit reached")

	complete, ok := events[len(events)-1].(runtime.MessageCompleteEvent)
	require.True(t, ok)
	assert.Equal(t, "giving up", complete.Content)
}

func TestRunStreamToolErrorContinues(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		respond: func(pass int, _ []chat.Message, _ []tools.Tool) []chat.StreamEvent {
			if pass == 0 {
				return toolCallEvents("call_1", "broken", "{}")
			}
			return contentEvents("recovered")
		},
	}

	broken := tools.Tool{
		Name: "broken",
		Handler: func(context.Context, chat.ToolCall) (*tools.ToolCallResult, error) {
			return tools.ResultError("boom"), nil
		},
	}

	rt := runtime.New(config.Agent{Name: "helper"}, provider, []tools.Tool{broken})
	sess := session.New(session.WithUserMessage("go"))

	events := collect(rt.RunStream(context.Background(), sess))

	var result runtime.ToolCallResultEvent
	for _, ev := range events {
		if typed, ok := ev.(runtime.ToolCallResultEvent); ok {
			result = typed
		}
	}
	assert.Equal(t, tools.CallStatusError, result.Status)
	assert.Equal(t, "boom", result.Output)

	complete, ok := events[len(events)-1].(runtime.MessageCompleteEvent)
	require.True(t, ok)
	assert.Equal(t, "recovered", complete.Content)

	history := sess.History()
	assert.True(t, history[2].IsError)
}

func TestRunStreamUnknownTool(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		respond: func(pass int, _ []chat.Message, _ []tools.Tool) []chat.StreamEvent {
			if pass == 0 {
				return toolCallEvents("call_1", "missing", "{}")
			}
			return contentEvents("done")
		},
	}

	rt := runtime.New(config.Agent{Name: "helper"}, provider, nil)
	sess := session.New(session.WithUserMessage("go"))

	events := collect(rt.RunStream(context.Background(), sess))

	var result runtime.ToolCallResultEvent
	for _, ev := range events {
		if typed, ok := ev.(runtime.ToolCallResultEvent); ok {
			result = typed
		}
	}
	assert.Equal(t, tools.CallStatusError, result.Status)
	assert.Contains(t, result.Output, "not available")
}

// cancellingStream delivers its events, then cancels the turn and fails
// the next read the way an aborted transport would.
type cancellingStream struct {
	events []chat.StreamEvent
	next   int
	cancel context.CancelFunc
}

func (s *cancellingStream) Recv() (chat.StreamEvent, error) {
	if s.next >= len(s.events) {
		s.cancel()
		return chat.StreamEvent{}, context.Canceled
	}
	ev := s.events[s.next]
	s.next++
	return ev, nil
}

func (s *cancellingStream) Close() error { return nil }

type cancellingProvider struct {
	cancel context.CancelFunc
}

func (p *cancellingProvider) CreateChatCompletionStream(context.Context, []chat.Message, []tools.Tool) (chat.MessageStream, error) {
	return &cancellingStream{
		events: []chat.StreamEvent{
			{Type: chat.StreamEventContentDelta, Content: "partial "},
			{Type: chat.StreamEventContentDelta, Content: "answer"},
		},
		cancel: p.cancel,
	}, nil
}

func (p *cancellingProvider) ID() string { return "cancelling" }

func TestRunStreamCancellationCommitsPartial(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt := runtime.New(config.Agent{Name: "helper"}, &cancellingProvider{cancel: cancel}, nil)
	sess := session.New(session.WithUserMessage("go"))

	events := collect(rt.RunStream(ctx, sess))

	complete, ok := events[len(events)-1].(runtime.MessageCompleteEvent)
	require.True(t, ok, "stream must end with the partial message")
	assert.True(t, complete.Partial)
	assert.Equal(t, "partial answer", complete.Content)

	history := sess.History()
	require.Len(t, history, 2)
	assert.Equal(t, "partial answer", history[1].Content)
}

func TestRunStreamCancelledDuringToolsAcknowledges(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &fakeProvider{
		respond: func(int, []chat.Message, []tools.Tool) []chat.StreamEvent {
			return []chat.StreamEvent{
				{Type: chat.StreamEventContentDelta, Content: "working on it"},
				{Type: chat.StreamEventToolCallEnd, ToolCall: &chat.ToolCall{
					ID:   "call_1",
					Type: "function",
					Function: chat.FunctionCall{
						Name:      "slow",
						Arguments: "{}",
					},
				}},
				{Type: chat.StreamEventDone},
			}
		},
	}

	slow := tools.Tool{
		Name: "slow",
		Handler: func(context.Context, chat.ToolCall) (*tools.ToolCallResult, error) {
			cancel()
			return tools.ResultSuccess("too late"), nil
		},
	}

	rt := runtime.New(config.Agent{Name: "helper"}, provider, []tools.Tool{slow})
	sess := session.New(session.WithUserMessage("go"))

	events := collect(rt.RunStream(ctx, sess))

	complete, ok := events[len(events)-1].(runtime.MessageCompleteEvent)
	require.True(t, ok, "cancelled tool phase must still end with a completion")
	assert.True(t, complete.Partial)
	assert.Equal(t, "working on it", complete.Content)

	assert.Equal(t, 1, provider.passes())
}

func TestRunStreamProviderError(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		respond: func(int, []chat.Message, []tools.Tool) []chat.StreamEvent {
			return []chat.StreamEvent{
				{Type: chat.StreamEventError, ErrorKind: "provider", ErrorMessage: "rate limited"},
			}
		},
	}

	rt := runtime.New(config.Agent{Name: "helper"}, provider, nil)
	sess := session.New(session.WithUserMessage("go"))

	events := collect(rt.RunStream(context.Background(), sess))

	errEvent, ok := events[len(events)-1].(runtime.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "provider", errEvent.Kind)
	assert.Contains(t, errEvent.Message, "rate limited")
	assert.Equal(t, 1, provider.passes())
}
