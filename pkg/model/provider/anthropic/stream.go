package anthropic

import (
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/eamonnk/agentd/pkg/chat"
)

// streamAdapter translates the Anthropic event stream into canonical
// stream events. Tool call arguments arrive as partial JSON fragments
// indexed by content block; the adapter accumulates them and closes each
// call when its block stops.
type streamAdapter struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]

	toolCalls map[int64]*chat.ToolCall
	usage     chat.Usage
	queued    []chat.StreamEvent
	finished  bool
}

var _ chat.MessageStream = (*streamAdapter)(nil)

func newStreamAdapter(stream *ssestream.Stream[anthropic.MessageStreamEventUnion]) *streamAdapter {
	return &streamAdapter{
		stream:    stream,
		toolCalls: map[int64]*chat.ToolCall{},
	}
}

func (a *streamAdapter) Recv() (chat.StreamEvent, error) {
	for {
		if len(a.queued) > 0 {
			ev := a.queued[0]
			a.queued = a.queued[1:]
			return ev, nil
		}
		if a.finished {
			return chat.StreamEvent{}, chat.ErrStreamExhausted
		}

		if !a.stream.Next() {
			if err := a.stream.Err(); err != nil {
				a.finished = true
				return chat.StreamEvent{
					Type:         chat.StreamEventError,
					ErrorKind:    "provider",
					ErrorMessage: err.Error(),
				}, nil
			}
			// Stream closed without an explicit message_stop.
			a.finished = true
			a.queueFinal()
			continue
		}

		a.translate(a.stream.Current())
	}
}

func (a *streamAdapter) translate(event anthropic.MessageStreamEventUnion) {
	switch ev := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		a.usage.PromptTokens = ev.Message.Usage.InputTokens

	case anthropic.ContentBlockStartEvent:
		if block, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
			call := &chat.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: chat.FunctionCall{
					Name: block.Name,
				},
			}
			a.toolCalls[ev.Index] = call
			a.queued = append(a.queued, chat.StreamEvent{
				Type:     chat.StreamEventToolCallStart,
				ToolCall: cloneCall(call),
			})
		}

	case anthropic.ContentBlockDeltaEvent:
		switch delta := ev.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			a.queued = append(a.queued, chat.StreamEvent{
				Type:    chat.StreamEventContentDelta,
				Content: delta.Text,
			})
		case anthropic.ThinkingDelta:
			a.queued = append(a.queued, chat.StreamEvent{
				Type:    chat.StreamEventReasoningDelta,
				Content: delta.Thinking,
			})
		case anthropic.InputJSONDelta:
			if call, ok := a.toolCalls[ev.Index]; ok {
				call.Function.Arguments += delta.PartialJSON
				a.queued = append(a.queued, chat.StreamEvent{
					Type:     chat.StreamEventToolCallDelta,
					ToolCall: cloneCall(call),
				})
			}
		}

	case anthropic.ContentBlockStopEvent:
		if call, ok := a.toolCalls[ev.Index]; ok {
			delete(a.toolCalls, ev.Index)
			a.queued = append(a.queued, chat.StreamEvent{
				Type:     chat.StreamEventToolCallEnd,
				ToolCall: cloneCall(call),
			})
		}

	case anthropic.MessageDeltaEvent:
		a.usage.CompletionTokens = ev.Usage.OutputTokens

	case anthropic.MessageStopEvent:
		a.finished = true
		a.queueFinal()
	}
}

func (a *streamAdapter) queueFinal() {
	a.usage.TotalTokens = a.usage.PromptTokens + a.usage.CompletionTokens
	usage := a.usage
	a.queued = append(a.queued,
		chat.StreamEvent{Type: chat.StreamEventUsage, Usage: &usage},
		chat.StreamEvent{Type: chat.StreamEventDone},
	)
}

func (a *streamAdapter) Close() error {
	return a.stream.Close()
}

func cloneCall(call *chat.ToolCall) *chat.ToolCall {
	clone := *call
	return &clone
}
