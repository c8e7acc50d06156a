package openai

import (
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/eamonnk/agentd/pkg/chat"
)

// streamAdapter translates chat completion chunks into canonical stream
// events. Tool calls arrive as indexed fragments spread across chunks;
// the adapter aggregates them and closes all calls when the choice
// finishes.
type streamAdapter struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]

	toolCalls map[int64]*chat.ToolCall
	started   map[int64]bool
	usage     *chat.Usage
	queued    []chat.StreamEvent
	finished  bool
}

var _ chat.MessageStream = (*streamAdapter)(nil)

func newStreamAdapter(stream *ssestream.Stream[openai.ChatCompletionChunk]) *streamAdapter {
	return &streamAdapter{
		stream:    stream,
		toolCalls: map[int64]*chat.ToolCall{},
		started:   map[int64]bool{},
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
			a.finished = true
			a.queueFinal()
			continue
		}

		a.translate(a.stream.Current())
	}
}

func (a *streamAdapter) translate(chunk openai.ChatCompletionChunk) {
	if chunk.Usage.TotalTokens > 0 {
		a.usage = &chat.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}

	if len(chunk.Choices) == 0 {
		return
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		a.queued = append(a.queued, chat.StreamEvent{
			Type:    chat.StreamEventContentDelta,
			Content: choice.Delta.Content,
		})
	}

	for _, fragment := range choice.Delta.ToolCalls {
		call, ok := a.toolCalls[fragment.Index]
		if !ok {
			call = &chat.ToolCall{Type: "function"}
			a.toolCalls[fragment.Index] = call
		}
		if fragment.ID != "" {
			call.ID = fragment.ID
		}
		if fragment.Function.Name != "" {
			call.Function.Name = fragment.Function.Name
		}
		call.Function.Arguments += fragment.Function.Arguments

		if !a.started[fragment.Index] && call.Function.Name != "" {
			a.started[fragment.Index] = true
			start := *call
			start.Function.Arguments = ""
			a.queued = append(a.queued, chat.StreamEvent{
				Type:     chat.StreamEventToolCallStart,
				ToolCall: &start,
			})
		}
		if fragment.Function.Arguments != "" {
			clone := *call
			a.queued = append(a.queued, chat.StreamEvent{
				Type:     chat.StreamEventToolCallDelta,
				ToolCall: &clone,
			})
		}
	}

	if choice.FinishReason != "" {
		a.flushToolCalls()
	}
}

// flushToolCalls emits tool_call_end for every aggregated call in index
// order.
func (a *streamAdapter) flushToolCalls() {
	if len(a.toolCalls) == 0 {
		return
	}
	indexes := make([]int64, 0, len(a.toolCalls))
	for idx := range a.toolCalls {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	for _, idx := range indexes {
		call := a.toolCalls[idx]
		clone := *call
		a.queued = append(a.queued, chat.StreamEvent{
			Type:     chat.StreamEventToolCallEnd,
			ToolCall: &clone,
		})
	}
	a.toolCalls = map[int64]*chat.ToolCall{}
	a.started = map[int64]bool{}
}

func (a *streamAdapter) queueFinal() {
	a.flushToolCalls()
	if a.usage != nil {
		usage := *a.usage
		a.queued = append(a.queued, chat.StreamEvent{Type: chat.StreamEventUsage, Usage: &usage})
	}
	a.queued = append(a.queued, chat.StreamEvent{Type: chat.StreamEventDone})
}

func (a *streamAdapter) Close() error {
	return a.stream.Close()
}
