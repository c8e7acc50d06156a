package gemini

import (
	"encoding/json"
	"iter"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/eamonnk/agentd/pkg/chat"
)

// streamAdapter translates Gemini response chunks into canonical stream
// events. Gemini delivers function calls whole rather than as argument
// fragments, so each call yields a start/delta/end triple from one chunk.
type streamAdapter struct {
	next     func() (*genai.GenerateContentResponse, error, bool)
	stop     func()
	queued   []chat.StreamEvent
	usage    chat.Usage
	finished bool
}

func newStreamAdapter(seq iter.Seq2[*genai.GenerateContentResponse, error]) *streamAdapter {
	next, stop := iter.Pull2(seq)
	return &streamAdapter{next: next, stop: stop}
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

		resp, err, ok := a.next()
		if err != nil {
			a.finished = true
			return chat.StreamEvent{
				Type:         chat.StreamEventError,
				ErrorKind:    "provider",
				ErrorMessage: err.Error(),
			}, nil
		}
		if !ok {
			a.finished = true
			a.queueFinal()
			continue
		}

		a.translate(resp)
	}
}

func (a *streamAdapter) Close() error {
	a.stop()
	return nil
}

func (a *streamAdapter) translate(resp *genai.GenerateContentResponse) {
	if resp.UsageMetadata != nil {
		a.usage.PromptTokens = int64(resp.UsageMetadata.PromptTokenCount)
		a.usage.CompletionTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
		a.usage.TotalTokens = a.usage.PromptTokens + a.usage.CompletionTokens
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part.FunctionCall != nil:
			a.queueFunctionCall(part.FunctionCall)
		case part.Text != "":
			eventType := chat.StreamEventContentDelta
			if part.Thought {
				eventType = chat.StreamEventReasoningDelta
			}
			a.queued = append(a.queued, chat.StreamEvent{
				Type:    eventType,
				Content: part.Text,
			})
		}
	}
}

func (a *streamAdapter) queueFunctionCall(call *genai.FunctionCall) {
	id := call.ID
	if id == "" {
		id = uuid.NewString()
	}

	args := "{}"
	if len(call.Args) > 0 {
		if encoded, err := json.Marshal(call.Args); err == nil {
			args = string(encoded)
		}
	}

	start := &chat.ToolCall{
		ID:   id,
		Type: "function",
		Function: chat.FunctionCall{
			Name: call.Name,
		},
	}
	complete := &chat.ToolCall{
		ID:   id,
		Type: "function",
		Function: chat.FunctionCall{
			Name:      call.Name,
			Arguments: args,
		},
	}

	a.queued = append(a.queued,
		chat.StreamEvent{Type: chat.StreamEventToolCallStart, ToolCall: start},
		chat.StreamEvent{Type: chat.StreamEventToolCallDelta, ToolCall: complete},
		chat.StreamEvent{Type: chat.StreamEventToolCallEnd, ToolCall: complete},
	)
}

func (a *streamAdapter) queueFinal() {
	usage := a.usage
	a.queued = append(a.queued,
		chat.StreamEvent{Type: chat.StreamEventUsage, Usage: &usage},
		chat.StreamEvent{Type: chat.StreamEventDone},
	)
}

func decodeArgs(arguments string) map[string]any {
	if arguments == "" {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil
	}
	return args
}
