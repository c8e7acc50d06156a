package chat

import "sync"

// StreamEventType enumerates the canonical events a model backend can emit.
// Every backend translates its native wire format into this vocabulary.
type StreamEventType string

const (
	StreamEventContentDelta   StreamEventType = "content_delta"
	StreamEventReasoningDelta StreamEventType = "reasoning_delta"
	StreamEventToolCallStart  StreamEventType = "tool_call_start"
	StreamEventToolCallDelta  StreamEventType = "tool_call_delta"
	StreamEventToolCallEnd    StreamEventType = "tool_call_end"
	StreamEventUsage          StreamEventType = "usage"
	StreamEventDone           StreamEventType = "done"
	StreamEventError          StreamEventType = "error"
)

// StreamEvent is one canonical event produced by a model backend stream.
// Which fields are set depends on Type.
type StreamEvent struct {
	Type StreamEventType

	// Content carries the text for content_delta and reasoning_delta.
	Content string

	// ToolCall carries the call state for tool_call_* events. For
	// tool_call_delta the Arguments field holds the accumulated raw JSON
	// so far; for tool_call_end it is complete.
	ToolCall *ToolCall

	// Usage is set on usage events.
	Usage *Usage

	// ErrorKind and ErrorMessage are set on error events.
	ErrorKind    string
	ErrorMessage string
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// MessageStream is a live completion stream. Recv blocks until the next
// canonical event is available; the stream ends after a done or error event.
// Close releases the underlying transport and is safe to call at any time.
type MessageStream interface {
	Recv() (StreamEvent, error)
	Close() error
}

// EventStream is a channel-backed MessageStream, used by backends that
// adapt push-style SDKs and by fakes in tests.
type EventStream struct {
	events    chan StreamEvent
	done      chan struct{}
	closeOnce sync.Once
}

// NewEventStream returns an EventStream with the given buffer size.
func NewEventStream(buffer int) *EventStream {
	return &EventStream{
		events: make(chan StreamEvent, buffer),
		done:   make(chan struct{}),
	}
}

// Send queues an event. It returns false if the stream was closed.
func (s *EventStream) Send(ev StreamEvent) bool {
	select {
	case <-s.done:
		return false
	case s.events <- ev:
		return true
	}
}

// Finish signals that no further events will be sent.
func (s *EventStream) Finish() {
	close(s.events)
}

func (s *EventStream) Recv() (StreamEvent, error) {
	select {
	case <-s.done:
		return StreamEvent{}, ErrStreamClosed
	case ev, ok := <-s.events:
		if !ok {
			return StreamEvent{}, ErrStreamExhausted
		}
		return ev, nil
	}
}

// Close is safe to call from multiple goroutines.
func (s *EventStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
