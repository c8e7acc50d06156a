package simulated

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/eamonnk/agentd/pkg/chat"
)

// parsingStream scans the inner content stream for fenced tool_call blocks
// and replaces them with canonical tool call events. Text is held back only
// as long as it could still be the start of a fence.
type parsingStream struct {
	inner chat.MessageStream

	queued    []chat.StreamEvent
	buf       string
	capturing bool
}

func newParsingStream(inner chat.MessageStream) *parsingStream {
	return &parsingStream{inner: inner}
}

func (s *parsingStream) Recv() (chat.StreamEvent, error) {
	for {
		if len(s.queued) > 0 {
			ev := s.queued[0]
			s.queued = s.queued[1:]
			return ev, nil
		}

		ev, err := s.inner.Recv()
		if err != nil {
			return ev, err
		}

		switch ev.Type {
		case chat.StreamEventContentDelta:
			s.buf += ev.Content
			s.drain(false)
		case chat.StreamEventDone:
			s.drain(true)
			s.queued = append(s.queued, ev)
		default:
			s.queued = append(s.queued, ev)
		}
	}
}

func (s *parsingStream) Close() error {
	return s.inner.Close()
}

// drain moves as much of the buffer as possible into queued events. With
// final set, everything is flushed, including an unterminated fence, which
// is passed through as plain text.
func (s *parsingStream) drain(final bool) {
	for {
		if s.capturing {
			end := strings.Index(s.buf, closeMarker)
			if end < 0 {
				if final {
					s.emitText(openMarker + s.buf)
					s.buf = ""
					s.capturing = false
				}
				return
			}
			payload := s.buf[:end]
			s.buf = s.buf[end+len(closeMarker):]
			s.capturing = false
			s.emitToolCall(payload)
			continue
		}

		start := strings.Index(s.buf, openMarker)
		if start >= 0 {
			s.emitText(s.buf[:start])
			s.buf = s.buf[start+len(openMarker):]
			s.capturing = true
			continue
		}

		if final {
			s.emitText(s.buf)
			s.buf = ""
			return
		}

		// Keep any suffix that could still grow into the opening marker.
		keep := markerSuffix(s.buf)
		s.emitText(s.buf[:len(s.buf)-keep])
		s.buf = s.buf[len(s.buf)-keep:]
		return
	}
}

func (s *parsingStream) emitText(text string) {
	if text == "" {
		return
	}
	s.queued = append(s.queued, chat.StreamEvent{
		Type:    chat.StreamEventContentDelta,
		Content: text,
	})
}

func (s *parsingStream) emitToolCall(payload string) {
	var parsed struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &parsed); err != nil || parsed.Name == "" {
		// Not a well-formed call block; surface it verbatim.
		s.emitText(openMarker + payload + closeMarker)
		return
	}

	args := "{}"
	if len(parsed.Arguments) > 0 {
		args = string(parsed.Arguments)
	}

	start := &chat.ToolCall{
		ID:   uuid.NewString(),
		Type: "function",
		Function: chat.FunctionCall{
			Name: parsed.Name,
		},
	}
	complete := &chat.ToolCall{
		ID:   start.ID,
		Type: "function",
		Function: chat.FunctionCall{
			Name:      parsed.Name,
			Arguments: args,
		},
	}

	s.queued = append(s.queued,
		chat.StreamEvent{Type: chat.StreamEventToolCallStart, ToolCall: start},
		chat.StreamEvent{Type: chat.StreamEventToolCallDelta, ToolCall: complete},
		chat.StreamEvent{Type: chat.StreamEventToolCallEnd, ToolCall: complete},
	)
}

// markerSuffix returns the length of the longest suffix of text that is a
// proper prefix of the opening marker.
func markerSuffix(text string) int {
	max := len(openMarker) - 1
	if max > len(text) {
		max = len(text)
	}
	for n := max; n > 0; n-- {
		if strings.HasPrefix(openMarker, text[len(text)-n:]) {
			return n
		}
	}
	return 0
}
