// Package session holds conversation state: the message history a turn
// executes against and the store that persists it between turns.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eamonnk/agentd/pkg/chat"
)

// Message is one persisted history entry. AgentName records which agent
// produced an assistant message; it is empty for user input.
type Message struct {
	AgentName string       `json:"agent_name,omitempty"`
	Message   chat.Message `json:"message"`
	CreatedAt time.Time    `json:"created_at"`
}

// Session is the unit of conversation. A session runs at most one turn at
// a time; messages appended during the turn become visible to later turns
// once the store is updated.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	Messages     []Message `json:"messages"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	MaxRounds    int       `json:"max_rounds,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	mu sync.Mutex
}

// Opt configures a new session.
type Opt func(*Session)

// WithID fixes the session ID instead of generating one.
func WithID(id string) Opt {
	return func(s *Session) { s.ID = id }
}

// WithTitle sets a display title.
func WithTitle(title string) Opt {
	return func(s *Session) { s.Title = title }
}

// WithMaxRounds overrides the per-turn model round cap.
func WithMaxRounds(n int) Opt {
	return func(s *Session) { s.MaxRounds = n }
}

// WithUserMessage seeds the session with one user message.
func WithUserMessage(content string) Opt {
	return func(s *Session) {
		s.Messages = append(s.Messages, Message{
			Message:   chat.UserMessage(content),
			CreatedAt: time.Now(),
		})
	}
}

// New creates a session.
func New(opts ...Opt) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddMessage appends one entry to the history.
func (s *Session) AddMessage(agentName string, msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, Message{
		AgentName: agentName,
		Message:   msg,
		CreatedAt: time.Now(),
	})
}

// History returns the chat messages in order.
func (s *Session) History() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.Messages))
	for i := range s.Messages {
		out[i] = s.Messages[i].Message
	}
	return out
}

// AddUsage accumulates token counts reported by the backend.
func (s *Session) AddUsage(usage chat.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InputTokens += usage.PromptTokens
	s.OutputTokens += usage.CompletionTokens
}
