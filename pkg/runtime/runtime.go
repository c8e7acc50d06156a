// Package runtime drives agent turns: it streams model passes, executes
// the tool calls each pass requests, and feeds the results back until the
// model answers without tools or the round cap is hit.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/session"
	"github.com/eamonnk/agentd/pkg/tools"
)

// DefaultMaxRounds caps model passes per turn when neither the agent nor
// the session overrides it.
const DefaultMaxRounds = 10

// roundLimitNotice is injected before the forced final pass so the model
// knows it must answer with what it has.
const roundLimitNotice = "Tool round limit reached. Answer using the information gathered so far; no further tool calls are possible."

// ModelProvider is the backend surface the runtime drives.
type ModelProvider interface {
	CreateChatCompletionStream(ctx context.Context, messages []chat.Message, requestTools []tools.Tool) (chat.MessageStream, error)
	ID() string
}

// Orchestrator is anything that can run a turn against a session and
// stream events. Team coordinators compose runtimes behind this.
type Orchestrator interface {
	RunStream(ctx context.Context, sess *session.Session) <-chan Event
}

// Runtime runs turns for a single agent.
type Runtime struct {
	agent    config.Agent
	provider ModelProvider
	tools    []tools.Tool
	byName   map[string]tools.Tool
}

// New builds a runtime for one agent with its resolved tools. Tool order
// is preserved in every model request.
func New(agent config.Agent, p ModelProvider, agentTools []tools.Tool) *Runtime {
	byName := make(map[string]tools.Tool, len(agentTools))
	for _, t := range agentTools {
		byName[t.Name] = t
	}
	return &Runtime{
		agent:    agent,
		provider: p,
		tools:    agentTools,
		byName:   byName,
	}
}

// Tools returns the resolved tool list in request order.
func (r *Runtime) Tools() []tools.Tool {
	return r.tools
}

// RunStream executes one turn. The channel closes when the turn is over;
// a cancelled turn commits the streamed content so far as the final
// message and closes without further model passes.
func (r *Runtime) RunStream(ctx context.Context, sess *session.Session) <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)
		r.run(ctx, sess, out)
	}()

	return out
}

func (r *Runtime) run(ctx context.Context, sess *session.Session, out chan<- Event) {
	maxRounds := r.maxRounds(sess)

	for round := 0; ; round++ {
		finalPass := round >= maxRounds

		messages := r.buildMessages(sess, finalPass)
		requestTools := r.tools
		if finalPass {
			requestTools = nil
		}

		slog.Debug("starting model pass",
			"agent", r.agent.Name,
			"session_id", sess.ID,
			"round", round,
			"final", finalPass)

		stream, err := r.provider.CreateChatCompletionStream(ctx, messages, requestTools)
		if err != nil {
			send(ctx, out, ErrorEvent{Kind: "provider", Message: err.Error()})
			return
		}

		pass, ok := r.consumeStream(ctx, sess, stream, out)
		if !ok {
			// Cancelled or failed mid-stream; partial content was
			// already committed.
			return
		}

		assistant := chat.Message{
			Role:             chat.MessageRoleAssistant,
			Content:          pass.content,
			ReasoningContent: pass.reasoning,
			ToolCalls:        pass.toolCalls,
		}
		sess.AddMessage(r.agent.Name, assistant)

		if len(pass.toolCalls) == 0 || finalPass {
			send(ctx, out, MessageCompleteEvent{
				AgentName: r.agent.Name,
				Content:   pass.content,
			})
			return
		}

		if !r.executeToolCalls(ctx, sess, pass.toolCalls, out) {
			// Cancelled during the tool phase. The assistant message is
			// already in the session; acknowledge the turn with a partial
			// completion so consumers see a terminal event before close.
			send(ctx, out, MessageCompleteEvent{
				AgentName: r.agent.Name,
				Content:   pass.content,
				Partial:   true,
			})
			return
		}
	}
}

func (r *Runtime) maxRounds(sess *session.Session) int {
	if sess.MaxRounds > 0 {
		return sess.MaxRounds
	}
	if r.agent.MaxRounds > 0 {
		return r.agent.MaxRounds
	}
	return DefaultMaxRounds
}

func (r *Runtime) buildMessages(sess *session.Session, finalPass bool) []chat.Message {
	var messages []chat.Message
	if r.agent.Instructions != "" {
		messages = append(messages, chat.SystemMessage(r.agent.Instructions))
	}
	messages = append(messages, sess.History()...)
	if finalPass {
		messages = append(messages, chat.SystemMessage(roundLimitNotice))
	}
	return messages
}

// passResult is what one model pass produced.
type passResult struct {
	content   string
	reasoning string
	toolCalls []chat.ToolCall
}

// consumeStream drains one completion stream, forwarding deltas as events
// and collecting completed tool calls. It returns ok=false when the turn
// must stop; cancellation commits the partial content first.
func (r *Runtime) consumeStream(ctx context.Context, sess *session.Session, stream chat.MessageStream, out chan<- Event) (passResult, bool) {
	defer func() {
		if err := stream.Close(); err != nil {
			slog.Debug("closing model stream", "agent", r.agent.Name, "error", err)
		}
	}()

	var pass passResult

	for {
		if ctx.Err() != nil {
			r.commitPartial(ctx, sess, pass, out)
			return pass, false
		}

		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, chat.ErrStreamExhausted) {
				return pass, true
			}
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				r.commitPartial(ctx, sess, pass, out)
				return pass, false
			}
			r.commitPartial(ctx, sess, pass, out)
			send(ctx, out, ErrorEvent{Kind: "provider", Message: err.Error()})
			return pass, false
		}

		switch ev.Type {
		case chat.StreamEventContentDelta:
			pass.content += ev.Content
			if !send(ctx, out, ContentDeltaEvent{AgentName: r.agent.Name, Delta: ev.Content}) {
				r.commitPartial(ctx, sess, pass, out)
				return pass, false
			}

		case chat.StreamEventReasoningDelta:
			pass.reasoning += ev.Content
			if !send(ctx, out, ReasoningDeltaEvent{AgentName: r.agent.Name, Delta: ev.Content}) {
				r.commitPartial(ctx, sess, pass, out)
				return pass, false
			}

		case chat.StreamEventToolCallEnd:
			if ev.ToolCall != nil {
				pass.toolCalls = append(pass.toolCalls, *ev.ToolCall)
			}

		case chat.StreamEventUsage:
			if ev.Usage != nil {
				sess.AddUsage(*ev.Usage)
				send(ctx, out, UsageEvent{AgentName: r.agent.Name, Usage: *ev.Usage})
			}

		case chat.StreamEventError:
			r.commitPartial(ctx, sess, pass, out)
			send(ctx, out, ErrorEvent{Kind: ev.ErrorKind, Message: ev.ErrorMessage})
			return pass, false

		case chat.StreamEventDone:
			return pass, true
		}
	}
}

// commitPartial persists whatever content had streamed when the turn was
// cut short and announces it as the final message.
func (r *Runtime) commitPartial(ctx context.Context, sess *session.Session, pass passResult, out chan<- Event) {
	if pass.content == "" && pass.reasoning == "" {
		return
	}
	sess.AddMessage(r.agent.Name, chat.Message{
		Role:             chat.MessageRoleAssistant,
		Content:          pass.content,
		ReasoningContent: pass.reasoning,
	})
	send(ctx, out, MessageCompleteEvent{
		AgentName: r.agent.Name,
		Content:   pass.content,
		Partial:   true,
	})
}

// executeToolCalls runs one round's calls concurrently and appends every
// result to the session before returning, so the next pass always sees
// them. Call order is preserved in the history and the result events.
func (r *Runtime) executeToolCalls(ctx context.Context, sess *session.Session, calls []chat.ToolCall, out chan<- Event) bool {
	for _, call := range calls {
		if !send(ctx, out, ToolCallStartEvent{AgentName: r.agent.Name, ToolCall: call}) {
			return false
		}
	}

	results := make([]*tools.ToolCallResult, len(calls))

	g, groupCtx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = r.executeOne(groupCtx, call)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return false
	}

	for i, call := range calls {
		result := results[i]
		status := tools.CallStatusCompleted
		if result.IsError {
			status = tools.CallStatusError
		}

		sess.AddMessage(r.agent.Name, chat.ToolResultMessage(call.ID, result.Output, result.IsError))

		if !send(ctx, out, ToolCallResultEvent{
			AgentName: r.agent.Name,
			ToolCall:  call,
			Status:    status,
			Output:    result.Output,
		}) {
			return false
		}
	}

	return true
}

// executeOne runs a single call. Transport failures come back as error
// results so the model can react; they never abort the turn.
func (r *Runtime) executeOne(ctx context.Context, call chat.ToolCall) *tools.ToolCallResult {
	tool, ok := r.byName[call.Function.Name]
	if !ok {
		return tools.ResultError(fmt.Sprintf("tool '%s' is not available", call.Function.Name))
	}

	slog.Debug("executing tool call",
		"agent", r.agent.Name,
		"tool", call.Function.Name,
		"call_id", call.ID)

	result, err := tool.Handler(ctx, call)
	if err != nil {
		slog.Warn("tool call failed",
			"agent", r.agent.Name,
			"tool", call.Function.Name,
			"error", err)
		return tools.ResultError(fmt.Sprintf("tool '%s' failed: %v", call.Function.Name, err))
	}
	if result == nil {
		return tools.ResultSuccess("")
	}
	return result
}

// send delivers an event and reports whether the turn should keep going.
// Consumers drain the channel until it closes, so delivery still succeeds
// after cancellation; the return value stops further work.
func send(ctx context.Context, out chan<- Event, ev Event) bool {
	out <- ev
	return ctx.Err() == nil
}
