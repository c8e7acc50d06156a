package team

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/runtime"
	"github.com/eamonnk/agentd/pkg/session"
)

// runRoute classifies the turn against member capability descriptions and
// hands the whole turn to exactly one member. A turn is never left without
// a handler: when classification fails or matches nothing, the first
// member takes it.
func (t *Team) runRoute(ctx context.Context, sess *session.Session, out chan<- Event) {
	step(out, "", StepRouting, "")

	selected := t.classify(ctx, sess)

	step(out, selected.Agent.Name, StepSelected, "")
	step(out, selected.Agent.Name, StepResponding, "")

	forward(ctx, selected.newRuntime().RunStream(ctx, sess), out)

	step(out, selected.Agent.Name, StepCompleted, "")
}

func (t *Team) classify(ctx context.Context, sess *session.Session) Member {
	if len(t.members) == 1 {
		return t.members[0]
	}

	input := lastUserMessage(sess)
	reply, err := completeText(ctx, t.members[0].Provider, []chat.Message{
		chat.SystemMessage(routeDirective(t.members)),
		chat.UserMessage(input),
	})
	if err != nil {
		slog.Warn("routing classification failed, falling back to first member",
			"team", t.cfg.Name, "error", err)
		return t.members[0]
	}

	reply = strings.ToLower(strings.TrimSpace(reply))
	for _, member := range t.members {
		if strings.Contains(reply, strings.ToLower(member.Agent.Name)) {
			return member
		}
	}

	slog.Debug("routing reply matched no member, falling back to first",
		"team", t.cfg.Name, "reply", reply)
	return t.members[0]
}

func routeDirective(members []Member) string {
	var sb strings.Builder
	sb.WriteString("Pick the single agent best suited to handle the user's message. Reply with that agent's name and nothing else. Agents:\n")
	for _, member := range members {
		fmt.Fprintf(&sb, "- %s: %s\n", member.Agent.Name, member.Agent.Description)
	}
	return sb.String()
}

// completeText runs one non-streaming-style pass and returns the full
// content text.
func completeText(ctx context.Context, p runtime.ModelProvider, messages []chat.Message) (string, error) {
	stream, err := p.CreateChatCompletionStream(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, chat.ErrStreamExhausted) {
				return sb.String(), nil
			}
			return "", err
		}
		switch ev.Type {
		case chat.StreamEventContentDelta:
			sb.WriteString(ev.Content)
		case chat.StreamEventError:
			return "", errors.New(ev.ErrorMessage)
		case chat.StreamEventDone:
			return sb.String(), nil
		}
	}
}
