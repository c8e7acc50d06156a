package team

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/runtime"
	"github.com/eamonnk/agentd/pkg/session"
	"github.com/eamonnk/agentd/pkg/tools"
)

const delegateToolPrefix = "delegate_to_"

// runCoordinate has the first member lead the turn. The lead plans with
// one delegate tool per other member; each delegation runs that member as
// an independent pass over a child session, and the lead's closing answer
// synthesizes the results.
func (t *Team) runCoordinate(ctx context.Context, sess *session.Session, out chan<- Event) {
	lead := t.members[0]

	step(out, lead.Agent.Name, StepRouting, "")

	var forwardMu sync.Mutex
	delegateTools := make([]tools.Tool, 0, len(t.members)-1)
	for _, member := range t.members[1:] {
		delegateTools = append(delegateTools, t.delegateTool(member, sess, out, &forwardMu))
	}

	leadAgent := lead.Agent
	if leadAgent.Instructions != "" {
		leadAgent.Instructions += "\n\n"
	}
	leadAgent.Instructions += coordinateDirective(t.members[1:])

	runner := runtime.New(leadAgent, lead.Provider, append(append([]tools.Tool{}, lead.Tools...), delegateTools...))

	delegated := false
	synthesizing := false
	for ev := range runner.RunStream(ctx, sess) {
		switch ev.(type) {
		case runtime.ToolCallResultEvent:
			delegated = true
		case runtime.ContentDeltaEvent:
			if delegated && !synthesizing {
				synthesizing = true
				step(out, lead.Agent.Name, StepSynthesizing, "")
			}
		}
		forwardMu.Lock()
		out <- ev
		forwardMu.Unlock()
	}

	step(out, lead.Agent.Name, StepCompleted, "")
}

// delegateTool builds the tool through which the lead hands a subtask to
// one member. The member runs against a fresh session seeded with the
// subtask; its events stream through out as it works.
func (t *Team) delegateTool(member Member, parent *session.Session, out chan<- Event, forwardMu *sync.Mutex) tools.Tool {
	type delegateArgs struct {
		Task string `json:"task"`
	}

	name := delegateToolPrefix + sanitizeToolName(member.Agent.Name)

	handler := tools.NewHandler(func(ctx context.Context, args delegateArgs) (*tools.ToolCallResult, error) {
		if strings.TrimSpace(args.Task) == "" {
			return tools.ResultError("task must not be empty"), nil
		}

		slog.Debug("delegating subtask",
			"member", member.Agent.Name,
			"parent_session", parent.ID)

		forwardMu.Lock()
		step(out, member.Agent.Name, StepResponding, args.Task)
		forwardMu.Unlock()

		child := session.New(
			session.WithUserMessage(args.Task),
			session.WithMaxRounds(parent.MaxRounds),
		)

		var last string
		for ev := range member.newRuntime().RunStream(ctx, child) {
			if complete, ok := ev.(runtime.MessageCompleteEvent); ok {
				last = complete.Content
			}
			forwardMu.Lock()
			out <- ev
			forwardMu.Unlock()
		}
		parent.AddUsage(chat.Usage{PromptTokens: child.InputTokens, CompletionTokens: child.OutputTokens})

		if ctx.Err() != nil {
			return tools.ResultError("delegation was cancelled"), nil
		}
		if last == "" {
			return tools.ResultError(fmt.Sprintf("agent '%s' produced no answer", member.Agent.Name)), nil
		}
		return tools.ResultSuccess(last), nil
	})

	return tools.Tool{
		Name:        name,
		Description: fmt.Sprintf("Hand a subtask to agent '%s'. %s", member.Agent.Name, member.Agent.Description),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task": map[string]any{
					"type":        "string",
					"description": "The subtask for the agent, phrased as a complete request",
				},
			},
			"required": []string{"task"},
		},
		Handler: handler,
	}
}

func coordinateDirective(members []Member) string {
	var sb strings.Builder
	sb.WriteString("You lead a team. Break the request into subtasks and hand them to team members with the delegate tools, then combine their answers into one response. Team members:\n")
	for _, member := range members {
		fmt.Fprintf(&sb, "- %s: %s\n", member.Agent.Name, member.Agent.Description)
	}
	return sb.String()
}

func sanitizeToolName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}
