// Package team coordinates multiple agents over one session. A team runs
// in one of three modes: coordinate (a lead delegates subtasks), route
// (one member is picked per turn) or collaborate (members run in order).
package team

import (
	"context"
	"errors"
	"fmt"

	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/runtime"
	"github.com/eamonnk/agentd/pkg/session"
	"github.com/eamonnk/agentd/pkg/tools"
)

// Coordination phase names carried on agent_step events.
const (
	StepRouting      = "routing"
	StepSelected     = "selected"
	StepResponding   = "responding"
	StepSynthesizing = "synthesizing"
	StepCompleted    = "completed"
)

// Member is one team agent with everything needed to run it.
type Member struct {
	Agent    config.Agent
	Provider runtime.ModelProvider
	Tools    []tools.Tool
}

func (m Member) newRuntime() *runtime.Runtime {
	return runtime.New(m.Agent, m.Provider, m.Tools)
}

// Team implements runtime.Orchestrator over its members.
type Team struct {
	cfg     config.Team
	members []Member
}

// New builds a team. Member order follows the configured agent order and
// is significant in every mode.
func New(cfg config.Team, members []Member) (*Team, error) {
	if len(members) == 0 {
		return nil, errors.New("team has no members")
	}
	switch cfg.Mode {
	case config.TeamModeCoordinate, config.TeamModeRoute, config.TeamModeCollaborate:
	default:
		return nil, fmt.Errorf("unknown team mode '%s'", cfg.Mode)
	}
	return &Team{cfg: cfg, members: members}, nil
}

// RunStream executes one team turn in the configured mode.
func (t *Team) RunStream(ctx context.Context, sess *session.Session) <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)

		switch t.cfg.Mode {
		case config.TeamModeCoordinate:
			t.runCoordinate(ctx, sess, out)
		case config.TeamModeRoute:
			t.runRoute(ctx, sess, out)
		case config.TeamModeCollaborate:
			t.runCollaborate(ctx, sess, out)
		}
	}()

	return out
}

// Event aliases the runtime event type; teams produce the same stream
// vocabulary as a single agent plus agent_step phases.
type Event = runtime.Event

// forward drains a runner's event stream into out. It returns the content
// of the last complete message and whether the run finished cleanly.
func forward(ctx context.Context, events <-chan Event, out chan<- Event) (lastContent string, ok bool) {
	ok = true
	for ev := range events {
		if complete, isComplete := ev.(runtime.MessageCompleteEvent); isComplete {
			lastContent = complete.Content
			if complete.Partial {
				ok = false
			}
		}
		if _, isErr := ev.(runtime.ErrorEvent); isErr {
			ok = false
		}
		out <- ev
	}
	if ctx.Err() != nil {
		ok = false
	}
	return lastContent, ok
}

func step(out chan<- Event, agentName, phase, detail string) {
	out <- runtime.AgentStepEvent{AgentName: agentName, Step: phase, Detail: detail}
}

// lastUserMessage returns the most recent user input in the session, used
// by classification and delegation prompts.
func lastUserMessage(sess *session.Session) string {
	history := sess.History()
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == chat.MessageRoleUser {
			return history[i].Content
		}
	}
	return ""
}
