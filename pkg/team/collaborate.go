package team

import (
	"context"

	"github.com/eamonnk/agentd/pkg/session"
)

// runCollaborate runs every member in list order over the shared session.
// Each member's final message lands in the history before the next member
// starts, so member i+1 always sees everything member i produced. The
// last member's answer is the answer of the turn.
func (t *Team) runCollaborate(ctx context.Context, sess *session.Session, out chan<- Event) {
	for _, member := range t.members {
		if ctx.Err() != nil {
			return
		}

		step(out, member.Agent.Name, StepResponding, "")

		if _, ok := forward(ctx, member.newRuntime().RunStream(ctx, sess), out); !ok {
			return
		}

		step(out, member.Agent.Name, StepCompleted, "")
	}
}
