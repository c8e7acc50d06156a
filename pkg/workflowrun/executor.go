// Package workflowrun executes workflows step by step. Steps run strictly
// sequentially; each step is one agent turn whose task combines the step's
// instruction with the previous step's output.
package workflowrun

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/runtime"
	"github.com/eamonnk/agentd/pkg/session"
	"github.com/eamonnk/agentd/pkg/workflow"
)

// RunnerFactory builds the orchestrator that executes one step's agent.
type RunnerFactory func(ctx context.Context, agentID string) (runtime.Orchestrator, error)

// Executor drives workflow runs and persists their state transitions.
type Executor struct {
	store     workflow.Store
	newRunner RunnerFactory
}

// NewExecutor creates an executor over the given run store.
func NewExecutor(store workflow.Store, factory RunnerFactory) *Executor {
	return &Executor{store: store, newRunner: factory}
}

// Execute starts a run for wf and returns it along with its event stream.
// Events are the single-agent vocabulary wrapped in StepEvent with the
// step's order. The returned run reflects the initial persisted state;
// callers fetch the final state from the store after the channel closes.
func (e *Executor) Execute(ctx context.Context, wf config.Workflow, input string) (*workflow.Run, <-chan runtime.Event, error) {
	if len(wf.Steps) == 0 {
		return nil, nil, fmt.Errorf("workflow '%s' has no steps", wf.ID)
	}

	run := workflow.NewRun(wf, input)
	if err := e.store.AddRun(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("failed to persist run: %w", err)
	}

	out := make(chan runtime.Event)
	go func() {
		defer close(out)
		e.runSteps(ctx, wf, run, out)
	}()

	return run, out, nil
}

func (e *Executor) runSteps(ctx context.Context, wf config.Workflow, run *workflow.Run, out chan<- runtime.Event) {
	continueOnError := wf.OnError == config.ErrorPolicyContinue

	previousOutput := run.Input
	anyFailed := false

	for i := range run.Steps {
		if ctx.Err() != nil {
			if run.StartStep(i) {
				run.FinishStep(i, workflow.StepStatusCancelled, "", context.Canceled.Error())
			}
			run.Finish(workflow.RunStatusCancelled)
			e.persist(run)
			return
		}

		step := &run.Steps[i]

		run.StartStep(i)
		e.persist(run)

		slog.Debug("starting workflow step",
			"run_id", run.ID,
			"workflow_id", run.WorkflowID,
			"step", step.Order,
			"agent_id", step.AgentID)

		output, err := e.runStep(ctx, run, i, previousOutput, out)
		switch {
		case ctx.Err() != nil:
			run.FinishStep(i, workflow.StepStatusCancelled, output, context.Canceled.Error())
			run.Finish(workflow.RunStatusCancelled)
			e.persist(run)
			return

		case err != nil:
			slog.Warn("workflow step failed",
				"run_id", run.ID,
				"step", step.Order,
				"error", err)
			run.FinishStep(i, workflow.StepStatusFailed, output, err.Error())
			anyFailed = true
			e.persist(run)
			if !continueOnError {
				run.Finish(workflow.RunStatusFailed)
				e.persist(run)
				return
			}

		default:
			run.FinishStep(i, workflow.StepStatusCompleted, output, "")
			previousOutput = output
			e.persist(run)
		}
	}

	if anyFailed {
		run.Finish(workflow.RunStatusFailed)
	} else {
		run.Finish(workflow.RunStatusCompleted)
	}
	e.persist(run)
}

// runStep executes one step as an agent turn over a fresh session and
// returns the agent's final message.
func (e *Executor) runStep(ctx context.Context, run *workflow.Run, i int, previousOutput string, out chan<- runtime.Event) (string, error) {
	step := run.Steps[i]

	runner, err := e.newRunner(ctx, step.AgentID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve agent '%s': %w", step.AgentID, err)
	}

	sess := session.New(session.WithUserMessage(stepTask(step.Task, previousOutput)))

	var (
		output   string
		complete bool
		runErr   error
	)
	for ev := range runner.RunStream(ctx, sess) {
		switch typed := ev.(type) {
		case runtime.MessageCompleteEvent:
			output = typed.Content
			complete = !typed.Partial
		case runtime.ErrorEvent:
			runErr = fmt.Errorf("%s", typed.Message)
		}
		out <- runtime.StepEvent{Step: step.Order, Inner: ev}
	}

	if runErr != nil {
		return output, runErr
	}
	if !complete && ctx.Err() == nil {
		return output, fmt.Errorf("agent '%s' produced no final message", step.AgentID)
	}
	return output, nil
}

// stepTask combines a step's fixed instruction with the previous step's
// output (or the run input for the first step).
func stepTask(task, previousOutput string) string {
	task = strings.TrimSpace(task)
	previousOutput = strings.TrimSpace(previousOutput)
	switch {
	case task == "":
		return previousOutput
	case previousOutput == "":
		return task
	default:
		return task + "\n\n" + previousOutput
	}
}

func (e *Executor) persist(run *workflow.Run) {
	if err := e.store.UpdateRun(context.Background(), run); err != nil {
		slog.Error("failed to persist workflow run", "run_id", run.ID, "error", err)
	}
}
