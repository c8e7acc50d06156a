package workflowrun

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/runtime"
	"github.com/eamonnk/agentd/pkg/session"
	"github.com/eamonnk/agentd/pkg/workflow"
)

// taskRecorder captures the task each agent's session was seeded with.
type taskRecorder struct {
	mu    sync.Mutex
	tasks map[string][]string
}

func newTaskRecorder() *taskRecorder {
	return &taskRecorder{tasks: map[string][]string{}}
}

func (r *taskRecorder) record(agentID, task string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[agentID] = append(r.tasks[agentID], task)
}

func (r *taskRecorder) get(agentID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[agentID]
}

func answered(content string) []runtime.Event {
	return []runtime.Event{
		runtime.ContentDeltaEvent{Delta: content},
		runtime.MessageCompleteEvent{Content: content},
	}
}

func failed(message string) []runtime.Event {
	return []runtime.Event{runtime.ErrorEvent{Kind: "provider", Message: message}}
}

func testStore(t *testing.T) *workflow.SQLiteRunStore {
	t.Helper()
	store, err := workflow.NewSQLiteRunStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func factoryFor(recorder *taskRecorder, behaviors map[string][]runtime.Event, calls *[]string) RunnerFactory {
	var mu sync.Mutex
	return func(_ context.Context, agentID string) (runtime.Orchestrator, error) {
		mu.Lock()
		*calls = append(*calls, agentID)
		mu.Unlock()

		events, ok := behaviors[agentID]
		if !ok {
			events = answered("default")
		}
		return &agentRunner{agentID: agentID, events: events, tasks: recorder}, nil
	}
}

type agentRunner struct {
	agentID string
	events  []runtime.Event
	tasks   *taskRecorder
}

func (a *agentRunner) RunStream(_ context.Context, sess *session.Session) <-chan runtime.Event {
	out := make(chan runtime.Event)
	go func() {
		defer close(out)
		history := sess.History()
		a.tasks.record(a.agentID, history[len(history)-1].Content)
		for _, ev := range a.events {
			out <- ev
		}
	}()
	return out
}

func drain(t *testing.T, events <-chan runtime.Event) []runtime.Event {
	t.Helper()
	var out []runtime.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func threeStepWorkflow(onError config.ErrorPolicy) config.Workflow {
	return config.Workflow{
		ID:      "wf1",
		Name:    "pipeline",
		OnError: onError,
		Steps: []config.WorkflowStep{
			{Order: 1, AgentID: "drafter", Task: "draft it"},
			{Order: 2, AgentID: "reviewer", Task: "review it"},
			{Order: 3, AgentID: "publisher", Task: "publish it"},
		},
	}
}

func TestExecuteSequentialSuccess(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	recorder := newTaskRecorder()
	var calls []string
	executor := NewExecutor(store, factoryFor(recorder, map[string][]runtime.Event{
		"drafter":   answered("the draft"),
		"reviewer":  answered("the review"),
		"publisher": answered("published"),
	}, &calls))

	run, events, err := executor.Execute(context.Background(), threeStepWorkflow(""), "write about Go")
	require.NoError(t, err)

	collected := drain(t, events)

	final, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStatusCompleted, final.Status)
	for _, step := range final.Steps {
		assert.Equal(t, workflow.StepStatusCompleted, step.Status)
	}
	assert.Equal(t, []string{"drafter", "reviewer", "publisher"}, calls)

	// step i+1's task contains step i's output
	reviewerTasks := recorder.get("reviewer")
	require.Len(t, reviewerTasks, 1)
	assert.Contains(t, reviewerTasks[0], "review it")
	assert.Contains(t, reviewerTasks[0], "the draft")

	// the first step gets the run input
	drafterTasks := recorder.get("drafter")
	require.Len(t, drafterTasks, 1)
	assert.Contains(t, drafterTasks[0], "write about Go")

	// every event is tagged with its step order
	sawSteps := map[int]bool{}
	for _, ev := range collected {
		step, ok := ev.(runtime.StepEvent)
		require.True(t, ok, "workflow events must be step-tagged")
		sawSteps[step.Step] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, sawSteps)
}

func TestExecuteFailFast(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	recorder := newTaskRecorder()
	var calls []string
	executor := NewExecutor(store, factoryFor(recorder, map[string][]runtime.Event{
		"drafter":  answered("the draft"),
		"reviewer": failed("model timed out"),
	}, &calls))

	run, events, err := executor.Execute(context.Background(), threeStepWorkflow(config.ErrorPolicyFail), "go")
	require.NoError(t, err)
	drain(t, events)

	final, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.RunStatusFailed, final.Status)
	assert.Equal(t, workflow.StepStatusCompleted, final.Steps[0].Status)
	assert.Equal(t, workflow.StepStatusFailed, final.Steps[1].Status)
	assert.Equal(t, workflow.StepStatusPending, final.Steps[2].Status)
	assert.Contains(t, final.Steps[1].Error, "model timed out")
	assert.Equal(t, "the draft", final.Steps[0].Output, "completed outputs survive a failure")

	assert.Equal(t, []string{"drafter", "reviewer"}, calls, "the third step never starts")
}

func TestExecuteContinueOnError(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	recorder := newTaskRecorder()
	var calls []string
	executor := NewExecutor(store, factoryFor(recorder, map[string][]runtime.Event{
		"drafter":   answered("the draft"),
		"reviewer":  failed("model timed out"),
		"publisher": answered("published anyway"),
	}, &calls))

	run, events, err := executor.Execute(context.Background(), threeStepWorkflow(config.ErrorPolicyContinue), "go")
	require.NoError(t, err)
	drain(t, events)

	final, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.RunStatusFailed, final.Status, "a run with any failed step ends failed")
	assert.Equal(t, workflow.StepStatusCompleted, final.Steps[0].Status)
	assert.Equal(t, workflow.StepStatusFailed, final.Steps[1].Status)
	assert.Equal(t, workflow.StepStatusCompleted, final.Steps[2].Status)
	assert.Equal(t, []string{"drafter", "reviewer", "publisher"}, calls)

	// after a failed step the next one chains from the last good output
	publisherTasks := recorder.get("publisher")
	require.Len(t, publisherTasks, 1)
	assert.Contains(t, publisherTasks[0], "the draft")
}

func TestExecuteRejectsEmptyWorkflow(t *testing.T) {
	t.Parallel()

	executor := NewExecutor(testStore(t), func(context.Context, string) (runtime.Orchestrator, error) {
		t.Fatal("factory must not be called")
		return nil, nil
	})

	_, _, err := executor.Execute(context.Background(), config.Workflow{ID: "empty"}, "go")
	require.Error(t, err)
}
