package workflow

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eamonnk/agentd/pkg/config"
)

func testWorkflow() config.Workflow {
	return config.Workflow{
		ID:   "wf1",
		Name: "pipeline",
		Steps: []config.WorkflowStep{
			{Order: 2, AgentID: "b", Task: "review"},
			{Order: 1, AgentID: "a", Task: "draft"},
		},
	}
}

func TestNewRunSeedsPendingStepsInOrder(t *testing.T) {
	t.Parallel()

	run := NewRun(testWorkflow(), "write about Go")

	require.Len(t, run.Steps, 2)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Equal(t, 1, run.Steps[0].Order)
	assert.Equal(t, 2, run.Steps[1].Order)
	for _, step := range run.Steps {
		assert.Equal(t, StepStatusPending, step.Status)
	}
}

func TestStepStatusTransitions(t *testing.T) {
	t.Parallel()

	assert.True(t, StepStatusPending.CanTransition(StepStatusRunning))
	assert.True(t, StepStatusRunning.CanTransition(StepStatusCompleted))
	assert.True(t, StepStatusRunning.CanTransition(StepStatusFailed))
	assert.True(t, StepStatusRunning.CanTransition(StepStatusCancelled))

	assert.False(t, StepStatusPending.CanTransition(StepStatusCompleted))
	assert.False(t, StepStatusCompleted.CanTransition(StepStatusRunning))
	assert.False(t, StepStatusFailed.CanTransition(StepStatusRunning))
	assert.False(t, StepStatusRunning.CanTransition(StepStatusPending))
}

func TestRunStepHelpers(t *testing.T) {
	t.Parallel()

	run := NewRun(testWorkflow(), "input")

	require.True(t, run.StartStep(0))
	assert.Equal(t, StepStatusRunning, run.Steps[0].Status)
	assert.NotNil(t, run.Steps[0].StartedAt)

	// step 1 was never started, it cannot finish
	assert.False(t, run.FinishStep(1, StepStatusCompleted, "", ""))

	require.True(t, run.FinishStep(0, StepStatusCompleted, "the draft", ""))
	assert.Equal(t, "the draft", run.Steps[0].Output)
	assert.NotNil(t, run.Steps[0].FinishedAt)

	// terminal step never moves again
	assert.False(t, run.FinishStep(0, StepStatusFailed, "", "nope"))
}

func TestRunFinishIsTerminal(t *testing.T) {
	t.Parallel()

	run := NewRun(testWorkflow(), "input")
	run.Finish(RunStatusFailed)
	assert.Equal(t, RunStatusFailed, run.Status)

	run.Finish(RunStatusCompleted)
	assert.Equal(t, RunStatusFailed, run.Status, "terminal run must not change")
}

func TestSQLiteRunStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewSQLiteRunStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	run := NewRun(testWorkflow(), "write about Go")
	require.NoError(t, store.AddRun(ctx, run))

	run.StartStep(0)
	run.FinishStep(0, StepStatusCompleted, "the draft", "")
	run.Finish(RunStatusCompleted)
	require.NoError(t, store.UpdateRun(ctx, run))

	loaded, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, loaded.Status)
	assert.Equal(t, "write about Go", loaded.Input)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, "the draft", loaded.Steps[0].Output)
	assert.Equal(t, StepStatusPending, loaded.Steps[1].Status)

	runs, err := store.GetRuns(ctx, "wf1")
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
