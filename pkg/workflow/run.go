// Package workflow defines workflow runs: the persisted record of one
// execution of a configured workflow, step by step.
package workflow

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/eamonnk/agentd/pkg/config"
)

// RunStatus is the overall state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the run can no longer change.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// StepStatus is the state of one step within a run. Statuses only move
// forward; a step left pending by a fail-fast abort stays pending.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusCancelled StepStatus = "cancelled"
)

// CanTransition reports whether moving from s to next is legal.
func (s StepStatus) CanTransition(next StepStatus) bool {
	switch s {
	case StepStatusPending:
		return next == StepStatusRunning
	case StepStatusRunning:
		return next == StepStatusCompleted || next == StepStatusFailed || next == StepStatusCancelled
	default:
		return false
	}
}

// StepResult records one step's execution within a run.
type StepResult struct {
	Order      int        `json:"order"`
	AgentID    string     `json:"agent_id"`
	Task       string     `json:"task"`
	Status     StepStatus `json:"status"`
	Output     string     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Run is one execution of a workflow. It is mutated in place while the
// run progresses and never changes again once Status is terminal.
type Run struct {
	ID          string       `json:"id"`
	WorkflowID  string       `json:"workflow_id"`
	Status      RunStatus    `json:"status"`
	Input       string       `json:"input"`
	CurrentStep int          `json:"current_step"`
	Steps       []StepResult `json:"steps"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewRun seeds a running Run with one pending StepResult per configured
// step, in step order.
func NewRun(wf config.Workflow, input string) *Run {
	steps := append([]config.WorkflowStep{}, wf.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })

	results := make([]StepResult, len(steps))
	for i, step := range steps {
		results[i] = StepResult{
			Order:   step.Order,
			AgentID: step.AgentID,
			Task:    step.Task,
			Status:  StepStatusPending,
		}
	}

	now := time.Now()
	return &Run{
		ID:         uuid.New().String(),
		WorkflowID: wf.ID,
		Status:     RunStatusRunning,
		Input:      input,
		Steps:      results,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// StartStep moves step i to running.
func (r *Run) StartStep(i int) bool {
	if i < 0 || i >= len(r.Steps) || !r.Steps[i].Status.CanTransition(StepStatusRunning) {
		return false
	}
	now := time.Now()
	r.Steps[i].Status = StepStatusRunning
	r.Steps[i].StartedAt = &now
	r.CurrentStep = i
	r.UpdatedAt = now
	return true
}

// FinishStep moves step i to the given terminal status with its output
// or error message.
func (r *Run) FinishStep(i int, status StepStatus, output, errMsg string) bool {
	if i < 0 || i >= len(r.Steps) || !r.Steps[i].Status.CanTransition(status) {
		return false
	}
	now := time.Now()
	r.Steps[i].Status = status
	r.Steps[i].Output = output
	r.Steps[i].Error = errMsg
	r.Steps[i].FinishedAt = &now
	r.UpdatedAt = now
	return true
}

// Finish sets the run's terminal status. A terminal run is left alone.
func (r *Run) Finish(status RunStatus) {
	if r.Status.Terminal() {
		return
	}
	r.Status = status
	r.UpdatedAt = time.Now()
}
