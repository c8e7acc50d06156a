package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/eamonnk/agentd/pkg/sqliteutil"
)

var (
	ErrEmptyID  = errors.New("run ID cannot be empty")
	ErrNotFound = errors.New("run not found")
)

// Store defines the interface for workflow run storage
type Store interface {
	AddRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	GetRuns(ctx context.Context, workflowID string) ([]*Run, error)
	UpdateRun(ctx context.Context, run *Run) error
}

// SQLiteRunStore implements Store using SQLite
type SQLiteRunStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore creates a new SQLite run store
func NewSQLiteRunStore(path string) (*SQLiteRunStore, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, err
	}

	_, err = db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS workflow_runs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			input TEXT,
			current_step INTEGER DEFAULT 0,
			steps TEXT,
			created_at TEXT,
			updated_at TEXT
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRunStore{db: db}, nil
}

// AddRun adds a new run to the store
func (s *SQLiteRunStore) AddRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return ErrEmptyID
	}

	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO workflow_runs (id, workflow_id, status, input, current_step, steps, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		run.ID, run.WorkflowID, string(run.Status), run.Input, run.CurrentStep, string(stepsJSON),
		run.CreatedAt.Format(time.RFC3339), run.UpdatedAt.Format(time.RFC3339))
	return err
}

// GetRun retrieves a run by ID
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT id, workflow_id, status, input, current_step, steps, created_at, updated_at FROM workflow_runs WHERE id = ?", id)

	run, err := scanRun(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// GetRuns retrieves runs, newest first. An empty workflowID returns all runs.
func (s *SQLiteRunStore) GetRuns(ctx context.Context, workflowID string) ([]*Run, error) {
	query := "SELECT id, workflow_id, status, input, current_step, steps, created_at, updated_at FROM workflow_runs"
	args := []any{}
	if workflowID != "" {
		query += " WHERE workflow_id = ?"
		args = append(args, workflowID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// UpdateRun updates an existing run
func (s *SQLiteRunStore) UpdateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return ErrEmptyID
	}

	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE workflow_runs SET status = ?, current_step = ?, steps = ?, updated_at = ? WHERE id = ?",
		string(run.Status), run.CurrentStep, string(stepsJSON), run.UpdatedAt.Format(time.RFC3339), run.ID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}

func scanRun(scan func(dest ...any) error) (*Run, error) {
	var id, workflowID, status, input, stepsJSON, createdAtStr, updatedAtStr string
	var currentStep int

	if err := scan(&id, &workflowID, &status, &input, &currentStep, &stepsJSON, &createdAtStr, &updatedAtStr); err != nil {
		return nil, err
	}

	var steps []StepResult
	if err := json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
		return nil, err
	}

	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, err
	}
	updatedAt, err := time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, err
	}

	return &Run{
		ID:          id,
		WorkflowID:  workflowID,
		Status:      RunStatus(status),
		Input:       input,
		CurrentStep: currentStep,
		Steps:       steps,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}
