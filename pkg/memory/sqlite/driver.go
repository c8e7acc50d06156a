// Package sqlite implements the memory driver on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eamonnk/agentd/pkg/memory"
	"github.com/eamonnk/agentd/pkg/sqliteutil"
)

// Driver implements the memory.Driver interface using SQLite
type Driver struct {
	db *sql.DB
}

var _ memory.Driver = (*Driver)(nil)

// NewDriver opens the memory database at path.
func NewDriver(ctx context.Context, path string) (*Driver, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite driver requires a path")
	}

	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		created_at TEXT,
		content TEXT
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create memories table: %w", err)
	}

	return &Driver{db: db}, nil
}

func (d *Driver) Store(ctx context.Context, id, content string) error {
	if id == "" {
		id = uuid.New().String()
	}

	createdAt := time.Now().UTC().Format(time.RFC3339)
	_, err := d.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO memories (id, created_at, content) VALUES (?, ?, ?)",
		id, createdAt, content)
	if err != nil {
		return fmt.Errorf("failed to store memory: %w", err)
	}
	return nil
}

func (d *Driver) Retrieve(ctx context.Context, limit int) ([]memory.Entry, error) {
	query := "SELECT id, created_at, content FROM memories ORDER BY created_at DESC"
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve memories: %w", err)
	}
	defer rows.Close()

	var entries []memory.Entry
	for rows.Next() {
		var e memory.Entry
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Content); err != nil {
			return nil, fmt.Errorf("failed to scan memory row: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memory rows: %w", err)
	}

	return entries, nil
}

func (d *Driver) Delete(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	return nil
}

func (d *Driver) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
