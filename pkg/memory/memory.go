// Package memory defines long-lived agent memory: facts an agent stores
// across sessions through the memory builtin tools.
package memory

import "context"

// Entry is one stored memory.
type Entry struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Content   string `json:"content"`
}

// Driver persists memories.
type Driver interface {
	Store(ctx context.Context, id, content string) error
	Retrieve(ctx context.Context, limit int) ([]Entry, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
