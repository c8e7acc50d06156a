package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/tools"
)

// Manager owns one Toolset per tool server, shared by every agent that
// references the server. Toolsets start lazily on first use and stay
// connected until StopAll.
type Manager struct {
	mu   sync.Mutex
	sets map[string]*Toolset
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{sets: map[string]*Toolset{}}
}

// Get returns the started toolset for cfg, creating and starting it on
// first use.
func (m *Manager) Get(ctx context.Context, cfg config.ToolServer) (*Toolset, error) {
	m.mu.Lock()
	ts, ok := m.sets[cfg.ID]
	if !ok {
		var err error
		ts, err = newToolset(cfg)
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		m.sets[cfg.ID] = ts
	}
	m.mu.Unlock()

	if err := ts.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start tool server '%s': %w", cfg.ID, err)
	}

	return ts, nil
}

// Remove stops and forgets the toolset for a server ID, if present.
func (m *Manager) Remove(ctx context.Context, serverID string) {
	m.mu.Lock()
	ts, ok := m.sets[serverID]
	delete(m.sets, serverID)
	m.mu.Unlock()

	if ok {
		if err := ts.Stop(ctx); err != nil {
			slog.Warn("failed to stop tool server", "server_id", serverID, "error", err)
		}
	}
}

// StopAll stops every managed toolset.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	sets := m.sets
	m.sets = map[string]*Toolset{}
	m.mu.Unlock()

	for id, ts := range sets {
		if err := ts.Stop(ctx); err != nil {
			slog.Warn("failed to stop tool server", "server_id", id, "error", err)
		}
	}
}

func newToolset(cfg config.ToolServer) (*Toolset, error) {
	switch cfg.Transport {
	case config.TransportStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("tool server '%s' has no command", cfg.ID)
		}
		return NewToolsetCommand(cfg.ID, cfg.Command, cfg.Args, append(os.Environ(), cfg.Env...)), nil
	case config.TransportSSE, config.TransportStreamable:
		if cfg.URL == "" {
			return nil, fmt.Errorf("tool server '%s' has no URL", cfg.ID)
		}
		return NewRemoteToolset(cfg.ID, cfg.URL, cfg.Transport, cfg.Headers), nil
	default:
		return nil, fmt.Errorf("tool server '%s' has unknown transport '%s'", cfg.ID, cfg.Transport)
	}
}

// TestResult reports the outcome of a connection test.
type TestResult struct {
	Reachable bool     `json:"reachable"`
	Error     string   `json:"error,omitempty"`
	Tools     []string `json:"tools,omitempty"`
}

// TestConnection connects to a server, lists its tools, and tears the
// connection down again. The manager's persistent toolsets are not
// touched, so a test never disturbs running turns.
func TestConnection(ctx context.Context, cfg config.ToolServer) TestResult {
	ts, err := newToolset(cfg)
	if err != nil {
		return TestResult{Error: err.Error()}
	}
	return ts.testConnection(ctx)
}

// testConnection probes the toolset's server end to end and always tears
// the connection down afterwards.
func (ts *Toolset) testConnection(ctx context.Context) TestResult {
	if _, err := ts.client.Initialize(ctx, &mcp.InitializeRequest{}); err != nil {
		return TestResult{Error: err.Error()}
	}
	defer func() {
		if err := ts.client.Close(context.WithoutCancel(ctx)); err != nil {
			slog.Debug("failed to close test connection", "server_id", ts.serverID, "error", err)
		}
	}()

	var names []string
	for t, err := range ts.client.ListTools(ctx, &mcp.ListToolsParams{}) {
		if err != nil {
			return TestResult{Reachable: true, Error: err.Error()}
		}
		names = append(names, t.Name)
	}

	return TestResult{Reachable: true, Tools: names}
}

// CollectTools starts every referenced server and returns their
// namespaced tools in server order. A server that fails to start is
// skipped with a warning; the turn proceeds with the tools that loaded.
func (m *Manager) CollectTools(ctx context.Context, servers []config.ToolServer) []tools.Tool {
	var out []tools.Tool
	for _, cfg := range servers {
		ts, err := m.Get(ctx, cfg)
		if err != nil {
			slog.Warn("skipping unavailable tool server", "server_id", cfg.ID, "error", err)
			continue
		}
		serverTools, err := ts.Tools(ctx)
		if err != nil {
			slog.Warn("failed to list tool server tools", "server_id", cfg.ID, "error", err)
			continue
		}
		out = append(out, serverTools...)
	}
	return out
}
