package root

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/eamonnk/agentd/pkg/app"
	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/environment"
	"github.com/eamonnk/agentd/pkg/memory/sqlite"
	"github.com/eamonnk/agentd/pkg/session"
	"github.com/eamonnk/agentd/pkg/tools/builtin"
	"github.com/eamonnk/agentd/pkg/tools/invoker"
	"github.com/eamonnk/agentd/pkg/tools/mcp"
	"github.com/eamonnk/agentd/pkg/workflow"
)

// buildApp assembles the engine from a catalog file and a data directory.
func buildApp(ctx context.Context, configPath, dataDir string) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	catalog := config.NewStore(cfg)

	sessions, err := session.NewSQLiteSessionStore(filepath.Join(dataDir, "sessions.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	runs, err := workflow.NewSQLiteRunStore(filepath.Join(dataDir, "runs.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}

	memories, err := sqlite.NewDriver(ctx, filepath.Join(dataDir, "memories.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}

	registry := builtin.NewRegistry(builtin.WithMemory(memories))

	return app.New(
		catalog,
		environment.NewOSEnv(),
		sessions,
		runs,
		invoker.New(registry),
		mcp.NewManager(),
	), nil
}
