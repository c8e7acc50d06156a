// Package app wires the catalog, model backends, tool layers and stores
// into runnable turns. It is the single entry point the transport layer
// talks to.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/eamonnk/agentd/pkg/attachment"
	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/environment"
	"github.com/eamonnk/agentd/pkg/model/provider"
	"github.com/eamonnk/agentd/pkg/model/provider/options"
	"github.com/eamonnk/agentd/pkg/runtime"
	"github.com/eamonnk/agentd/pkg/session"
	"github.com/eamonnk/agentd/pkg/team"
	"github.com/eamonnk/agentd/pkg/tools"
	"github.com/eamonnk/agentd/pkg/tools/invoker"
	"github.com/eamonnk/agentd/pkg/tools/mcp"
	"github.com/eamonnk/agentd/pkg/workflow"
	"github.com/eamonnk/agentd/pkg/workflowrun"
)

// EntityType selects what a turn runs against.
type EntityType string

const (
	EntityAgent EntityType = "agent"
	EntityTeam  EntityType = "team"
)

// App holds every long-lived engine component.
type App struct {
	catalog      *config.Store
	env          environment.Provider
	sessions     session.Store
	runs         workflow.Store
	invoker      *invoker.Invoker
	servers      *mcp.Manager
	providerOpts []options.Opt

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// Opt configures an App.
type Opt func(*App)

// WithProviderOpts forwards options to every model client, mostly for
// tests that stub the transport.
func WithProviderOpts(opts ...options.Opt) Opt {
	return func(a *App) { a.providerOpts = opts }
}

// New assembles the engine.
func New(catalog *config.Store, env environment.Provider, sessions session.Store, runs workflow.Store, inv *invoker.Invoker, servers *mcp.Manager, opts ...Opt) *App {
	a := &App{
		catalog:  catalog,
		env:      env,
		sessions: sessions,
		runs:     runs,
		invoker:  inv,
		servers:  servers,
		cancels:  map[string]context.CancelFunc{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Close tears down long-lived resources, notably tool server connections.
func (a *App) Close(ctx context.Context) {
	a.servers.StopAll(ctx)
}

// AgentRunner builds the runtime for one agent: its provider plus its
// catalog tools and namespaced tool server tools, in configured order.
func (a *App) AgentRunner(ctx context.Context, agentID string) (*runtime.Runtime, error) {
	member, err := a.member(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return runtime.New(member.Agent, member.Provider, member.Tools), nil
}

// TeamRunner builds the coordinator for one team with its members in
// configured order.
func (a *App) TeamRunner(ctx context.Context, teamID string) (*team.Team, error) {
	cfg, err := a.catalog.Team(teamID)
	if err != nil {
		return nil, err
	}

	members := make([]team.Member, 0, len(cfg.AgentIDs))
	for _, agentID := range cfg.AgentIDs {
		member, err := a.member(ctx, agentID)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	return team.New(cfg, members)
}

// Orchestrator resolves the runner for a turn entity.
func (a *App) Orchestrator(ctx context.Context, entityType EntityType, entityID string) (runtime.Orchestrator, error) {
	switch entityType {
	case EntityAgent:
		return a.AgentRunner(ctx, entityID)
	case EntityTeam:
		return a.TeamRunner(ctx, entityID)
	default:
		return nil, fmt.Errorf("unknown entity type '%s'", entityType)
	}
}

func (a *App) member(ctx context.Context, agentID string) (team.Member, error) {
	agent, err := a.catalog.Agent(agentID)
	if err != nil {
		return team.Member{}, err
	}

	providerCfg, err := a.catalog.Provider(agent.ProviderID)
	if err != nil {
		return team.Member{}, fmt.Errorf("agent '%s': %w", agentID, err)
	}

	p, err := provider.New(ctx, providerCfg, a.env, a.providerOpts...)
	if err != nil {
		return team.Member{}, fmt.Errorf("agent '%s': %w", agentID, err)
	}

	agentTools, err := a.agentTools(ctx, agent)
	if err != nil {
		return team.Member{}, err
	}

	return team.Member{Agent: agent, Provider: p, Tools: agentTools}, nil
}

func (a *App) agentTools(ctx context.Context, agent config.Agent) ([]tools.Tool, error) {
	defs := make([]config.ToolDefinition, 0, len(agent.ToolIDs))
	for _, toolID := range agent.ToolIDs {
		def, err := a.catalog.Tool(toolID)
		if err != nil {
			return nil, fmt.Errorf("agent '%s': %w", agent.ID, err)
		}
		defs = append(defs, def)
	}

	resolved, err := a.invoker.ResolveAll(defs)
	if err != nil {
		return nil, fmt.Errorf("agent '%s': %w", agent.ID, err)
	}

	servers := make([]config.ToolServer, 0, len(agent.ToolServerIDs))
	for _, serverID := range agent.ToolServerIDs {
		srv, err := a.catalog.ToolServer(serverID)
		if err != nil {
			return nil, fmt.Errorf("agent '%s': %w", agent.ID, err)
		}
		servers = append(servers, srv)
	}

	return append(resolved, a.servers.CollectTools(ctx, servers)...), nil
}

// TurnRequest describes one chat turn submission.
type TurnRequest struct {
	EntityType  EntityType
	EntityID    string
	SessionID   string
	Message     string
	Attachments []attachment.Attachment
}

// RunTurn starts one turn. It loads or creates the session, appends the
// user message, runs the entity and returns the live event stream. The
// session is persisted when the stream ends; cancelling via Cancel makes
// the turn commit its partial content first.
func (a *App) RunTurn(ctx context.Context, req TurnRequest) (*session.Session, <-chan runtime.Event, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, nil, errors.New("message must not be empty")
	}

	orchestrator, err := a.Orchestrator(ctx, req.EntityType, req.EntityID)
	if err != nil {
		return nil, nil, err
	}

	sess, err := a.loadOrCreateSession(ctx, req.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.Title == "" {
		sess.Title = sessionTitle(req.Message)
	}

	sess.AddMessage("", attachment.UserMessage(req.Message, req.Attachments))
	a.saveSession(ctx, sess)

	turnCtx, cancel := a.registerTurn(ctx, sess.ID)

	events := orchestrator.RunStream(turnCtx, sess)
	out := make(chan runtime.Event)
	go func() {
		defer close(out)
		defer a.finishTurn(sess.ID, cancel)

		for ev := range events {
			out <- ev
		}
		a.saveSession(context.WithoutCancel(ctx), sess)
	}()

	return sess, out, nil
}

// Cancel aborts the in-flight turn for a session. It reports whether a
// turn was actually running.
func (a *App) Cancel(sessionID string) bool {
	a.mu.Lock()
	cancel, ok := a.cancels[sessionID]
	a.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (a *App) registerTurn(ctx context.Context, sessionID string) (context.Context, context.CancelFunc) {
	turnCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancels[sessionID] = cancel
	a.mu.Unlock()
	return turnCtx, cancel
}

func (a *App) finishTurn(sessionID string, cancel context.CancelFunc) {
	a.mu.Lock()
	delete(a.cancels, sessionID)
	a.mu.Unlock()
	cancel()
}

// StartWorkflow begins a run of the workflow and returns it with its
// event stream.
func (a *App) StartWorkflow(ctx context.Context, workflowID, input string) (*workflow.Run, <-chan runtime.Event, error) {
	wf, err := a.catalog.Workflow(workflowID)
	if err != nil {
		return nil, nil, err
	}

	executor := workflowrun.NewExecutor(a.runs, func(ctx context.Context, agentID string) (runtime.Orchestrator, error) {
		return a.AgentRunner(ctx, agentID)
	})
	return executor.Execute(ctx, wf, input)
}

// WorkflowRun fetches a persisted run with its ordered step results.
func (a *App) WorkflowRun(ctx context.Context, runID string) (*workflow.Run, error) {
	return a.runs.GetRun(ctx, runID)
}

// Session fetches a persisted session.
func (a *App) Session(ctx context.Context, sessionID string) (*session.Session, error) {
	return a.sessions.GetSession(ctx, sessionID)
}

// TestToolServer checks connectivity for transport parameters without
// creating a persistent connection.
func (a *App) TestToolServer(ctx context.Context, cfg config.ToolServer) mcp.TestResult {
	return mcp.TestConnection(ctx, cfg)
}

func (a *App) loadOrCreateSession(ctx context.Context, sessionID string) (*session.Session, error) {
	if sessionID == "" {
		return session.New(), nil
	}

	sess, err := a.sessions.GetSession(ctx, sessionID)
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, session.ErrNotFound):
		return session.New(session.WithID(sessionID)), nil
	default:
		return nil, err
	}
}

// saveSession upserts the session; persistence failures are logged, never
// fatal to the turn.
func (a *App) saveSession(ctx context.Context, sess *session.Session) {
	_, err := a.sessions.GetSession(ctx, sess.ID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		if err := a.sessions.AddSession(ctx, sess); err != nil {
			slog.Error("failed to add session", "session_id", sess.ID, "error", err)
		}
	case err == nil:
		if err := a.sessions.UpdateSession(ctx, sess); err != nil {
			slog.Error("failed to update session", "session_id", sess.ID, "error", err)
		}
	default:
		slog.Error("failed to load session for save", "session_id", sess.ID, "error", err)
	}
}

// sessionTitle derives a display title from the first user message.
func sessionTitle(message string) string {
	title := message
	if idx := strings.Index(title, "\n"); idx > 0 && idx < 50 {
		title = title[:idx]
	} else if len(title) > 50 {
		title = title[:47] + "..."
	}
	return title
}
