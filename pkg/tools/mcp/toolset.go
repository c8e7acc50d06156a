// Package mcp connects the engine to external tool servers speaking the
// Model Context Protocol, over a spawned child process or a persistent
// remote stream. Discovered tools are namespaced so they can never
// collide with locally defined tools.
package mcp

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/tools"
)

// NamespacePrefix starts every tool name discovered through a tool
// server. The full form is mcp__<serverID>__<toolName>.
const NamespacePrefix = "mcp"

const namespaceSep = "__"

type client interface {
	Initialize(ctx context.Context, request *mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request *mcp.ListToolsParams) iter.Seq2[*mcp.Tool, error]
	CallTool(ctx context.Context, request *mcp.CallToolParams) (*mcp.CallToolResult, error)
	SetToolListChangedHandler(handler func())
	// Wait blocks until the underlying connection is closed by the server.
	Wait() error
	Close(ctx context.Context) error
}

// Toolset exposes one tool server as a tools.ToolSet.
type Toolset struct {
	serverID string
	client   client
	logID    string

	mu       sync.Mutex
	started  bool
	stopping bool

	// Cached tool list, invalidated on server notifications. cacheGen is
	// bumped on each invalidation so a concurrent Tools() call can detect
	// that its fetch is stale.
	cachedTools []tools.Tool
	cacheGen    uint64

	// callMu serializes tool calls against this server. Tool servers are
	// stateful; interleaved writes from parallel calls corrupt sessions.
	callMu sync.Mutex
}

var (
	_ tools.ToolSet   = (*Toolset)(nil)
	_ tools.Startable = (*Toolset)(nil)
)

// NewToolsetCommand creates a toolset that spawns a local server process.
func NewToolsetCommand(serverID, command string, args, env []string) *Toolset {
	slog.Debug("creating stdio tool server toolset", "server_id", serverID, "command", command, "args", args)

	return &Toolset{
		serverID: serverID,
		client:   newStdioClient(command, args, env),
		logID:    command,
	}
}

// NewRemoteToolset creates a toolset that connects to a remote server.
func NewRemoteToolset(serverID, url string, transport config.TransportKind, headers map[string]string) *Toolset {
	slog.Debug("creating remote tool server toolset", "server_id", serverID, "url", url, "transport", transport)

	return &Toolset{
		serverID: serverID,
		client:   newRemoteClient(url, transport, headers),
		logID:    url,
	}
}

// errServerUnavailable is returned by doStart when the server could not
// be reached but the error is non-fatal (e.g. EOF). The toolset counts as
// started so the turn can proceed with an empty tool list; no watcher is
// spawned because there is no live connection to monitor.
var errServerUnavailable = errors.New("tool server unavailable")

func (ts *Toolset) Start(ctx context.Context) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.started {
		return nil
	}

	if err := ts.doStart(ctx); err != nil {
		if errors.Is(err, errServerUnavailable) {
			ts.started = true
			return nil
		}
		return err
	}

	ts.started = true

	// Spawn the connection watcher only on the initial Start. Restarts
	// from within watchConnection call doStart directly and must not
	// spawn another watcher. WithoutCancel lets the watcher outlive the
	// caller's request; Stop() is the only way to end it.
	go ts.watchConnection(context.WithoutCancel(ctx))

	return nil
}

func (ts *Toolset) doStart(ctx context.Context) error {
	// The connection must outlive the request that triggered its
	// creation; later turns reuse it.
	ctx = context.WithoutCancel(ctx)

	slog.Debug("starting tool server toolset", "server", ts.logID)

	ts.client.SetToolListChangedHandler(func() {
		ts.mu.Lock()
		ts.invalidateCache()
		ts.mu.Unlock()

		slog.Debug("tool server notified tool list changed, refreshing", "server", ts.logID)
		if _, err := ts.Tools(ctx); err != nil {
			slog.Warn("failed to refresh tools after notification", "server", ts.logID, "error", err)
		}
	})

	_, err := ts.client.Initialize(ctx, &mcp.InitializeRequest{})
	if err != nil {
		if errors.Is(err, io.EOF) {
			slog.Debug("tool server unavailable (EOF), proceeding without it", "server", ts.logID)
			return errServerUnavailable
		}
		slog.Error("failed to initialize tool server client", "server", ts.logID, "error", err)
		return fmt.Errorf("failed to initialize tool server client: %w", err)
	}

	slog.Debug("started tool server toolset", "server", ts.logID)
	return nil
}

// watchConnection monitors the server connection and restarts it if the
// server dies while we did not call Stop. Only one watcher exists per
// Toolset; it loops across restarts.
func (ts *Toolset) watchConnection(ctx context.Context) {
	for {
		err := ts.client.Wait()

		ts.mu.Lock()
		if ts.stopping {
			ts.mu.Unlock()
			return
		}
		ts.started = false
		ts.invalidateCache()
		ts.mu.Unlock()

		slog.Warn("tool server connection lost, attempting restart", "server", ts.logID, "error", err)

		if !ts.tryRestart(ctx) {
			return
		}
	}
}

// tryRestart attempts to restart the server with exponential backoff.
// Returns false if all attempts failed or Stop was called.
func (ts *Toolset) tryRestart(ctx context.Context) bool {
	const maxAttempts = 5

	for attempt := range maxAttempts {
		backoff := time.Duration(1<<uint(attempt)) * time.Second
		slog.Debug("restarting tool server", "server", ts.logID, "attempt", attempt+1, "backoff", backoff)
		time.Sleep(backoff)

		ts.mu.Lock()
		if ts.stopping {
			ts.mu.Unlock()
			return false
		}

		if err := ts.doStart(ctx); err != nil {
			ts.mu.Unlock()
			slog.Warn("tool server restart failed", "server", ts.logID, "attempt", attempt+1, "error", err)
			continue
		}

		ts.started = true
		ts.mu.Unlock()

		slog.Info("tool server restarted", "server", ts.logID)
		return true
	}

	slog.Error("tool server restart failed after all attempts", "server", ts.logID)
	return false
}

// invalidateCache clears the cached tools and bumps the generation
// counter. The caller must hold ts.mu.
func (ts *Toolset) invalidateCache() {
	ts.cachedTools = nil
	ts.cacheGen++
}

// Tools lists the server's tools under their namespaced names.
func (ts *Toolset) Tools(ctx context.Context) ([]tools.Tool, error) {
	ts.mu.Lock()
	if !ts.started {
		ts.mu.Unlock()
		return nil, errors.New("toolset not started")
	}
	if ts.cachedTools != nil {
		result := ts.cachedTools
		ts.mu.Unlock()
		return result, nil
	}
	// Snapshot the generation so invalidation during the fetch is visible.
	gen := ts.cacheGen
	ts.mu.Unlock()

	slog.Debug("listing tool server tools (cache miss)", "server", ts.logID)

	resp := ts.client.ListTools(ctx, &mcp.ListToolsParams{})

	var toolsList []tools.Tool
	for t, err := range resp {
		if err != nil {
			return nil, err
		}

		params, err := tools.SchemaToMap(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("invalid schema for tool %s: %w", t.Name, err)
		}

		toolsList = append(toolsList, tools.Tool{
			Name:        NamespacedName(ts.serverID, t.Name),
			Description: t.Description,
			Parameters:  params,
			Handler:     ts.callTool,
		})
	}

	slog.Debug("listed tool server tools", "count", len(toolsList), "server", ts.logID)

	ts.mu.Lock()
	// Only populate the cache if no invalidation happened while we were
	// fetching. Otherwise drop the result so the next caller re-fetches.
	if ts.cacheGen == gen {
		ts.cachedTools = toolsList
	}
	ts.mu.Unlock()

	return toolsList, nil
}

func (ts *Toolset) callTool(ctx context.Context, toolCall chat.ToolCall) (*tools.ToolCallResult, error) {
	name := toolCall.Function.Name
	if _, stripped, ok := SplitName(name); ok {
		name = stripped
	}

	slog.Debug("calling tool server tool", "server", ts.logID, "tool", name)

	toolCall.Function.Arguments = cmp.Or(toolCall.Function.Arguments, "{}")
	var args map[string]any
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
	}

	// Strip explicit nulls. Some models send null for optional parameters
	// and servers may reject them; omitting the key is equivalent.
	for k, v := range args {
		if v == nil {
			delete(args, k)
		}
	}

	ts.callMu.Lock()
	resp, err := ts.client.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	ts.callMu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to call tool: %w", err)
	}

	return processContent(resp), nil
}

func (ts *Toolset) Stop(ctx context.Context) error {
	slog.Debug("stopping tool server toolset", "server", ts.logID)

	ts.mu.Lock()
	ts.stopping = true
	ts.started = false
	ts.mu.Unlock()

	if err := ts.client.Close(context.WithoutCancel(ctx)); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	return nil
}

// NamespacedName builds the advertised name of a server tool.
func NamespacedName(serverID, toolName string) string {
	return NamespacePrefix + namespaceSep + serverID + namespaceSep + toolName
}

// SplitName splits a namespaced tool name into server ID and tool name.
// Tool names may themselves contain the separator, so only the first two
// segments are split off.
func SplitName(name string) (serverID, toolName string, ok bool) {
	rest, found := strings.CutPrefix(name, NamespacePrefix+namespaceSep)
	if !found {
		return "", "", false
	}
	serverID, toolName, found = strings.Cut(rest, namespaceSep)
	if !found || serverID == "" || toolName == "" {
		return "", "", false
	}
	return serverID, toolName, true
}

func processContent(toolResult *mcp.CallToolResult) *tools.ToolCallResult {
	finalContent := ""
	for _, resultContent := range toolResult.Content {
		if textContent, ok := resultContent.(*mcp.TextContent); ok {
			finalContent += textContent.Text
		}
	}

	// An empty response happens when the tool returns no content.
	finalContent = cmp.Or(finalContent, "no output")

	if toolResult.IsError {
		return tools.ResultError(finalContent)
	}
	return tools.ResultSuccess(finalContent)
}
