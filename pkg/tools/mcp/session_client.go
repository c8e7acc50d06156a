package mcp

import (
	"context"
	"fmt"
	"iter"
	"sync"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// sessionClient provides shared session management for MCP client
// implementations. Both stdioClient and remoteClient embed it to avoid
// duplicating the session-nil guards and delegating methods.
type sessionClient struct {
	session                *gomcp.ClientSession
	toolListChangedHandler func()
	mu                     sync.RWMutex
}

func (c *sessionClient) setSession(s *gomcp.ClientSession) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *sessionClient) getSession() *gomcp.ClientSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// notificationHandler returns a ToolListChanged closure suitable for
// gomcp.ClientOptions. It reads the registered handler under the read
// lock and invokes it if non-nil.
func (c *sessionClient) notificationHandler() func(context.Context, *gomcp.ToolListChangedRequest) {
	return func(_ context.Context, _ *gomcp.ToolListChangedRequest) {
		c.mu.RLock()
		h := c.toolListChangedHandler
		c.mu.RUnlock()
		if h != nil {
			h()
		}
	}
}

func (c *sessionClient) SetToolListChangedHandler(handler func()) {
	c.mu.Lock()
	c.toolListChangedHandler = handler
	c.mu.Unlock()
}

func (c *sessionClient) Wait() error {
	if s := c.getSession(); s != nil {
		return s.Wait()
	}
	return nil
}

func (c *sessionClient) Close(context.Context) error {
	if s := c.getSession(); s != nil {
		return s.Close()
	}
	return nil
}

func (c *sessionClient) ListTools(ctx context.Context, request *gomcp.ListToolsParams) iter.Seq2[*gomcp.Tool, error] {
	if s := c.getSession(); s != nil {
		return s.Tools(ctx, request)
	}
	return func(yield func(*gomcp.Tool, error) bool) {
		yield(nil, fmt.Errorf("session not initialized"))
	}
}

func (c *sessionClient) CallTool(ctx context.Context, request *gomcp.CallToolParams) (*gomcp.CallToolResult, error) {
	if s := c.getSession(); s != nil {
		return s.CallTool(ctx, request)
	}
	return nil, fmt.Errorf("session not initialized")
}
