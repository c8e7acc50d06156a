package mcp

import (
	"context"
	"os/exec"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/eamonnk/agentd/pkg/version"
)

type stdioClient struct {
	sessionClient
	command string
	args    []string
	env     []string
}

func newStdioClient(command string, args, env []string) *stdioClient {
	return &stdioClient{
		command: command,
		args:    args,
		env:     env,
	}
}

func (c *stdioClient) Initialize(ctx context.Context, _ *gomcp.InitializeRequest) (*gomcp.InitializeResult, error) {
	opts := &gomcp.ClientOptions{
		ToolListChangedHandler: c.notificationHandler(),
	}

	client := gomcp.NewClient(&gomcp.Implementation{
		Name:    "agentd",
		Version: version.Version,
	}, opts)

	cmd := exec.CommandContext(ctx, c.command, c.args...)
	cmd.Env = c.env
	// Run the server in its own process group so stopping it does not
	// signal our whole group, and terminate it gracefully on cancel.
	configureProcessGroup(cmd)
	cmd.Cancel = func() error { return cancelProcess(cmd) }

	session, err := client.Connect(ctx, &gomcp.CommandTransport{
		Command: cmd,
	}, nil)
	if err != nil {
		return nil, err
	}

	c.setSession(session)

	return session.InitializeResult(), nil
}
