package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/version"
)

type remoteClient struct {
	sessionClient
	url       string
	transport config.TransportKind
	headers   map[string]string
}

func newRemoteClient(url string, transport config.TransportKind, headers map[string]string) *remoteClient {
	slog.Debug("creating remote tool server client", "url", url, "transport", transport)

	return &remoteClient{
		url:       url,
		transport: transport,
		headers:   headers,
	}
}

func (c *remoteClient) Initialize(ctx context.Context, _ *gomcp.InitializeRequest) (*gomcp.InitializeResult, error) {
	httpClient := c.createHTTPClient()

	var transport gomcp.Transport
	switch c.transport {
	case config.TransportSSE:
		transport = &gomcp.SSEClientTransport{
			Endpoint:   c.url,
			HTTPClient: httpClient,
		}
	case config.TransportStreamable:
		transport = &gomcp.StreamableClientTransport{
			Endpoint:             c.url,
			HTTPClient:           httpClient,
			DisableStandaloneSSE: true,
		}
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", c.transport)
	}

	opts := &gomcp.ClientOptions{
		ToolListChangedHandler: c.notificationHandler(),
	}

	client := gomcp.NewClient(&gomcp.Implementation{
		Name:    "agentd",
		Version: version.Version,
	}, opts)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to tool server: %w", err)
	}

	c.setSession(session)

	slog.Debug("remote tool server client connected", "url", c.url)
	return session.InitializeResult(), nil
}

func (c *remoteClient) createHTTPClient() *http.Client {
	if len(c.headers) == 0 {
		return http.DefaultClient
	}
	return &http.Client{
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			headers: c.headers,
		},
	}
}

// headerTransport injects the configured headers into every request,
// without overriding headers the protocol layer already set.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		if clone.Header.Get(k) == "" {
			clone.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(clone)
}
