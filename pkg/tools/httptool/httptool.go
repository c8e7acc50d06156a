// Package httptool executes tool calls by proxying them to an HTTP
// endpoint. GET requests carry the arguments as query parameters, every
// other method sends them as a JSON body.
package httptool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/tools"
)

// responses larger than this are truncated before they reach the model
const maxResponseBytes = 1 << 20

// NewHandler builds a tool handler for an http tool definition. The
// client controls transport level concerns; pass nil for the default.
func NewHandler(h config.ToolHandler, client *http.Client) tools.ToolHandler {
	if client == nil {
		client = http.DefaultClient
	}

	method := strings.ToUpper(h.Method)
	if method == "" {
		method = http.MethodPost
	}

	return func(ctx context.Context, call chat.ToolCall) (*tools.ToolCallResult, error) {
		args := map[string]any{}
		if raw := call.Function.Arguments; raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return tools.ResultError(fmt.Sprintf("invalid arguments for %s: %v", call.Function.Name, err)), nil
			}
		}

		req, err := buildRequest(ctx, method, h.URL, args)
		if err != nil {
			return nil, err
		}
		for k, v := range h.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return tools.ResultError(fmt.Sprintf("request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return tools.ResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return tools.ResultError(fmt.Sprintf("endpoint returned %d: %s", resp.StatusCode, string(body))), nil
		}

		return tools.ResultSuccess(string(body)), nil
	}
}

func buildRequest(ctx context.Context, method, rawURL string, args map[string]any) (*http.Request, error) {
	if method == http.MethodGet {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("invalid tool URL: %w", err)
		}
		q := u.Query()
		for k, v := range args {
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode()
		return http.NewRequestWithContext(ctx, method, u.String(), nil)
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
