package httptool

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eamonnk/agentd/pkg/chat"
	"github.com/eamonnk/agentd/pkg/config"
)

func call(name, arguments string) chat.ToolCall {
	return chat.ToolCall{
		ID: "call_1",
		Function: chat.FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}
}

func TestGetSendsQueryParameters(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		gotQuery = r.URL.RawQuery
		io.WriteString(w, `{"temp": 21}`)
	}))
	defer srv.Close()

	handler := NewHandler(config.ToolHandler{
		Type:   config.HandlerHTTP,
		URL:    srv.URL,
		Method: "GET",
	}, srv.Client())

	result, err := handler(context.Background(), call("weather", `{"city":"Paris"}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, `{"temp": 21}`, result.Output)
	assert.Equal(t, "city=Paris", gotQuery)
}

func TestPostSendsJSONBody(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		io.WriteString(w, "created")
	}))
	defer srv.Close()

	// method defaults to POST
	handler := NewHandler(config.ToolHandler{
		Type: config.HandlerHTTP,
		URL:  srv.URL,
	}, srv.Client())

	result, err := handler(context.Background(), call("create", `{"title":"hello","count":2}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "created", result.Output)
	assert.Equal(t, map[string]any{"title": "hello", "count": float64(2)}, gotBody)
}

func TestCustomHeadersAreSet(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	handler := NewHandler(config.ToolHandler{
		Type:    config.HandlerHTTP,
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer token-123"},
	}, srv.Client())

	result, err := handler(context.Background(), call("secure", "{}"))
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Output)
}

func TestNon2xxBecomesToolError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream down")
	}))
	defer srv.Close()

	handler := NewHandler(config.ToolHandler{
		Type: config.HandlerHTTP,
		URL:  srv.URL,
	}, srv.Client())

	result, err := handler(context.Background(), call("flaky", "{}"))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "endpoint returned 502")
	assert.Contains(t, result.Output, "upstream down")
}

func TestUnreachableEndpointBecomesToolError(t *testing.T) {
	t.Parallel()

	handler := NewHandler(config.ToolHandler{
		Type: config.HandlerHTTP,
		URL:  "http://127.0.0.1:1",
	}, nil)

	result, err := handler(context.Background(), call("gone", "{}"))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "request failed")
}

func TestInvalidArgumentsBecomeToolError(t *testing.T) {
	t.Parallel()

	handler := NewHandler(config.ToolHandler{
		Type: config.HandlerHTTP,
		URL:  "http://example.invalid",
	}, nil)

	result, err := handler(context.Background(), call("bad", `{broken`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "invalid arguments")
}
