package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eamonnk/agentd/pkg/app"
	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/environment"
	"github.com/eamonnk/agentd/pkg/session"
	"github.com/eamonnk/agentd/pkg/tools/builtin"
	"github.com/eamonnk/agentd/pkg/tools/invoker"
	"github.com/eamonnk/agentd/pkg/tools/mcp"
	"github.com/eamonnk/agentd/pkg/workflow"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()

	sessions, err := session.NewSQLiteSessionStore(filepath.Join(dir, "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })

	runs, err := workflow.NewSQLiteRunStore(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { runs.Close() })

	a := app.New(
		config.NewStore(&config.Config{}),
		environment.NewStaticEnv(nil),
		sessions,
		runs,
		invoker.New(builtin.NewRegistry()),
		mcp.NewManager(),
	)
	return New(a)
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/workflows/runs/missing", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionMessagesNotFound(t *testing.T) {
	t.Parallel()

	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/missing/messages", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelUnknownSession(t *testing.T) {
	t.Parallel()

	srv := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/nope/cancel", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"cancelled": false}`, rec.Body.String())
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	srv := testServer(t)

	body := strings.NewReader(`{"entity_type": "agent", "entity_id": "a1", "message": ""}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatUnknownAgent(t *testing.T) {
	t.Parallel()

	srv := testServer(t)

	body := strings.NewReader(`{"entity_type": "agent", "entity_id": "ghost", "message": "hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkflowRunUnknownWorkflow(t *testing.T) {
	t.Parallel()

	srv := testServer(t)

	body := strings.NewReader(`{"input": "go"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/workflows/ghost/run", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
