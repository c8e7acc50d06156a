// Package server exposes the engine over HTTP. Turn endpoints stream
// their events as server-sent events; everything else is plain JSON.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/eamonnk/agentd/pkg/app"
	"github.com/eamonnk/agentd/pkg/attachment"
	"github.com/eamonnk/agentd/pkg/config"
	"github.com/eamonnk/agentd/pkg/session"
	"github.com/eamonnk/agentd/pkg/workflow"
)

// Server serves the engine API.
type Server struct {
	app  *app.App
	echo *echo.Echo
}

// New builds the HTTP server around an assembled engine.
func New(a *app.App) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	s := &Server{app: a, echo: e}

	api := e.Group("/api")
	api.POST("/chat", s.handleChat)
	api.POST("/workflows/:id/run", s.handleWorkflowRun)
	api.GET("/workflows/runs/:id", s.handleGetRun)
	api.POST("/toolservers/test", s.handleTestToolServer)
	api.POST("/sessions/:id/cancel", s.handleCancel)
	api.GET("/sessions/:id/messages", s.handleSessionMessages)

	return s
}

// Handler returns the underlying HTTP handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown", "error", err)
		}
	}()

	slog.Info("listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type chatRequest struct {
	EntityType  string                  `json:"entity_type"`
	EntityID    string                  `json:"entity_id"`
	SessionID   string                  `json:"session_id,omitempty"`
	Message     string                  `json:"message"`
	Attachments []attachment.Attachment `json:"attachments,omitempty"`
}

func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	sess, events, err := s.app.RunTurn(c.Request().Context(), app.TurnRequest{
		EntityType:  app.EntityType(req.EntityType),
		EntityID:    req.EntityID,
		SessionID:   req.SessionID,
		Message:     req.Message,
		Attachments: req.Attachments,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sse := newSSEWriter(c)
	sse.send("session", map[string]string{"session_id": sess.ID})

	for ev := range events {
		sse.sendEvent(ev)
	}
	sse.done()
	return nil
}

type workflowRunRequest struct {
	Input string `json:"input"`
}

func (s *Server) handleWorkflowRun(c echo.Context) error {
	var req workflowRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	run, events, err := s.app.StartWorkflow(c.Request().Context(), c.Param("id"), req.Input)
	if err != nil {
		if isNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sse := newSSEWriter(c)
	sse.send("run", map[string]string{"run_id": run.ID})

	for ev := range events {
		sse.sendEvent(ev)
	}

	final, err := s.app.WorkflowRun(context.WithoutCancel(c.Request().Context()), run.ID)
	if err == nil {
		sse.send("run_status", map[string]any{"run_id": final.ID, "status": final.Status})
	}
	sse.done()
	return nil
}

func (s *Server) handleGetRun(c echo.Context) error {
	run, err := s.app.WorkflowRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, run)
}

type testToolServerRequest struct {
	Transport string            `json:"transport"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       []string          `json:"env,omitempty"`
	URL       string            `json:"url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

func (s *Server) handleTestToolServer(c echo.Context) error {
	var req testToolServerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result := s.app.TestToolServer(c.Request().Context(), config.ToolServer{
		ID:        "test",
		Transport: config.TransportKind(req.Transport),
		Command:   req.Command,
		Args:      req.Args,
		Env:       req.Env,
		URL:       req.URL,
		Headers:   req.Headers,
	})
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleCancel(c echo.Context) error {
	cancelled := s.app.Cancel(c.Param("id"))
	return c.JSON(http.StatusAccepted, map[string]bool{"cancelled": cancelled})
}

func (s *Server) handleSessionMessages(c echo.Context) error {
	sess, err := s.app.Session(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sess.Messages)
}

func isNotFound(err error) bool {
	return err != nil && (errors.Is(err, workflow.ErrNotFound) || containsUnknown(err))
}

func containsUnknown(err error) bool {
	msg := err.Error()
	return len(msg) > 8 && msg[:8] == "unknown "
}
