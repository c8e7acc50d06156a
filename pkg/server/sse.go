package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eamonnk/agentd/pkg/runtime"
)

// sseWriter streams engine events to one client as server-sent events.
type sseWriter struct {
	response *echo.Response
}

func newSSEWriter(c echo.Context) *sseWriter {
	response := c.Response()
	response.Header().Set(echo.HeaderContentType, "text/event-stream")
	response.Header().Set("Cache-Control", "no-cache")
	response.Header().Set("Connection", "keep-alive")
	response.WriteHeader(http.StatusOK)
	return &sseWriter{response: response}
}

// sendEvent writes one engine event under its wire name. Workflow step
// events keep the inner event's name and gain a step field.
func (w *sseWriter) sendEvent(ev runtime.Event) {
	if step, ok := ev.(runtime.StepEvent); ok {
		w.send(step.Inner.Type(), stepPayload{Step: step.Step, Data: step.Inner})
		return
	}
	w.send(ev.Type(), ev)
}

type stepPayload struct {
	Step int           `json:"step"`
	Data runtime.Event `json:"data"`
}

func (w *sseWriter) send(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal event", "event", name, "error", err)
		return
	}

	if _, err := w.response.Write([]byte("event: " + name + "\ndata: " + string(data) + "\n\n")); err != nil {
		slog.Debug("client went away", "error", err)
		return
	}
	w.response.Flush()
}

func (w *sseWriter) done() {
	w.send("done", map[string]any{})
}
