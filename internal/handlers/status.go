package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clawpanel/clawpanel/internal/channel"
)

// StatusHandler serves the combined status of every channel.
type StatusHandler struct {
	manager *channel.Manager
	logger  *slog.Logger
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(log *slog.Logger, manager *channel.Manager) *StatusHandler {
	return &StatusHandler{manager: manager, logger: log.With(slog.String("handler", "status"))}
}

// Register mounts GET /api/status.
func (h *StatusHandler) Register(e *echo.Echo) {
	e.GET("/api/status", h.Status)
}

// Status godoc
// @Summary Channel status
// @Description Connected flag, identity and running state of every channel, keyed by channel name
// @Tags status
// @Success 200 {object} map[string]any
// @Router /api/status [get]
func (h *StatusHandler) Status(c echo.Context) error {
	body := map[string]any{"ok": true}
	for _, st := range h.manager.Snapshot() {
		body[st.Channel.String()] = st
	}
	return c.JSON(http.StatusOK, body)
}
