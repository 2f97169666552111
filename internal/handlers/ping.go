package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clawpanel/clawpanel/internal/bridge"
	"github.com/clawpanel/clawpanel/internal/version"
)

// PingHandler serves /ping and HEAD /health for liveness.
type PingHandler struct {
	started time.Time
	bridge  *bridge.Bridge
	logger  *slog.Logger
}

// PingResponse is the body of GET /ping.
type PingResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	Observers bridge.Stats `json:"observers"`
}

// NewPingHandler creates a ping handler.
func NewPingHandler(log *slog.Logger, b *bridge.Bridge) *PingHandler {
	return &PingHandler{started: time.Now(), bridge: b, logger: log.With(slog.String("handler", "ping"))}
}

// Register mounts GET /ping and HEAD /health on the Echo instance.
func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
}

// Ping reports process liveness, build version and observer relay load.
func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, PingResponse{
		Status:    "ok",
		Version:   version.GetInfo(),
		Uptime:    time.Since(h.started).Truncate(time.Second).String(),
		Observers: h.bridge.Stats(),
	})
}

// PingHead returns 200 No Content for health checks.
func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
