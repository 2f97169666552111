package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/clawpanel/clawpanel/internal/bridge"
)

// ObserverHandler upgrades GET /ws to an observer session.
type ObserverHandler struct {
	bridge   *bridge.Bridge
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewObserverHandler creates the WebSocket handler. allowedOrigins lists
// extra origins besides same-host and loopback.
func NewObserverHandler(log *slog.Logger, b *bridge.Bridge, allowedOrigins []string) *ObserverHandler {
	h := &ObserverHandler{bridge: b, logger: log.With(slog.String("handler", "observer"))}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, allowedOrigins)
		},
	}
	return h
}

func (h *ObserverHandler) Register(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

// Serve godoc
// @Summary Observer stream
// @Description Replays buffered events, then streams events and status frames
// @Tags observer
// @Param token query string true "JWT"
// @Router /ws [get]
func (h *ObserverHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return nil
	}
	if err := h.bridge.Serve(c.Request().Context(), conn); err != nil {
		h.logger.Debug("observer session ended", slog.Any("error", err))
	}
	return nil
}

func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimRight(a, "/"), origin) {
			return true
		}
	}
	return false
}
