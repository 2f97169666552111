package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clawpanel/clawpanel/internal/channel"
)

// SourceFromParam resolves the :channel path parameter to a registered source.
func SourceFromParam(c echo.Context, manager *channel.Manager) (*channel.Source, error) {
	if manager == nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "channel manager not configured")
	}
	name := strings.TrimSpace(c.Param("channel"))
	if name == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "channel is required")
	}
	src, ok := manager.Get(channel.NormalizeType(name))
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "unknown channel: "+name)
	}
	return src, nil
}
