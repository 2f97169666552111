package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/clawpanel/clawpanel/internal/channel"
)

const qrSize = 256

// ChannelHandler exposes per-channel status, login and send.
type ChannelHandler struct {
	manager *channel.Manager
	logger  *slog.Logger
}

// ChannelInfo describes a registered channel.
type ChannelInfo struct {
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	EventTopic  string `json:"event_topic"`
	StatusTopic string `json:"status_topic"`
	LoginURL    bool   `json:"login_url"`
}

// LoginURLResponse is the body of GET /api/channels/:channel/login/url.
type LoginURLResponse struct {
	URL string `json:"url"`
}

// NewChannelHandler creates a channel handler.
func NewChannelHandler(log *slog.Logger, manager *channel.Manager) *ChannelHandler {
	return &ChannelHandler{manager: manager, logger: log.With(slog.String("handler", "channel"))}
}

func (h *ChannelHandler) Register(e *echo.Echo) {
	group := e.Group("/api/channels")
	group.GET("", h.ListChannels)
	group.GET("/:channel/status", h.GetStatus)
	group.POST("/:channel/login", h.ResolveLogin)
	group.GET("/:channel/login/url", h.GetLoginURL)
	group.GET("/:channel/login/qr", h.GetLoginQR)
	group.POST("/:channel/send", h.Send)
}

// ListChannels godoc
// @Summary List channels
// @Tags channel
// @Success 200 {array} ChannelInfo
// @Router /api/channels [get]
func (h *ChannelHandler) ListChannels(c echo.Context) error {
	sources := h.manager.Sources()
	items := make([]ChannelInfo, 0, len(sources))
	for _, src := range sources {
		desc := src.Descriptor()
		_, hasURL := src.Backend().(channel.LoginURLProvider)
		items = append(items, ChannelInfo{
			Type:        desc.Type.String(),
			DisplayName: desc.DisplayName,
			EventTopic:  desc.EventTopic,
			StatusTopic: desc.StatusTopic,
			LoginURL:    hasURL,
		})
	}
	return c.JSON(http.StatusOK, items)
}

// GetStatus godoc
// @Summary Channel status
// @Tags channel
// @Param channel path string true "Channel type"
// @Success 200 {object} channel.Status
// @Failure 404 {object} ErrorResponse
// @Router /api/channels/{channel}/status [get]
func (h *ChannelHandler) GetStatus(c echo.Context) error {
	src, err := SourceFromParam(c, h.manager)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, src.Status())
}

// ResolveLogin godoc
// @Summary Resolve login now
// @Description Queries the backend for the logged-in account and applies the result
// @Tags channel
// @Param channel path string true "Channel type"
// @Success 200 {object} channel.LoginResult
// @Failure 404 {object} ErrorResponse
// @Router /api/channels/{channel}/login [post]
func (h *ChannelHandler) ResolveLogin(c echo.Context) error {
	src, err := SourceFromParam(c, h.manager)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, src.ResolveLogin(c.Request().Context()))
}

// GetLoginURL godoc
// @Summary Pairing page URL
// @Tags channel
// @Param channel path string true "Channel type"
// @Success 200 {object} LoginURLResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/channels/{channel}/login/url [get]
func (h *ChannelHandler) GetLoginURL(c echo.Context) error {
	loginURL, err := h.loginURL(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LoginURLResponse{URL: loginURL})
}

// GetLoginQR godoc
// @Summary Pairing page URL as a QR code
// @Tags channel
// @Produce png
// @Param channel path string true "Channel type"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /api/channels/{channel}/login/qr [get]
func (h *ChannelHandler) GetLoginQR(c echo.Context) error {
	loginURL, err := h.loginURL(c)
	if err != nil {
		return err
	}
	png, err := qrcode.Encode(loginURL, qrcode.Medium, qrSize)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, "image/png", png)
}

// Send godoc
// @Summary Send a message
// @Description Failures reported by the backend are returned with ok=false and status 200
// @Tags channel
// @Param channel path string true "Channel type"
// @Param payload body channel.SendRequest true "Send request"
// @Success 200 {object} channel.SendResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/channels/{channel}/send [post]
func (h *ChannelHandler) Send(c echo.Context) error {
	src, err := SourceFromParam(c, h.manager)
	if err != nil {
		return err
	}
	var req channel.SendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.To = strings.TrimSpace(req.To)
	if req.To == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "to is required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}
	switch req.Kind {
	case "", channel.SendText, channel.SendFile:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported kind: "+string(req.Kind))
	}
	res := src.Send(c.Request().Context(), req)
	if !res.OK {
		h.logger.Info("send rejected by backend",
			slog.String("channel", src.Type().String()), slog.String("error", res.Error))
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ChannelHandler) loginURL(c echo.Context) (string, error) {
	src, err := SourceFromParam(c, h.manager)
	if err != nil {
		return "", err
	}
	provider, ok := src.Backend().(channel.LoginURLProvider)
	if !ok {
		return "", echo.NewHTTPError(http.StatusNotFound, src.Type().String()+" has no pairing page")
	}
	return provider.LoginURL(), nil
}
