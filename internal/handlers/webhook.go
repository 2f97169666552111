package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clawpanel/clawpanel/internal/channel"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives backend callbacks. It always answers 200 for
// accepted credentials so backends do not retry malformed payloads.
type WebhookHandler struct {
	manager *channel.Manager
	logger  *slog.Logger
}

// WebhookResponse is the body returned to the backend.
type WebhookResponse struct {
	OK       bool   `json:"ok"`
	Accepted bool   `json:"accepted"`
	Kind     string `json:"kind,omitempty"`
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(log *slog.Logger, manager *channel.Manager) *WebhookHandler {
	return &WebhookHandler{manager: manager, logger: log.With(slog.String("handler", "webhook"))}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook/:channel", h.Receive)
}

// Receive godoc
// @Summary Backend callback
// @Description Accepts JSON or form bodies; the credential is the token query parameter or a bearer header
// @Tags webhook
// @Param channel path string true "Channel type"
// @Success 200 {object} WebhookResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /webhook/{channel} [post]
func (h *WebhookHandler) Receive(c echo.Context) error {
	src, err := SourceFromParam(c, h.manager)
	if err != nil {
		return err
	}
	if verifier, ok := src.Backend().(channel.CallbackAuthenticator); ok {
		if !verifier.VerifyCallback(callbackToken(c)) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid callback credential")
		}
	}

	payload, err := readPayload(c)
	if err != nil || !payload.Valid() {
		h.logger.Debug("malformed callback discarded",
			slog.String("channel", src.Type().String()), slog.Any("error", err))
		return c.JSON(http.StatusOK, WebhookResponse{OK: true})
	}
	ev, accepted := src.HandleCallback(payload)
	resp := WebhookResponse{OK: true, Accepted: accepted}
	if accepted {
		resp.Kind = string(ev.Kind())
	}
	return c.JSON(http.StatusOK, resp)
}

func callbackToken(c echo.Context) string {
	if token := c.QueryParam("token"); token != "" {
		return token
	}
	if token := c.QueryParam("access_token"); token != "" {
		return token
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

func readPayload(c echo.Context) (channel.CallbackPayload, error) {
	req := c.Request()
	ctype := req.Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ctype, echo.MIMEApplicationForm) || strings.HasPrefix(ctype, echo.MIMEMultipartForm) {
		values, err := c.FormParams()
		if err != nil {
			return channel.CallbackPayload{}, err
		}
		return channel.PayloadFromForm(values), nil
	}
	raw, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
	if err != nil {
		return channel.CallbackPayload{}, err
	}
	return channel.PayloadFromJSON(raw), nil
}
