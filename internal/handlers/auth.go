// Package handlers provides HTTP API handlers for the panel server.
package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clawpanel/clawpanel/internal/auth"
)

const adminSubject = "admin"

// AuthHandler serves /auth/login and issues JWTs in exchange for the admin token.
type AuthHandler struct {
	adminToken string
	jwtSecret  string
	expiresIn  time.Duration
	logger     *slog.Logger
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Token string `json:"token" form:"token"`
}

// LoginResponse is the success body.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(log *slog.Logger, adminToken, jwtSecret string, expiresIn time.Duration) *AuthHandler {
	return &AuthHandler{
		adminToken: adminToken,
		jwtSecret:  jwtSecret,
		expiresIn:  expiresIn,
		logger:     log.With(slog.String("handler", "auth")),
	}
}

// Register mounts POST /auth/login on the Echo instance.
func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/auth/login", h.Login)
}

// Login godoc
// @Summary Login
// @Description Exchange the admin token for a JWT
// @Tags auth
// @Param payload body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/login [post].
func (h *AuthHandler) Login(c echo.Context) error {
	if strings.TrimSpace(h.adminToken) == "" {
		return echo.NewHTTPError(http.StatusInternalServerError, "admin token not configured")
	}
	if h.expiresIn <= 0 {
		return echo.NewHTTPError(http.StatusInternalServerError, "jwt expiry not configured")
	}

	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	if subtle.ConstantTimeCompare([]byte(req.Token), []byte(h.adminToken)) != 1 {
		h.logger.Warn("login rejected", slog.String("remote_ip", c.RealIP()))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	token, expiresAt, err := auth.GenerateToken(adminSubject, h.jwtSecret, h.expiresIn)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	})
}
