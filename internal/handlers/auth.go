package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/shopchat/internal/auth"
)

// AuthHandler issues sandbox tokens. It has no password check and must not
// be exposed outside development.
type AuthHandler struct {
	secret string
	ttl    time.Duration
	logger *slog.Logger
}

type issueTokenRequest struct {
	UserID string `json:"userId"`
}

type tokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(log *slog.Logger, secret string, ttl time.Duration) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		secret: secret,
		ttl:    ttl,
		logger: log.With(slog.String("handler", "auth")),
	}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/auth/token", h.IssueToken)
	e.POST("/auth/refresh", h.Refresh)
}

// IssueToken signs a token for the requested user id.
func (h *AuthHandler) IssueToken(c echo.Context) error {
	var req issueTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId is required")
	}
	token, expiresAt, err := auth.GenerateToken(userID, h.secret, h.ttl)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info("sandbox token issued", slog.String("user_id", userID), slog.Time("expires_at", expiresAt))
	return c.JSON(http.StatusOK, tokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}

// Refresh re-issues the presented token with its original lifetime.
func (h *AuthHandler) Refresh(c echo.Context) error {
	token, expiresAt, err := auth.RefreshTokenFromContext(c, h.secret, h.ttl)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}
