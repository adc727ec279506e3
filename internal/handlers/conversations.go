package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/shopchat/internal/sandbox"
)

// ConversationHandler serves conversations and their message history.
type ConversationHandler struct {
	backend *sandbox.Backend
	logger  *slog.Logger
}

// NewConversationHandler creates a ConversationHandler.
func NewConversationHandler(log *slog.Logger, backend *sandbox.Backend) *ConversationHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ConversationHandler{
		backend: backend,
		logger:  log.With(slog.String("handler", "conversation")),
	}
}

func (h *ConversationHandler) Register(e *echo.Echo) {
	e.GET("/conversations", h.ListConversations)
	e.POST("/conversations/shop", h.CreateShopConversation)
	e.GET("/messages", h.ListMessages)
}

func (h *ConversationHandler) ListConversations(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.backend.ListConversations(userID))
}

func (h *ConversationHandler) CreateShopConversation(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	conv, err := h.backend.CreateShopConversation(userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, conv)
}

// ListMessages returns one newest-first page. before is exclusive.
func (h *ConversationHandler) ListMessages(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	conversationID := strings.TrimSpace(c.QueryParam("conversationId"))
	if conversationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversationId is required")
	}
	limit := 0
	if s := strings.TrimSpace(c.QueryParam("limit")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, sandbox.MaxPageLimit)
	}
	before, hasBefore, err := parseBeforeParam(c.QueryParam("before"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "before must be an RFC3339 timestamp or epoch milliseconds")
	}
	if !hasBefore {
		before = time.Time{}
	}
	messages, err := h.backend.ListMessages(userID, conversationID, limit, before)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, messages)
}

func parseBeforeParam(s string) (time.Time, bool, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return t.UTC(), true, nil
	}
	if epochMillis, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return time.UnixMilli(epochMillis).UTC(), true, nil
	}
	return time.Time{}, false, echo.ErrBadRequest
}
