package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/shopchat/internal/sandbox"
)

// PingHandler reports sandbox liveness. The ping body carries the shop
// account id so a client can tell its own messages from the shop's.
type PingHandler struct {
	backend *sandbox.Backend
	logger  *slog.Logger
}

type pingResponse struct {
	Status     string `json:"status"`
	ShopUserID string `json:"shop_user_id,omitempty"`
}

func NewPingHandler(log *slog.Logger, backend *sandbox.Backend) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PingHandler{backend: backend, logger: log.With(slog.String("handler", "ping"))}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.Health)
}

func (h *PingHandler) Ping(c echo.Context) error {
	resp := pingResponse{Status: "ok"}
	if h.backend != nil {
		resp.ShopUserID = h.backend.ShopUserID()
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *PingHandler) Health(c echo.Context) error {
	if h.backend == nil {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}
