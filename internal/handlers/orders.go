package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/memohai/shopchat/internal/sandbox"
)

// OrderHandler serves read-only order summaries.
type OrderHandler struct {
	backend *sandbox.Backend
	logger  *slog.Logger
}

type shippingAddress struct {
	ReceiverFullname string `json:"receiverFullname"`
}

type orderSummaryResponse struct {
	SKU             string          `json:"sku"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	ShippingAddress shippingAddress `json:"shippingAddress"`
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(log *slog.Logger, backend *sandbox.Backend) *OrderHandler {
	if log == nil {
		log = slog.Default()
	}
	return &OrderHandler{
		backend: backend,
		logger:  log.With(slog.String("handler", "order")),
	}
}

func (h *OrderHandler) Register(e *echo.Echo) {
	e.GET("/orders/:id/summary", h.Summary)
}

func (h *OrderHandler) Summary(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	orderID := strings.TrimSpace(c.Param("id"))
	if orderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "order id is required")
	}
	order, err := h.backend.Order(userID, orderID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, orderSummaryResponse{
		SKU:             order.SKU,
		TotalPrice:      order.TotalPrice,
		ShippingAddress: shippingAddress{ReceiverFullname: order.ReceiverFullname},
	})
}
