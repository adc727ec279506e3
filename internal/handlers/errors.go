package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/shopchat/internal/auth"
	"github.com/memohai/shopchat/internal/channel"
	"github.com/memohai/shopchat/internal/media"
	"github.com/memohai/shopchat/internal/sandbox"
)

func httpError(err error) error {
	switch {
	case errors.Is(err, sandbox.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, sandbox.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, channel.ErrInvalidMessage), errors.Is(err, media.ErrNotAnImage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, media.ErrAssetTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func requireUserID(c echo.Context) (string, error) {
	return auth.UserIDFromContext(c)
}
