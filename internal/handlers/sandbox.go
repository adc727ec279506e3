package handlers

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/shopchat/internal/media"
	"github.com/memohai/shopchat/internal/sandbox"
)

// Registrar mounts routes on the echo instance.
type Registrar interface {
	Register(e *echo.Echo)
}

// SandboxDeps are the collaborators shared by the sandbox handlers.
type SandboxDeps struct {
	Backend   *sandbox.Backend
	Hub       *sandbox.Hub
	Media     *media.Store
	JWTSecret string
	TokenTTL  time.Duration
	MaxBytes  int64
	PublicURL string
}

// NewSandboxHandlers builds every handler of the sandbox surface.
func NewSandboxHandlers(log *slog.Logger, deps SandboxDeps) []Registrar {
	return []Registrar{
		NewPingHandler(log, deps.Backend),
		NewAuthHandler(log, deps.JWTSecret, deps.TokenTTL),
		NewConversationHandler(log, deps.Backend),
		NewOrderHandler(log, deps.Backend),
		NewUploadHandler(log, deps.Media, deps.MaxBytes, deps.PublicURL),
		NewSocketHandler(log, deps.Backend, deps.Hub, deps.JWTSecret),
	}
}
