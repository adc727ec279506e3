package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/memohai/shopchat/internal/auth"
	"github.com/memohai/shopchat/internal/channel"
	"github.com/memohai/shopchat/internal/channel/adapters/websocket"
	"github.com/memohai/shopchat/internal/sandbox"
)

// SocketHandler serves the realtime event channel. Authentication happens
// after the upgrade so a rejected token is reported as an unauthorized event.
type SocketHandler struct {
	backend  *sandbox.Backend
	hub      *sandbox.Hub
	secret   string
	upgrader gws.Upgrader
	logger   *slog.Logger
}

type connectedPayload struct {
	UserID string `json:"userId"`
}

// NewSocketHandler creates a SocketHandler.
func NewSocketHandler(log *slog.Logger, backend *sandbox.Backend, hub *sandbox.Hub, secret string) *SocketHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SocketHandler{
		backend: backend,
		hub:     hub,
		secret:  secret,
		upgrader: gws.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log.With(slog.String("handler", "socket")),
	}
}

func (h *SocketHandler) Register(e *echo.Echo) {
	e.GET("/socket", h.Serve)
}

// Serve upgrades the request and runs the client's read loop until it disconnects.
func (h *SocketHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Debug("socket upgrade failed", slog.Any("error", err))
		return nil
	}
	sock := websocket.NewSocket(conn)
	defer sock.Close()
	ctx := c.Request().Context()

	userID, err := auth.VerifyToken(tokenFromRequest(c.Request()), h.secret)
	if err != nil {
		h.logger.Info("socket rejected", slog.String("remote", sock.RemoteAddr()), slog.Any("error", err))
		h.emit(ctx, sock, channel.EventUnauthorized, channel.ErrorPayload{Message: "invalid token"})
		return nil
	}
	client := sandbox.NewClient(userID, sock)
	defer h.hub.Leave(client)
	h.emit(ctx, sock, channel.EventConnected, connectedPayload{UserID: userID})
	h.logger.Debug("socket connected", slog.String("user_id", userID))

	for {
		ev, err := sock.ReadEvent()
		if err != nil {
			if !gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway) {
				h.logger.Debug("socket read ended", slog.String("user_id", userID), slog.Any("error", err))
			}
			return nil
		}
		if err := h.handle(ctx, client, ev); err != nil {
			h.emit(ctx, sock, channel.EventError, channel.ErrorPayload{Message: err.Error()})
		}
	}
}

func (h *SocketHandler) handle(ctx context.Context, client *sandbox.Client, ev channel.Event) error {
	switch ev.Event {
	case channel.EventJoinConversation:
		var join channel.JoinPayload
		if err := ev.Decode(&join); err != nil {
			return err
		}
		if err := channel.ValidateJoin(join); err != nil {
			return err
		}
		if err := h.backend.Authorize(join.ConversationID, client.UserID); err != nil {
			return err
		}
		h.hub.Join(client, join.ConversationID)
		return nil
	case channel.EventSendMessage:
		var out channel.OutgoingMessage
		if err := ev.Decode(&out); err != nil {
			return err
		}
		if !h.hub.Joined(client, out.ConversationID) {
			return errors.New("join the conversation before sending")
		}
		msg, err := h.backend.AppendMessage(client.UserID, out)
		if err != nil {
			return err
		}
		delivery, err := channel.NewEvent(channel.EventReceiveMessage, msg)
		if err != nil {
			return err
		}
		h.hub.Broadcast(ctx, out.ConversationID, delivery)
		return nil
	default:
		return errors.New("unknown event " + ev.Event)
	}
}

func (h *SocketHandler) emit(ctx context.Context, sock channel.Socket, name string, payload any) {
	ev, err := channel.NewEvent(name, payload)
	if err != nil {
		return
	}
	if err := sock.WriteEvent(ctx, ev); err != nil {
		h.logger.Debug("socket write failed", slog.String("event", name), slog.Any("error", err))
	}
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
