package sandbox

import (
	"context"
	"log/slog"
	"sync"

	"github.com/memohai/shopchat/internal/channel"
)

// Client is one connected socket and the user it authenticated as.
type Client struct {
	UserID string
	socket channel.Socket
}

// NewClient wraps an authenticated socket.
func NewClient(userID string, socket channel.Socket) *Client {
	return &Client{UserID: userID, socket: socket}
}

// Send writes one event to the client.
func (c *Client) Send(ctx context.Context, ev channel.Event) error {
	return c.socket.WriteEvent(ctx, ev)
}

// Hub tracks which clients joined which conversation rooms.
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	joins map[*Client]map[string]struct{}
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		logger: log.With(slog.String("component", "hub")),
		rooms:  map[string]map[*Client]struct{}{},
		joins:  map[*Client]map[string]struct{}{},
	}
}

// Join adds c to the room of conversationID. Joining twice is a no-op.
func (h *Hub) Join(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[conversationID]
	if !ok {
		room = map[*Client]struct{}{}
		h.rooms[conversationID] = room
	}
	room[c] = struct{}{}
	joined, ok := h.joins[c]
	if !ok {
		joined = map[string]struct{}{}
		h.joins[c] = joined
	}
	joined[conversationID] = struct{}{}
}

// Joined reports whether c is in the room of conversationID.
func (h *Hub) Joined(c *Client, conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.joins[c][conversationID]
	return ok
}

// Leave removes c from every room.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conversationID := range h.joins[c] {
		room := h.rooms[conversationID]
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	delete(h.joins, c)
}

// RoomSize returns the number of clients joined to conversationID.
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// Broadcast sends ev to every client in the room, sender included. Write
// failures are logged; the failing client is left for its reader to remove.
func (h *Hub) Broadcast(ctx context.Context, conversationID string, ev channel.Event) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[conversationID]))
	for c := range h.rooms[conversationID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.Send(ctx, ev); err != nil {
			h.logger.Warn("broadcast write failed",
				slog.String("conversation_id", conversationID),
				slog.String("user_id", c.UserID),
				slog.Any("error", err),
			)
			continue
		}
		delivered++
	}
	return delivered
}
