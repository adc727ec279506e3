// Package sandbox is an in-memory shop backend serving the chat REST and
// socket surface for development and integration tests.
package sandbox

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/memohai/shopchat/internal/channel"
	"github.com/memohai/shopchat/internal/conversation"
	"github.com/memohai/shopchat/internal/message"
)

const (
	// DefaultShopUserID is the participant representing the shop.
	DefaultShopUserID = "shop"
	// MaxPageLimit bounds history page requests.
	MaxPageLimit = 100
	defaultLimit = 20
)

// Order is a stored order referenced by chat messages.
type Order struct {
	ID               string
	OwnerID          string
	SKU              string
	TotalPrice       decimal.Decimal
	ReceiverFullname string
}

// Option configures a Backend.
type Option func(*Backend)

// WithShopUserID overrides DefaultShopUserID.
func WithShopUserID(id string) Option {
	return func(b *Backend) {
		if id = strings.TrimSpace(id); id != "" {
			b.shopUserID = id
		}
	}
}

// WithClock overrides the clock used to stamp conversations and messages.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// Backend holds conversations, messages and orders in memory.
type Backend struct {
	shopUserID string
	now        func() time.Time
	logger     *slog.Logger

	mu            sync.RWMutex
	conversations map[string]*conversation.Conversation
	messages      map[string][]message.Message
	orders        map[string]Order
}

// New creates an empty backend.
func New(log *slog.Logger, opts ...Option) *Backend {
	if log == nil {
		log = slog.Default()
	}
	b := &Backend{
		shopUserID:    DefaultShopUserID,
		now:           time.Now,
		logger:        log.With(slog.String("service", "sandbox")),
		conversations: map[string]*conversation.Conversation{},
		messages:      map[string][]message.Message{},
		orders:        map[string]Order{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ShopUserID returns the shop participant id.
func (b *Backend) ShopUserID() string {
	return b.shopUserID
}

// ListConversations returns the conversations userID takes part in, oldest first.
func (b *Backend) ListConversations(userID string) []conversation.Conversation {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]conversation.Conversation, 0)
	for _, conv := range b.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, cloneConversation(conv))
		}
	}
	slices.SortFunc(out, func(a, c conversation.Conversation) int {
		if n := a.CreatedAt.Compare(c.CreatedAt); n != 0 {
			return n
		}
		return strings.Compare(a.ID, c.ID)
	})
	return out
}

// CreateShopConversation returns the shop conversation of userID, creating
// it on first call.
func (b *Backend) CreateShopConversation(userID string) (conversation.Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return conversation.Conversation{}, fmt.Errorf("user id is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, conv := range b.conversations {
		if conv.Kind == conversation.KindShop && conv.HasParticipant(userID) {
			return cloneConversation(conv), nil
		}
	}
	now := b.now().UTC()
	conv := &conversation.Conversation{
		ID:             uuid.NewString(),
		Kind:           conversation.KindShop,
		ParticipantIDs: []string{userID, b.shopUserID},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	b.conversations[conv.ID] = conv
	b.logger.Info("shop conversation created", slog.String("conversation_id", conv.ID), slog.String("user_id", userID))
	return cloneConversation(conv), nil
}

// Authorize checks that userID takes part in conversationID.
func (b *Backend) Authorize(conversationID, userID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.authorizeLocked(conversationID, userID)
}

func (b *Backend) authorizeLocked(conversationID, userID string) error {
	conv, ok := b.conversations[conversationID]
	if !ok {
		return fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}
	if !conv.HasParticipant(userID) {
		return fmt.Errorf("%w: conversation %s", ErrForbidden, conversationID)
	}
	return nil
}

// ListMessages returns up to limit messages of conversationID newest-first,
// restricted to those strictly older than before when before is set.
func (b *Backend) ListMessages(userID, conversationID string, limit int, before time.Time) ([]message.Message, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, MaxPageLimit)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.authorizeLocked(conversationID, userID); err != nil {
		return nil, err
	}
	held := b.messages[conversationID]
	out := make([]message.Message, 0, min(limit, len(held)))
	for i := len(held) - 1; i >= 0 && len(out) < limit; i-- {
		if !before.IsZero() && !held[i].CreatedAt.Before(before) {
			continue
		}
		out = append(out, cloneMessage(held[i]))
	}
	return out, nil
}

// AppendMessage stores a message sent by senderID. Timestamps are strictly
// increasing within a conversation.
func (b *Backend) AppendMessage(senderID string, out channel.OutgoingMessage) (message.Message, error) {
	if err := channel.ValidateOutgoing(out); err != nil {
		return message.Message{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.authorizeLocked(out.ConversationID, senderID); err != nil {
		return message.Message{}, err
	}
	held := b.messages[out.ConversationID]
	createdAt := b.now().UTC().Truncate(time.Millisecond)
	if n := len(held); n > 0 && !createdAt.After(held[n-1].CreatedAt) {
		createdAt = held[n-1].CreatedAt.Add(time.Millisecond)
	}
	msg := message.Message{
		ID:             uuid.NewString(),
		ConversationID: out.ConversationID,
		SenderID:       senderID,
		Content:        strings.TrimSpace(out.Content),
		Images:         slices.Clone(out.Images),
		OrderID:        strings.TrimSpace(out.OrderID),
		CreatedAt:      createdAt,
		ReadBy:         []string{senderID},
	}
	b.messages[out.ConversationID] = append(held, msg)
	b.conversations[out.ConversationID].UpdatedAt = createdAt
	return cloneMessage(msg), nil
}

// PutOrder stores or replaces an order.
func (b *Backend) PutOrder(order Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[order.ID] = order
}

// Order returns the order visible to userID. Orders of other users are
// reported as not found.
func (b *Backend) Order(userID, orderID string) (Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	order, ok := b.orders[orderID]
	if !ok || (order.OwnerID != "" && order.OwnerID != userID && userID != b.shopUserID) {
		return Order{}, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return order, nil
}

func cloneConversation(c *conversation.Conversation) conversation.Conversation {
	out := *c
	out.ParticipantIDs = slices.Clone(c.ParticipantIDs)
	return out
}

func cloneMessage(m message.Message) message.Message {
	m.Images = slices.Clone(m.Images)
	m.ReadBy = slices.Clone(m.ReadBy)
	return m
}
