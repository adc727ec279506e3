package conversation

import (
	"context"
	"fmt"
	"log/slog"
)

// Resolver ensures exactly one shop conversation exists for the current user.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(log *slog.Logger, store Store) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store:  store,
		logger: log.With(slog.String("component", "conversation")),
	}
}

// EnsureShopConversation returns the user's shop conversation, creating it
// when none exists. It performs no mutation when one is already present.
func (r *Resolver) EnsureShopConversation(ctx context.Context) (Conversation, error) {
	if r.store == nil {
		return Conversation{}, fmt.Errorf("%w: conversation store not configured", ErrConversationUnavailable)
	}
	items, err := r.store.ListConversations(ctx)
	if err != nil {
		return Conversation{}, fmt.Errorf("%w: list conversations: %w", ErrConversationUnavailable, err)
	}
	if conv, ok := findShop(items); ok {
		return conv, nil
	}

	r.logger.Info("shop conversation missing, creating")
	if _, err := r.store.CreateShopConversation(ctx); err != nil {
		r.logger.Warn("create shop conversation failed", slog.Any("error", err))
		return Conversation{}, fmt.Errorf("%w: create shop conversation: %w", ErrConversationUnavailable, err)
	}

	items, err = r.store.ListConversations(ctx)
	if err != nil {
		return Conversation{}, fmt.Errorf("%w: list conversations: %w", ErrConversationUnavailable, err)
	}
	conv, ok := findShop(items)
	if !ok {
		return Conversation{}, fmt.Errorf("%w: shop conversation not listed after creation", ErrConversationUnavailable)
	}
	r.logger.Info("shop conversation created", slog.String("conversation_id", conv.ID))
	return conv, nil
}

func findShop(items []Conversation) (Conversation, bool) {
	for _, item := range items {
		if item.Kind == KindShop && item.ID != "" {
			return item, true
		}
	}
	return Conversation{}, false
}
