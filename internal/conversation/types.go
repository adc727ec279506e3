// Package conversation defines the conversation model and resolves the
// customer's single shop conversation.
package conversation

import (
	"context"
	"slices"
	"time"
)

// Kind classifies a conversation.
type Kind string

// Conversation kind constants. Only shop conversations are used by chat sessions.
const (
	KindShop  Kind = "shop"
	KindOther Kind = "other"
)

// Conversation is an addressable channel grouping messages between a user and the shop.
type Conversation struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	ParticipantIDs []string  `json:"participantIds"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// HasParticipant reports whether userID takes part in the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	return slices.Contains(c.ParticipantIDs, userID)
}

// Store is the REST collaborator used for conversation discovery and creation.
type Store interface {
	ListConversations(ctx context.Context) ([]Conversation, error)
	CreateShopConversation(ctx context.Context) (Conversation, error)
}
