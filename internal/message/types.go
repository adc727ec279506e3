// Package message holds the chat message model and the ordered timeline that
// merges paginated history with live deliveries.
package message

import (
	"context"
	"strings"
	"time"
)

// Message is a single chat message in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content,omitempty"`
	Images         []string  `json:"images,omitempty"`
	OrderID        string    `json:"orderId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	ReadBy         []string  `json:"readBy,omitempty"`
}

// HasContent reports whether the message carries any text.
func (m Message) HasContent() bool {
	return strings.TrimSpace(m.Content) != ""
}

// SentBy reports whether userID authored the message.
func (m Message) SentBy(userID string) bool {
	return userID != "" && m.SenderID == userID
}

// PageQuery selects one page of history. A zero Before returns the most
// recent page; otherwise only messages strictly older than Before.
type PageQuery struct {
	ConversationID string
	Limit          int
	Before         time.Time
}

// HistoryStore is the REST collaborator serving newest-first history pages.
type HistoryStore interface {
	ListMessages(ctx context.Context, query PageQuery) ([]Message, error)
}

// Recorder receives timeline counters. Implementations must be safe for concurrent use.
type Recorder interface {
	LiveReceived()
	DuplicateDropped()
	PageLoaded(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) LiveReceived()     {}
func (nopRecorder) DuplicateDropped() {}
func (nopRecorder) PageLoaded(bool)   {}
