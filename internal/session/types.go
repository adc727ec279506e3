// Package session coordinates one chat screen: it resolves the shop
// conversation, seeds and extends the timeline, owns the realtime channel
// and routes sends through the attachment pipeline.
package session

import (
	"context"

	"github.com/memohai/shopchat/internal/channel"
	"github.com/memohai/shopchat/internal/media"
	"github.com/memohai/shopchat/internal/message"
	"github.com/memohai/shopchat/internal/orderref"
)

// Status is the loading state of a session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusLoading    Status = "loading"
	StatusReady      Status = "ready"
	StatusLoadFailed Status = "load_failed"
)

// Channel is the realtime channel owned by a session. *channel.Controller
// implements it.
type Channel interface {
	Connect(ctx context.Context, token, conversationID string) error
	Send(ctx context.Context, out channel.OutgoingMessage) error
	Teardown(ctx context.Context) error
	OnMessage(h channel.Handler)
	OnStateChange(obs channel.StateObserver)
	State() channel.State
}

// TokenProvider supplies the bearer token used to connect the channel.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Snapshot is a consistent view of the session for rendering.
type Snapshot struct {
	Status           Status
	ConversationID   string
	ChannelAvailable bool
	HasMore          bool
	LoadingMore      bool
	Entries          []message.Entry
	Drafts           []media.Draft
	Suggestion       *orderref.Suggestion
}
