// Package channel manages the bidirectional event channel of a chat session:
// connecting and joining a conversation, dispatching live messages to a single
// handler and emitting outgoing messages.
package channel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/memohai/shopchat/internal/message"
)

// State is the connection state of a Controller.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateJoined       State = "joined"
)

// String returns the state as a plain string.
func (s State) String() string {
	return string(s)
}

// Event names exchanged over the socket.
const (
	EventConnected        = "connected"
	EventUnauthorized     = "unauthorized"
	EventJoinConversation = "join_conversation"
	EventSendMessage      = "send_message"
	EventReceiveMessage   = "receive_message"
	EventError            = "error"
)

// Event is the JSON envelope of every socket frame.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals payload into an envelope named name.
func NewEvent(name string, payload any) (Event, error) {
	ev := Event{Event: name}
	if payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	ev.Data = raw
	return ev, nil
}

// Decode unmarshals the event data into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}

// JoinPayload is the data of a join_conversation event.
type JoinPayload struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

// ErrorPayload is the data of unauthorized and error events.
type ErrorPayload struct {
	Message string `json:"message"`
}

// OutgoingMessage is the data of a send_message event. At least one of
// Content, Images or OrderID must be set.
type OutgoingMessage struct {
	ConversationID string   `json:"conversationId" validate:"required"`
	Content        string   `json:"content,omitempty"`
	Images         []string `json:"images,omitempty" validate:"omitempty,max=3,dive,required"`
	OrderID        string   `json:"orderId,omitempty" validate:"omitempty,max=64"`
}

// Handler receives live messages from the channel.
type Handler func(msg message.Message)

// StateObserver is notified after every state transition.
type StateObserver func(from, to State)

// Socket is one authenticated event-channel connection. ReadEvent blocks until
// a frame arrives or the socket is closed. WriteEvent must be safe to call
// concurrently with ReadEvent.
type Socket interface {
	ReadEvent() (Event, error)
	WriteEvent(ctx context.Context, ev Event) error
	Close() error
}

// Dialer opens a Socket authenticated with token.
type Dialer interface {
	Dial(ctx context.Context, token string) (Socket, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, token string) (Socket, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, token string) (Socket, error) {
	return f(ctx, token)
}

// Recorder observes connection attempts.
type Recorder interface {
	ConnectAttempt(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) ConnectAttempt(bool) {}
