package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/memohai/shopchat/internal/message"
)

// DefaultConnectTimeout bounds dialing plus waiting for the connected event.
const DefaultConnectTimeout = 10 * time.Second

// Option configures a Controller.
type Option func(*Controller)

// WithConnectTimeout overrides DefaultConnectTimeout. Zero disables the bound.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.connectTimeout = d
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

// Controller owns at most one event-channel connection at a time.
// Each Connect supersedes the previous socket; events read from a superseded
// socket are never dispatched. There is no automatic reconnect.
type Controller struct {
	dialer         Dialer
	logger         *slog.Logger
	recorder       Recorder
	connectTimeout time.Duration

	mu             sync.Mutex
	state          State
	socket         Socket
	readDone       chan struct{}
	gen            uint64
	conversationID string
	handler        Handler
	observer       StateObserver

	// dispatchMu is held while a handler runs so Teardown can wait out an in-flight dispatch.
	dispatchMu sync.Mutex
}

// NewController creates a disconnected controller.
func NewController(log *slog.Logger, dialer Dialer, opts ...Option) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		dialer:         dialer,
		logger:         log.With(slog.String("component", "channel")),
		recorder:       nopRecorder{},
		connectTimeout: DefaultConnectTimeout,
		state:          StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConversationID returns the conversation of the current or last connection.
func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// OnMessage registers the single inbound handler, replacing any previous one.
// Handlers run on the read goroutine and must not call Connect or Teardown.
func (c *Controller) OnMessage(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// OnStateChange registers the state observer, replacing any previous one.
func (c *Controller) OnStateChange(obs StateObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = obs
}

// Connect tears down any existing connection, dials an authenticated socket,
// waits for the connected event and joins conversationID.
func (c *Controller) Connect(ctx context.Context, token, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if c.dialer == nil {
		return fmt.Errorf("%w: dialer not configured", ErrChannelUnavailable)
	}
	if conversationID == "" {
		return fmt.Errorf("%w: conversation id is required", ErrChannelUnavailable)
	}

	c.mu.Lock()
	old, oldDone := c.detachLocked()
	c.gen++
	gen := c.gen
	c.conversationID = conversationID
	notify := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	notify()
	c.release(ctx, old, oldDone)

	if c.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.connectTimeout)
		defer cancel()
	}

	sock, err := c.dialer.Dial(ctx, token)
	if err != nil {
		return c.fail(gen, fmt.Errorf("%w: dial: %w", ErrChannelUnavailable, err))
	}
	if err := awaitConnected(ctx, sock); err != nil {
		_ = sock.Close()
		return c.fail(gen, err)
	}
	join, err := NewEvent(EventJoinConversation, JoinPayload{ConversationID: conversationID})
	if err == nil {
		err = sock.WriteEvent(ctx, join)
	}
	if err != nil {
		_ = sock.Close()
		return c.fail(gen, fmt.Errorf("%w: join: %w", ErrChannelUnavailable, err))
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = sock.Close()
		return fmt.Errorf("%w: connect superseded", ErrChannelUnavailable)
	}
	done := make(chan struct{})
	c.socket = sock
	c.readDone = done
	notify = c.setStateLocked(StateJoined)
	c.mu.Unlock()
	notify()

	c.recorder.ConnectAttempt(true)
	c.logger.Info("channel joined", slog.String("conversation_id", conversationID))
	go c.readLoop(gen, sock, done)
	return nil
}

// Send emits an outgoing message on the joined channel. Delivery is not
// acknowledged; the message shows up as a receive_message echo.
func (c *Controller) Send(ctx context.Context, out OutgoingMessage) error {
	c.mu.Lock()
	sock := c.socket
	joined := c.state == StateJoined && sock != nil
	if strings.TrimSpace(out.ConversationID) == "" {
		out.ConversationID = c.conversationID
	}
	c.mu.Unlock()

	if err := ValidateOutgoing(out); err != nil {
		return err
	}
	if !joined {
		return fmt.Errorf("%w: not joined", ErrChannelUnavailable)
	}
	ev, err := NewEvent(EventSendMessage, out)
	if err != nil {
		return err
	}
	if err := sock.WriteEvent(ctx, ev); err != nil {
		c.logger.Warn("send failed", slog.String("conversation_id", out.ConversationID), slog.Any("error", err))
		return fmt.Errorf("%w: send: %w", ErrChannelUnavailable, err)
	}
	return nil
}

// Teardown removes the handler, closes the socket and enters Disconnected.
// After it returns no further message is dispatched.
func (c *Controller) Teardown(ctx context.Context) error {
	c.mu.Lock()
	sock, done := c.detachLocked()
	c.gen++
	c.handler = nil
	notify := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	notify()

	c.dispatchMu.Lock()
	c.dispatchMu.Unlock() //nolint:staticcheck // barrier for in-flight dispatch
	return c.release(ctx, sock, done)
}

func (c *Controller) detachLocked() (Socket, chan struct{}) {
	sock, done := c.socket, c.readDone
	c.socket = nil
	c.readDone = nil
	return sock, done
}

func (c *Controller) release(ctx context.Context, sock Socket, done chan struct{}) error {
	if sock == nil {
		return nil
	}
	if err := sock.Close(); err != nil {
		c.logger.Debug("socket close", slog.Any("error", err))
	}
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) fail(gen uint64, err error) error {
	c.mu.Lock()
	notify := func() {}
	if c.gen == gen {
		notify = c.setStateLocked(StateDisconnected)
	}
	conversationID := c.conversationID
	c.mu.Unlock()
	notify()

	c.recorder.ConnectAttempt(false)
	c.logger.Warn("channel connect failed", slog.String("conversation_id", conversationID), slog.Any("error", err))
	return err
}

func (c *Controller) readLoop(gen uint64, sock Socket, done chan struct{}) {
	defer close(done)
	for {
		ev, err := sock.ReadEvent()
		if err != nil {
			c.lost(gen, err)
			return
		}
		switch ev.Event {
		case EventReceiveMessage:
			var msg message.Message
			if err := ev.Decode(&msg); err != nil {
				c.logger.Warn("drop malformed message event", slog.Any("error", err))
				continue
			}
			c.dispatch(gen, msg)
		case EventUnauthorized, EventError:
			var payload ErrorPayload
			_ = ev.Decode(&payload)
			c.logger.Warn("channel error event", slog.String("event", ev.Event), slog.String("message", payload.Message))
		default:
			c.logger.Debug("ignore event", slog.String("event", ev.Event))
		}
	}
}

func (c *Controller) dispatch(gen uint64, msg message.Message) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

func (c *Controller) lost(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.socket = nil
	c.readDone = nil
	notify := c.setStateLocked(StateDisconnected)
	conversationID := c.conversationID
	c.mu.Unlock()
	notify()
	c.logger.Warn("channel closed", slog.String("conversation_id", conversationID), slog.Any("error", err))
}

func (c *Controller) setStateLocked(to State) func() {
	from := c.state
	if from == to {
		return func() {}
	}
	c.state = to
	obs := c.observer
	return func() {
		if obs != nil {
			obs(from, to)
		}
	}
}

func awaitConnected(ctx context.Context, sock Socket) error {
	type result struct {
		ev  Event
		err error
	}
	for {
		ch := make(chan result, 1)
		go func() {
			ev, err := sock.ReadEvent()
			ch <- result{ev: ev, err: err}
		}()
		var r result
		select {
		case <-ctx.Done():
			_ = sock.Close()
			return fmt.Errorf("%w: await connected: %w", ErrChannelUnavailable, ctx.Err())
		case r = <-ch:
		}
		if r.err != nil {
			return fmt.Errorf("%w: await connected: %w", ErrChannelUnavailable, r.err)
		}
		switch r.ev.Event {
		case EventConnected:
			return nil
		case EventUnauthorized:
			var payload ErrorPayload
			_ = r.ev.Decode(&payload)
			return fmt.Errorf("%w: %w: %s", ErrChannelUnavailable, ErrUnauthorized, payload.Message)
		case EventError:
			var payload ErrorPayload
			_ = r.ev.Decode(&payload)
			return fmt.Errorf("%w: server error: %s", ErrChannelUnavailable, payload.Message)
		}
	}
}
