package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/memohai/shopchat/internal/channel"
	"github.com/memohai/shopchat/internal/conversation"
	"github.com/memohai/shopchat/internal/media"
	"github.com/memohai/shopchat/internal/message"
	"github.com/memohai/shopchat/internal/orderref"
)

// Deps are the collaborators of a Coordinator. Clipboard is optional.
type Deps struct {
	Conversations *conversation.Resolver
	History       message.HistoryStore
	Channel       Channel
	Tokens        TokenProvider
	Attachments   *media.Pipeline
	Orders        *orderref.Resolver
	Clipboard     orderref.Clipboard
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPageLimit sets the history page size.
func WithPageLimit(limit int) Option {
	return func(c *Coordinator) {
		if limit > 0 {
			c.pageLimit = limit
		}
	}
}

// WithLocation sets the timezone for separator labels.
func WithLocation(loc *time.Location) Option {
	return func(c *Coordinator) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithClipboardInterval sets the clipboard poll period.
func WithClipboardInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.clipboardInterval = d
		}
	}
}

// WithTimelineRecorder attaches a recorder to every timeline the session creates.
func WithTimelineRecorder(r message.Recorder) Option {
	return func(c *Coordinator) {
		c.timelineRecorder = r
	}
}

// WithClock overrides the wall clock used by Snapshot projections.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator drives a single chat session. Results of work started under
// an earlier activation are discarded once the session is re-activated or
// deactivated.
type Coordinator struct {
	deps              Deps
	pageLimit         int
	loc               *time.Location
	clipboardInterval time.Duration
	timelineRecorder  message.Recorder
	now               func() time.Time
	logger            *slog.Logger

	// connMu serializes channel connects with teardown so a connect that
	// lost its activation never leaves the channel joined.
	connMu sync.Mutex

	mu             sync.Mutex
	gen            uint64
	status         Status
	conversationID string
	timeline       *message.Timeline
	loadingMore    bool
	suggestion     *orderref.Suggestion
	watcher        *orderref.ClipboardWatcher
	onChange       func()
}

// New creates an idle coordinator.
func New(log *slog.Logger, deps Deps, opts ...Option) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	c := &Coordinator{
		deps:              deps,
		pageLimit:         message.DefaultPageLimit,
		loc:               time.Local,
		clipboardInterval: orderref.DefaultPollInterval,
		now:               time.Now,
		status:            StatusIdle,
		logger:            log.With(slog.String("service", "session")),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.deps.Channel != nil {
		c.deps.Channel.OnStateChange(func(from, to channel.State) {
			c.logger.Debug("channel state", slog.String("from", from.String()), slog.String("to", to.String()))
			c.changed()
		})
	}
	return c
}

// OnChange registers the observer called after any state change, replacing
// any previous one. It runs without session locks held.
func (c *Coordinator) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Activate opens the chat screen. A conversation failure leaves the session
// in StatusLoadFailed without opening the channel; a channel failure only
// marks the channel unavailable.
func (c *Coordinator) Activate(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	oldWatcher := c.watcher
	c.watcher = nil
	c.status = StatusLoading
	c.conversationID = ""
	c.timeline = nil
	c.loadingMore = false
	c.suggestion = nil
	c.mu.Unlock()
	c.changed()
	if oldWatcher != nil {
		_ = oldWatcher.Stop(ctx)
	}

	if c.deps.Orders != nil {
		c.deps.Orders.Reset()
	}

	if c.deps.Conversations == nil {
		return c.loadFailed(gen, fmt.Errorf("%w: resolver not configured", conversation.ErrConversationUnavailable))
	}
	conv, err := c.deps.Conversations.EnsureShopConversation(ctx)
	if err != nil {
		return c.loadFailed(gen, err)
	}

	tl := message.NewTimeline(c.logger, c.deps.History, conv.ID,
		message.WithPageLimit(c.pageLimit),
		message.WithLocation(c.loc),
		message.WithRecorder(c.timelineRecorder),
	)
	page, err := tl.FetchLatest(ctx)
	if err != nil {
		return c.loadFailed(gen, err)
	}
	tl.Seed(page)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	c.conversationID = conv.ID
	c.timeline = tl
	c.status = StatusReady
	c.mu.Unlock()
	c.changed()
	c.logger.Info("session activated", slog.String("conversation_id", conv.ID), slog.Int("seeded", len(page)))

	c.connect(ctx, gen, tl)
	c.startWatcher(gen)
	return nil
}

func (c *Coordinator) connect(ctx context.Context, gen uint64, tl *message.Timeline) {
	if c.deps.Channel == nil {
		return
	}
	if c.deps.Tokens == nil {
		c.logger.Warn("channel unavailable", slog.String("reason", "no token provider"))
		return
	}
	token, err := c.deps.Tokens.AccessToken(ctx)
	if err != nil {
		c.logger.Warn("channel unavailable", slog.Any("error", err))
		c.changed()
		return
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if !c.current(gen) {
		c.logger.Debug("connect skipped", slog.String("reason", "activation superseded"))
		return
	}
	c.deps.Channel.OnMessage(func(msg message.Message) {
		c.receive(gen, tl, msg)
	})
	if err := c.deps.Channel.Connect(ctx, token, tl.ConversationID()); err != nil {
		c.logger.Warn("channel unavailable", slog.Any("error", err))
	}
	c.changed()
}

func (c *Coordinator) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Coordinator) startWatcher(gen uint64) {
	if c.deps.Clipboard == nil || c.deps.Orders == nil {
		return
	}
	w := orderref.NewClipboardWatcher(c.logger, c.deps.Clipboard, c.deps.Orders, c.clipboardInterval, func(s orderref.Suggestion) {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.suggestion = &s
		c.mu.Unlock()
		c.changed()
	})
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.watcher = w
	c.mu.Unlock()
	if err := w.Start(); err != nil {
		c.logger.Warn("clipboard watcher not started", slog.Any("error", err))
	}
}

func (c *Coordinator) loadFailed(gen uint64, err error) error {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return err
	}
	c.status = StatusLoadFailed
	c.mu.Unlock()
	c.changed()
	c.logger.Warn("session load failed", slog.Any("error", err))
	return err
}

func (c *Coordinator) receive(gen uint64, tl *message.Timeline, msg message.Message) {
	c.mu.Lock()
	current := c.gen == gen && c.timeline == tl
	c.mu.Unlock()
	if !current {
		return
	}
	if tl.ReceiveLive(msg) {
		c.changed()
	}
}

// LoadMore fetches the next older page. It is a no-op when no older history
// remains or a load is already running.
func (c *Coordinator) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	tl := c.timeline
	if tl == nil || c.loadingMore || !tl.HasMore() {
		c.mu.Unlock()
		return nil
	}
	c.loadingMore = true
	gen := c.gen
	c.mu.Unlock()
	c.changed()

	_, err := tl.LoadOlder(ctx)

	c.mu.Lock()
	current := c.gen == gen
	if current {
		c.loadingMore = false
	}
	c.mu.Unlock()
	if !current || errors.Is(err, message.ErrStaleConversation) {
		return nil
	}
	c.changed()
	return err
}

// Send uploads the queued attachments and emits one message carrying text
// and the uploaded URLs. Blank text with no attachments is a no-op. When any
// upload fails nothing is sent and the drafts stay queued.
func (c *Coordinator) Send(ctx context.Context, text string) error {
	conversationID, err := c.activeConversation()
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	pending := c.deps.Attachments != nil && c.deps.Attachments.Pending() > 0
	if text == "" && !pending {
		return nil
	}
	if err := c.requireJoined(); err != nil {
		return err
	}

	emit := func(urls []string) error {
		// Another send claimed the drafts after the pending check.
		if text == "" && len(urls) == 0 {
			return nil
		}
		return c.deps.Channel.Send(ctx, channel.OutgoingMessage{
			ConversationID: conversationID,
			Content:        text,
			Images:         urls,
		})
	}
	if c.deps.Attachments == nil {
		return emit(nil)
	}
	defer c.changed()
	if _, err := c.deps.Attachments.Flush(ctx, emit); err != nil {
		return err
	}
	return nil
}

// ShareOrder emits a bare order reference.
func (c *Coordinator) ShareOrder(ctx context.Context, orderID string) error {
	conversationID, err := c.activeConversation()
	if err != nil {
		return err
	}
	orderID = strings.TrimSpace(orderID)
	if err := c.requireJoined(); err != nil {
		return err
	}
	if err := c.deps.Channel.Send(ctx, channel.OutgoingMessage{
		ConversationID: conversationID,
		OrderID:        orderID,
	}); err != nil {
		return err
	}

	c.mu.Lock()
	cleared := c.suggestion != nil && c.suggestion.OrderID == orderID
	if cleared {
		c.suggestion = nil
	}
	c.mu.Unlock()
	if cleared {
		c.changed()
	}
	return nil
}

// DismissSuggestion drops the current clipboard suggestion.
func (c *Coordinator) DismissSuggestion() {
	c.mu.Lock()
	had := c.suggestion != nil
	c.suggestion = nil
	c.mu.Unlock()
	if had {
		c.changed()
	}
}

// AddImage queues a local image for the next send.
func (c *Coordinator) AddImage(handle string) bool {
	if c.deps.Attachments == nil {
		return false
	}
	ok := c.deps.Attachments.Add(handle)
	if ok {
		c.changed()
	}
	return ok
}

// RemoveImage drops a queued image.
func (c *Coordinator) RemoveImage(handle string) bool {
	if c.deps.Attachments == nil {
		return false
	}
	ok := c.deps.Attachments.Remove(handle)
	if ok {
		c.changed()
	}
	return ok
}

// Drafts returns the queued images.
func (c *Coordinator) Drafts() []media.Draft {
	if c.deps.Attachments == nil {
		return nil
	}
	return c.deps.Attachments.Drafts()
}

// OrderSummary resolves the order referenced by msg and returns its summary.
func (c *Coordinator) OrderSummary(ctx context.Context, msg message.Message) (*orderref.Summary, bool) {
	if c.deps.Orders == nil {
		return nil, false
	}
	orderID, ok := c.deps.Orders.ResolveFromMessage(msg)
	if !ok {
		return nil, false
	}
	return c.deps.Orders.FetchSummary(ctx, orderID)
}

// Deactivate tears down the channel, stops clipboard polling and discards
// the results of any in-flight work.
func (c *Coordinator) Deactivate(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	w := c.watcher
	c.watcher = nil
	c.status = StatusIdle
	c.conversationID = ""
	c.timeline = nil
	c.loadingMore = false
	c.suggestion = nil
	c.mu.Unlock()

	var errs []error
	if c.deps.Channel != nil {
		c.connMu.Lock()
		err := c.deps.Channel.Teardown(ctx)
		c.connMu.Unlock()
		if err != nil {
			errs = append(errs, fmt.Errorf("teardown channel: %w", err))
		}
	}
	if w != nil {
		if err := w.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop clipboard watcher: %w", err))
		}
	}
	if c.deps.Attachments != nil {
		c.deps.Attachments.Clear()
	}
	c.changed()
	c.logger.Info("session deactivated")
	return errors.Join(errs...)
}

// Snapshot returns the current view of the session.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		Status:         c.status,
		ConversationID: c.conversationID,
		LoadingMore:    c.loadingMore,
	}
	tl := c.timeline
	if c.suggestion != nil {
		s := *c.suggestion
		snap.Suggestion = &s
	}
	c.mu.Unlock()

	if tl != nil {
		snap.HasMore = tl.HasMore()
		snap.Entries = tl.Project(c.now())
	}
	snap.ChannelAvailable = tl != nil && c.deps.Channel != nil && c.deps.Channel.State() == channel.StateJoined
	snap.Drafts = c.Drafts()
	return snap
}

func (c *Coordinator) activeConversation() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusReady || c.conversationID == "" {
		return "", ErrNotActive
	}
	return c.conversationID, nil
}

func (c *Coordinator) requireJoined() error {
	if c.deps.Channel == nil || c.deps.Channel.State() != channel.StateJoined {
		return fmt.Errorf("%w: channel not joined", channel.ErrChannelUnavailable)
	}
	return nil
}

func (c *Coordinator) changed() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
