package message

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultPageLimit is the history page size used when none is configured.
const DefaultPageLimit = 20

// TimelineOption configures a Timeline.
type TimelineOption func(*Timeline)

// WithPageLimit sets the number of messages requested per history page.
func WithPageLimit(limit int) TimelineOption {
	return func(t *Timeline) {
		if limit > 0 {
			t.limit = limit
		}
	}
}

// WithLocation sets the timezone used for separator labels.
func WithLocation(loc *time.Location) TimelineOption {
	return func(t *Timeline) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) TimelineOption {
	return func(t *Timeline) {
		if r != nil {
			t.recorder = r
		}
	}
}

// Timeline is the ordered, deduplicated message store for one conversation.
// Messages are held newest-first. Seed establishes the order, LoadOlder
// appends older pages at the tail and ReceiveLive inserts at the head.
type Timeline struct {
	conversationID string
	store          HistoryStore
	limit          int
	loc            *time.Location
	recorder       Recorder
	logger         *slog.Logger

	mu      sync.Mutex
	items   []Message
	ids     map[string]struct{}
	hasMore bool
	seeded  bool
	epoch   uint64
}

// NewTimeline creates an empty timeline bound to conversationID.
func NewTimeline(log *slog.Logger, store HistoryStore, conversationID string, opts ...TimelineOption) *Timeline {
	if log == nil {
		log = slog.Default()
	}
	t := &Timeline{
		conversationID: strings.TrimSpace(conversationID),
		store:          store,
		limit:          DefaultPageLimit,
		loc:            time.Local,
		recorder:       nopRecorder{},
		ids:            map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = log.With(slog.String("component", "timeline"), slog.String("conversation_id", t.conversationID))
	return t
}

// ConversationID returns the conversation the timeline is bound to.
func (t *Timeline) ConversationID() string {
	return t.conversationID
}

// PageLimit returns the configured page size.
func (t *Timeline) PageLimit() int {
	return t.limit
}

// FetchLatest requests the most recent history page without applying it.
func (t *Timeline) FetchLatest(ctx context.Context) ([]Message, error) {
	if t.store == nil {
		return nil, fmt.Errorf("%w: history store not configured", ErrPaginationFailed)
	}
	page, err := t.store.ListMessages(ctx, PageQuery{
		ConversationID: t.conversationID,
		Limit:          t.limit,
	})
	t.recorder.PageLoaded(err == nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPaginationFailed, err)
	}
	return page, nil
}

// Seed replaces the held messages with initialPage (newest-first). More
// older history is assumed to exist when the page is full-sized.
func (t *Timeline) Seed(initialPage []Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.epoch++
	t.items = make([]Message, 0, len(initialPage))
	t.ids = make(map[string]struct{}, len(initialPage))
	for _, msg := range initialPage {
		if !t.acceptLocked(msg) {
			continue
		}
		t.insertOlderLocked(msg)
	}
	t.hasMore = len(initialPage) >= t.limit
	t.seeded = true
}

// LoadOlder fetches the page strictly older than the oldest held message and
// appends it to the tail. It returns the messages that were added. Once a
// short page has been seen no further requests are made.
func (t *Timeline) LoadOlder(ctx context.Context) ([]Message, error) {
	t.mu.Lock()
	if !t.seeded || !t.hasMore {
		t.mu.Unlock()
		return nil, nil
	}
	if len(t.items) == 0 {
		t.hasMore = false
		t.mu.Unlock()
		return nil, nil
	}
	before := t.items[len(t.items)-1].CreatedAt
	epoch := t.epoch
	t.mu.Unlock()

	if t.store == nil {
		return nil, fmt.Errorf("%w: history store not configured", ErrPaginationFailed)
	}
	page, err := t.store.ListMessages(ctx, PageQuery{
		ConversationID: t.conversationID,
		Limit:          t.limit,
		Before:         before,
	})
	t.recorder.PageLoaded(err == nil)
	if err != nil {
		t.logger.Warn("load older failed", slog.Time("before", before), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrPaginationFailed, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.epoch != epoch {
		return nil, fmt.Errorf("%w: timeline reseeded during load", ErrStaleConversation)
	}
	added := make([]Message, 0, len(page))
	for _, msg := range page {
		if !t.acceptLocked(msg) {
			continue
		}
		t.insertOlderLocked(msg)
		added = append(added, msg)
	}
	if len(page) < t.limit {
		t.hasMore = false
	}
	return added, nil
}

// ReceiveLive inserts a message delivered by the event channel. It returns
// false when the message was dropped as a duplicate or for another conversation.
func (t *Timeline) ReceiveLive(msg Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.acceptLocked(msg) {
		return false
	}
	t.recorder.LiveReceived()
	t.insertNewerLocked(msg)
	return true
}

// HasMore reports whether older history may still be fetched.
func (t *Timeline) HasMore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasMore
}

// Len returns the number of held messages.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Messages returns a newest-first copy of the held messages.
func (t *Timeline) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.items))
	copy(out, t.items)
	return out
}

// Oldest returns the createdAt of the oldest held message, the cursor used by LoadOlder.
func (t *Timeline) Oldest() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.items) == 0 {
		return time.Time{}, false
	}
	return t.items[len(t.items)-1].CreatedAt, true
}

// Project renders the held messages into display entries relative to now.
func (t *Timeline) Project(now time.Time) []Entry {
	t.mu.Lock()
	items := make([]Message, len(t.items))
	copy(items, t.items)
	t.mu.Unlock()
	return Project(items, now, t.loc)
}

func (t *Timeline) acceptLocked(msg Message) bool {
	if msg.ConversationID != "" && t.conversationID != "" && msg.ConversationID != t.conversationID {
		t.logger.Debug("drop message for other conversation", slog.String("message_conversation_id", msg.ConversationID))
		return false
	}
	if msg.ID == "" {
		return true
	}
	if _, ok := t.ids[msg.ID]; ok {
		t.recorder.DuplicateDropped()
		t.logger.Debug("drop duplicate message", slog.String("message_id", msg.ID))
		return false
	}
	t.ids[msg.ID] = struct{}{}
	return true
}

// insertNewerLocked places msg ahead of messages with an equal timestamp.
func (t *Timeline) insertNewerLocked(msg Message) {
	if len(t.items) == 0 || !msg.CreatedAt.Before(t.items[0].CreatedAt) {
		t.items = append([]Message{msg}, t.items...)
		return
	}
	idx := sort.Search(len(t.items), func(i int) bool {
		return !t.items[i].CreatedAt.After(msg.CreatedAt)
	})
	t.items = insertAt(t.items, idx, msg)
}

// insertOlderLocked places msg behind messages with an equal timestamp.
func (t *Timeline) insertOlderLocked(msg Message) {
	n := len(t.items)
	if n == 0 || !msg.CreatedAt.After(t.items[n-1].CreatedAt) {
		t.items = append(t.items, msg)
		return
	}
	idx := sort.Search(n, func(i int) bool {
		return t.items[i].CreatedAt.Before(msg.CreatedAt)
	})
	t.items = insertAt(t.items, idx, msg)
}

func insertAt(items []Message, idx int, msg Message) []Message {
	items = append(items, Message{})
	copy(items[idx+1:], items[idx:])
	items[idx] = msg
	return items
}
