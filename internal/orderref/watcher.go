package orderref

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPollInterval is the clipboard poll period used when none is configured.
const DefaultPollInterval = 2 * time.Second

// Suggestion is offered when the clipboard carries a resolvable order code.
type Suggestion struct {
	OrderID string
	Summary *Summary
}

// ClipboardWatcher polls a Clipboard on a cron schedule and offers a
// Suggestion each time a new order code with a known summary appears.
type ClipboardWatcher struct {
	clipboard Clipboard
	resolver  *Resolver
	interval  time.Duration
	onSuggest func(Suggestion)
	logger    *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	last    string
	running bool
}

// NewClipboardWatcher creates a stopped watcher.
func NewClipboardWatcher(log *slog.Logger, clipboard Clipboard, resolver *Resolver, interval time.Duration, onSuggest func(Suggestion)) *ClipboardWatcher {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &ClipboardWatcher{
		clipboard: clipboard,
		resolver:  resolver,
		interval:  interval,
		onSuggest: onSuggest,
		logger:    log.With(slog.String("component", "clipboard_watcher")),
	}
}

// Start schedules polling. Calling Start on a running watcher is a no-op.
func (w *ClipboardWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if w.clipboard == nil || w.resolver == nil {
		return fmt.Errorf("clipboard watcher not configured")
	}
	logger := cronLogger{log: w.logger}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", w.interval), func() { w.Poll(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule clipboard poll: %w", err)
	}
	w.cron = c
	w.cancel = cancel
	w.running = true
	c.Start()
	w.logger.Debug("clipboard watcher started", slog.Duration("interval", w.interval))
	return nil
}

// Stop cancels polling and waits for a running tick to finish or ctx to end.
func (w *ClipboardWatcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	c, cancel := w.cron, w.cancel
	w.cron, w.cancel = nil, nil
	w.running = false
	w.last = ""
	w.mu.Unlock()

	cancel()
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll performs one clipboard check.
func (w *ClipboardWatcher) Poll(ctx context.Context) {
	text, err := w.clipboard.ReadText()
	if err != nil {
		w.logger.Debug("clipboard read failed", slog.Any("error", err))
		return
	}
	id, ok := ResolveFromClipboard(text)
	if !ok {
		return
	}
	w.mu.Lock()
	if id == w.last {
		w.mu.Unlock()
		return
	}
	w.last = id
	w.mu.Unlock()

	summary, ok := w.resolver.FetchSummary(ctx, id)
	if !ok || w.onSuggest == nil {
		return
	}
	w.onSuggest(Suggestion{OrderID: id, Summary: summary})
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, slog.Any("error", err))...)
}
