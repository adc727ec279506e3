package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/memohai/shopchat/internal/media"
	"github.com/memohai/shopchat/internal/message"
	"github.com/memohai/shopchat/internal/orderref"
	"github.com/memohai/shopchat/internal/session"
)

const summaryTimeout = 5 * time.Second

// chatSession is the part of *session.Coordinator the terminal drives.
type chatSession interface {
	LoadMore(ctx context.Context) error
	Send(ctx context.Context, text string) error
	ShareOrder(ctx context.Context, orderID string) error
	DismissSuggestion()
	AddImage(handle string) bool
	RemoveImage(handle string) bool
	Drafts() []media.Draft
	OrderSummary(ctx context.Context, msg message.Message) (*orderref.Summary, bool)
	Snapshot() session.Snapshot
}

// terminal is a line-oriented chat screen. New messages are printed as
// they arrive; older pages are only shown by /history.
type terminal struct {
	sess   chatSession
	out    io.Writer
	userID string
	loc    *time.Location

	mu         sync.Mutex
	seen       map[string]struct{}
	newest     time.Time
	suggestion string
	status     session.Status
	available  bool
}

func newTerminal(sess chatSession, out io.Writer, userID string, loc *time.Location) *terminal {
	if loc == nil {
		loc = time.Local
	}
	return &terminal{
		sess:   sess,
		out:    out,
		userID: userID,
		loc:    loc,
		seen:   make(map[string]struct{}),
	}
}

const helpText = `commands:
  /more          load earlier messages
  /history       print the loaded conversation
  /img <path>    attach an image to the next message
  /rm <path>     remove a queued image
  /drafts        list queued images
  /order <id>    share an order
  /share         share the order found on the clipboard
  /dismiss       ignore the clipboard order
  /quit          leave the chat
anything else is sent as a message`

// run reads commands from in until EOF, /quit or ctx is done.
func (t *terminal) run(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if !t.handle(ctx, scanner.Text()) {
			return
		}
	}
}

// handle executes one input line and reports whether to keep reading.
func (t *terminal) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return false
	case "/help":
		t.println(helpText)
	case "/more":
		if err := t.sess.LoadMore(ctx); err != nil {
			t.printf("could not load earlier messages: %v\n", err)
			return true
		}
		if !t.sess.Snapshot().HasMore {
			t.println("start of conversation")
		}
	case "/history":
		t.printHistory()
	case "/img":
		if arg == "" {
			t.println("usage: /img <path>")
		} else if !t.sess.AddImage(arg) {
			t.printf("not queued: %s is already attached or %d images are queued\n", arg, media.MaxDrafts)
		}
	case "/rm":
		if !t.sess.RemoveImage(arg) {
			t.printf("%s is not queued\n", arg)
		}
	case "/drafts":
		drafts := t.sess.Drafts()
		if len(drafts) == 0 {
			t.println("no images queued")
		}
		for _, d := range drafts {
			t.printf("  %s\n", d.Handle)
		}
	case "/order":
		if arg == "" {
			t.println("usage: /order <id>")
			return true
		}
		if err := t.sess.ShareOrder(ctx, arg); err != nil {
			t.printf("could not share order: %v\n", err)
		}
	case "/share":
		snap := t.sess.Snapshot()
		if snap.Suggestion == nil {
			t.println("no order on the clipboard")
			return true
		}
		if err := t.sess.ShareOrder(ctx, snap.Suggestion.OrderID); err != nil {
			t.printf("could not share order: %v\n", err)
		}
	case "/dismiss":
		t.sess.DismissSuggestion()
	default:
		if strings.HasPrefix(cmd, "/") {
			t.printf("unknown command %s, try /help\n", cmd)
			return true
		}
		if err := t.sess.Send(ctx, line); err != nil {
			t.printf("not sent: %v\n", err)
		}
	}
	return true
}

// refresh prints whatever changed since the previous call.
func (t *terminal) refresh(ctx context.Context) {
	snap := t.sess.Snapshot()

	t.mu.Lock()
	var notes []string
	if snap.Status != t.status {
		t.status = snap.Status
		if snap.Status == session.StatusLoadFailed {
			notes = append(notes, "could not load the conversation")
		}
	}
	if snap.ChannelAvailable != t.available {
		t.available = snap.ChannelAvailable
		if snap.ChannelAvailable {
			notes = append(notes, "connected")
		} else if snap.Status == session.StatusReady {
			notes = append(notes, "live updates unavailable, sending is disabled")
		}
	}

	var fresh []message.Message
	for i := len(snap.Entries) - 1; i >= 0; i-- {
		e := snap.Entries[i]
		if e.IsSeparator() || e.Message == nil {
			continue
		}
		if _, ok := t.seen[e.Message.ID]; ok {
			continue
		}
		t.seen[e.Message.ID] = struct{}{}
		if e.Message.CreatedAt.Before(t.newest) {
			continue
		}
		t.newest = e.Message.CreatedAt
		fresh = append(fresh, *e.Message)
	}

	suggestion := ""
	if snap.Suggestion != nil {
		suggestion = snap.Suggestion.OrderID
	}
	if suggestion != t.suggestion {
		t.suggestion = suggestion
		if suggestion != "" {
			notes = append(notes, formatSuggestion(*snap.Suggestion))
		}
	}
	t.mu.Unlock()

	for _, n := range notes {
		t.println("* " + n)
	}
	for _, msg := range fresh {
		t.printMessage(ctx, msg)
	}
}

func (t *terminal) printHistory() {
	snap := t.sess.Snapshot()
	if snap.HasMore {
		t.println("(/more for earlier messages)")
	}
	for i := len(snap.Entries) - 1; i >= 0; i-- {
		e := snap.Entries[i]
		if e.IsSeparator() {
			t.printf("-- %s --\n", e.Label)
			continue
		}
		if e.Message != nil {
			t.println(t.formatMessage(*e.Message))
		}
	}
}

func (t *terminal) printMessage(ctx context.Context, msg message.Message) {
	t.println(t.formatMessage(msg))
	if msg.OrderID == "" {
		return
	}
	go func() {
		lookupCtx, cancel := context.WithTimeout(ctx, summaryTimeout)
		defer cancel()
		summary, ok := t.sess.OrderSummary(lookupCtx, msg)
		if !ok {
			t.printf("    order %s: no details\n", msg.OrderID)
			return
		}
		t.printf("    %s\n", formatSummary(*summary))
	}()
}

func (t *terminal) formatMessage(msg message.Message) string {
	who := msg.SenderID
	if t.userID != "" && msg.SentBy(t.userID) {
		who = "me"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s:", msg.CreatedAt.In(t.loc).Format("15:04"), who)
	if msg.Content != "" {
		b.WriteString(" " + msg.Content)
	}
	for _, img := range msg.Images {
		b.WriteString("\n    [image] " + img)
	}
	if msg.OrderID != "" {
		b.WriteString(" [order " + msg.OrderID + "]")
	}
	return b.String()
}

func formatSummary(s orderref.Summary) string {
	return fmt.Sprintf("order %s: %s, %s, to %s", s.OrderID, s.SKU, s.TotalPrice.String(), s.ReceiverName)
}

func formatSuggestion(s orderref.Suggestion) string {
	if s.Summary == nil {
		return fmt.Sprintf("clipboard has order %s: /share to send, /dismiss to ignore", s.OrderID)
	}
	return fmt.Sprintf("clipboard has %s: /share to send, /dismiss to ignore", formatSummary(*s.Summary))
}

func (t *terminal) println(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, s)
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}
