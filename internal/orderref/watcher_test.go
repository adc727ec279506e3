package orderref

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClipboard struct {
	mu   sync.Mutex
	text string
	err  error
}

func (c *fakeClipboard) set(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
}

func (c *fakeClipboard) ReadText() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, c.err
}

func TestWatcherPollSuggestsOncePerCode(t *testing.T) {
	t.Parallel()

	fetcher := &countingFetcher{fn: func(ctx context.Context, id string) (*Summary, error) {
		if id == "GONE" {
			return nil, nil
		}
		return summaryFor(id), nil
	}}
	resolver := NewResolver(nil, fetcher)
	clip := &fakeClipboard{text: "DH:A1"}
	var got []Suggestion
	w := NewClipboardWatcher(nil, clip, resolver, time.Second, func(s Suggestion) { got = append(got, s) })

	ctx := context.Background()
	w.Poll(ctx)
	w.Poll(ctx)
	if len(got) != 1 || got[0].OrderID != "A1" || got[0].Summary.SKU != "SKU-A1" {
		t.Fatalf("expected one suggestion for A1, got %+v", got)
	}

	clip.set("random text")
	w.Poll(ctx)
	clip.set("DH:GONE")
	w.Poll(ctx)
	clip.set("DH:B2")
	w.Poll(ctx)
	if len(got) != 2 || got[1].OrderID != "B2" {
		t.Fatalf("expected a second suggestion for B2, got %+v", got)
	}
}

func TestWatcherPollIgnoresClipboardErrors(t *testing.T) {
	t.Parallel()

	fetcher := &countingFetcher{fn: func(ctx context.Context, id string) (*Summary, error) {
		return summaryFor(id), nil
	}}
	clip := &fakeClipboard{err: errors.New("no display")}
	w := NewClipboardWatcher(nil, clip, NewResolver(nil, fetcher), time.Second, func(Suggestion) {
		t.Fatalf("unexpected suggestion")
	})
	w.Poll(context.Background())
	if fetcher.calls.Load() != 0 {
		t.Fatalf("expected no fetch")
	}
}

func TestWatcherStartStop(t *testing.T) {
	t.Parallel()

	fetcher := &countingFetcher{fn: func(ctx context.Context, id string) (*Summary, error) {
		return summaryFor(id), nil
	}}
	clip := &fakeClipboard{text: "DH:A1"}
	suggested := make(chan Suggestion, 1)
	w := NewClipboardWatcher(nil, clip, NewResolver(nil, fetcher), time.Second, func(s Suggestion) {
		select {
		case suggested <- s:
		default:
		}
	})
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("second start should be a no-op: %v", err)
	}

	select {
	case s := <-suggested:
		if s.OrderID != "A1" {
			t.Fatalf("unexpected suggestion %+v", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher never polled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("second stop should be a no-op: %v", err)
	}
}

func TestWatcherStartRequiresClipboard(t *testing.T) {
	t.Parallel()

	w := NewClipboardWatcher(nil, nil, nil, 0, nil)
	if err := w.Start(); err == nil {
		t.Fatalf("expected configuration error")
	}
}
