package orderref

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/memohai/shopchat/internal/message"
)

// ClipboardPrefix marks clipboard text that carries an order code.
const ClipboardPrefix = "DH:"

var (
	contentMarker = regexp.MustCompile(`Mã đơn:\s*([A-Za-z0-9_-]{1,64})`)
	tokenPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// ResolveFromMessage returns the explicit order id of msg, or the token
// following an "Mã đơn:" marker in its content.
func ResolveFromMessage(msg message.Message) (string, bool) {
	if id := strings.TrimSpace(msg.OrderID); id != "" {
		return id, true
	}
	if m := contentMarker.FindStringSubmatch(msg.Content); len(m) == 2 {
		return m[1], true
	}
	return "", false
}

// ResolveFromClipboard returns the token of clipboard text starting with
// ClipboardPrefix. Tokens outside [A-Za-z0-9_-]{1,64} are rejected.
func ResolveFromClipboard(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, ClipboardPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(text, ClipboardPrefix))
	if !tokenPattern.MatchString(token) {
		return "", false
	}
	return token, true
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(res *Resolver) {
		if r != nil {
			res.recorder = r
		}
	}
}

// Resolver fetches order summaries through a cache. Not-found orders and
// failed lookups are cached as negative entries so a row is fetched at most
// once per session.
type Resolver struct {
	fetcher  Fetcher
	logger   *slog.Logger
	recorder Recorder
	group    singleflight.Group

	mu    sync.RWMutex
	cache map[string]*Summary
}

// NewResolver creates a resolver with an empty cache.
func NewResolver(log *slog.Logger, fetcher Fetcher, opts ...Option) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	r := &Resolver{
		fetcher:  fetcher,
		logger:   log.With(slog.String("component", "orderref")),
		recorder: nopRecorder{},
		cache:    map[string]*Summary{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveFromMessage delegates to the package-level function.
func (r *Resolver) ResolveFromMessage(msg message.Message) (string, bool) {
	return ResolveFromMessage(msg)
}

// ResolveFromClipboard delegates to the package-level function.
func (r *Resolver) ResolveFromClipboard(text string) (string, bool) {
	return ResolveFromClipboard(text)
}

// Cached peeks at the cache. known reports whether orderID has an entry; a
// known entry with a nil summary is negative.
func (r *Resolver) Cached(orderID string) (summary *Summary, known bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	summary, known = r.cache[strings.TrimSpace(orderID)]
	return summary, known
}

// Reset clears every cache entry.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = map[string]*Summary{}
}

// Len returns the number of cache entries, negative ones included.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// FetchSummary returns the cached summary for orderID or fetches it once.
// ok is false for blank ids, not-found orders and failed lookups.
func (r *Resolver) FetchSummary(ctx context.Context, orderID string) (*Summary, bool) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, false
	}
	if summary, known := r.Cached(id); known {
		if summary == nil {
			r.recorder.OrderLookup(LookupNegative)
		} else {
			r.recorder.OrderLookup(LookupHit)
		}
		return summary, summary != nil
	}

	v, _, _ := r.group.Do(id, func() (any, error) {
		if summary, known := r.Cached(id); known {
			return summary, nil
		}
		summary, err := r.fetch(ctx, id)
		if err != nil {
			r.recorder.OrderLookup(LookupFailed)
			r.logger.Warn("order summary lookup failed", slog.String("order_id", id), slog.Any("error", err))
			if errors.Is(err, context.Canceled) {
				return (*Summary)(nil), nil
			}
		} else if summary == nil {
			r.recorder.OrderLookup(LookupNotFound)
		} else {
			r.recorder.OrderLookup(LookupFetched)
		}
		r.store(id, summary)
		return summary, nil
	})
	summary, _ := v.(*Summary)
	return summary, summary != nil
}

func (r *Resolver) fetch(ctx context.Context, id string) (*Summary, error) {
	if r.fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher not configured", ErrOrderLookupFailed)
	}
	summary, err := r.fetcher.FetchOrderSummary(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOrderLookupFailed, err)
	}
	if summary != nil && summary.OrderID == "" {
		cp := *summary
		cp.OrderID = id
		summary = &cp
	}
	return summary, nil
}

func (r *Resolver) store(id string, summary *Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[id] = summary
}
