package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MaxDrafts is the maximum number of pending attachments.
const MaxDrafts = 3

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) PipelineOption {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// Pipeline queues up to MaxDrafts image drafts and flushes them atomically:
// either every draft is uploaded and handed to the emitter, or the queue is
// left untouched.
type Pipeline struct {
	source   Source
	uploader Uploader
	recorder Recorder
	logger   *slog.Logger

	mu       sync.Mutex
	drafts   []Draft
	// inflight holds the IDs of drafts claimed by a running Flush.
	inflight map[string]struct{}
}

// NewPipeline creates an empty pipeline.
func NewPipeline(log *slog.Logger, source Source, uploader Uploader, opts ...PipelineOption) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		source:   source,
		uploader: uploader,
		recorder: nopRecorder{},
		logger:   log.With(slog.String("component", "attachments")),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add queues handle. It returns false without changes when handle is blank,
// already queued, or MaxDrafts are already queued.
func (p *Pipeline) Add(handle string) bool {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.drafts) >= MaxDrafts {
		return false
	}
	for _, d := range p.drafts {
		if d.Handle == handle {
			return false
		}
	}
	p.drafts = append(p.drafts, Draft{ID: uuid.NewString(), Handle: handle})
	return true
}

// Remove drops the draft with handle.
func (p *Pipeline) Remove(handle string) bool {
	handle = strings.TrimSpace(handle)
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, d := range p.drafts {
		if d.Handle == handle {
			p.drafts = append(p.drafts[:i], p.drafts[i+1:]...)
			return true
		}
	}
	return false
}

// Drafts returns a copy of the queue in insertion order.
func (p *Pipeline) Drafts() []Draft {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Draft, len(p.drafts))
	copy(out, p.drafts)
	return out
}

// Len returns the number of queued drafts.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.drafts)
}

// Pending returns the number of queued drafts no running Flush has claimed.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, d := range p.drafts {
		if _, ok := p.inflight[d.ID]; !ok {
			n++
		}
	}
	return n
}

// Clear drops every queued draft.
func (p *Pipeline) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drafts = nil
}

// Flush uploads every queued draft concurrently and passes the URLs, in queue
// order, to emit. The flushed drafts are removed only when every upload and
// emit succeed; drafts added while the flush runs are kept. Drafts claimed by
// another running Flush are skipped, so each draft is attached to at most one
// message. With nothing to claim emit is called with no URLs.
func (p *Pipeline) Flush(ctx context.Context, emit func(urls []string) error) ([]string, error) {
	snapshot := p.claim()
	defer p.release(snapshot)
	if len(snapshot) == 0 {
		if emit != nil {
			if err := emit(nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	if p.source == nil || p.uploader == nil {
		return nil, fmt.Errorf("%w: pipeline not configured", ErrUploadFailed)
	}

	urls := make([]string, len(snapshot))
	g, gctx := errgroup.WithContext(ctx)
	for i, draft := range snapshot {
		i, draft := i, draft
		g.Go(func() error {
			img, err := p.source.Load(gctx, draft.Handle)
			if err != nil {
				return err
			}
			got, err := p.uploader.Upload(gctx, []Image{img})
			if err != nil {
				return fmt.Errorf("upload %s: %w", img.Name, err)
			}
			if len(got) != 1 || strings.TrimSpace(got[0]) == "" {
				return fmt.Errorf("upload %s: expected one url, got %d", img.Name, len(got))
			}
			urls[i] = got[0]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.recorder.Upload(false)
		p.logger.Warn("attachment flush failed", slog.Int("drafts", len(snapshot)), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	p.recorder.Upload(true)

	if emit != nil {
		if err := emit(urls); err != nil {
			return urls, err
		}
	}
	p.removeFlushed(snapshot)
	return urls, nil
}

func (p *Pipeline) claim() []Draft {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Draft
	for _, d := range p.drafts {
		if _, ok := p.inflight[d.ID]; ok {
			continue
		}
		p.inflight[d.ID] = struct{}{}
		out = append(out, d)
	}
	return out
}

func (p *Pipeline) release(claimed []Draft) {
	if len(claimed) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range claimed {
		delete(p.inflight, d.ID)
	}
}

func (p *Pipeline) removeFlushed(flushed []Draft) {
	done := make(map[string]struct{}, len(flushed))
	for _, d := range flushed {
		done[d.ID] = struct{}{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.drafts[:0]
	for _, d := range p.drafts {
		if _, ok := done[d.ID]; ok {
			continue
		}
		kept = append(kept, d)
	}
	p.drafts = kept
}
