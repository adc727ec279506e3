package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/memohai/shopchat/internal/media/providers/localfs"
)

func TestStoreIngestDeduplicatesByContent(t *testing.T) {
	t.Parallel()

	provider, err := localfs.New(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	store := NewStore(nil, provider)
	ctx := context.Background()

	first, err := store.Ingest(ctx, "user-1", bytes.NewReader(pngHeader), 1024)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if first.Mime != "image/png" {
		t.Fatalf("unexpected mime %q", first.Mime)
	}
	if !strings.HasPrefix(first.Key, "user-1/"+first.ContentHash[:4]+"/") || !strings.HasSuffix(first.Key, ".png") {
		t.Fatalf("unexpected key %q", first.Key)
	}
	if first.AccessPath != "/media/"+first.Key {
		t.Fatalf("unexpected access path %q", first.AccessPath)
	}

	second, err := store.Ingest(ctx, "user-1", bytes.NewReader(pngHeader), 1024)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if second.Key != first.Key {
		t.Fatalf("expected identical key, got %q and %q", first.Key, second.Key)
	}

	reader, err := store.Open(ctx, first.Key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer reader.Close()
	got, _ := io.ReadAll(reader)
	if !bytes.Equal(got, pngHeader) {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestStoreIngestRejects(t *testing.T) {
	t.Parallel()

	provider, err := localfs.New(t.TempDir(), "")
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	store := NewStore(nil, provider)
	ctx := context.Background()

	if _, err := store.Ingest(ctx, "user-1", strings.NewReader("plain text"), 1024); !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected ErrNotAnImage, got %v", err)
	}
	if _, err := store.Ingest(ctx, "user-1", bytes.NewReader(pngHeader), 4); !errors.Is(err, ErrAssetTooLarge) {
		t.Fatalf("expected ErrAssetTooLarge, got %v", err)
	}
	if _, err := store.Ingest(ctx, "../x", bytes.NewReader(pngHeader), 1024); err == nil {
		t.Fatalf("expected invalid owner error")
	}
	if _, err := NewStore(nil, nil).Ingest(ctx, "user-1", bytes.NewReader(pngHeader), 1024); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestDetectImage(t *testing.T) {
	t.Parallel()

	if mime, err := DetectImage([]byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")); err != nil || mime != "image/jpeg" {
		t.Fatalf("expected jpeg, got %q (%v)", mime, err)
	}
	if _, err := DetectImage([]byte("%PDF-1.7")); !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected ErrNotAnImage, got %v", err)
	}
}
