package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Store persists uploaded images through a StorageProvider.
type Store struct {
	provider StorageProvider
	logger   *slog.Logger
}

// NewStore creates a media store with the given storage provider.
func NewStore(log *slog.Logger, provider StorageProvider) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		provider: provider,
		logger:   log.With(slog.String("service", "media")),
	}
}

// Ingest hashes and sniffs the payload, rejects anything that is not an
// image and stores it under <owner>/<hash[:4]>/<hash><ext>. Identical
// content from one owner maps to the same key.
func (s *Store) Ingest(ctx context.Context, owner string, reader io.Reader, maxBytes int64) (StoredAsset, error) {
	if s.provider == nil {
		return StoredAsset{}, ErrProviderUnavailable
	}
	owner = strings.TrimSpace(owner)
	if owner == "" || strings.ContainsAny(owner, `/\`) {
		return StoredAsset{}, fmt.Errorf("invalid owner %q", owner)
	}
	if maxBytes <= 0 {
		maxBytes = MaxAssetBytes
	}
	contentHash, sizeBytes, tempPath, err := spoolAndHashWithLimit(reader, maxBytes)
	if err != nil {
		return StoredAsset{}, fmt.Errorf("read input: %w", err)
	}
	defer func() {
		_ = os.Remove(tempPath)
	}()

	mt, err := mimetype.DetectFile(tempPath)
	if err != nil {
		return StoredAsset{}, fmt.Errorf("detect mime: %w", err)
	}
	mime := strings.TrimSpace(strings.SplitN(mt.String(), ";", 2)[0])
	if !strings.HasPrefix(mime, "image/") {
		return StoredAsset{}, fmt.Errorf("%w: detected %s", ErrNotAnImage, mime)
	}

	storageKey := path.Join(owner, contentHash[:4], contentHash+extensionFromMime(mime, mt.Extension()))

	tempFile, err := os.Open(tempPath)
	if err != nil {
		return StoredAsset{}, fmt.Errorf("open temp file: %w", err)
	}
	defer func() {
		_ = tempFile.Close()
	}()
	if err := s.provider.Put(ctx, storageKey, tempFile); err != nil {
		return StoredAsset{}, fmt.Errorf("store media: %w", err)
	}
	s.logger.Debug("media stored", slog.String("key", storageKey), slog.Int64("size_bytes", sizeBytes))
	return StoredAsset{
		Key:         storageKey,
		ContentHash: contentHash,
		Mime:        mime,
		SizeBytes:   sizeBytes,
		AccessPath:  s.provider.AccessPath(storageKey),
	}, nil
}

// Open returns a reader for a stored key.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}
	reader, err := s.provider.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return reader, nil
}

func extensionFromMime(mime, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	if fallback != "" {
		return fallback
	}
	return ".bin"
}

func spoolAndHashWithLimit(reader io.Reader, maxBytes int64) (string, int64, string, error) {
	if reader == nil {
		return "", 0, "", fmt.Errorf("reader is required")
	}
	tempFile, err := os.CreateTemp("", "shopchat-media-*")
	if err != nil {
		return "", 0, "", fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	keepFile := false
	defer func() {
		_ = tempFile.Close()
		if !keepFile {
			_ = os.Remove(tempPath)
		}
	}()

	hasher := sha256.New()
	limited := &io.LimitedReader{R: reader, N: maxBytes + 1}
	written, err := io.Copy(io.MultiWriter(tempFile, hasher), limited)
	if err != nil {
		return "", 0, "", fmt.Errorf("copy to temp file: %w", err)
	}
	if written > maxBytes {
		return "", 0, "", fmt.Errorf("%w: max %d bytes", ErrAssetTooLarge, maxBytes)
	}
	if written == 0 {
		return "", 0, "", fmt.Errorf("asset payload is empty")
	}
	keepFile = true
	return hex.EncodeToString(hasher.Sum(nil)), written, tempPath, nil
}
