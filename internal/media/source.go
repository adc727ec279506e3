package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSource loads draft handles as local file paths.
type FileSource struct {
	maxBytes int64
}

// NewFileSource creates a source that rejects files above maxBytes.
// A non-positive maxBytes uses MaxAssetBytes.
func NewFileSource(maxBytes int64) *FileSource {
	if maxBytes <= 0 {
		maxBytes = MaxAssetBytes
	}
	return &FileSource{maxBytes: maxBytes}
}

// Load reads and sniffs the file at handle.
func (s *FileSource) Load(ctx context.Context, handle string) (Image, error) {
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}
	path := strings.TrimSpace(handle)
	f, err := os.Open(path)
	if err != nil {
		return Image{}, fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	data, err := ReadAllWithLimit(f, s.maxBytes)
	if err != nil {
		return Image{}, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	mime, err := DetectImage(data)
	if err != nil {
		return Image{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return Image{Name: filepath.Base(path), Mime: mime, Data: data}, nil
}
