package media

import (
	"context"
	"io"
)

// Draft is an image queued for the next send. Handle is a local reference
// (a file path for the CLI) resolved by a Source at flush time.
type Draft struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
}

// Image is a loaded, sniffed image payload ready for upload.
type Image struct {
	Name string
	Mime string
	Data []byte
}

// Source resolves a draft handle into image bytes.
type Source interface {
	Load(ctx context.Context, handle string) (Image, error)
}

// Uploader uploads images and returns their public URLs in input order.
type Uploader interface {
	Upload(ctx context.Context, images []Image) ([]string, error)
}

// StorageProvider abstracts object storage operations.
type StorageProvider interface {
	// Put writes data to storage under the given key.
	Put(ctx context.Context, key string, reader io.Reader) error
	// Open returns a reader for the given storage key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
	// AccessPath returns a consumer-accessible reference for a storage key.
	AccessPath(key string) string
}

// StoredAsset describes an ingested upload.
type StoredAsset struct {
	Key         string `json:"key"`
	ContentHash string `json:"contentHash"`
	Mime        string `json:"mime"`
	SizeBytes   int64  `json:"sizeBytes"`
	AccessPath  string `json:"accessPath"`
}

// Recorder observes upload outcomes.
type Recorder interface {
	Upload(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) Upload(bool) {}
