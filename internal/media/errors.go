package media

import "errors"

var (
	// ErrUploadFailed indicates at least one draft could not be loaded or uploaded.
	ErrUploadFailed = errors.New("attachment upload failed")
	// ErrNotAnImage indicates a payload whose sniffed type is not an image.
	ErrNotAnImage = errors.New("attachment is not an image")
	// ErrProviderUnavailable indicates the storage provider is not configured.
	ErrProviderUnavailable = errors.New("storage provider unavailable")
	// ErrAssetTooLarge indicates the payload exceeds the configured max asset size.
	ErrAssetTooLarge = errors.New("media asset too large")
)
