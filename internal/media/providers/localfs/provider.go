// Package localfs implements media.StorageProvider on a local directory.
// Keys have the form "<owner>/<subpath>" and are stored at
// <root>/<owner>/<subpath>; they are served under <urlPrefix>/<owner>/<subpath>.
package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultURLPrefix is the path under which stored files are served.
const DefaultURLPrefix = "/media"

// Provider stores media assets as plain files below a root directory.
type Provider struct {
	root      string
	urlPrefix string
}

// New creates a provider rooted at root. An empty urlPrefix uses DefaultURLPrefix.
func New(root, urlPrefix string) (*Provider, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	urlPrefix = strings.TrimRight(strings.TrimSpace(urlPrefix), "/")
	if urlPrefix == "" {
		urlPrefix = DefaultURLPrefix
	}
	return &Provider{root: abs, urlPrefix: urlPrefix}, nil
}

// Put writes data to the file for key, replacing any existing content.
func (p *Provider) Put(_ context.Context, key string, reader io.Reader) error {
	dest, err := p.hostPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Open reads the file stored for key.
func (p *Provider) Open(_ context.Context, key string) (io.ReadCloser, error) {
	dest, err := p.hostPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dest)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Delete removes the file for key. Missing files are not an error.
func (p *Provider) Delete(_ context.Context, key string) error {
	dest, err := p.hostPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// AccessPath returns the URL path a stored key is served under.
func (p *Provider) AccessPath(key string) string {
	return p.urlPrefix + "/" + strings.TrimLeft(filepath.ToSlash(filepath.Clean(key)), "/")
}

// URLPrefix returns the path prefix used by AccessPath.
func (p *Provider) URLPrefix() string {
	return p.urlPrefix
}

// hostPath converts a storage key into a file path below root.
func (p *Provider) hostPath(key string) (string, error) {
	clean := filepath.Clean(key)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute key is forbidden: %s", key)
	}
	if strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("path traversal is forbidden: %s", key)
	}
	idx := strings.IndexByte(clean, filepath.Separator)
	if idx <= 0 {
		return "", fmt.Errorf("storage key must contain owner prefix: %s", key)
	}
	owner := clean[:idx]
	subPath := clean[idx+1:]
	if strings.TrimSpace(owner) == "" || strings.TrimSpace(subPath) == "" {
		return "", fmt.Errorf("invalid storage key: %s", key)
	}
	joined := filepath.Join(p.root, owner, subPath)
	if !strings.HasPrefix(joined, p.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes storage root: %s", key)
	}
	return joined, nil
}
