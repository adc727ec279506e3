package shopapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrNotFound indicates a 404 response.
	ErrNotFound = errors.New("shop api: not found")
	// ErrUnauthorized indicates missing or rejected credentials.
	ErrUnauthorized = errors.New("shop api: unauthorized")
	// ErrRequestFailed indicates a transport failure or non-2xx response.
	ErrRequestFailed = errors.New("shop api: request failed")
)

// StatusError carries the status and body of a failed response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	kind       error
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// Unwrap exposes the sentinel matching the status.
func (e *StatusError) Unwrap() error {
	return e.kind
}

func statusError(method, path string, resp *resty.Response) error {
	kind := ErrRequestFailed
	switch resp.StatusCode() {
	case http.StatusNotFound:
		kind = ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = ErrUnauthorized
	}
	return &StatusError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode(),
		Body:       resp.String(),
		kind:       kind,
	}
}

// IsNotFound reports whether err is a 404 from the shop API.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
