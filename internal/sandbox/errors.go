package sandbox

import "errors"

var (
	// ErrNotFound indicates an unknown conversation or order.
	ErrNotFound = errors.New("sandbox: not found")
	// ErrForbidden indicates the user does not take part in the conversation.
	ErrForbidden = errors.New("sandbox: forbidden")
)
