package channel

import "errors"

var (
	// ErrChannelUnavailable indicates the event channel could not be opened or is not joined.
	ErrChannelUnavailable = errors.New("channel unavailable")
	// ErrUnauthorized indicates the server rejected the socket credentials.
	ErrUnauthorized = errors.New("channel unauthorized")
	// ErrInvalidMessage indicates an outgoing message failed validation.
	ErrInvalidMessage = errors.New("invalid outgoing message")
)
