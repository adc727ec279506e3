package message

import "errors"

var (
	// ErrPaginationFailed indicates a history page could not be fetched.
	ErrPaginationFailed = errors.New("pagination failed")
	// ErrStaleConversation indicates a result no longer applies to the timeline's current view.
	ErrStaleConversation = errors.New("stale conversation result")
)
