package conversation

import "errors"

// ErrConversationUnavailable indicates the shop conversation could not be found or created.
var ErrConversationUnavailable = errors.New("conversation unavailable")
