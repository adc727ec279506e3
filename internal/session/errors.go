package session

import "errors"

// ErrNotActive indicates an operation that needs an activated session.
var ErrNotActive = errors.New("session not active")
