package auth

import "errors"

var (
	// ErrNoCredentials indicates neither a token nor a token file is configured.
	ErrNoCredentials = errors.New("auth: no credentials configured")
	// ErrTokenExpired indicates the configured token is past its exp claim.
	ErrTokenExpired = errors.New("auth: token expired")
)
