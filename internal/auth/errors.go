package auth

import "errors"

// Sentinel errors for token handling.
var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrForbidden    = errors.New("auth: insufficient permissions")
	ErrUnknownRole  = errors.New("auth: unknown role")
	ErrNoSecret     = errors.New("auth: signing secret is empty")
)
