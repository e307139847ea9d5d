package domain

import "errors"

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrMissingCredentials    = errors.New("email and password are required")
	ErrNoOrganizationContext = errors.New("organization context required")
	ErrSessionRejected       = errors.New("session rejected")
	ErrUnavailable           = errors.New("authentication service unavailable")
	ErrTooManyAttempts       = errors.New("too many login attempts")
)
