package auth

import "errors"

var (
	ErrNotLoggedIn        = errors.New("not logged in")
	ErrSessionExpired     = errors.New("session expired")
	ErrAlreadyLoggedIn    = errors.New("already logged in")
	ErrCredentialMismatch = errors.New("credentials do not match")
	ErrMFADisabled        = errors.New("multi-factor auth not enabled")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password does not meet requirements")
)
