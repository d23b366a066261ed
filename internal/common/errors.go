// Package common defines sentinel errors and small helpers shared by the
// AuthKeeper server, its repositories and the admin CLI. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound     = errors.New("not found")
	ErrDuplicateEmail = errors.New("duplicate email")

	// Service-level errors.
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrAlreadyLoggedIn = errors.New("already logged in")
	ErrValidation      = errors.New("validation error")
	ErrTooManyAttempts = errors.New("too many attempts")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
