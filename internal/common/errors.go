// Package common defines shared constants, sentinel errors and small helpers
// used across the server and the authctl client. Callers should use errors.Is
// to match the sentinel values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")
	ErrorBadRequest   = errors.New("bad request")

	// ErrInvalidRefreshToken is returned for every failed rotation, whether the
	// token is unknown, expired or already rotated.
	ErrInvalidRefreshToken = fmt.Errorf("%w: invalid refresh token", ErrorUnauthorized)

	// Auth errors (invalid or malformed access token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token has been revoked")
)
