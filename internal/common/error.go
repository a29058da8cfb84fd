// Package common defines shared constants and sentinel errors used across
// the account service layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrInvalidUserData = errors.New("invalid user data")
	ErrWrongPassword   = errors.New("wrong password")

	// Access token errors (invalid signature, malformed or missing claims).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors. ErrTokenExpired is shared by action tokens and
	// access tokens.
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenMismatch = errors.New("token action mismatch")
	ErrUnknownAction = errors.New("unknown action")

	// Broker errors.
	ErrConnection       = errors.New("couldn't connect to message broker")
	ErrMalformedMessage = errors.New("malformed message")
)
