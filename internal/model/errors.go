package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrConflict           = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Password hashing errors
	ErrInvalidHashFormat = errors.New("invalid password hash format")
	ErrEmptyPassword     = errors.New("password cannot be empty")

	// Token related errors
	ErrTokenExpired     = errors.New("token expired")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrMalformedToken   = errors.New("malformed token")

	// Key material errors, fatal at startup
	ErrKeyLoad   = errors.New("signing key could not be loaded")
	ErrKeyFormat = errors.New("signing key has invalid format")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)

// IsTokenError reports whether err is one of the token verification failures.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrMalformedToken)
}
