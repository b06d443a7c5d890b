package auth

import "errors"

var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidToken indicates the token failed validation. Signature,
	// structure and expiry failures all collapse into this one value.
	ErrInvalidToken = errors.New("auth: invalid token")

	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")

	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")

	// ErrDirectoryUnavailable marks a failed or timed-out directory lookup.
	// Unlike the values above it maps to a 5xx, not a 401.
	ErrDirectoryUnavailable = errors.New("auth: user directory unavailable")
)
