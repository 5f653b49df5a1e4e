package auth

import "errors"

var (
	// ErrTokenInvalid is returned for malformed, tampered or expired tokens.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrForbidden is returned when a valid token lacks the required role.
	ErrForbidden = errors.New("auth: insufficient role")

	// ErrNoSecret is returned when issuing a token without a signing secret.
	ErrNoSecret = errors.New("auth: signing secret not configured")
)
