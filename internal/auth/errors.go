package auth

import "errors"

// Domain errors for token handling.
var (
	// ErrTokenInvalid is returned for a token with a bad signature, a wrong
	// algorithm, missing claims or a past expiry.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrSecretTooShort is returned when signing with a secret under
	// MinSecretLength bytes.
	ErrSecretTooShort = errors.New("auth: secret too short")

	// ErrInvalidRole is returned for a role outside the model.
	ErrInvalidRole = errors.New("auth: invalid role")
)
