package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Credential lifecycle errors
	ErrEmailRequired       = errors.New("email is required")
	ErrGenerationExhausted = errors.New("unable to generate a unique credential")
	ErrEmailUnavailable    = errors.New("email delivery is not configured")
	ErrDeliveryFailed      = errors.New("email delivery failed")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")

	// Account state errors
	ErrAccountBlocked     = errors.New("account has been blocked by an administrator")
	ErrDefaultRoleMissing = errors.New("default role is not configured")
)
