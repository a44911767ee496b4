package app

import "errors"

// Error kinds surfaced by the chat core. Handlers map these to HTTP codes;
// anything wrapped in ErrUnavailable is a transient dependency failure the
// caller may retry with backoff, everything else is a definite rejection.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidState     = errors.New("session is closed")
	ErrUnavailable      = errors.New("dependency unavailable")

	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
)
