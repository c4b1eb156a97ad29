package auth

import "errors"

var (
	// ErrValidation marks malformed input (bad address format, bad request
	// shape). Always a client error, never retried.
	ErrValidation = errors.New("validation failed")

	// ErrAuthentication marks any credential that failed to verify. Kept
	// deliberately coarse so callers cannot distinguish why a credential was
	// rejected.
	ErrAuthentication = errors.New("authentication failed")

	// ErrExternalService marks an unreachable or erroring upstream provider.
	// May be transient; authentication is never granted in the interim.
	ErrExternalService = errors.New("external service unavailable")

	// ErrNotConfigured marks a provider that is disabled in this deployment,
	// as opposed to one that rejected a credential.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrMisconfigured marks invalid startup configuration. Fatal: the
	// process must not serve authenticated routes.
	ErrMisconfigured = errors.New("auth config invalid")
)
