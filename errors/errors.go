// Package errors defines the authentication error taxonomy. Every failure
// leaving the session core is one of these sentinels (possibly wrapped), so
// callers can route on errors.Is without parsing messages.
package errors

import "errors"

var (
	// ErrMalformedToken means the presented string is not a parseable token,
	// or carries an unknown kind. Never retried.
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidSignature means the token parsed but its signature does not
	// verify against the shared secret.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrTokenExpired means the token's embedded expiry has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked means the token verifies and is unexpired, but has no
	// liveness record in the store. Externally indistinguishable from expiry.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrInvalidRefreshToken means the refresh token was rejected: bad
	// signature, expired, wrong kind, or no longer live.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrSessionPersistence means tokens were minted but their liveness could
	// not be recorded. The mint is discarded; no tokens reach the caller.
	ErrSessionPersistence = errors.New("session could not be persisted")

	// ErrStoreUnavailable means the token store could not be reached within
	// the timeout. Read paths treat this as unauthenticated (fail-closed).
	ErrStoreUnavailable = errors.New("token store unavailable")

	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken is returned by sign-up when the email already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrUserNotFound is returned by user lookups that match no account.
	ErrUserNotFound = errors.New("user not found")
)
