// Package cache defines the token liveness store. A token is trusted only
// while its liveness record exists; revocation deletes the record long before
// the signature stops verifying.
package cache

import (
	"context"

	"github.com/libris-app/libris/domain"
)

// TokenStore tracks which issued tokens are currently trusted.
//
// Key layout (mirrored by every implementation):
//
//	access_token:{id}                        -> subject id, TTL = access TTL
//	refresh_token:{id}                       -> subject id, TTL = refresh TTL
//	user_refresh_tokens:{subject}            -> set of live refresh ids
//	user_access_tokens:{subject}:{refreshID} -> set of access ids minted under refreshID
//
// All methods are safe for concurrent use. Revocations are idempotent:
// revoking an absent token is a successful no-op.
type TokenStore interface {
	// RecordRefreshToken marks a freshly minted refresh token as live and
	// adds it to the subject's refresh set, as one batch.
	RecordRefreshToken(ctx context.Context, subjectID, refreshID string) error

	// RecordAccessToken marks a freshly minted access token as live and
	// tracks it under the refresh token it was minted from.
	RecordAccessToken(ctx context.Context, subjectID, accessID, refreshID string) error

	// IsLive reports whether the token still has a liveness record. A store
	// failure is returned as an error wrapping errors.ErrStoreUnavailable,
	// never as a silent false.
	IsLive(ctx context.Context, kind domain.TokenKind, tokenID string) (bool, error)

	// RevokeRefreshToken deletes the refresh token's record and cascades to
	// every access token minted under it, as one best-effort-atomic batch.
	RevokeRefreshToken(ctx context.Context, subjectID, refreshID string) error

	// RevokeAllRefreshTokens revokes every live refresh token of a subject,
	// cascading each one ("sign out everywhere").
	RevokeAllRefreshTokens(ctx context.Context, subjectID string) error
}
