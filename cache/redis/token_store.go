// Package redis implements the token liveness store on Redis. All shared
// session state lives here; the server processes themselves stay stateless.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/libris-app/libris/cache"
	"github.com/libris-app/libris/domain"
	liberrors "github.com/libris-app/libris/errors"
)

// TokenStore implements cache.TokenStore using Redis.
type TokenStore struct {
	client     *redis.Client
	prefix     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	timeout    time.Duration
}

// NewTokenStore creates a new [TokenStore]. The client is shared and pooled;
// every call gets its own bounded timeout so a hung store fails closed
// instead of hanging request handlers.
func NewTokenStore(client *redis.Client, prefix string, accessTTL, refreshTTL, timeout time.Duration) *TokenStore {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &TokenStore{
		client:     client,
		prefix:     prefix,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		timeout:    timeout,
	}
}

func (r *TokenStore) livenessKey(kind domain.TokenKind, tokenID string) string {
	return fmt.Sprintf("%s:%s_token:%s", r.prefix, kind, tokenID)
}

func (r *TokenStore) refreshSetKey(subjectID string) string {
	return fmt.Sprintf("%s:user_refresh_tokens:%s", r.prefix, subjectID)
}

func (r *TokenStore) accessSetKey(subjectID, refreshID string) string {
	return fmt.Sprintf("%s:user_access_tokens:%s:%s", r.prefix, subjectID, refreshID)
}

func (r *TokenStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", liberrors.ErrStoreUnavailable, op, err)
}

// RecordRefreshToken sets the refresh liveness key and adds the id to the
// subject's refresh set as one pipelined batch.
func (r *TokenStore) RecordRefreshToken(ctx context.Context, subjectID, refreshID string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.livenessKey(domain.TokenKindRefresh, refreshID), subjectID, r.refreshTTL)
		pipe.SAdd(ctx, r.refreshSetKey(subjectID), refreshID)
		// The set outlives no member: its TTL is pushed out on every mint.
		pipe.Expire(ctx, r.refreshSetKey(subjectID), r.refreshTTL)
		return nil
	})
	if err != nil {
		return storeErr("record refresh token", err)
	}
	return nil
}

// RecordAccessToken sets the access liveness key and tracks the id in the
// per-refresh-token access set, as one pipelined batch.
func (r *TokenStore) RecordAccessToken(ctx context.Context, subjectID, accessID, refreshID string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.livenessKey(domain.TokenKindAccess, accessID), subjectID, r.accessTTL)
		pipe.SAdd(ctx, r.accessSetKey(subjectID, refreshID), accessID)
		// The set must survive until the parent refresh token dies, so the
		// cascade can still find stale members.
		pipe.Expire(ctx, r.accessSetKey(subjectID, refreshID), r.refreshTTL)
		return nil
	})
	if err != nil {
		return storeErr("record access token", err)
	}
	return nil
}

// IsLive checks for the token's liveness key.
func (r *TokenStore) IsLive(ctx context.Context, kind domain.TokenKind, tokenID string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.client.Exists(ctx, r.livenessKey(kind, tokenID)).Result()
	if err != nil {
		return false, storeErr("liveness check", err)
	}
	return n > 0, nil
}

// RevokeRefreshToken deletes the refresh token's liveness record and every
// access token tracked under it. The reads happen first, then all deletions
// go out as one pipelined batch; a crash between the two leaves orphaned
// access records that die on their own TTL within the access lifetime.
func (r *TokenStore) RevokeRefreshToken(ctx context.Context, subjectID, refreshID string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	accessSet := r.accessSetKey(subjectID, refreshID)
	accessIDs, err := r.client.SMembers(ctx, accessSet).Result()
	if err != nil {
		return storeErr("enumerate access tokens", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, accessID := range accessIDs {
			pipe.Del(ctx, r.livenessKey(domain.TokenKindAccess, accessID))
		}
		pipe.Del(ctx, accessSet)
		pipe.Del(ctx, r.livenessKey(domain.TokenKindRefresh, refreshID))
		pipe.SRem(ctx, r.refreshSetKey(subjectID), refreshID)
		return nil
	})
	if err != nil {
		return storeErr("revoke refresh token", err)
	}
	return nil
}

// RevokeAllRefreshTokens cascades revocation over every refresh token in the
// subject's set, then drops the set itself.
func (r *TokenStore) RevokeAllRefreshTokens(ctx context.Context, subjectID string) error {
	enumCtx, cancel := r.withTimeout(ctx)
	refreshIDs, err := r.client.SMembers(enumCtx, r.refreshSetKey(subjectID)).Result()
	cancel()
	if err != nil {
		return storeErr("enumerate refresh tokens", err)
	}

	for _, refreshID := range refreshIDs {
		if err := r.RevokeRefreshToken(ctx, subjectID, refreshID); err != nil {
			return err
		}
	}

	delCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.client.Del(delCtx, r.refreshSetKey(subjectID)).Err(); err != nil {
		return storeErr("clear refresh token set", err)
	}
	return nil
}

var _ cache.TokenStore = (*TokenStore)(nil)
