package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/libris-app/libris/cache"
	"github.com/libris-app/libris/domain"
	liberrors "github.com/libris-app/libris/errors"
	"github.com/libris-app/libris/internal/token"
)

// SessionService orchestrates the token lifecycle: issuance of access/refresh
// pairs, request-time trust checks, and revocation. It owns its codec and
// store dependencies; construct one at startup and pass it to the handlers.
type SessionService struct {
	codec  *token.Codec
	store  cache.TokenStore
	users  domain.UserRepository
	hasher PasswordHasher
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	codec *token.Codec,
	store cache.TokenStore,
	users domain.UserRepository,
	hasher PasswordHasher,
) *SessionService {
	return &SessionService{
		codec:  codec,
		store:  store,
		users:  users,
		hasher: hasher,
	}
}

// SignIn mints a refresh token and an access token under it, records both in
// the liveness store, and returns the pair. If any liveness write fails the
// minted tokens are discarded and nothing reaches the caller: a token without
// a liveness record would be unrevocable.
func (s *SessionService) SignIn(ctx context.Context, subjectID string, role domain.Role) (*domain.TokenPair, error) {
	refreshID, signedRefresh, _, err := s.codec.Mint(subjectID, role, domain.TokenKindRefresh)
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}
	if err := s.store.RecordRefreshToken(ctx, subjectID, refreshID); err != nil {
		log.Error().Err(err).Str("subject_id", subjectID).Msg("sign-in: failed to record refresh token liveness")
		return nil, fmt.Errorf("%w: %w", liberrors.ErrSessionPersistence, err)
	}

	accessID, signedAccess, accessExpiresAt, err := s.codec.Mint(subjectID, role, domain.TokenKindAccess)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}
	if err := s.store.RecordAccessToken(ctx, subjectID, accessID, refreshID); err != nil {
		log.Error().Err(err).Str("subject_id", subjectID).Msg("sign-in: failed to record access token liveness")
		// Best effort: don't leave a live refresh token behind for a sign-in
		// the caller will observe as failed.
		if revokeErr := s.store.RevokeRefreshToken(ctx, subjectID, refreshID); revokeErr != nil {
			log.Warn().Err(revokeErr).Str("refresh_id", refreshID).Msg("sign-in: rollback of refresh token failed")
		}
		return nil, fmt.Errorf("%w: %w", liberrors.ErrSessionPersistence, err)
	}

	return &domain.TokenPair{
		AccessToken:     signedAccess,
		RefreshToken:    signedRefresh,
		AccessExpiresAt: accessExpiresAt,
	}, nil
}

// Refresh verifies a refresh token and, if it is still live, mints a new
// access token under the same refresh token id. A revoked refresh token fails
// here even though its signature still verifies until natural expiry.
// Concurrent refreshes are independent mints; multiple access tokens per
// refresh token may coexist.
func (s *SessionService) Refresh(ctx context.Context, signedRefresh string) (*domain.TokenPair, error) {
	claims, err := s.verifyKind(signedRefresh, domain.TokenKindRefresh)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", liberrors.ErrInvalidRefreshToken, err)
	}

	live, err := s.store.IsLive(ctx, domain.TokenKindRefresh, claims.ID)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, liberrors.ErrInvalidRefreshToken
	}

	accessID, signedAccess, accessExpiresAt, err := s.codec.Mint(claims.Subject, domain.Role(claims.Role), domain.TokenKindAccess)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}
	if err := s.store.RecordAccessToken(ctx, claims.Subject, accessID, claims.ID); err != nil {
		log.Error().Err(err).Str("subject_id", claims.Subject).Msg("refresh: failed to record access token liveness")
		return nil, fmt.Errorf("%w: %w", liberrors.ErrSessionPersistence, err)
	}

	return &domain.TokenPair{
		AccessToken:     signedAccess,
		RefreshToken:    signedRefresh,
		AccessExpiresAt: accessExpiresAt,
	}, nil
}

// SignOut revokes the presented refresh token and, by cascade, every access
// token minted under it, including ones held by other tabs or devices.
// Signing out twice is a successful no-op. An expired refresh token also
// succeeds: everything under it is already dead.
func (s *SessionService) SignOut(ctx context.Context, signedRefresh string) error {
	claims, err := s.verifyKind(signedRefresh, domain.TokenKindRefresh)
	if err != nil {
		if errors.Is(err, liberrors.ErrTokenExpired) {
			return nil
		}
		return fmt.Errorf("%w: %w", liberrors.ErrInvalidRefreshToken, err)
	}

	if err := s.store.RevokeRefreshToken(ctx, claims.Subject, claims.ID); err != nil {
		log.Error().Err(err).Str("subject_id", claims.Subject).Msg("sign-out: revocation failed")
		return err
	}
	log.Info().Str("subject_id", claims.Subject).Str("refresh_id", claims.ID).Msg("session revoked")
	return nil
}

// SignOutEverywhere revokes every live refresh token of the subject,
// cascading each one.
func (s *SessionService) SignOutEverywhere(ctx context.Context, subjectID string) error {
	if err := s.store.RevokeAllRefreshTokens(ctx, subjectID); err != nil {
		log.Error().Err(err).Str("subject_id", subjectID).Msg("sign-out-everywhere: revocation failed")
		return err
	}
	log.Info().Str("subject_id", subjectID).Msg("all sessions revoked")
	return nil
}

// Authenticate is the trust gate predicate: signature and expiry first
// (cheap, local), liveness second (one store round-trip). Both must pass. A
// store failure is fail-closed and surfaced as ErrStoreUnavailable so the
// transport can answer with a server error rather than a plain 401.
func (s *SessionService) Authenticate(ctx context.Context, signedAccess string) (*domain.Principal, error) {
	claims, err := s.verifyKind(signedAccess, domain.TokenKindAccess)
	if err != nil {
		return nil, err
	}

	live, err := s.store.IsLive(ctx, domain.TokenKindAccess, claims.ID)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, liberrors.ErrTokenRevoked
	}

	return &domain.Principal{
		SubjectID: claims.Subject,
		Role:      domain.Role(claims.Role),
	}, nil
}

func (s *SessionService) verifyKind(signed string, want domain.TokenKind) (*token.Claims, error) {
	claims, err := s.codec.Verify(signed)
	if err != nil {
		return nil, err
	}
	if claims.TokenKind() != want {
		return nil, fmt.Errorf("%w: %s token where %s expected", liberrors.ErrMalformedToken, claims.Kind, want)
	}
	return claims, nil
}

// SignInWithPassword resolves the account by email, verifies the password,
// and issues a token pair. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *SessionService) SignInWithPassword(ctx context.Context, email, password string) (*domain.TokenPair, *domain.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, liberrors.ErrUserNotFound) {
			return nil, nil, liberrors.ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("resolve user: %w", err)
	}

	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		log.Warn().Str("user_id", user.ID).Msg("sign-in: password mismatch")
		return nil, nil, liberrors.ErrInvalidCredentials
	}

	pair, err := s.SignIn(ctx, user.ID, user.Role)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	user.LastLoginAt = &now
	if err := s.users.UpdateUser(ctx, user); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("sign-in: failed to update last login time")
	}

	return pair, user, nil
}

// CurrentUser resolves an authenticated principal's account record. The
// record may have been deleted since the token was minted; callers treat
// errors.ErrUserNotFound as an unauthenticated request.
func (s *SessionService) CurrentUser(ctx context.Context, subjectID string) (*domain.User, error) {
	return s.users.GetUserByID(ctx, subjectID)
}

// Register creates a new member account with a hashed password.
func (s *SessionService) Register(ctx context.Context, email, name, password string) (*domain.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         domain.RoleMember,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	log.Info().Str("user_id", user.ID).Msg("user registered")
	return user, nil
}
