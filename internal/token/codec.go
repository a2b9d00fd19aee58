// Package token mints and verifies the signed access/refresh tokens. The
// codec is pure: it never touches the liveness store, so a verified token is
// only trustworthy after the caller has also checked liveness.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/libris-app/libris/domain"
	liberrors "github.com/libris-app/libris/errors"
)

// Claims is the payload carried by every signed token.
type Claims struct {
	Role string `json:"role"`
	Kind string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenKind returns the token kind claim as a domain.TokenKind.
func (c *Claims) TokenKind() domain.TokenKind {
	return domain.TokenKind(c.Kind)
}

// Codec signs and verifies tokens with a shared HMAC secret.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewCodec creates a Codec. TTLs are fixed per token kind for the codec's
// lifetime; the defaults in config are 10 minutes and 30 days.
func NewCodec(secret string, accessTTL, refreshTTL time.Duration) *Codec {
	return &Codec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (c *Codec) ttl(kind domain.TokenKind) time.Duration {
	if kind == domain.TokenKindRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Mint creates a fresh token of the given kind. The returned tokenID is the
// jti embedded in the token; the session layer uses it to key liveness
// records without re-parsing the signed string.
func (c *Codec) Mint(subjectID string, role domain.Role, kind domain.TokenKind) (tokenID, signed string, expiresAt time.Time, err error) {
	now := time.Now()
	expiresAt = now.Add(c.ttl(kind))
	tokenID = uuid.NewString()

	claims := &Claims{
		Role: string(role),
		Kind: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return tokenID, signed, expiresAt, nil
}

// Verify checks the signature and expiry of a signed token and returns its
// claims. Failures map onto the taxonomy sentinels so callers can tell
// "reject outright" (malformed, bad signature) from "correctly expired".
func (c *Codec) Verify(signed string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(signed, &Claims{},
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %w", liberrors.ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%w: %w", liberrors.ErrInvalidSignature, err)
		default:
			return nil, fmt.Errorf("%w: %w", liberrors.ErrMalformedToken, err)
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, liberrors.ErrMalformedToken
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing jti or sub", liberrors.ErrMalformedToken)
	}
	switch claims.TokenKind() {
	case domain.TokenKindAccess, domain.TokenKindRefresh:
	default:
		return nil, fmt.Errorf("%w: unknown token kind %q", liberrors.ErrMalformedToken, claims.Kind)
	}
	if !domain.Role(claims.Role).Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", liberrors.ErrMalformedToken, claims.Role)
	}
	return claims, nil
}
