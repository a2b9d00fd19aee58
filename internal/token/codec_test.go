package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libris-app/libris/domain"
	liberrors "github.com/libris-app/libris/errors"
)

const testSecret = "test-secret-key-at-least-32-bytes-long"

func newTestCodec() *Codec {
	return NewCodec(testSecret, 10*time.Minute, 30*24*time.Hour)
}

func TestMintAndVerify(t *testing.T) {
	codec := newTestCodec()

	id, signed, expiresAt, err := codec.Mint("user-1", domain.RoleLibrarian, domain.TokenKindAccess)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NotEmpty(t, signed)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), expiresAt, 5*time.Second)

	claims, err := codec.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, id, claims.ID)
	assert.Equal(t, string(domain.RoleLibrarian), claims.Role)
	assert.Equal(t, domain.TokenKindAccess, claims.TokenKind())
}

func TestMintRefreshTTL(t *testing.T) {
	codec := newTestCodec()

	_, _, expiresAt, err := codec.Mint("user-1", domain.RoleMember, domain.TokenKindRefresh)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), expiresAt, 5*time.Second)
}

func TestMintTokenIDsNeverReused(t *testing.T) {
	codec := newTestCodec()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, _, _, err := codec.Mint("user-1", domain.RoleMember, domain.TokenKindAccess)
		require.NoError(t, err)
		require.False(t, seen[id], "token id %s minted twice", id)
		seen[id] = true
	}
}

func TestVerifyExpired(t *testing.T) {
	codec := NewCodec(testSecret, -time.Minute, 30*24*time.Hour)

	_, signed, _, err := codec.Mint("user-1", domain.RoleMember, domain.TokenKindAccess)
	require.NoError(t, err)

	_, err = codec.Verify(signed)
	assert.ErrorIs(t, err, liberrors.ErrTokenExpired)
}

func TestVerifyWrongSecret(t *testing.T) {
	codec := newTestCodec()
	other := NewCodec("a-completely-different-signing-secret", 10*time.Minute, time.Hour)

	_, signed, _, err := other.Mint("user-1", domain.RoleMember, domain.TokenKindAccess)
	require.NoError(t, err)

	_, err = codec.Verify(signed)
	assert.ErrorIs(t, err, liberrors.ErrInvalidSignature)
}

func TestVerifyTampered(t *testing.T) {
	codec := newTestCodec()

	_, signed, _, err := codec.Mint("user-1", domain.RoleMember, domain.TokenKindAccess)
	require.NoError(t, err)

	// Flip one byte in the middle of the token. Depending on where it lands
	// this reads as a bad signature or as garbage, but never as valid.
	for i := len(signed) / 3; i < 2*len(signed)/3; i += 7 {
		tampered := []byte(signed)
		if tampered[i] == 'A' {
			tampered[i] = 'B'
		} else {
			tampered[i] = 'A'
		}
		_, err = codec.Verify(string(tampered))
		require.Error(t, err, "tampered token at offset %d was accepted", i)
		require.True(t,
			errors.Is(err, liberrors.ErrInvalidSignature) ||
				errors.Is(err, liberrors.ErrMalformedToken) ||
				errors.Is(err, liberrors.ErrTokenExpired),
			"unexpected error class: %v", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	codec := newTestCodec()

	for _, input := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		_, err := codec.Verify(input)
		assert.ErrorIs(t, err, liberrors.ErrMalformedToken, "input %q", input)
	}
}

func TestVerifyUnknownKind(t *testing.T) {
	codec := newTestCodec()

	claims := &Claims{
		Role: string(domain.RoleMember),
		Kind: "session",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ID:        "some-id",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = codec.Verify(signed)
	assert.ErrorIs(t, err, liberrors.ErrMalformedToken)
}

func TestVerifyUnknownRole(t *testing.T) {
	codec := newTestCodec()

	claims := &Claims{
		Role: "superuser",
		Kind: string(domain.TokenKindAccess),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ID:        "some-id",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = codec.Verify(signed)
	assert.ErrorIs(t, err, liberrors.ErrMalformedToken)
}

func TestVerifyRejectsAlgNone(t *testing.T) {
	codec := newTestCodec()

	claims := &Claims{
		Kind: string(domain.TokenKindAccess),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ID:        "some-id",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.Verify(unsigned)
	assert.Error(t, err)
}
