package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libris-app/libris/cache/memory"
	"github.com/libris-app/libris/domain"
	liberrors "github.com/libris-app/libris/errors"
	"github.com/libris-app/libris/internal/token"
	"github.com/libris-app/libris/services"
)

type staticUserRepo struct{}

func (staticUserRepo) CreateUser(context.Context, *domain.User) error { return nil }
func (staticUserRepo) GetUserByID(context.Context, string) (*domain.User, error) {
	return nil, liberrors.ErrUserNotFound
}

func (staticUserRepo) GetUserByEmail(context.Context, string) (*domain.User, error) {
	return nil, liberrors.ErrUserNotFound
}
func (staticUserRepo) UpdateUser(context.Context, *domain.User) error { return nil }

type noopHasher struct{}

func (noopHasher) Hash(password string) (string, error) { return password, nil }
func (noopHasher) Verify(hashed, password string) error { return nil }

func newGate(t *testing.T) *services.SessionService {
	t.Helper()
	store := memory.NewTokenStore(10*time.Minute, time.Hour)
	t.Cleanup(store.Close)
	codec := token.NewCodec("middleware-test-secret-0123456789ab", 10*time.Minute, time.Hour)
	return services.NewSessionService(codec, store, staticUserRepo{}, noopHasher{})
}

func doRequest(e *echo.Echo, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newProtectedEcho(sessions *services.SessionService, extra ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	mw := append([]echo.MiddlewareFunc{RequireAuth(sessions)}, extra...)
	e.GET("/protected", func(c echo.Context) error {
		principal, _ := PrincipalFromContext(c)
		return c.String(http.StatusOK, principal.SubjectID)
	}, mw...)
	return e
}

func TestRequireAuthAcceptsLiveToken(t *testing.T) {
	sessions := newGate(t)
	e := newProtectedEcho(sessions)

	pair, err := sessions.SignIn(context.Background(), "user-1", domain.RoleMember)
	require.NoError(t, err)

	rec := doRequest(e, "Bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())
}

func TestRequireAuthRejectsMissingOrBadHeader(t *testing.T) {
	sessions := newGate(t)
	e := newProtectedEcho(sessions)

	for _, header := range []string{"", "Bearer", "Basic dXNlcjpwYXNz", "Bearer not-a-token"} {
		rec := doRequest(e, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestRequireAuthRejectsRevokedToken(t *testing.T) {
	sessions := newGate(t)
	e := newProtectedEcho(sessions)
	ctx := context.Background()

	pair, err := sessions.SignIn(ctx, "user-1", domain.RoleMember)
	require.NoError(t, err)
	require.NoError(t, sessions.SignOut(ctx, pair.RefreshToken))

	rec := doRequest(e, "Bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	// The body must not leak whether the token was revoked or expired.
	assert.NotContains(t, rec.Body.String(), "revoked")
}

// unavailableStore simulates a liveness store outage on every operation.
type unavailableStore struct{}

func (unavailableStore) RecordRefreshToken(context.Context, string, string) error {
	return liberrors.ErrStoreUnavailable
}

func (unavailableStore) RecordAccessToken(context.Context, string, string, string) error {
	return liberrors.ErrStoreUnavailable
}

func (unavailableStore) IsLive(context.Context, domain.TokenKind, string) (bool, error) {
	return false, liberrors.ErrStoreUnavailable
}

func (unavailableStore) RevokeRefreshToken(context.Context, string, string) error {
	return liberrors.ErrStoreUnavailable
}

func (unavailableStore) RevokeAllRefreshTokens(context.Context, string) error {
	return liberrors.ErrStoreUnavailable
}

func TestRequireAuthStoreOutageAnswers503(t *testing.T) {
	codec := token.NewCodec("middleware-test-secret-0123456789ab", 10*time.Minute, time.Hour)
	sessions := services.NewSessionService(codec, unavailableStore{}, staticUserRepo{}, noopHasher{})
	e := newProtectedEcho(sessions)

	_, signed, _, err := codec.Mint("user-1", domain.RoleMember, domain.TokenKindAccess)
	require.NoError(t, err)

	// A well-signed token must not be accepted while the liveness check is
	// unreachable, and the outage must not masquerade as a bad credential.
	rec := doRequest(e, "Bearer "+signed)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequireRole(t *testing.T) {
	sessions := newGate(t)
	e := newProtectedEcho(sessions, RequireRole(domain.RoleAdmin, domain.RoleLibrarian))
	ctx := context.Background()

	member, err := sessions.SignIn(ctx, "member-1", domain.RoleMember)
	require.NoError(t, err)
	admin, err := sessions.SignIn(ctx, "admin-1", domain.RoleAdmin)
	require.NoError(t, err)

	rec := doRequest(e, "Bearer "+member.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(e, "Bearer "+admin.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}
