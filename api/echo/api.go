// Package echo exposes the session lifecycle over HTTP. Access tokens travel
// as Authorization: Bearer headers, refresh tokens as an HttpOnly cookie.
package echo

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/libris-app/libris/domain"
	liberrors "github.com/libris-app/libris/errors"
	"github.com/libris-app/libris/middleware"
	"github.com/libris-app/libris/services"
)

// RefreshCookieName is the cookie carrying the signed refresh token.
const RefreshCookieName = "libris_refresh_token"

// AuthAPI holds the auth route handlers and their dependencies.
type AuthAPI struct {
	sessions      *services.SessionService
	refreshTTL    time.Duration
	secureCookies bool
}

// NewAuthAPI initializes the auth API.
func NewAuthAPI(sessions *services.SessionService, refreshTTL time.Duration, secureCookies bool) *AuthAPI {
	return &AuthAPI{
		sessions:      sessions,
		refreshTTL:    refreshTTL,
		secureCookies: secureCookies,
	}
}

// RegisterRoutes registers the auth routes.
func (a *AuthAPI) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/auth")
	g.POST("/sign-up", a.SignUpHandler)
	g.POST("/sign-in", a.SignInHandler)
	g.POST("/refresh", a.RefreshHandler)
	g.POST("/sign-out", a.SignOutHandler)

	authed := g.Group("", middleware.RequireAuth(a.sessions))
	authed.POST("/sign-out-all", a.SignOutAllHandler)
	authed.GET("/me", a.MeHandler)
}

type signUpRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type userResponse struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Name  string      `json:"name,omitempty"`
	Role  domain.Role `json:"role"`
}

// Client-facing error bodies are deliberately generic: malformed, expired and
// revoked tokens all read the same.
var (
	errBodyUnauthenticated = echo.Map{"error": "unauthenticated"}
	errBodyServer          = echo.Map{"error": "server_error"}
	errBodyBadRequest      = echo.Map{"error": "invalid_request"}
)

// SignUpHandler registers a new member account.
func (a *AuthAPI) SignUpHandler(c echo.Context) error {
	var req signUpRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBodyBadRequest)
	}
	if req.Email == "" || len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, errBodyBadRequest)
	}

	user, err := a.sessions.Register(c.Request().Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, liberrors.ErrEmailTaken) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email_taken"})
		}
		log.Error().Err(err).Msg("sign-up failed")
		return c.JSON(http.StatusInternalServerError, errBodyServer)
	}

	return c.JSON(http.StatusCreated, userResponse{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
	})
}

// SignInHandler verifies credentials and issues a token pair. The refresh
// token is set as an HttpOnly cookie; the access token goes in the body.
func (a *AuthAPI) SignInHandler(c echo.Context) error {
	var req signInRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBodyBadRequest)
	}

	pair, _, err := a.sessions.SignInWithPassword(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, liberrors.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, errBodyUnauthenticated)
		}
		log.Error().Err(err).Msg("sign-in failed")
		return c.JSON(http.StatusInternalServerError, errBodyServer)
	}

	a.setRefreshCookie(c, pair.RefreshToken)
	return c.JSON(http.StatusOK, a.tokenResponse(pair))
}

// RefreshHandler mints a new access token under the presented refresh token.
func (a *AuthAPI) RefreshHandler(c echo.Context) error {
	signedRefresh := a.refreshTokenFrom(c)
	if signedRefresh == "" {
		return c.JSON(http.StatusUnauthorized, errBodyUnauthenticated)
	}

	pair, err := a.sessions.Refresh(c.Request().Context(), signedRefresh)
	if err != nil {
		switch {
		case errors.Is(err, liberrors.ErrStoreUnavailable),
			errors.Is(err, liberrors.ErrSessionPersistence):
			log.Error().Err(err).Msg("refresh failed on store")
			return c.JSON(http.StatusInternalServerError, errBodyServer)
		default:
			return c.JSON(http.StatusUnauthorized, errBodyUnauthenticated)
		}
	}

	return c.JSON(http.StatusOK, a.tokenResponse(pair))
}

// SignOutHandler revokes the presented refresh token and every access token
// minted under it, then clears the cookie. Repeated sign-outs succeed.
func (a *AuthAPI) SignOutHandler(c echo.Context) error {
	signedRefresh := a.refreshTokenFrom(c)
	if signedRefresh == "" {
		return c.JSON(http.StatusUnauthorized, errBodyUnauthenticated)
	}

	if err := a.sessions.SignOut(c.Request().Context(), signedRefresh); err != nil {
		if errors.Is(err, liberrors.ErrStoreUnavailable) {
			log.Error().Err(err).Msg("sign-out failed on store")
			return c.JSON(http.StatusInternalServerError, errBodyServer)
		}
		return c.JSON(http.StatusUnauthorized, errBodyUnauthenticated)
	}

	a.clearRefreshCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// SignOutAllHandler revokes every session of the authenticated user.
func (a *AuthAPI) SignOutAllHandler(c echo.Context) error {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errBodyUnauthenticated)
	}

	if err := a.sessions.SignOutEverywhere(c.Request().Context(), principal.SubjectID); err != nil {
		log.Error().Err(err).Msg("sign-out-all failed")
		return c.JSON(http.StatusInternalServerError, errBodyServer)
	}

	a.clearRefreshCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// MeHandler resolves the authenticated principal's account and returns it.
// A token whose account has since been deleted gets the generic 401.
func (a *AuthAPI) MeHandler(c echo.Context) error {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errBodyUnauthenticated)
	}

	user, err := a.sessions.CurrentUser(c.Request().Context(), principal.SubjectID)
	if err != nil {
		if errors.Is(err, liberrors.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, errBodyUnauthenticated)
		}
		log.Error().Err(err).Str("user_id", principal.SubjectID).Msg("me: user lookup failed")
		return c.JSON(http.StatusInternalServerError, errBodyServer)
	}

	return c.JSON(http.StatusOK, userResponse{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
	})
}

func (a *AuthAPI) tokenResponse(pair *domain.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(pair.AccessExpiresAt).Seconds()),
	}
}

// refreshTokenFrom reads the refresh token from the cookie, falling back to
// the request body for non-browser clients.
func (a *AuthAPI) refreshTokenFrom(c echo.Context) string {
	if cookie, err := c.Cookie(RefreshCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	var req refreshRequest
	if err := c.Bind(&req); err == nil {
		return req.RefreshToken
	}
	return ""
}

func (a *AuthAPI) setRefreshCookie(c echo.Context, signedRefresh string) {
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookieName,
		Value:    signedRefresh,
		Path:     "/auth",
		MaxAge:   int(a.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *AuthAPI) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
