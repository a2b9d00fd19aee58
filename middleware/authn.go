// Package middleware provides the request-time trust gate: every protected
// route runs the bearer token through signature verification and a liveness
// check before the handler sees the request.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/libris-app/libris/domain"
	liberrors "github.com/libris-app/libris/errors"
	"github.com/libris-app/libris/services"
)

// principalContextKey is the echo context key holding the authenticated
// *domain.Principal.
const principalContextKey = "libris.principal"

// Clients get the same 401 body whether the token was malformed, expired or
// revoked; the distinction stays in the server logs.
var errUnauthenticated = echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")

// RequireAuth authenticates the Authorization: Bearer token on every request
// and stores the resulting principal in the echo context. Store outages are
// answered with 503, never with a silent accept.
func RequireAuth(sessions *services.SessionService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return errUnauthenticated
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return errUnauthenticated
			}

			principal, err := sessions.Authenticate(c.Request().Context(), parts[1])
			if err != nil {
				if errors.Is(err, liberrors.ErrStoreUnavailable) {
					log.Error().Err(err).Msg("authn: liveness check unavailable, failing closed")
					return echo.NewHTTPError(http.StatusServiceUnavailable, "service unavailable")
				}
				log.Debug().Err(err).Msg("authn: token rejected")
				return errUnauthenticated
			}

			c.Set(principalContextKey, principal)
			return next(c)
		}
	}
}

// RequireRole layers a role check on top of RequireAuth. The compared role is
// the mint-time snapshot carried in the token.
func RequireRole(roles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, ok := PrincipalFromContext(c)
			if !ok {
				return errUnauthenticated
			}
			for _, role := range roles {
				if principal.Role == role {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "forbidden")
		}
	}
}

// PrincipalFromContext retrieves the authenticated principal stored by
// RequireAuth.
func PrincipalFromContext(c echo.Context) (*domain.Principal, bool) {
	principal, ok := c.Get(principalContextKey).(*domain.Principal)
	return principal, ok
}
