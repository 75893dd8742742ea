package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/practicedesk/console/internal/core/domain"
)

// Auth validates the JWT and injects claims into context.
func Auth(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims := jwt.MapClaims{}
			tkn, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
				if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
					return nil, jwt.ErrTokenSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !tkn.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set("username", claims["username"])
			c.Set("role", claims["role"])
			c.Set("platform_session", claims["sid"])

			return next(c)
		}
	}
}

// IdentitySource reports who is logged into the console right now.
type IdentitySource interface {
	Identity() (domain.AppIdentity, bool)
	PlatformIdentity() domain.PlatformIdentity
}

// Session rejects tokens that no longer match the console's live login: the
// user logged out, someone else logged in, or the platform session changed.
// Must run after Auth.
func Session(src IdentitySource) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username, _ := c.Get("username").(string)
			sid, _ := c.Get("platform_session").(string)

			id, ok := src.Identity()
			if !ok || id.Username != username || src.PlatformIdentity().ID != sid {
				return echo.NewHTTPError(http.StatusUnauthorized, "session ended")
			}
			return next(c)
		}
	}
}
