package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/shadow-token/domain"
	"github.com/pilab-dev/shadow-token/errors"
	"github.com/rs/zerolog/log"
)

// RequireRole rejects requests whose token lacks role. It must run after
// RequireToken. An empty role lets every authenticated request through.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			record, ok := domain.TokenFromContext(c.Request().Context())
			if !ok {
				log.Warn().Str("path", c.Path()).Msg("No authenticated token in context for authorization check.")
				return c.JSON(http.StatusUnauthorized, errors.NewInvalidToken("authentication required"))
			}

			if !record.HasRole(role) {
				log.Warn().Str("path", c.Path()).Str("user", record.User).Strs("roles", record.Roles).
					Str("required_role", role).Msg("Permission denied for user.")
				return c.JSON(http.StatusForbidden, errors.NewAccessDenied("required role not granted"))
			}

			return next(c)
		}
	}
}
