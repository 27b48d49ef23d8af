package middleware

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/shadow-token/domain"
	"github.com/pilab-dev/shadow-token/errors"
	"github.com/rs/zerolog/log"
)

// ErrNoCredentials is returned by BearerToken for a missing header.
var ErrNoCredentials = stderrors.New("no credentials provided")

// TokenChecker is the part of the token service the middleware needs.
type TokenChecker interface {
	CheckToken(ctx context.Context, token, role string, touch bool) (string, error)
	GetToken(ctx context.Context, token string) (*domain.Token, error)
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrNoCredentials
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", stderrors.New("invalid authorization header format: expected Bearer token")
	}
	return parts[1], nil
}

// RequireToken rejects requests without a live bearer token. The stored
// record is put into the request context, see domain.TokenFromContext.
// With touch set every authenticated request slides the expiration.
func RequireToken(checker TokenChecker, touch bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			value, err := BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errors.NewInvalidToken(err.Error()))
			}

			ctx := c.Request().Context()
			found, err := checker.CheckToken(ctx, value, "", touch)
			if err != nil {
				log.Error().Err(err).Msg("Token check failed")
				return c.JSON(http.StatusServiceUnavailable, errors.NewTemporarilyUnavailable("Token storage unavailable"))
			}
			if found == "" {
				return c.JSON(http.StatusUnauthorized, errors.NewInvalidToken("token expired or revoked"))
			}

			record, err := checker.GetToken(ctx, found)
			if err != nil {
				// Expired or deleted between the check and the read.
				return c.JSON(http.StatusUnauthorized, errors.NewInvalidToken("token expired or revoked"))
			}

			c.SetRequest(c.Request().WithContext(domain.WithToken(ctx, record)))
			return next(c)
		}
	}
}
