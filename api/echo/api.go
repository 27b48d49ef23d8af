//nolint:varnamelen
package echo

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	token "github.com/pilab-dev/shadow-token"
	"github.com/pilab-dev/shadow-token/api"
	"github.com/pilab-dev/shadow-token/domain"
	"github.com/pilab-dev/shadow-token/errors"
	"github.com/pilab-dev/shadow-token/internal/audit"
	"github.com/rs/zerolog/log"
)

// TokenAPI exposes the token service over HTTP.
type TokenAPI struct {
	service *token.Service
	audit   *audit.Logger
}

// NewTokenAPI initializes the token API.
func NewTokenAPI(service *token.Service) *TokenAPI {
	return &TokenAPI{service: service}
}

// WithAudit records the collection wide operations to a.
func (ta *TokenAPI) WithAudit(a *audit.Logger) *TokenAPI {
	ta.audit = a
	return ta
}

// RegisterRoutes registers the token routes. adminMiddleware guards the
// routes that operate on the whole collection.
func (ta *TokenAPI) RegisterRoutes(e *echo.Echo, adminMiddleware ...echo.MiddlewareFunc) {
	e.POST("/tokens", ta.CreateTokenHandler)
	e.GET("/tokens/:token", ta.CheckTokenHandler)
	e.POST("/tokens/:token/touch", ta.TouchTokenHandler)
	e.DELETE("/tokens/:token", ta.DeleteTokenHandler)

	e.DELETE("/users/:user/tokens", ta.DeleteUserTokensHandler, adminMiddleware...)
	e.POST("/sweeps", ta.SweepHandler, adminMiddleware...)
	e.GET("/cleanup", ta.CleanupStatusHandler, adminMiddleware...)
	e.PUT("/cleanup", ta.StartCleanupHandler, adminMiddleware...)
	e.DELETE("/cleanup", ta.StopCleanupHandler, adminMiddleware...)
	e.PUT("/config/timeouts", ta.SetTimeoutsHandler, adminMiddleware...)
}

// CreateTokenHandler stores a new token. Without a token in the body the
// server generates one, which requires a configured generator.
func (ta *TokenAPI) CreateTokenHandler(c echo.Context) error {
	var req api.CreateTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("Malformed request body"))
	}
	if req.User == "" {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("user is required"))
	}

	opts := timeoutOptions(req.SessionTimeoutMs, req.FinalTimeoutMs)
	ctx := c.Request().Context()

	var (
		value string
		err   error
	)
	if req.Token == "" {
		value, err = ta.service.IssueToken(ctx, req.Context, req.User, req.Roles, opts...)
	} else {
		value, err = ta.service.CreateToken(ctx, req.Token, req.Context, req.User, req.Roles, opts...)
	}
	if err != nil {
		return errorResponse(c, err)
	}

	log.Info().Str("user", req.User).Str("context", req.Context).Msg("Token created")
	return c.JSON(http.StatusCreated, api.TokenResponse{Token: value})
}

// CheckTokenHandler answers 200 with the token details when the token is
// live and carries the optional role, 404 otherwise. touch=true refreshes a
// live token.
func (ta *TokenAPI) CheckTokenHandler(c echo.Context) error {
	value := c.Param("token")
	role := c.QueryParam("role")
	touch, _ := strconv.ParseBool(c.QueryParam("touch"))
	ctx := c.Request().Context()

	found, err := ta.service.CheckToken(ctx, value, role, touch)
	if err != nil {
		return errorResponse(c, err)
	}
	if found == "" {
		return c.JSON(http.StatusNotFound, errors.NewTokenNotFound())
	}

	record, err := ta.service.GetToken(ctx, found)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, tokenInfo(record))
}

// TouchTokenHandler refreshes a token. Touching an unknown token succeeds.
func (ta *TokenAPI) TouchTokenHandler(c echo.Context) error {
	var req api.TouchTokenRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("Malformed request body"))
		}
	}

	value, err := ta.service.TouchToken(c.Request().Context(), c.Param("token"),
		timeoutOptions(req.SessionTimeoutMs, req.FinalTimeoutMs)...)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, api.TokenResponse{Token: value})
}

// DeleteTokenHandler removes a token. Deleting an unknown token succeeds.
func (ta *TokenAPI) DeleteTokenHandler(c echo.Context) error {
	deleted, err := ta.service.DeleteToken(c.Request().Context(), c.Param("token"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, api.DeleteTokenResponse{Deleted: deleted})
}

// DeleteUserTokensHandler logs a user out everywhere.
func (ta *TokenAPI) DeleteUserTokensHandler(c echo.Context) error {
	ctx := c.Request().Context()
	n, err := ta.service.DeleteUserTokens(ctx, c.Param("user"))
	ta.audit.Log(ctx, audit.ActionDeleteUserTokens, c.Param("user"), fmt.Sprintf("deleted=%d", n), err)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, api.DeleteUserTokensResponse{Deleted: n})
}

// SweepHandler runs one sweep. 409 means another sweep was in flight.
func (ta *TokenAPI) SweepHandler(c echo.Context) error {
	ctx := c.Request().Context()
	ran, err := ta.service.DeleteExpiredTokens(ctx)
	ta.audit.Log(ctx, audit.ActionSweep, ta.service.CollectionName(), fmt.Sprintf("ran=%t", ran), err)
	if err != nil {
		return errorResponse(c, err)
	}
	if !ran {
		return c.JSON(http.StatusConflict, errors.NewSweepInProgress())
	}
	return c.JSON(http.StatusOK, api.SweepResponse{Ran: true})
}

func (ta *TokenAPI) CleanupStatusHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, cleanupResponse(ta.service.CleanupStatus()))
}

// StartCleanupHandler (re)starts periodic sweeping.
func (ta *TokenAPI) StartCleanupHandler(c echo.Context) error {
	var req api.CleanupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("Malformed request body"))
	}
	if req.FrequencyMs <= 0 {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("frequency_ms must be positive"))
	}

	frequency := ta.service.Cleanup(time.Duration(req.FrequencyMs) * time.Millisecond)
	ta.audit.Log(c.Request().Context(), audit.ActionCleanupStart, ta.service.CollectionName(), "frequency="+frequency.String(), nil)
	return c.JSON(http.StatusOK, cleanupResponse(frequency))
}

func (ta *TokenAPI) StopCleanupHandler(c echo.Context) error {
	ta.service.StopCleanup()
	ta.audit.Log(c.Request().Context(), audit.ActionCleanupStop, ta.service.CollectionName(), "", nil)
	return c.JSON(http.StatusOK, cleanupResponse(0))
}

// SetTimeoutsHandler changes the default timeouts used by later creates and touches.
func (ta *TokenAPI) SetTimeoutsHandler(c echo.Context) error {
	var req api.TimeoutsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("Malformed request body"))
	}
	if req.SessionTimeoutMs < 0 || req.FinalTimeoutMs < 0 {
		return errorResponse(c, token.ErrInvalidTimeout)
	}

	if req.SessionTimeoutMs > 0 {
		if err := ta.service.SetSessionTimeout(time.Duration(req.SessionTimeoutMs) * time.Millisecond); err != nil {
			return errorResponse(c, err)
		}
	}
	if req.FinalTimeoutMs > 0 {
		if err := ta.service.SetFinalTimeout(time.Duration(req.FinalTimeoutMs) * time.Millisecond); err != nil {
			return errorResponse(c, err)
		}
	}

	resp := api.TimeoutsResponse{
		SessionTimeoutMs: ta.service.SessionTimeout().Milliseconds(),
		FinalTimeoutMs:   ta.service.FinalTimeout().Milliseconds(),
	}
	ta.audit.Log(c.Request().Context(), audit.ActionSetTimeouts, ta.service.CollectionName(),
		fmt.Sprintf("session_ms=%d final_ms=%d", resp.SessionTimeoutMs, resp.FinalTimeoutMs), nil)
	return c.JSON(http.StatusOK, resp)
}

func timeoutOptions(sessionMs, finalMs int64) []token.TimeoutOption {
	var opts []token.TimeoutOption
	if sessionMs > 0 {
		opts = append(opts, token.WithSessionTimeout(time.Duration(sessionMs)*time.Millisecond))
	}
	if finalMs > 0 {
		opts = append(opts, token.WithFinalTimeout(time.Duration(finalMs)*time.Millisecond))
	}
	return opts
}

func cleanupResponse(frequency time.Duration) api.CleanupResponse {
	return api.CleanupResponse{Running: frequency > 0, FrequencyMs: frequency.Milliseconds()}
}

func tokenInfo(t *domain.Token) api.TokenInfoResponse {
	return api.TokenInfoResponse{
		Token:           t.Token,
		Context:         t.Context,
		User:            t.User,
		Roles:           t.Roles,
		Created:         t.Created,
		Updated:         t.Updated,
		Expiration:      t.Expiration,
		FinalExpiration: t.FinalExpiration,
	}
}

// errorResponse maps service errors onto the JSON error body.
func errorResponse(c echo.Context, err error) error {
	switch {
	case stderrors.Is(err, token.ErrDuplicateToken):
		return c.JSON(http.StatusConflict, errors.NewInvalidRequest("Token already exists"))
	case stderrors.Is(err, token.ErrStorageFailure):
		log.Error().Err(err).Str("path", c.Path()).Msg("Token storage failure")
		return c.JSON(http.StatusInternalServerError, errors.NewServerError("Token storage unavailable"))
	case stderrors.Is(err, token.ErrInvalidToken):
		return c.JSON(http.StatusBadRequest, errors.NewInvalidToken(err.Error()))
	case stderrors.Is(err, token.ErrTokenNotFound):
		return c.JSON(http.StatusNotFound, errors.NewTokenNotFound())
	case stderrors.Is(err, token.ErrNoGenerator),
		stderrors.Is(err, token.ErrInvalidTimeout),
		stderrors.Is(err, token.ErrInvalidUser):
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest(err.Error()))
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("Token request failed")
		return c.JSON(http.StatusInternalServerError, errors.NewServerError("Internal error"))
	}
}
