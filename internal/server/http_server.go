package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoapi "github.com/pilab-dev/shadow-token/api/echo"
	"github.com/pilab-dev/shadow-token/config"
	"github.com/pilab-dev/shadow-token/errors"
	"github.com/pilab-dev/shadow-token/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

// Options carries the optional parts of the HTTP server.
type Options struct {
	// AdminMiddleware guards the collection wide routes.
	AdminMiddleware []echo.MiddlewareFunc
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	// Health backs /healthz when set.
	Health func(ctx context.Context) error
}

// NewHTTPServer creates the echo based HTTP server of tokend.
func NewHTTPServer(cfg *config.ServerConfig, appLogger log.Logger, tokenAPI *echoapi.TokenAPI, opts Options) *http.Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := map[string]interface{}{
				"method":  v.Method,
				"path":    v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
				"ip":      v.RemoteIP,
			}
			if v.Error != nil {
				appLogger.Error(c.Request().Context(), "HTTP Request failed", v.Error, fields)
			} else {
				appLogger.Debug(c.Request().Context(), "HTTP Request", fields)
			}
			return nil
		},
	}))
	if cfg.TracingEnabled {
		e.Use(otelecho.Middleware(cfg.OtelServiceName))
	}

	e.GET("/healthz", func(c echo.Context) error {
		if opts.Health != nil {
			if err := opts.Health(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, errors.NewTemporarilyUnavailable("storage unreachable"))
			}
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}

	tokenAPI.RegisterRoutes(e, opts.AdminMiddleware...)

	return &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      e,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
