package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echoapi "github.com/pilab-dev/shadow-token/api/echo"
	"github.com/pilab-dev/shadow-token/config"
	"github.com/pilab-dev/shadow-token/internal/app"
	"github.com/pilab-dev/shadow-token/internal/audit"
	"github.com/pilab-dev/shadow-token/internal/metrics"
	"github.com/pilab-dev/shadow-token/internal/server"
	"github.com/pilab-dev/shadow-token/internal/telemetry"
	"github.com/pilab-dev/shadow-token/log"
	"github.com/pilab-dev/shadow-token/middleware"
	"github.com/pilab-dev/shadow-token/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
		zerolog.New(os.Stdout).With().Timestamp().Logger().Warn().
			Str("configured_log_level", cfg.LogLevel).
			Str("fallback_log_level", logLevel.String()).
			Err(parseErr).
			Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}
	appLogger := log.NewZerologAdapter(logLevel, cfg.LogPretty)
	ctx := context.Background()

	appLogger.Info(ctx, "Starting tokend...", map[string]interface{}{
		"http_addr":        cfg.HTTPAddr,
		"storage_backend":  cfg.StorageBackend,
		"collection":       cfg.Collection,
		"session_timeout":  cfg.SessionTimeout.String(),
		"final_timeout":    cfg.FinalTimeout.String(),
		"final_policy":     cfg.FinalPolicy,
		"cleanup_interval": cfg.CleanupInterval.String(),
		"token_generator":  cfg.TokenGenerator,
		"log_level":        cfg.LogLevel,
	})

	var tracerProvider *sdktrace.TracerProvider
	if cfg.TracingEnabled {
		tracerProvider, err = tracing.InitTracerProvider(cfg.OtelServiceName)
		if err != nil {
			appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err)
		}
		appLogger.Info(ctx, "TracerProvider initialized.")
	}

	var (
		m             *metrics.Metrics
		promHTTP      http.Handler
		meterProvider *sdkmetric.MeterProvider
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		promHTTP = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})

		meterProvider, err = telemetry.InitMeterProvider(reg)
		if err != nil {
			appLogger.Fatal(ctx, "Failed to initialize MeterProvider", err)
		}
	}

	store, err := app.OpenStore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to open token storage", err, map[string]interface{}{"backend": cfg.StorageBackend})
	}

	svc, err := app.NewService(cfg, store, appLogger, m)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to build token service", err)
	}
	if cfg.CleanupInterval > 0 {
		svc.Cleanup(cfg.CleanupInterval)
	}

	var adminMW []echo.MiddlewareFunc
	if cfg.AdminRole != "" {
		adminMW = append(adminMW, middleware.RequireToken(svc, true), middleware.RequireRole(cfg.AdminRole))
	}

	tokenAPI := echoapi.NewTokenAPI(svc)
	if cfg.AuditEnabled {
		tokenAPI.WithAudit(audit.New(os.Stdout, cfg.OtelServiceName))
	}

	httpServer := server.NewHTTPServer(cfg, appLogger, tokenAPI, server.Options{
		AdminMiddleware: adminMW,
		Metrics:         promHTTP,
		Health:          store.Ping,
	})
	go func() {
		appLogger.Info(ctx, fmt.Sprintf("HTTP server listening on %s", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(ctx, "Failed to start HTTP server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit

	appLogger.Info(ctx, fmt.Sprintf("Received signal: %v. Shutting down server...", receivedSignal))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}

	// Waits for a running sweep before the storage goes away.
	if err := svc.Close(); err != nil {
		appLogger.Error(shutdownCtx, "Token service shutdown error", err)
	}

	telemetry.Shutdown(shutdownCtx, meterProvider)

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err)
		}
	}

	if err := store.Close(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "Token storage close error", err)
	}

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")
}
