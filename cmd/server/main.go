package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"deep-research/internal/config"
	"deep-research/internal/di"
	"deep-research/internal/domain"
	"deep-research/internal/infra/logger"
	"deep-research/internal/infra/otel"
)

func main() {
	ctx := context.Background()

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "err", err)
		os.Exit(1)
	}

	// ---- Telemetry and logging ----
	otelCfg := otel.ConfigFromEnv(domain.ServiceVersion)
	shutdownOTel, err := otel.InitProvider(ctx, otelCfg)
	if err != nil {
		slog.Error("failed to initialize OpenTelemetry", "err", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			slog.Error("failed to shut down OpenTelemetry", "err", err)
		}
	}()

	log := logger.New(otelCfg.Enabled)
	slog.SetDefault(log)

	// ---- Configuration ----
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	if cfg.APIKey == "" && cfg.ParamPrefix == "" {
		log.Warn("OPENROUTER_API_KEY is not set; research requests will fail until it is")
	}
	log.Info("configuration loaded",
		"port", cfg.Port,
		"model", cfg.Model,
		"base_url", cfg.BaseURL,
		"upstream_timeout", cfg.UpstreamTimeout,
		"defer_stream_headers", cfg.DeferStreamHeaders)

	// ---- Components ----
	components, err := di.NewComponents(ctx, cfg)
	if err != nil {
		log.Error("failed to wire components", "err", err)
		os.Exit(1)
	}

	// ---- Echo ----
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if otelCfg.Enabled {
		e.Use(otelecho.Middleware(otelCfg.ServiceName))
	}
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ctx := c.Request().Context()
			if v.Error == nil {
				slog.InfoContext(ctx, "request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				slog.ErrorContext(ctx, "request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"err", v.Error.Error())
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())

	components.Handler.Register(e)

	go func() {
		log.Info("starting deep-research server", "addr", cfg.Addr())
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// ---- Graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "err", err)
	}
}
