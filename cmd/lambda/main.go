package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"deep-research/internal/config"
	"deep-research/internal/di"
	"deep-research/internal/infra/logger"
)

func main() {
	ctx := context.Background()

	slog.SetDefault(logger.New(false))

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "err", err)
		os.Exit(1)
	}

	// ---- Configuration (read only here) ----
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// ---- Clients and handler ----
	components, err := di.NewComponents(ctx, cfg)
	if err != nil {
		slog.Error("failed to wire components", "err", err)
		os.Exit(1)
	}

	lambda.Start(components.Handler.HandleFunctionURL)
}
