// Command quiz-ui runs the quiz web front: sign-in pages guarded by the session, an /api
// proxy to the quiz backend and a keep-alive that refreshes the credential.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/target/quiz-ui/config"
	"github.com/target/quiz-ui/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.IsDev {
		logger = bootstrap.InitDevLogger()
	}
	bootstrap.SetLogLevel(cfg.SlogLevel())

	logStartupInfo(ctx, logger, &cfg)

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	app, err := bootstrap.NewApp(ctx, bootstrap.AppDeps{Config: &cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close storage failed", "error", cerr)
		}
	}()

	if err = app.Run(ctx); err != nil {
		return err
	}
	logger.InfoContext(ctx, "quiz-ui stopped")
	return nil
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting quiz-ui",
		"backend", cfg.Backend.BaseURL,
		"storage", cfg.Storage.Backend,
		"addr", cfg.HTTP.Addr,
		"dev", cfg.IsDev,
		"enabled_services", bootstrap.GetEnabledServices(cfg))
	if cfg.IsHTTPServerEnabled() && !cfg.HTTP.LoopbackOnly() {
		logger.WarnContext(ctx, "web front is reachable beyond loopback; every caller acts as the signed-in user",
			"addr", cfg.HTTP.Addr)
	}
}
