// quizctl is a command line client for the quiz backend. It shares session storage with
// quiz-ui, so signing in here signs in every quiz-ui instance on the same storage and a
// sign-out anywhere is visible to "quizctl watch".
//
// Configuration comes from the same environment variables as quiz-ui (BACKEND_BASE_URL,
// STORAGE_BACKEND, STORAGE_DIR, REDIS_URI, ...).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/target/quiz-ui/config"
	"github.com/target/quiz-ui/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := &CLI{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		NewApp: newApp,
	}
	if err := cli.Run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(exitCode(err)) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

// newApp loads configuration and builds an instance without the web front.
func newApp(ctx context.Context) (*bootstrap.App, error) {
	logger := bootstrap.InitDevLogger()
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return nil, err
	}
	bootstrap.SetLogLevel(cfg.SlogLevel())
	cfg.Services = string(config.ServiceModeKeepAlive)
	return bootstrap.NewApp(ctx, bootstrap.AppDeps{Config: &cfg, Logger: logger})
}
