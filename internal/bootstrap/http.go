package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/target/quiz-ui/config"
)

const defaultShutdownTimeout = 10 * time.Second

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	// Guard against empty addr to avoid listening on every interface
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}

	// No WriteTimeout: /auth/events holds its response open.
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// httpServeConfig contains what serveHTTP needs to run and stop a server.
type httpServeConfig struct {
	Server          *http.Server
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// serveHTTP runs the server until ctx is done, then shuts it down gracefully.
func serveHTTP(ctx context.Context, cfg httpServeConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	// Streaming responses end when the base context is cancelled at shutdown.
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()
	cfg.Server.BaseContext = func(net.Listener) context.Context { return baseCtx }
	cfg.Server.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", cfg.Server.Addr)
		if err := cfg.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("HTTP server stopped")
	return <-errCh
}
