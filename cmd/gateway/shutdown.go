package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/secgate-io/secgate/internal/observability/logging"
)

// waitForShutdown blocks until the server fails or a termination signal
// arrives, then drains in-flight requests and closes the planes.
func waitForShutdown(app *App, errCh <-chan error, logger *logging.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
		}
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdown(app, logger)
}

// shutdown stops the server within the configured grace period, then
// releases gateway resources. The audit recorder closes last so events
// emitted during the drain still get written.
func shutdown(app *App, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown incomplete, closing anyway", zap.Error(err))
	}

	if app.watcher != nil {
		if err := app.watcher.Stop(); err != nil {
			logger.Warn("failed to stop config watcher", zap.Error(err))
		}
	}

	if err := app.gateway.Close(); err != nil {
		logger.Warn("failed to close gateway resources", zap.Error(err))
	}

	logger.Info("shutdown complete")
}
