package workflow

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imtaco/rtms-ingest/internal/log"
)

type GracefulShutdownAction func(ctx context.Context)

// WaitGracefulShutdown blocks until ctx ends or SIGINT/SIGTERM arrives, then
// runs action with a fresh context bounded by timeout. It reports whether
// action finished in time.
func WaitGracefulShutdown(
	ctx context.Context,
	logger *log.Logger,
	action GracefulShutdownAction,
	timeout time.Duration,
) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	return RunWithTimeout(logger, action, timeout)
}

// RunWithTimeout runs action, recovering panics, and gives up after timeout.
func RunWithTimeout(logger *log.Logger, action GracefulShutdownAction, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic during graceful shutdown", log.Any("error", r))
			}
		}()
		logger.Info("Starting graceful shutdown", log.Duration("timeout", timeout))
		action(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Warn("Shutdown timeout exceeded, forcing exit")
		return false
	case <-done:
		logger.Info("Graceful shutdown completed")
		return true
	}
}
