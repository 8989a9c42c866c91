// Package app provides the top-level application lifecycle for the
// portfolio backend. It wires the pipeline, hub, stores, and HTTP server
// together and owns the shutdown ordering: producers are cut off first, the
// queue drains, then the hub and server close.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solfolio/backend/internal/config"
)

// drainTimeout bounds how long shutdown waits for the batcher to drain the
// queue before closing the hub anyway.
const drainTimeout = 30 * time.Second

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 10 * time.Second

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions that are called in reverse order on
// shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the
// pipeline and server goroutines, and blocks until the context is cancelled
// or a component fails. Shutdown drains the queue before tearing the rest
// down.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Int("port", a.cfg.Server.Port),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, gctx := errgroup.WithContext(ctx)

	// The batcher deliberately runs outside the group's cancellation:
	// shutdown reaches it by closing the queue, so buffered events are
	// still dispatched before it exits.
	batcherDone := make(chan error, 1)
	go func() {
		batcherDone <- deps.Batcher.Run(context.WithoutCancel(ctx))
	}()

	g.Go(func() error {
		return deps.Server.Start()
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			if err := deps.Archiver.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown requested, draining pipeline")

		deps.Queue.Close()
		select {
		case err := <-batcherDone:
			if err != nil {
				a.logger.Error("batcher exited with error", slog.String("error", err.Error()))
			}
		case <-time.After(drainTimeout):
			a.logger.Warn("timed out waiting for queue drain")
		}

		deps.Hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return deps.Server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
