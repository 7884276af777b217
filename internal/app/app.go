// Package app orchestrates the lifecycle of the long-running components:
// the HTTP server and the job scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/nishinokaede/yunaMessage/internal/config"
	"github.com/nishinokaede/yunaMessage/internal/database"
	"github.com/nishinokaede/yunaMessage/internal/scheduler"
	"github.com/nishinokaede/yunaMessage/internal/server"
)

// App owns the assembled components and runs them until shutdown.
type App struct {
	logger *slog.Logger
	cfg    *config.Config
	db     *sqlx.DB
	store  database.Store
	sched  *scheduler.Scheduler
	srv    *server.Server
}

// New creates the application with all required dependencies.
func New(
	logger *slog.Logger,
	cfg *config.Config,
	db *sqlx.DB,
	store database.Store,
	sched *scheduler.Scheduler,
	srv *server.Server,
) *App {
	return &App{
		logger: logger.With("component", "app"),
		cfg:    cfg,
		db:     db,
		store:  store,
		sched:  sched,
		srv:    srv,
	}
}

// Run starts the scheduler and the HTTP server, then blocks until the
// context is cancelled or a component fails. Both components are stopped
// gracefully on the way out.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting application...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.srv.Run(gCtx); err != nil {
			a.logger.Error("HTTP server stopped with error", "error", err)
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := a.sched.Start(); err != nil {
			a.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		a.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := a.sched.Stop(); err != nil {
			a.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Application stopped due to error", "error", err)
		return err
	}

	a.logger.Info("Application stopped gracefully.")
	return nil
}
