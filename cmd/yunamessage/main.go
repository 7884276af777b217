// Package main contains the entrypoint for the yunaMessage service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nishinokaede/yunaMessage/internal/app"
	"github.com/nishinokaede/yunaMessage/internal/config"
	"github.com/nishinokaede/yunaMessage/internal/database"
	"github.com/nishinokaede/yunaMessage/internal/ingest"
	"github.com/nishinokaede/yunaMessage/internal/logger"
	"github.com/nishinokaede/yunaMessage/internal/scheduler"
	"github.com/nishinokaede/yunaMessage/internal/server"
	"github.com/nishinokaede/yunaMessage/internal/talkapi"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all components (config, logger, db, client, tasks,
// scheduler, server), starts the application, and returns an exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.New(cfg.Log.Level, cfg.Log.JSON)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	if err := os.MkdirAll(cfg.Storage.MessageDir, 0o755); err != nil {
		log.Error("Failed to create message directory", "path", cfg.Storage.MessageDir, "error", err)
		return 1
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	client := talkapi.New(cfg.Client, log, nil)

	deps := ingest.Deps{
		Logger: log,
		Store:  store,
		Client: client,
		Config: cfg,
	}

	sched := scheduler.New(log, &cfg.Scheduler, ingest.RegisterAllTasks(deps))
	srv := server.New(log, cfg, store, sched)
	application := app.New(log, cfg, db, store, sched, srv)

	log.Info("Starting yunaMessage...")
	runErr := application.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Service stopped due to error", "error", runErr)
		return 1
	}

	log.Info("Service stopped gracefully.")
	return 0
}
