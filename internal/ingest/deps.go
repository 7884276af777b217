// Package ingest implements the scheduled jobs: refreshing per-group access
// tokens and pulling new member messages into storage.
package ingest

import (
	"context"
	"log/slog"

	"github.com/nishinokaede/yunaMessage/internal/config"
	"github.com/nishinokaede/yunaMessage/internal/database"
	"github.com/nishinokaede/yunaMessage/internal/talkapi"
)

// TaskFunc is the standard signature for all scheduled tasks. The context
// provided by the scheduler should be respected for cancellation.
type TaskFunc func(ctx context.Context) error

// Deps contains the dependencies required by the scheduled tasks.
type Deps struct {
	Logger *slog.Logger
	Store  database.Store
	Client *talkapi.Client
	Config *config.Config
}
