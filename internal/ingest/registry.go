package ingest

import "github.com/nishinokaede/yunaMessage/internal/config"

// RegisterAllTasks returns the map of all scheduled tasks, keyed by the job
// names used in the scheduler configuration and by the manual triggers.
func RegisterAllTasks(deps Deps) map[string]TaskFunc {
	tasks := map[string]TaskFunc{
		config.JobGetToken:   NewTokenRefreshTask(deps),
		config.JobGetMessage: NewIngestTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
