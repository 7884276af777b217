// Package scheduler drives the ingestion jobs on their cron cadences using
// the gocron library, and guarantees at most one in-flight run per job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/nishinokaede/yunaMessage/internal/config"
	"github.com/nishinokaede/yunaMessage/internal/ingest"
)

// ErrUnknownJob is returned by RunNow for job names without a registered task.
var ErrUnknownJob = errors.New("unknown job")

// Scheduler manages the scheduled tasks. One logical job may be registered
// under several cron expressions (different cadences for different hours);
// all of them, plus manual triggers, share a single no-overlap guard.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	cfg       *config.SchedulerConfig
	taskMap   map[string]ingest.TaskFunc
	guards    map[string]*sync.Mutex
	mu        sync.Mutex
	running   bool
}

// New creates a scheduler for the given task map.
func New(logger *slog.Logger, cfg *config.SchedulerConfig, taskMap map[string]ingest.TaskFunc) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "scheduler")

	s, err := gocron.NewScheduler()
	if err != nil {
		// This error typically occurs only if time.LoadLocation fails.
		log.Error("Failed to create gocron scheduler", "error", err)
		panic(fmt.Sprintf("failed to create gocron scheduler: %v", err))
	}

	guards := make(map[string]*sync.Mutex, len(taskMap))
	for name := range taskMap {
		guards[name] = &sync.Mutex{}
	}

	return &Scheduler{
		scheduler: s,
		logger:    log,
		cfg:       cfg,
		taskMap:   taskMap,
		guards:    guards,
	}
}

// Start registers every enabled task under each of its cron expressions and
// starts the scheduler's internal ticking.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	if s.cfg == nil || len(s.cfg.Tasks) == 0 {
		s.logger.Warn("No scheduler tasks configured.")
		s.scheduler.Start()
		s.running = true
		return nil
	}

	scheduledCount := 0
	for taskName, taskConfig := range s.cfg.Tasks {
		if !taskConfig.Enabled {
			s.logger.Info("Skipping disabled task", "task_name", taskName)
			continue
		}

		if _, exists := s.taskMap[taskName]; !exists {
			s.logger.Warn("Scheduled task configured but not found in registry, skipping", "task_name", taskName)
			continue
		}

		if len(taskConfig.Schedules) == 0 {
			s.logger.Warn("Scheduled task enabled but has no schedules, skipping", "task_name", taskName)
			continue
		}

		for _, schedule := range taskConfig.Schedules {
			_, err := s.scheduler.NewJob(
				gocron.CronJob(schedule, false),
				gocron.NewTask(s.runTask, context.Background(), taskName),
				gocron.WithName(taskName),
			)
			if err != nil {
				s.logger.Error("Failed to schedule task",
					"task_name", taskName, "schedule", schedule, "error", err)
				continue
			}

			s.logger.Info("Scheduled task", "task_name", taskName, "schedule", schedule)
			scheduledCount++
		}
	}

	s.scheduler.Start()
	s.running = true
	s.logger.Info("Scheduler initialized and started", "jobs_scheduled", scheduledCount)

	return nil
}

// RunNow requests an immediate out-of-band run of the named job. The run is
// asynchronous and participates in the same no-overlap guarantee as the
// scheduled firings.
func (s *Scheduler) RunNow(name string) error {
	if _, exists := s.taskMap[name]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	s.logger.Info("Manual trigger requested", "task_name", name)
	go s.runTask(context.Background(), name)
	return nil
}

// runTask executes the named task under its no-overlap guard. A firing that
// finds a prior instance still running is skipped, never queued.
func (s *Scheduler) runTask(ctx context.Context, name string) {
	guard := s.guards[name]
	if guard == nil {
		s.logger.Error("No guard registered for task", "task_name", name)
		return
	}

	if !guard.TryLock() {
		s.logger.Info("Skipping task, previous run still in flight", "task_name", name)
		return
	}
	defer guard.Unlock()

	taskFunc := s.taskMap[name]

	s.logger.Info("Running scheduled task", "task_name", name)
	startTime := time.Now()
	if taskErr := taskFunc(ctx); taskErr != nil {
		s.logger.Error("Scheduled task failed", "task_name", name, "error", taskErr)
	}
	s.logger.Info("Finished scheduled task", "task_name", name, "duration", time.Since(startTime))
}

// Stop gracefully stops the scheduler, waiting for running jobs to complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Info("Scheduler is not running, nothing to stop.")
		return nil
	}

	s.logger.Debug("Stopping scheduler gracefully (waiting for jobs)...")
	err := s.scheduler.Shutdown()
	if err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
	} else {
		s.logger.Info("Scheduler stopped gracefully.")
	}

	s.running = false
	return err
}
