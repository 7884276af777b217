package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nishinokaede/yunaMessage/internal/config"
	"github.com/nishinokaede/yunaMessage/internal/ingest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunTaskSkipsOverlappingRuns(t *testing.T) {
	t.Parallel()

	var running atomic.Int32
	var completed atomic.Int32
	release := make(chan struct{})

	s := New(testLogger(), &config.SchedulerConfig{}, map[string]ingest.TaskFunc{
		"slow": func(_ context.Context) error {
			running.Add(1)
			<-release
			completed.Add(1)
			return nil
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runTask(context.Background(), "slow")
		}()
	}

	// Wait until exactly one invocation is inside the task body; the other
	// two must have been skipped by the guard, not queued behind it.
	deadline := time.After(2 * time.Second)
	for running.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("task never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	close(release)
	wg.Wait()

	if got := completed.Load(); got != 1 {
		t.Errorf("got %d completed runs, want 1", got)
	}
}

func TestRunNowUnknownJob(t *testing.T) {
	t.Parallel()

	s := New(testLogger(), &config.SchedulerConfig{}, map[string]ingest.TaskFunc{})
	if err := s.RunNow("nope"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("got %v, want ErrUnknownJob", err)
	}
}

func TestRunNowExecutesTask(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	s := New(testLogger(), &config.SchedulerConfig{}, map[string]ingest.TaskFunc{
		"quick": func(_ context.Context) error {
			close(done)
			return nil
		},
	})

	if err := s.RunNow("quick"); err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("manually triggered task never ran")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()

	cfg := &config.SchedulerConfig{
		Tasks: map[string]config.TaskConfig{
			"noop":     {Enabled: true, Schedules: []string{"* * * * *"}},
			"disabled": {Enabled: false, Schedules: []string{"* * * * *"}},
		},
	}
	s := New(testLogger(), cfg, map[string]ingest.TaskFunc{
		"noop":     func(_ context.Context) error { return nil },
		"disabled": func(_ context.Context) error { return nil },
	})

	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second start should fail while running")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("stop failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("stopping a stopped scheduler should be a no-op, got %v", err)
	}
}

func TestStartIgnoresUnregisteredTask(t *testing.T) {
	t.Parallel()

	cfg := &config.SchedulerConfig{
		Tasks: map[string]config.TaskConfig{
			"ghost": {Enabled: true, Schedules: []string{"* * * * *"}},
		},
	}
	s := New(testLogger(), cfg, map[string]ingest.TaskFunc{})

	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
}
