package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentd-dev/agentd/internal/config"
)

// countingRunner records task invocations.
type countingRunner struct {
	mu    sync.Mutex
	tasks []string
	err   error
	delay time.Duration
}

func (r *countingRunner) RunTask(_ context.Context, task string) (string, error) {
	r.mu.Lock()
	r.tasks = append(r.tasks, task)
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return "", r.err
	}
	return "done: " + task, nil
}

func TestScheduler_Add_DuplicateName(t *testing.T) {
	t.Parallel()

	s := New(&countingRunner{}, slog.Default())

	err := s.Add(config.Schedule{Name: "daily", Cron: "* * * * *", Task: "summarize"})
	if err != nil {
		t.Fatalf("first Add should succeed: %v", err)
	}

	err = s.Add(config.Schedule{Name: "daily", Cron: "0 0 * * *", Task: "other"})
	if err == nil {
		t.Fatal("duplicate Add should fail")
	}
}

func TestScheduler_Start_InvalidCron(t *testing.T) {
	t.Parallel()

	s := New(&countingRunner{}, slog.Default())
	_ = s.Add(config.Schedule{Name: "bad", Cron: "not a cron", Task: "x"})

	if err := s.Start(); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	s := New(&countingRunner{}, slog.Default())
	_ = s.Add(config.Schedule{Name: "noop", Cron: "* * * * *", Task: "noop"})

	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestScheduler_NilLogger(t *testing.T) {
	t.Parallel()

	s := New(&countingRunner{}, nil) // should not panic
	if s.log == nil {
		t.Fatal("logger should default to slog.Default()")
	}
}

func TestScheduler_NoParallelExecution(t *testing.T) {
	t.Parallel()

	// Verify the TryLock mechanism keeps one tick of a job from
	// overlapping the next.
	var concurrent atomic.Int32
	var maxConcurrent atomic.Int32

	s := New(&countingRunner{}, slog.Default())
	_ = s.Add(config.Schedule{Name: "slow", Cron: "* * * * *", Task: "slow"})

	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Hammer the job's lock directly to simulate overlapping ticks.
	lock := s.locks["slow"]
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lock.TryLock() {
				c := concurrent.Add(1)
				for {
					old := maxConcurrent.Load()
					if c <= old || maxConcurrent.CompareAndSwap(old, c) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				concurrent.Add(-1)
				lock.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if maxConcurrent.Load() > 1 {
		t.Errorf("max concurrent = %d, want <= 1", maxConcurrent.Load())
	}
}

func TestScheduler_RunnerError(t *testing.T) {
	t.Parallel()

	// A failing task must not take the scheduler down.
	s := New(&countingRunner{err: errors.New("provider unreachable")}, slog.Default())
	_ = s.Add(config.Schedule{Name: "failing", Cron: "* * * * *", Task: "x"})

	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	t.Parallel()

	s := New(&countingRunner{}, slog.Default())
	// Stop without Start should not panic.
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestRunnerFunc(t *testing.T) {
	t.Parallel()

	var got string
	r := RunnerFunc(func(_ context.Context, task string) (string, error) {
		got = task
		return "ok", nil
	})

	out, err := r.RunTask(context.Background(), "hello")
	if err != nil {
		t.Fatalf("RunTask() error: %v", err)
	}
	if out != "ok" || got != "hello" {
		t.Errorf("RunTask() = %q with task %q, want ok/hello", out, got)
	}
}
