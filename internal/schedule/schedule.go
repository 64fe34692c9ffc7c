// Package schedule runs configured agent tasks on cron expressions
// while the server is up. Each entry is protected by a per-job mutex
// so a slow task never piles up behind its own ticks.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/agentd-dev/agentd/internal/config"
)

// Runner executes one agent task to completion and returns the final
// answer. Implementations decide how much conversation state a task
// run shares; scheduled runs normally get a fresh one.
type Runner interface {
	RunTask(ctx context.Context, task string) (string, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, task string) (string, error)

// RunTask implements Runner.
func (f RunnerFunc) RunTask(ctx context.Context, task string) (string, error) {
	return f(ctx, task)
}

// Scheduler executes configured tasks on their cron schedules.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   []config.Schedule
	names  map[string]struct{}
	locks  map[string]*sync.Mutex
	runner Runner
	log    *slog.Logger
	cancel context.CancelFunc
}

// New creates a scheduler. Jobs must be added before Start().
func New(runner Runner, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		names:  make(map[string]struct{}),
		locks:  make(map[string]*sync.Mutex),
		runner: runner,
		log:    log,
	}
}

// Add registers one schedule entry. Names must be unique.
func (s *Scheduler) Add(job config.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.names[job.Name]; exists {
		return fmt.Errorf("schedule: duplicate job name %q", job.Name)
	}

	s.names[job.Name] = struct{}{}
	s.locks[job.Name] = &sync.Mutex{}
	s.jobs = append(s.jobs, job)
	return nil
}

// Start parses all schedules and begins ticking. Returns an error if
// any cron expression is invalid.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s.cron = cron.New(cron.WithParser(parser))

	for _, j := range s.jobs {
		job := j
		lock := s.locks[job.Name]

		_, err := s.cron.AddFunc(job.Cron, func() {
			// TryLock is atomic; if the previous tick is still
			// running, skip this one.
			if !lock.TryLock() {
				s.log.Warn("schedule: task still running, skipping tick", "job", job.Name)
				return
			}
			defer lock.Unlock()

			s.log.Info("schedule: task started", "job", job.Name)
			out, err := s.runner.RunTask(ctx, job.Task)
			if err != nil {
				s.log.Error("schedule: task failed", "job", job.Name, "error", err)
				return
			}
			s.log.Info("schedule: task completed", "job", job.Name, "output", out)
		})
		if err != nil {
			cancel()
			return fmt.Errorf("schedule: invalid cron for job %q: %w", job.Name, err)
		}
	}

	s.cron.Start()
	s.log.Info("schedule: scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop shuts the scheduler down, waiting for in-flight tasks.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.log.Info("schedule: scheduler stopped")
	}
	return nil
}
