// Package scheduler runs the periodic decision, trailing and daily reset jobs.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job names.
const (
	JobDecide     = "decide"
	JobTrailing   = "trailing"
	JobDailyReset = "daily_reset"
)

// Task is one unit of scheduled work.
type Task func(ctx context.Context) error

// Jobs groups the tasks RegisterAll wires. Nil tasks are skipped.
type Jobs struct {
	Decide     Task
	Trailing   Task
	DailyReset Task
}

// Specs holds cron expressions (six fields, seconds first, or @every descriptors).
type Specs struct {
	Decide     string
	Trailing   string
	DailyReset string
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	cron  *cron.Cron
	ctx   context.Context
	l     *zap.Logger
	mu    sync.Mutex
	tasks map[string]Task
}

// New creates a scheduler whose tasks receive ctx. A run still in progress makes the next tick skip.
func New(ctx context.Context, l *zap.Logger) *Scheduler {
	if l == nil {
		l = zap.NewNop()
	}
	return &Scheduler{
		cron:  cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:   ctx,
		l:     l,
		tasks: make(map[string]Task),
	}
}

// Register schedules task under name.
func (s *Scheduler) Register(name, spec string, task Task) error {
	if task == nil {
		return fmt.Errorf("register %s task: nil task", name)
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, task) }); err != nil {
		return fmt.Errorf("register %s task: %w", name, err)
	}
	s.mu.Lock()
	s.tasks[name] = task
	s.mu.Unlock()
	return nil
}

// RegisterAll registers the decision, trailing and daily reset jobs.
func (s *Scheduler) RegisterAll(specs Specs, jobs Jobs) error {
	entries := []struct {
		name string
		spec string
		task Task
	}{
		{JobDecide, specs.Decide, jobs.Decide},
		{JobTrailing, specs.Trailing, jobs.Trailing},
		{JobDailyReset, specs.DailyReset, jobs.DailyReset},
	}
	for _, e := range entries {
		if e.task == nil || e.spec == "" {
			continue
		}
		if err := s.Register(e.name, e.spec, e.task); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the registered job names, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for n := range s.tasks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RunNow executes a registered job synchronously, e.g. on start.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	task, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(name, task)
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.l.Info("scheduler started", zap.Strings("jobs", s.Names()))
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.l.Info("scheduler stopped")
}

func (s *Scheduler) run(name string, task Task) error {
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	start := time.Now()
	err := task(s.ctx)
	if err != nil {
		s.l.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		return err
	}
	s.l.Debug("scheduled job done", zap.String("job", name), zap.Duration("took", time.Since(start)))
	return nil
}
