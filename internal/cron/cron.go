// Package cron runs the core's periodic maintenance jobs, such as purging
// stale model lifecycle records, on standard 5-field cron expressions.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/ferro-labs/gateway-core/internal/logging"
	"github.com/ferro-labs/gateway-core/internal/metrics"
)

// ErrJobRunning is returned by RunNow while the job is executing.
var ErrJobRunning = errors.New("cron: job already running")

// Job is a periodic maintenance task.
type Job interface {
	Name() string
	// Schedule returns a 5-field cron expression, e.g. "0 * * * *".
	Schedule() string
	Run(ctx context.Context) error
}

// FuncJob adapts a function to Job.
type FuncJob struct {
	JobName string
	Spec    string
	Fn      func(ctx context.Context) error
}

func (j FuncJob) Name() string                  { return j.JobName }
func (j FuncJob) Schedule() string              { return j.Spec }
func (j FuncJob) Run(ctx context.Context) error { return j.Fn(ctx) }

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether expr parses as a 5-field expression or
// a descriptor such as "@hourly".
func ValidateSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("cron: invalid schedule %q: %w", expr, err)
	}
	return nil
}

// Scheduler runs registered jobs. A job never overlaps with itself: a tick
// that finds the previous run still active is skipped.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]Job
	locks  map[string]*sync.Mutex
	logger *slog.Logger
	cancel context.CancelFunc
}

// NewScheduler creates a Scheduler. Jobs are registered before Start.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		jobs:   make(map[string]Job),
		locks:  make(map[string]*sync.Mutex),
		logger: logging.OrDefault(logger),
	}
}

// RegisterJob adds j. Names must be unique and schedules valid.
func (s *Scheduler) RegisterJob(j Job) error {
	if err := ValidateSchedule(j.Schedule()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[j.Name()]; exists {
		return fmt.Errorf("cron: duplicate job name %q", j.Name())
	}
	s.jobs[j.Name()] = j
	s.locks[j.Name()] = &sync.Mutex{}
	return nil
}

// Jobs returns the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start begins executing registered jobs on their schedules.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithParser(parser))
	for name, j := range s.jobs {
		lock := s.locks[name]
		if _, err := c.AddFunc(j.Schedule(), func() {
			if !lock.TryLock() {
				s.logger.Warn("maintenance job still running, skipping tick", "job", j.Name())
				metrics.MaintenanceRuns.WithLabelValues(j.Name(), "skipped").Inc()
				return
			}
			defer lock.Unlock()
			s.run(ctx, j)
		}); err != nil {
			cancel()
			return fmt.Errorf("cron: schedule job %q: %w", name, err)
		}
	}
	s.cron = c
	s.cancel = cancel
	c.Start()
	s.logger.Info("maintenance scheduler started", "jobs", len(s.jobs))
	return nil
}

// RunNow executes the named job immediately.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	lock := s.locks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cron: unknown job %q", name)
	}
	if !lock.TryLock() {
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	defer lock.Unlock()
	return s.run(ctx, j)
}

func (s *Scheduler) run(ctx context.Context, j Job) error {
	s.logger.Debug("maintenance job started", "job", j.Name())
	err := j.Run(ctx)
	if err != nil {
		metrics.MaintenanceRuns.WithLabelValues(j.Name(), "error").Inc()
		s.logger.Error("maintenance job failed", "job", j.Name(), "error", err)
		return err
	}
	metrics.MaintenanceRuns.WithLabelValues(j.Name(), "success").Inc()
	s.logger.Debug("maintenance job completed", "job", j.Name())
	return nil
}

// Stop cancels the job context and waits for running jobs to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	cancel()
	select {
	case <-c.Stop().Done():
		s.logger.Info("maintenance scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
