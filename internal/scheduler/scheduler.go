// Package scheduler owns one refresh timer per provider. It applies jitter
// to regular intervals, retries failed cycles with capped exponential
// backoff and keeps a bounded job history per provider.
//
// Every provider holds at most one pending timer. Timers carry a generation
// token so a timer that was replaced or cancelled never runs its body.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/ferro-labs/gateway-core/internal/clock"
	"github.com/ferro-labs/gateway-core/internal/logging"
	"github.com/ferro-labs/gateway-core/internal/ringbuf"
)

var (
	// ErrUnknownProvider is returned for providers the scheduler does not
	// track.
	ErrUnknownProvider = errors.New("scheduler: unknown provider")

	// ErrProviderExists is returned by Add for an already tracked provider.
	ErrProviderExists = errors.New("scheduler: provider already scheduled")

	// ErrCycleRunning is returned by ForceExecute while the provider's cycle
	// is executing.
	ErrCycleRunning = errors.New("scheduler: cycle already running")
)

// Defaults.
const (
	DefaultInterval          = 5 * time.Minute
	DefaultInitialDelay      = time.Second
	DefaultMaxRetries        = 3
	DefaultBackoffDelay      = 30 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultMaxBackoff        = 15 * time.Minute
	DefaultJitter            = 0.1
	DefaultMinDelay          = time.Second
	DefaultHistorySize       = 100
)

// RunFunc executes one refresh cycle for provider.
type RunFunc func(ctx context.Context, provider string) error

// Rand is the random source used for jitter. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// SkipError tells the scheduler a cycle was refused by admission control.
// Skipped cycles are neither successes nor failures; the next run is armed
// after RetryAfter, or after the regular interval when RetryAfter is zero.
type SkipError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *SkipError) Error() string {
	if e.Err == nil {
		return "cycle skipped"
	}
	return "cycle skipped: " + e.Err.Error()
}

func (e *SkipError) Unwrap() error { return e.Err }

// Sentinels for options whose zero value selects the default.
const (
	NoRetries = -1
	NoJitter  = -1
)

// Options configures a Scheduler. Zero values take the package defaults.
type Options struct {
	DefaultInterval time.Duration
	InitialDelay    time.Duration
	// MaxRetries is the number of backoff retries after a failed cycle.
	// Use NoRetries to reschedule failures at the regular interval.
	MaxRetries        int
	BackoffDelay      time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
	// Jitter is the symmetric spread applied to intervals as a fraction.
	// Use NoJitter for exact intervals.
	Jitter      float64
	MinDelay    time.Duration
	HistorySize int
	Rand        Rand
	Clock       clock.Clock
	Logger      *slog.Logger
}

func (o *Options) defaults() {
	if o.DefaultInterval <= 0 {
		o.DefaultInterval = DefaultInterval
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BackoffDelay <= 0 {
		o.BackoffDelay = DefaultBackoffDelay
	}
	if o.BackoffMultiplier < 1 {
		o.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.Jitter < 0 {
		o.Jitter = 0
	} else if o.Jitter == 0 {
		o.Jitter = DefaultJitter
	}
	if o.MinDelay <= 0 {
		o.MinDelay = DefaultMinDelay
	}
	if o.HistorySize <= 0 {
		o.HistorySize = DefaultHistorySize
	}
	if o.Rand == nil {
		o.Rand = globalRand{}
	}
	o.Clock = clock.OrReal(o.Clock)
	o.Logger = logging.OrDefault(o.Logger)
}

// Config is the per-provider schedule supplied to Add.
type Config struct {
	Interval     time.Duration
	Priority     int
	Enabled      bool
	BackoffDelay time.Duration
}

// Entry is the schedule state of one provider.
type Entry struct {
	Provider            string        `json:"provider"`
	Interval            time.Duration `json:"interval"`
	Priority            int           `json:"priority"`
	Enabled             bool          `json:"enabled"`
	BackoffDelay        time.Duration `json:"backoff_delay"`
	RetryCount          int           `json:"retry_count"`
	RetryDelay          time.Duration `json:"retry_delay,omitempty"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastRun             time.Time     `json:"last_run,omitempty"`
	LastSuccess         time.Time     `json:"last_success,omitempty"`
	LastError           string        `json:"last_error,omitempty"`
	NextRun             time.Time     `json:"next_run,omitempty"`
	Running             bool          `json:"running"`
}

// JobRecord is one executed cycle.
type JobRecord struct {
	Timestamp           time.Time     `json:"timestamp"`
	Success             bool          `json:"success"`
	Skipped             bool          `json:"skipped,omitempty"`
	Forced              bool          `json:"forced,omitempty"`
	Duration            time.Duration `json:"duration"`
	Error               string        `json:"error,omitempty"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
}

type job struct {
	entry   Entry
	timer   clock.Timer
	gen     uint64
	history *ringbuf.Buffer[JobRecord]
}

// Scheduler arms and runs per-provider refresh cycles.
type Scheduler struct {
	opts Options
	run  RunFunc

	mu      sync.Mutex
	jobs    map[string]*job
	started bool
	ctx     context.Context
}

// New creates a Scheduler that calls run for every cycle.
func New(run RunFunc, opts Options) *Scheduler {
	opts.defaults()
	return &Scheduler{
		opts: opts,
		run:  run,
		jobs: make(map[string]*job),
		ctx:  context.Background(),
	}
}

// Add tracks provider. If the scheduler is running and the provider is
// enabled its first cycle is armed after InitialDelay.
func (s *Scheduler) Add(provider string, cfg Config) error {
	if cfg.Interval <= 0 {
		cfg.Interval = s.opts.DefaultInterval
	}
	if cfg.BackoffDelay <= 0 {
		cfg.BackoffDelay = s.opts.BackoffDelay
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[provider]; ok {
		return fmt.Errorf("%w: %s", ErrProviderExists, provider)
	}
	j := &job{
		entry: Entry{
			Provider:     provider,
			Interval:     cfg.Interval,
			Priority:     cfg.Priority,
			Enabled:      cfg.Enabled,
			BackoffDelay: cfg.BackoffDelay,
		},
		history: ringbuf.New[JobRecord](s.opts.HistorySize),
	}
	s.jobs[provider] = j
	if s.started && j.entry.Enabled {
		s.armLocked(j, s.opts.InitialDelay)
	}
	return nil
}

// Remove cancels provider's pending timer and forgets it. A cycle already
// executing finishes but is not rescheduled.
func (s *Scheduler) Remove(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[provider]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	s.cancelLocked(j)
	delete(s.jobs, provider)
	return nil
}

// Start arms every enabled provider in ascending priority order, ties
// broken by name. Cycles run with ctx. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.ctx = ctx

	armed := 0
	for _, j := range s.orderedLocked() {
		if !j.entry.Enabled {
			continue
		}
		s.armLocked(j, s.opts.InitialDelay)
		armed++
	}
	s.opts.Logger.Info("scheduler started", "providers", len(s.jobs), "armed", armed)
}

// Stop cancels every pending timer without running it. In-flight cycles
// finish but are not rescheduled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	for _, j := range s.jobs {
		s.cancelLocked(j)
	}
	s.opts.Logger.Info("scheduler stopped")
}

// Running reports whether Start has been called without a matching Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Scheduler) orderedLocked() []*job {
	out := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].entry.Priority != out[b].entry.Priority {
			return out[a].entry.Priority < out[b].entry.Priority
		}
		return out[a].entry.Provider < out[b].entry.Provider
	})
	return out
}

// armLocked replaces any pending timer of j with one firing after delay.
func (s *Scheduler) armLocked(j *job, delay time.Duration) {
	s.cancelLocked(j)
	gen := j.gen
	provider := j.entry.Provider
	j.entry.NextRun = s.opts.Clock.Now().Add(delay)
	j.timer = s.opts.Clock.AfterFunc(delay, func() { s.fire(provider, gen) })
}

func (s *Scheduler) cancelLocked(j *job) {
	j.gen++
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
	j.entry.NextRun = time.Time{}
}
