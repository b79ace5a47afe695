package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ferro-labs/gateway-core/internal/logging"
	"github.com/ferro-labs/gateway-core/internal/metrics"
)

// fire runs when a timer elapses. Stale generations are ignored.
func (s *Scheduler) fire(provider string, gen uint64) {
	s.mu.Lock()
	j, ok := s.jobs[provider]
	if !ok || !s.started || j.gen != gen || !j.entry.Enabled || j.entry.Running {
		s.mu.Unlock()
		return
	}
	j.timer = nil
	j.entry.NextRun = time.Time{}
	j.entry.Running = true
	ctx := s.ctx
	s.mu.Unlock()

	_ = s.execute(ctx, provider, false)
}

// execute runs one cycle for a job already marked Running and arms the next
// timer from its outcome.
func (s *Scheduler) execute(ctx context.Context, provider string, forced bool) error {
	ctx = logging.NewCycle(ctx)
	log := s.opts.Logger.With("provider", provider, "trace_id", logging.TraceIDFromContext(ctx))

	start := s.opts.Clock.Now()
	err := s.safeRun(ctx, provider)
	end := s.opts.Clock.Now()
	duration := end.Sub(start)

	var skip *SkipError
	result := "success"
	switch {
	case errors.As(err, &skip):
		result = "skipped"
	case err != nil:
		result = "error"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[provider]
	if !ok {
		return err
	}
	metrics.RefreshCycles.WithLabelValues(provider, result).Inc()
	metrics.RefreshDuration.WithLabelValues(provider).Observe(duration.Seconds())
	e := &j.entry
	e.Running = false
	e.LastRun = start

	rec := JobRecord{Timestamp: start, Forced: forced, Duration: duration}
	var next time.Duration
	switch {
	case skip != nil:
		rec.Skipped = true
		rec.Error = err.Error()
		next = skip.RetryAfter
		if next <= 0 {
			next = s.jitterLocked(e.Interval)
		} else if next < s.opts.MinDelay {
			next = s.opts.MinDelay
		}
		log.Debug("refresh cycle skipped", "error", err, "next_run_in", next.String())

	case err == nil:
		rec.Success = true
		e.RetryCount = 0
		e.RetryDelay = 0
		e.ConsecutiveFailures = 0
		e.LastSuccess = end
		e.LastError = ""
		next = s.jitterLocked(e.Interval)
		log.Debug("refresh cycle completed", "duration", duration.String())

	default:
		rec.Error = err.Error()
		e.ConsecutiveFailures++
		e.LastError = err.Error()
		if e.RetryCount < s.opts.MaxRetries {
			next = s.backoffLocked(e.BackoffDelay, e.RetryCount)
			e.RetryCount++
			e.RetryDelay = next
			metrics.ScheduledRetries.WithLabelValues(provider).Inc()
			log.Warn("refresh cycle failed, retry scheduled",
				"error", err,
				"retry", e.RetryCount,
				"max_retries", s.opts.MaxRetries,
				"retry_in", next.String(),
			)
		} else {
			e.RetryCount = 0
			e.RetryDelay = 0
			next = s.jitterLocked(e.Interval)
			log.Error("refresh cycle failed, retries exhausted",
				"error", err,
				"consecutive_failures", e.ConsecutiveFailures,
				"next_run_in", next.String(),
			)
		}
	}
	rec.ConsecutiveFailures = e.ConsecutiveFailures
	j.history.Push(rec)

	if s.started && e.Enabled {
		s.armLocked(j, next)
	}
	return err
}

func (s *Scheduler) safeRun(ctx context.Context, provider string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh cycle panicked: %v", r)
		}
	}()
	return s.run(ctx, provider)
}

// backoffLocked returns min(MaxBackoff, base × multiplier^retry).
func (s *Scheduler) backoffLocked(base time.Duration, retry int) time.Duration {
	d := float64(base) * math.Pow(s.opts.BackoffMultiplier, float64(retry))
	if d >= float64(s.opts.MaxBackoff) {
		return s.opts.MaxBackoff
	}
	return time.Duration(d)
}

// jitterLocked spreads interval by up to ±Jitter, never below MinDelay.
func (s *Scheduler) jitterLocked(interval time.Duration) time.Duration {
	spread := float64(interval) * s.opts.Jitter * (2*s.opts.Rand.Float64() - 1)
	d := interval + time.Duration(spread)
	if d < s.opts.MinDelay {
		d = s.opts.MinDelay
	}
	return d
}
