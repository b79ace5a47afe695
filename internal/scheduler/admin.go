package scheduler

import (
	"context"
	"fmt"
	"time"
)

// ScheduleUpdate changes parts of a provider's schedule. Nil fields are left
// unchanged.
type ScheduleUpdate struct {
	Interval     *time.Duration `json:"interval,omitempty"`
	Priority     *int           `json:"priority,omitempty"`
	Enabled      *bool          `json:"enabled,omitempty"`
	BackoffDelay *time.Duration `json:"backoff_delay,omitempty"`
}

// SetEnabled enables or disables provider. Disabling cancels the pending
// timer; enabling a running scheduler arms a cycle after InitialDelay.
func (s *Scheduler) SetEnabled(provider string, enabled bool) error {
	_, err := s.Update(provider, ScheduleUpdate{Enabled: &enabled})
	return err
}

// Update applies u to provider's schedule and returns the new entry. A
// changed interval re-arms a pending regular timer.
func (s *Scheduler) Update(provider string, u ScheduleUpdate) (Entry, error) {
	if u.Interval != nil && *u.Interval < s.opts.MinDelay {
		return Entry{}, fmt.Errorf("scheduler: interval %s below minimum %s", *u.Interval, s.opts.MinDelay)
	}
	if u.BackoffDelay != nil && *u.BackoffDelay <= 0 {
		return Entry{}, fmt.Errorf("scheduler: backoff delay must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[provider]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	e := &j.entry
	wasEnabled := e.Enabled

	if u.Priority != nil {
		e.Priority = *u.Priority
	}
	if u.BackoffDelay != nil {
		e.BackoffDelay = *u.BackoffDelay
	}
	intervalChanged := u.Interval != nil && *u.Interval != e.Interval
	if u.Interval != nil {
		e.Interval = *u.Interval
	}
	if u.Enabled != nil {
		e.Enabled = *u.Enabled
	}

	switch {
	case !e.Enabled:
		s.cancelLocked(j)
	case !s.started || e.Running:
	case !wasEnabled:
		s.armLocked(j, s.opts.InitialDelay)
	case intervalChanged && e.RetryCount == 0:
		s.armLocked(j, s.jitterLocked(e.Interval))
	}
	if wasEnabled != e.Enabled {
		s.opts.Logger.Info("provider schedule toggled", "provider", provider, "enabled", e.Enabled)
	}
	return *e, nil
}

// ForceExecute runs provider's cycle now, outside its timer, and returns the
// cycle error. The pending timer is replaced by whatever the outcome arms.
func (s *Scheduler) ForceExecute(ctx context.Context, provider string) error {
	s.mu.Lock()
	j, ok := s.jobs[provider]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	if j.entry.Running {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCycleRunning, provider)
	}
	s.cancelLocked(j)
	j.entry.Running = true
	s.mu.Unlock()

	return s.execute(ctx, provider, true)
}

// ResetRetries clears provider's retry state. A pending retry timer is
// replaced by a regular one.
func (s *Scheduler) ResetRetries(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[provider]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	retrying := j.entry.RetryCount > 0
	j.entry.RetryCount = 0
	j.entry.RetryDelay = 0
	if retrying && s.started && j.entry.Enabled && !j.entry.Running {
		s.armLocked(j, s.jitterLocked(j.entry.Interval))
	}
	return nil
}

// Entry returns provider's schedule state.
func (s *Scheduler) Entry(provider string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[provider]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return j.entry, nil
}

// Entries returns every schedule entry in priority order.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := s.orderedLocked()
	out := make([]Entry, len(jobs))
	for i, j := range jobs {
		out[i] = j.entry
	}
	return out
}

// History returns up to limit job records of provider, newest first.
// limit <= 0 returns all retained records.
func (s *Scheduler) History(provider string, limit int) ([]JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	items := j.history.Last(limit)
	for a, b := 0, len(items)-1; a < b; a, b = a+1, b-1 {
		items[a], items[b] = items[b], items[a]
	}
	return items, nil
}
