package gatewaycore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/ferro-labs/gateway-core/internal/health"
	"github.com/ferro-labs/gateway-core/internal/metrics"
	"github.com/ferro-labs/gateway-core/internal/ratelimit"
	"github.com/ferro-labs/gateway-core/internal/scheduler"
	"github.com/ferro-labs/gateway-core/providers"
)

// SetProviderEnabled enables or disables scheduled refreshes and health
// probes of name.
func (c *Core) SetProviderEnabled(name string, enabled bool) error {
	if _, err := c.mustRuntime(name); err != nil {
		return err
	}
	if err := c.scheduler.SetEnabled(name, enabled); err != nil {
		return err
	}
	c.mu.Lock()
	if rt, ok := c.runtimes[name]; ok {
		rt.cfg.Enabled = &enabled
	}
	c.mu.Unlock()
	return nil
}

// UpdateProviderSchedule changes the polling schedule of name.
func (c *Core) UpdateProviderSchedule(name string, u scheduler.ScheduleUpdate) (scheduler.Entry, error) {
	if _, err := c.mustRuntime(name); err != nil {
		return scheduler.Entry{}, err
	}
	e, err := c.scheduler.Update(name, u)
	if err != nil {
		return scheduler.Entry{}, err
	}
	c.mu.Lock()
	if rt, ok := c.runtimes[name]; ok {
		if u.Interval != nil {
			rt.cfg.PollingInterval = u.Interval.String()
		}
		if u.Priority != nil {
			rt.cfg.Priority = *u.Priority
		}
		if u.Enabled != nil {
			enabled := *u.Enabled
			rt.cfg.Enabled = &enabled
		}
	}
	c.mu.Unlock()
	return e, nil
}

// UpdateProviderLimits changes the published quotas of name.
func (c *Core) UpdateProviderLimits(name string, u ratelimit.LimitsUpdate) (ratelimit.Limits, error) {
	if _, err := c.mustRuntime(name); err != nil {
		return ratelimit.Limits{}, err
	}
	limits, err := c.limiter.UpdateLimits(name, u)
	if err != nil {
		return ratelimit.Limits{}, err
	}
	c.mu.Lock()
	if rt, ok := c.runtimes[name]; ok {
		rt.cfg.RateLimit = &ProviderLimits{
			RequestsPerMinute:  limits.RequestsPerMinute,
			TokensPerMinute:    limits.TokensPerMinute,
			ConcurrentRequests: limits.ConcurrentRequests,
		}
	}
	c.mu.Unlock()
	c.logger.Info("provider limits updated", "provider", name,
		"requests_per_minute", limits.RequestsPerMinute,
		"tokens_per_minute", limits.TokensPerMinute,
		"concurrent_requests", limits.ConcurrentRequests)
	return limits, nil
}

// ForceExecuteProvider runs a refresh cycle of name now and returns its
// error. Manual runs are throttled per provider.
func (c *Core) ForceExecuteProvider(ctx context.Context, name string) error {
	rt, err := c.mustRuntime(name)
	if err != nil {
		return err
	}
	if !rt.manual.AllowN(c.clock.Now(), 1) {
		return fmt.Errorf("%w: %s", ErrManualRefreshThrottled, name)
	}
	c.logger.Info("manual refresh requested", "provider", name)
	return c.scheduler.ForceExecute(ctx, name)
}

// ResetBackoff clears the rate-limit backoff and pending scheduler retries
// of name.
func (c *Core) ResetBackoff(name string) error {
	if _, err := c.mustRuntime(name); err != nil {
		return err
	}
	if err := c.limiter.ResetBackoff(name); err != nil {
		return err
	}
	return c.scheduler.ResetRetries(name)
}

// ResetCircuit closes the circuit breaker of name.
func (c *Core) ResetCircuit(name string) error {
	rt, err := c.mustRuntime(name)
	if err != nil {
		return err
	}
	rt.breaker.Reset()
	return nil
}

// CheckProvider probes name now and records the result like a sweep would.
// A probe refused by admission control or an open circuit returns the
// unchanged health together with an error wrapping health.ErrSkipped.
func (c *Core) CheckProvider(ctx context.Context, name string) (health.ProviderHealth, error) {
	if _, err := c.mustRuntime(name); err != nil {
		return health.ProviderHealth{}, err
	}
	return c.monitor.CheckProvider(ctx, name)
}

// RegisterProvider adds a provider at runtime. p may be nil to build the
// executor from pc. A running core starts scheduling it immediately.
func (c *Core) RegisterProvider(pc ProviderConfig, p providers.Provider) error {
	if err := c.validateNew(pc); err != nil {
		return err
	}
	return c.addProvider(pc, p)
}

func (c *Core) validateNew(pc ProviderConfig) error {
	if _, exists := c.runtime(pc.Name); exists {
		return fmt.Errorf("%w: %s", ErrProviderExists, pc.Name)
	}
	if err := validateProviders([]ProviderConfig{pc}); err != nil {
		return err
	}
	return nil
}

// DeregisterProvider removes name and every piece of state kept for it.
func (c *Core) DeregisterProvider(name string) error {
	c.mu.Lock()
	_, ok := c.runtimes[name]
	delete(c.runtimes, name)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}

	if err := c.scheduler.Remove(name); err != nil && !errors.Is(err, scheduler.ErrUnknownProvider) {
		return err
	}
	c.monitor.Untrack(name)
	c.limiter.Deregister(name)
	c.detector.Forget(name)
	c.store.Delete(name)
	c.registry.Remove(name)
	metrics.Forget(name)
	c.logger.Info("provider deregistered", "provider", name)
	return nil
}

// Reconfigure applies a new provider list: unknown providers are
// registered, missing ones deregistered and the schedule and limits of the
// rest updated. Providers whose connection settings changed get a new
// executor.
func (c *Core) Reconfigure(list []ProviderConfig) error {
	if err := validateProviders(list); err != nil {
		return fmt.Errorf("invalid providers: %w", err)
	}
	wanted := make(map[string]ProviderConfig, len(list))
	for _, pc := range list {
		wanted[pc.Name] = pc
	}

	var errs []error
	for _, name := range c.Providers() {
		if _, keep := wanted[name]; !keep {
			if err := c.DeregisterProvider(name); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, pc := range list {
		rt, exists := c.runtime(pc.Name)
		switch {
		case !exists:
			if err := c.addProvider(pc, nil); err != nil {
				errs = append(errs, err)
			}
		case connectionChanged(rt.cfg, pc):
			if err := c.DeregisterProvider(pc.Name); err != nil {
				errs = append(errs, err)
				continue
			}
			if err := c.addProvider(pc, nil); err != nil {
				errs = append(errs, err)
			}
		default:
			if err := c.applyProviderConfig(rt.cfg, pc); err != nil {
				errs = append(errs, err)
			}
		}
	}
	c.logger.Info("providers reconfigured", "providers", len(list), "errors", len(errs))
	return errors.Join(errs...)
}

func connectionChanged(old, cur ProviderConfig) bool {
	strip := func(p ProviderConfig) ProviderConfig {
		p.Priority = 0
		p.PollingInterval = ""
		p.Enabled = nil
		p.RateLimit = nil
		p.EstimatedTokens = 0
		return p
	}
	return !reflect.DeepEqual(strip(old), strip(cur))
}

func (c *Core) applyProviderConfig(old, cur ProviderConfig) error {
	u := scheduler.ScheduleUpdate{}
	if old.Priority != cur.Priority {
		u.Priority = &cur.Priority
	}
	if old.PollingInterval != cur.PollingInterval {
		interval := durationOr(cur.PollingInterval, c.defaultInterval())
		u.Interval = &interval
	}
	if old.IsEnabled() != cur.IsEnabled() {
		enabled := cur.IsEnabled()
		u.Enabled = &enabled
	}
	if _, err := c.scheduler.Update(cur.Name, u); err != nil {
		return err
	}

	var limits ProviderLimits
	if cur.RateLimit != nil {
		limits = *cur.RateLimit
	}
	if _, err := c.limiter.UpdateLimits(cur.Name, ratelimit.LimitsUpdate{
		RequestsPerMinute:  &limits.RequestsPerMinute,
		TokensPerMinute:    &limits.TokensPerMinute,
		ConcurrentRequests: &limits.ConcurrentRequests,
	}); err != nil {
		return err
	}

	c.mu.Lock()
	if rt, ok := c.runtimes[cur.Name]; ok {
		rt.cfg = cur
	}
	c.mu.Unlock()
	return nil
}

func (c *Core) defaultInterval() time.Duration {
	return durationOr(c.cfg.Scheduler.DefaultInterval, scheduler.DefaultInterval)
}
