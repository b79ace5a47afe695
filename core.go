// Package gatewaycore is the provider reliability and scheduling core of an
// LLM gateway.
//
// A Core polls every configured provider for its model catalog on a jittered
// timer, gates each call through a per-provider rate limiter and circuit
// breaker, probes provider and model health, diffs each fetched catalog
// against the previous snapshot and reports noteworthy transitions to
// notification sinks.
//
// Create one with New from a [Config] (see [LoadConfig]), call Start, and
// use the query and admin methods while it runs. Stop releases timers and
// sinks.
package gatewaycore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ferro-labs/gateway-core/events"
	"github.com/ferro-labs/gateway-core/internal/catalog"
	"github.com/ferro-labs/gateway-core/internal/circuitbreaker"
	"github.com/ferro-labs/gateway-core/internal/clock"
	"github.com/ferro-labs/gateway-core/internal/cron"
	"github.com/ferro-labs/gateway-core/internal/delta"
	"github.com/ferro-labs/gateway-core/internal/health"
	"github.com/ferro-labs/gateway-core/internal/logging"
	"github.com/ferro-labs/gateway-core/internal/metrics"
	"github.com/ferro-labs/gateway-core/internal/ratelimit"
	"github.com/ferro-labs/gateway-core/internal/scheduler"
	"github.com/ferro-labs/gateway-core/providers"
)

// Defaults applied on top of the component defaults.
const (
	DefaultCallTimeout           = 30 * time.Second
	DefaultManualRefreshInterval = 10 * time.Second
	DefaultManualRefreshBurst    = 2
	JobLifecycleCleanup          = "lifecycle_cleanup"
)

// Option customises a Core.
type Option func(*options)

type options struct {
	clock     clock.Clock
	logger    *slog.Logger
	rand      scheduler.Rand
	providers map[string]providers.Provider
	sinks     []sinkOption
}

type sinkOption struct {
	sink  events.Sink
	types []events.Type
}

// WithClock sets the time source of every component.
func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

// WithLogger sets the logger of every component.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithRand sets the jitter source of the scheduler.
func WithRand(r scheduler.Rand) Option { return func(o *options) { o.rand = r } }

// WithProvider supplies a ready-made executor for the configured provider of
// the same name instead of building one from its kind.
func WithProvider(p providers.Provider) Option {
	return func(o *options) { o.providers[p.Name()] = p }
}

// WithSink registers a notification sink in addition to the configured ones.
func WithSink(s events.Sink, types ...events.Type) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinkOption{sink: s, types: types}) }
}

// providerRuntime is the per-provider state owned by the core. Limiter,
// breaker, health, schedule and snapshot entries are created and removed
// together with it.
type providerRuntime struct {
	cfg      ProviderConfig
	provider providers.Provider
	breaker  *circuitbreaker.CircuitBreaker
	manual   *rate.Limiter

	// origin is the registered runtime a copy was taken from.
	origin *providerRuntime
}

// Core owns every reliability component.
type Core struct {
	clock  clock.Clock
	logger *slog.Logger

	registry   *providers.Registry
	store      *catalog.Store
	detector   *delta.Detector
	limiter    *ratelimit.Limiter
	monitor    *health.Monitor
	scheduler  *scheduler.Scheduler
	dispatcher *events.Dispatcher
	jobs       *cron.Scheduler

	breakerCfg    circuitbreaker.Config
	callTimeout   time.Duration
	manualEvery   time.Duration
	manualBurst   int
	retention     time.Duration
	healthEnabled bool

	mu       sync.RWMutex
	cfg      Config
	runtimes map[string]*providerRuntime
	started  bool
	stopped  bool
	cancel   context.CancelFunc
}

// New creates a Core from cfg. Providers are built from their kind unless
// WithProvider supplies an executor. Configured notification sinks must be
// registered (see events.RegisterFactory).
func New(cfg Config, opts ...Option) (*Core, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := options{providers: make(map[string]providers.Provider)}
	for _, opt := range opts {
		opt(&o)
	}
	clk := clock.OrReal(o.clock)
	logger := logging.OrDefault(o.logger)

	c := &Core{
		clock:         clk,
		logger:        logger,
		registry:      providers.NewRegistry(),
		store:         catalog.NewStore(),
		dispatcher:    events.NewDispatcher(0, logger),
		jobs:          cron.NewScheduler(logger),
		callTimeout:   durationOr(cfg.Scheduler.CallTimeout, DefaultCallTimeout),
		manualEvery:   durationOr(cfg.Scheduler.ManualRefreshInterval, DefaultManualRefreshInterval),
		manualBurst:   cfg.Scheduler.ManualRefreshBurst,
		retention:     durationOr(cfg.Delta.LifecycleRetention, delta.DefaultLifecycleRetention),
		healthEnabled: !cfg.Health.Disabled,
		cfg:           cfg,
		runtimes:      make(map[string]*providerRuntime),
	}
	if c.manualBurst <= 0 {
		c.manualBurst = DefaultManualRefreshBurst
	}

	c.detector = delta.New(c.store, delta.Options{
		SignificanceThreshold: cfg.Delta.SignificanceThreshold,
		HistorySize:           cfg.Delta.HistorySize,
		AvailabilitySize:      cfg.Delta.AvailabilitySize,
		Clock:                 clk,
		Logger:                logger,
	})
	c.limiter = ratelimit.New(ratelimit.Options{
		SafetyBuffer:      cfg.RateLimit.SafetyBuffer,
		MinBackoff:        durationOr(cfg.RateLimit.MinBackoff, 0),
		MaxBackoff:        durationOr(cfg.RateLimit.MaxBackoff, 0),
		BackoffMultiplier: cfg.RateLimit.BackoffMultiplier,
		Clock:             clk,
		Logger:            logger,
		OnRateLimitHit:    c.onRateLimitHit,
	})
	c.breakerCfg = circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		ResetTimeout:     durationOr(cfg.CircuitBreaker.Timeout, 0),
		IsIgnored:        providers.IsRateLimited,
		OnStateChange:    c.onCircuitChange,
		Clock:            clk,
	}
	c.monitor = health.NewMonitor(c.probe, c.store, health.Options{
		UnhealthyThreshold: cfg.Health.UnhealthyThreshold,
		RecoveryThreshold:  cfg.Health.RecoveryThreshold,
		HistorySize:        cfg.Health.HistorySize,
		Interval:           durationOr(cfg.Health.Interval, 0),
		ProviderBatch:      cfg.Health.ProviderBatch,
		ModelBatch:         cfg.Health.ModelBatch,
		ProbeTimeout:       durationOr(cfg.Health.ProbeTimeout, 0),
		Clock:              clk,
		Logger:             logger,
		OnDegraded:         c.onDegraded,
		OnRecovered:        c.onRecovered,
	})
	c.scheduler = scheduler.New(c.refresh, scheduler.Options{
		DefaultInterval:   durationOr(cfg.Scheduler.DefaultInterval, 0),
		InitialDelay:      durationOr(cfg.Scheduler.InitialDelay, 0),
		MaxRetries:        optionalInt(cfg.Scheduler.MaxRetries, scheduler.NoRetries),
		BackoffDelay:      durationOr(cfg.Scheduler.BackoffDelay, 0),
		BackoffMultiplier: cfg.Scheduler.BackoffMultiplier,
		MaxBackoff:        durationOr(cfg.Scheduler.MaxBackoff, 0),
		Jitter:            optionalFloat(cfg.Scheduler.Jitter, scheduler.NoJitter),
		HistorySize:       cfg.Scheduler.HistorySize,
		Rand:              o.rand,
		Clock:             clk,
		Logger:            logger,
	})

	for _, pc := range cfg.Providers {
		if err := c.addProvider(pc, o.providers[pc.Name]); err != nil {
			return nil, err
		}
	}
	if err := c.loadSinks(cfg.Notifications, o.sinks); err != nil {
		_ = c.dispatcher.Close()
		return nil, err
	}

	cleanup := cfg.Maintenance.LifecycleCleanup
	if cleanup == "" {
		cleanup = DefaultLifecycleCleanup
	}
	if err := c.jobs.RegisterJob(cron.FuncJob{JobName: JobLifecycleCleanup, Spec: cleanup, Fn: c.cleanupLifecycles}); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Core) loadSinks(cfgs []NotificationConfig, extra []sinkOption) error {
	for _, nc := range cfgs {
		if !nc.Enabled {
			continue
		}
		sink, err := events.Build(nc.Name, nc.Config)
		if err != nil {
			return err
		}
		types := make([]events.Type, len(nc.Events))
		for i, t := range nc.Events {
			types[i] = events.Type(t)
		}
		if err := c.dispatcher.Register(sink, types...); err != nil {
			return err
		}
	}
	for _, so := range extra {
		if err := c.dispatcher.Register(so.sink, so.types...); err != nil {
			return err
		}
	}
	return nil
}

// addProvider creates every per-provider component for pc. p may be nil.
func (c *Core) addProvider(pc ProviderConfig, p providers.Provider) error {
	if p == nil {
		built, err := providers.Build(pc.buildConfig())
		if err != nil {
			return fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		p = built
	}
	if err := c.registry.Register(p); err != nil {
		return fmt.Errorf("%w: %s", ErrProviderExists, pc.Name)
	}

	var limits ratelimit.Limits
	if pc.RateLimit != nil {
		limits = ratelimit.Limits{
			RequestsPerMinute:  pc.RateLimit.RequestsPerMinute,
			TokensPerMinute:    pc.RateLimit.TokensPerMinute,
			ConcurrentRequests: pc.RateLimit.ConcurrentRequests,
		}
	}
	rt := &providerRuntime{
		cfg:      pc,
		provider: p,
		breaker:  circuitbreaker.New(pc.Name, c.breakerCfg),
		manual:   rate.NewLimiter(rate.Every(c.manualEvery), c.manualBurst),
	}
	c.mu.Lock()
	c.runtimes[pc.Name] = rt
	c.mu.Unlock()
	c.limiter.Register(pc.Name, limits)
	c.monitor.Track(pc.Name)
	metrics.CircuitBreakerState.WithLabelValues(pc.Name).Set(0)
	metrics.ProviderHealth.WithLabelValues(pc.Name).Set(-1)

	// The scheduler goes last: a running core may fire the first cycle
	// right away.
	if err := c.scheduler.Add(pc.Name, scheduler.Config{
		Interval: durationOr(pc.PollingInterval, 0),
		Priority: pc.Priority,
		Enabled:  pc.IsEnabled(),
	}); err != nil {
		_ = c.DeregisterProvider(pc.Name)
		return fmt.Errorf("%w: %s", ErrProviderExists, pc.Name)
	}
	c.logger.Info("provider registered", "provider", pc.Name, "kind", pc.Kind, "enabled", pc.IsEnabled())
	return nil
}

// runtime returns a copy of name's runtime; cfg may change under c.mu.
func (c *Core) runtime(name string) (*providerRuntime, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rt, ok := c.runtimes[name]
	if !ok {
		return nil, false
	}
	cp := *rt
	cp.origin = rt
	return &cp, true
}

// whileRegistered runs fn under the registry read lock if rt is still the
// live registration for name, and reports whether it ran. Deregistration
// removes the runtime under the write lock before tearing down components,
// so fn never writes state back for a provider that is gone or replaced.
func (c *Core) whileRegistered(name string, rt *providerRuntime, fn func()) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cur, ok := c.runtimes[name]
	if !ok || cur != rt.origin {
		return false
	}
	fn()
	return true
}

func (c *Core) mustRuntime(name string) (*providerRuntime, error) {
	rt, ok := c.runtime(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return rt, nil
}

// Start arms refresh timers, health sweeps and maintenance jobs.
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	c.started = true
	c.cancel = cancel
	c.mu.Unlock()

	c.scheduler.Start(ctx)
	if c.healthEnabled {
		c.monitor.Start(ctx)
	}
	if err := c.jobs.Start(ctx); err != nil {
		c.scheduler.Stop()
		c.monitor.Stop()
		cancel()
		return err
	}
	c.logger.Info("gateway core started", "providers", len(c.Providers()))
	return nil
}

// Stop cancels timers and jobs, waits for pending notifications and closes
// the sinks. In-flight refresh cycles finish but are not rescheduled. A
// stopped core cannot be started again.
func (c *Core) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	wasStarted := c.started
	c.started = false
	c.stopped = true
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	c.scheduler.Stop()
	c.monitor.Stop()
	var errs []error
	if wasStarted {
		if err := c.jobs.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if cancel != nil {
		cancel()
	}
	if err := c.dispatcher.Close(); err != nil {
		errs = append(errs, err)
	}
	if wasStarted {
		c.logger.Info("gateway core stopped")
	}
	return errors.Join(errs...)
}

// Providers returns the registered provider names, sorted.
func (c *Core) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.runtimes))
	for name := range c.runtimes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Config returns a copy of the configuration the core runs with.
func (c *Core) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg := c.cfg
	cfg.Providers = make([]ProviderConfig, 0, len(c.runtimes))
	for _, rt := range c.runtimes {
		cfg.Providers = append(cfg.Providers, rt.cfg)
	}
	sort.Slice(cfg.Providers, func(i, j int) bool { return cfg.Providers[i].Name < cfg.Providers[j].Name })
	return cfg
}

// Sinks returns the names of the registered notification sinks.
func (c *Core) Sinks() []string { return c.dispatcher.Sinks() }

// WaitNotifications blocks until every published event has been delivered.
func (c *Core) WaitNotifications() { c.dispatcher.Wait() }
