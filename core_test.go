package gatewaycore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ferro-labs/gateway-core/events"
	"github.com/ferro-labs/gateway-core/internal/circuitbreaker"
	"github.com/ferro-labs/gateway-core/internal/clock/clocktest"
	"github.com/ferro-labs/gateway-core/internal/delta"
	"github.com/ferro-labs/gateway-core/internal/health"
	"github.com/ferro-labs/gateway-core/internal/ratelimit"
	"github.com/ferro-labs/gateway-core/internal/scheduler"
	"github.com/ferro-labs/gateway-core/providers"
	"github.com/ferro-labs/gateway-core/providers/providertest"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type collector struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collector) sink() events.Sink {
	return events.FuncSink{SinkName: "collector", Fn: func(_ context.Context, ev events.Event) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, ev)
		return nil
	}}
}

func (c *collector) ofType(typ events.Type) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, ev := range c.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fixedRand struct{}

func (fixedRand) Float64() float64 { return 0.5 }

type harness struct {
	core   *Core
	clock  *clocktest.Fake
	events *collector
}

func newHarness(t *testing.T, cfg Config, fakes ...*providertest.Fake) *harness {
	t.Helper()
	h := &harness{clock: clocktest.New(testStart), events: &collector{}}
	opts := []Option{
		WithClock(h.clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRand(fixedRand{}),
		WithSink(h.events.sink()),
	}
	for _, f := range fakes {
		opts = append(opts, WithProvider(f))
	}
	core, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = core.Stop(context.Background()) })
	h.core = core
	return h
}

func custom(name string) ProviderConfig {
	return ProviderConfig{
		Name:      name,
		Kind:      providers.KindCustom,
		RateLimit: &ProviderLimits{RequestsPerMinute: 100},
	}
}

func (h *harness) force(t *testing.T, name string) error {
	t.Helper()
	h.clock.Advance(time.Minute)
	err := h.core.ForceExecuteProvider(context.Background(), name)
	h.core.WaitNotifications()
	return err
}

func TestRefresh_InitialDiscoveryThenChange(t *testing.T) {
	alpha := providertest.New("alpha", providertest.Models("m1", "m2")...)
	h := newHarness(t, Config{Providers: []ProviderConfig{custom("alpha")}}, alpha)

	if err := h.force(t, "alpha"); err != nil {
		t.Fatalf("first refresh error: %v", err)
	}
	if got := h.events.ofType(events.TypeCatalogChanged); len(got) != 0 {
		t.Fatalf("initial discovery published %d catalog_changed events", len(got))
	}
	st, err := h.core.ProviderStatus("alpha")
	if err != nil {
		t.Fatalf("ProviderStatus() error: %v", err)
	}
	if st.Models != 2 || st.Health.Status != health.ProviderHealthy {
		t.Fatalf("status after first refresh = %+v", st)
	}

	alpha.SetModels(providertest.Models("m2", "m3")...)
	if err := h.force(t, "alpha"); err != nil {
		t.Fatalf("second refresh error: %v", err)
	}
	changed := h.events.ofType(events.TypeCatalogChanged)
	if len(changed) != 1 {
		t.Fatalf("catalog_changed events = %d, want 1", len(changed))
	}
	added, _ := changed[0].Data["added"].([]string)
	removed, _ := changed[0].Data["removed"].([]string)
	if len(added) != 1 || added[0] != "m3" || len(removed) != 1 || removed[0] != "m1" {
		t.Errorf("event data = %+v", changed[0].Data)
	}
	if changed[0].Data["summary"] == "" {
		t.Error("catalog_changed carries no summary")
	}

	history, err := h.core.ChangeHistory("alpha", 10)
	if err != nil {
		t.Fatalf("ChangeHistory() error: %v", err)
	}
	if len(history) != 2 || history[0].InitialDiscovery || !history[1].InitialDiscovery {
		t.Fatalf("history = %+v, want newest first", history)
	}
}

func TestRefresh_FailuresOpenCircuitAndDegrade(t *testing.T) {
	alpha := providertest.New("alpha")
	alpha.FailCatalog(errors.New("connection refused"))
	cfg := Config{
		Providers:      []ProviderConfig{custom("alpha")},
		CircuitBreaker: CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: "10m"},
		Health:         HealthConfig{UnhealthyThreshold: 2},
		Scheduler:      SchedulerConfig{ManualRefreshBurst: 10},
	}
	h := newHarness(t, cfg, alpha)

	for i := 0; i < 2; i++ {
		if err := h.force(t, "alpha"); err == nil {
			t.Fatalf("refresh %d succeeded against a failing provider", i)
		}
	}
	if got := h.events.ofType(events.TypeCircuitOpened); len(got) != 1 {
		t.Fatalf("circuit_opened events = %d, want 1", len(got))
	}
	if got := h.events.ofType(events.TypeProviderDegraded); len(got) != 1 {
		t.Fatalf("provider_degraded events = %d, want 1", len(got))
	}

	err := h.force(t, "alpha")
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Fatalf("refresh with open circuit = %v, want ErrCircuitOpen", err)
	}
	var skip *scheduler.SkipError
	if !errors.As(err, &skip) {
		t.Fatalf("open circuit should skip the cycle, got %T", err)
	}
	if alpha.Fetches() != 2 {
		t.Errorf("fetches = %d, open circuit must not call the provider", alpha.Fetches())
	}

	summary := h.core.HealthSummary()
	if len(summary.OpenCircuits) != 1 || summary.OpenCircuits[0] != "alpha" {
		t.Errorf("OpenCircuits = %v", summary.OpenCircuits)
	}

	alpha.SetModels(providertest.Models("m1")...)
	h.clock.Advance(10 * time.Minute)
	if err := h.force(t, "alpha"); err != nil {
		t.Fatalf("half-open trial error: %v", err)
	}
	if got := h.events.ofType(events.TypeCircuitClosed); len(got) != 1 {
		t.Fatalf("circuit_closed events = %d, want 1", len(got))
	}
}

func TestRefresh_RateLimitedBacksOffWithoutTrippingBreaker(t *testing.T) {
	alpha := providertest.New("alpha")
	alpha.FailCatalog(&providers.RateLimitError{Provider: "alpha", RetryAfter: 5 * time.Minute})
	cfg := Config{
		Providers:      []ProviderConfig{custom("alpha")},
		CircuitBreaker: CircuitBreakerConfig{FailureThreshold: 1},
	}
	h := newHarness(t, cfg, alpha)

	err := h.force(t, "alpha")
	if !errors.Is(err, providers.ErrRateLimited) {
		t.Fatalf("refresh error = %v, want ErrRateLimited", err)
	}
	if got := h.events.ofType(events.TypeRateLimitHit); len(got) != 1 {
		t.Fatalf("rate_limit_hit events = %d, want 1", len(got))
	}
	st, _ := h.core.ProviderStatus("alpha")
	if st.Circuit.State != circuitbreaker.StateClosed {
		t.Errorf("circuit = %s, rate limiting must not count as failure", st.Circuit.State)
	}
	if !st.RateLimit.BackoffActive {
		t.Error("backoff not active after rate limit signal")
	}

	err = h.force(t, "alpha")
	if !errors.Is(err, ratelimit.ErrAdmissionDenied) {
		t.Fatalf("refresh during backoff = %v, want ErrAdmissionDenied", err)
	}
	if alpha.Fetches() != 1 {
		t.Errorf("fetches = %d, backoff must hold calls", alpha.Fetches())
	}

	if err := h.core.ResetBackoff("alpha"); err != nil {
		t.Fatalf("ResetBackoff() error: %v", err)
	}
	alpha.SetModels(providertest.Models("m1")...)
	if err := h.force(t, "alpha"); err != nil {
		t.Fatalf("refresh after reset = %v", err)
	}
}

func TestRefresh_InvalidCatalogKeepsSnapshot(t *testing.T) {
	alpha := providertest.New("alpha", providertest.Models("m1")...)
	h := newHarness(t, Config{Providers: []ProviderConfig{custom("alpha")}}, alpha)
	if err := h.force(t, "alpha"); err != nil {
		t.Fatalf("first refresh error: %v", err)
	}

	alpha.SetModels(providertest.Models("m2", "m2")...)
	err := h.force(t, "alpha")
	if !errors.Is(err, delta.ErrMalformedCatalog) {
		t.Fatalf("refresh error = %v, want ErrMalformedCatalog", err)
	}
	if got := h.events.ofType(events.TypeCatalogInvalid); len(got) != 1 {
		t.Fatalf("catalog_invalid events = %d, want 1", len(got))
	}
	if !h.core.store.Has("alpha", "m1") || h.core.store.Has("alpha", "m2") {
		t.Error("malformed catalog replaced the previous snapshot")
	}
}

func TestModelHealth_Lookup(t *testing.T) {
	alpha := providertest.New("alpha", providertest.Models("shared", "a-only")...)
	beta := providertest.New("beta", providertest.Models("shared")...)
	h := newHarness(t, Config{Providers: []ProviderConfig{custom("alpha"), custom("beta")}}, alpha, beta)
	for _, name := range []string{"alpha", "beta"} {
		if err := h.force(t, name); err != nil {
			t.Fatalf("refresh %s error: %v", name, err)
		}
	}

	got, err := h.core.ModelHealth("alpha/a-only")
	if err != nil || len(got) != 1 || got[0].Provider != "alpha" {
		t.Fatalf("ModelHealth(alpha/a-only) = %+v, %v", got, err)
	}
	got, err = h.core.ModelHealth("shared")
	if err != nil || len(got) != 2 {
		t.Fatalf("ModelHealth(shared) = %+v, %v", got, err)
	}
	if _, err := h.core.ModelHealth("alpha/missing"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("unknown model error = %v", err)
	}
	if _, err := h.core.ModelHealth("nothing"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("unknown bare model error = %v", err)
	}
}

func TestQueries_UnknownProvider(t *testing.T) {
	h := newHarness(t, Config{Providers: []ProviderConfig{custom("alpha")}}, providertest.New("alpha"))

	if _, err := h.core.ProviderStatus("ghost"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("ProviderStatus: %v", err)
	}
	if _, err := h.core.ChangeHistory("ghost", 5); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("ChangeHistory: %v", err)
	}
	if _, err := h.core.ProviderStats("ghost", 1); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("ProviderStats: %v", err)
	}
	if err := h.core.SetProviderEnabled("ghost", false); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("SetProviderEnabled: %v", err)
	}
	if err := h.core.ForceExecuteProvider(context.Background(), "ghost"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("ForceExecuteProvider: %v", err)
	}
	if err := h.core.ResetBackoff("ghost"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("ResetBackoff: %v", err)
	}
	if err := h.core.DeregisterProvider("ghost"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("DeregisterProvider: %v", err)
	}
}

func TestProviderStats_DefaultWindow(t *testing.T) {
	alpha := providertest.New("alpha", providertest.Models("m1")...)
	h := newHarness(t, Config{Providers: []ProviderConfig{custom("alpha")}}, alpha)
	if err := h.force(t, "alpha"); err != nil {
		t.Fatal(err)
	}
	stats, err := h.core.ProviderStats("alpha", 0)
	if err != nil {
		t.Fatalf("ProviderStats() error: %v", err)
	}
	if stats.Checks != 1 || stats.Successes != 1 || stats.UptimePercentage != 100 {
		t.Errorf("stats = %+v", stats)
	}
	if !stats.Since.Equal(h.clock.Now().Add(-DefaultStatsHours * time.Hour)) {
		t.Errorf("Since = %v", stats.Since)
	}
}

func TestForceExecute_Throttled(t *testing.T) {
	alpha := providertest.New("alpha", providertest.Models("m1")...)
	h := newHarness(t, Config{
		Providers: []ProviderConfig{custom("alpha")},
		Scheduler: SchedulerConfig{ManualRefreshInterval: "30s", ManualRefreshBurst: 2},
	}, alpha)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := h.core.ForceExecuteProvider(ctx, "alpha"); err != nil {
			t.Fatalf("manual refresh %d error: %v", i, err)
		}
	}
	if err := h.core.ForceExecuteProvider(ctx, "alpha"); !errors.Is(err, ErrManualRefreshThrottled) {
		t.Fatalf("third manual refresh = %v, want ErrManualRefreshThrottled", err)
	}
	h.clock.Advance(30 * time.Second)
	if err := h.core.ForceExecuteProvider(ctx, "alpha"); err != nil {
		t.Fatalf("manual refresh after refill error: %v", err)
	}
	if alpha.Fetches() != 3 {
		t.Errorf("fetches = %d, want 3", alpha.Fetches())
	}
	jobs, err := h.core.JobHistory("alpha", 0)
	if err != nil || len(jobs) != 3 || !jobs[0].Forced {
		t.Errorf("JobHistory = %+v, %v", jobs, err)
	}
}

func TestAdmin_ScheduleLimitsAndEnable(t *testing.T) {
	h := newHarness(t, Config{Providers: []ProviderConfig{custom("alpha")}}, providertest.New("alpha"))

	interval := 20 * time.Minute
	priority := 3
	entry, err := h.core.UpdateProviderSchedule("alpha", scheduler.ScheduleUpdate{Interval: &interval, Priority: &priority})
	if err != nil {
		t.Fatalf("UpdateProviderSchedule() error: %v", err)
	}
	if entry.Interval != interval || entry.Priority != 3 {
		t.Errorf("entry = %+v", entry)
	}

	rpm := 600
	limits, err := h.core.UpdateProviderLimits("alpha", ratelimit.LimitsUpdate{RequestsPerMinute: &rpm})
	if err != nil || limits.RequestsPerMinute != 600 {
		t.Fatalf("UpdateProviderLimits() = %+v, %v", limits, err)
	}

	if err := h.core.SetProviderEnabled("alpha", false); err != nil {
		t.Fatalf("SetProviderEnabled() error: %v", err)
	}
	st, _ := h.core.ProviderStatus("alpha")
	if st.Enabled || st.Schedule.Enabled {
		t.Errorf("provider still enabled: %+v", st.Schedule)
	}

	cfg := h.core.Config()
	pc := cfg.Providers[0]
	if pc.PollingInterval != "20m0s" || pc.Priority != 3 || pc.IsEnabled() || pc.RateLimit.RequestsPerMinute != 600 {
		t.Errorf("config not updated: %+v", pc)
	}
}

func TestProbe_ThroughBreaker(t *testing.T) {
	alpha := providertest.New("alpha")
	h := newHarness(t, Config{Providers: []ProviderConfig{custom("alpha")}}, alpha)
	ctx := context.Background()

	alpha.SetProbe(providers.ProbeResult{Healthy: false, Detail: "503"}, nil)
	res, err := h.core.probe(ctx, "alpha")
	if err != nil || res.Healthy {
		t.Fatalf("probe() = %+v, %v", res, err)
	}
	rt, _ := h.core.runtime("alpha")
	if rt.breaker.Snapshot().FailureCount != 1 {
		t.Errorf("unhealthy probe not counted by breaker")
	}

	if err := h.core.SetProviderEnabled("alpha", false); err != nil {
		t.Fatal(err)
	}
	if _, err := h.core.probe(ctx, "alpha"); !errors.Is(err, health.ErrSkipped) {
		t.Errorf("disabled provider probe = %v, want ErrSkipped", err)
	}
}

func TestCheckProvider(t *testing.T) {
	alpha := providertest.New("alpha")
	h := newHarness(t, Config{Providers: []ProviderConfig{custom("alpha")}}, alpha)
	ctx := context.Background()

	ph, err := h.core.CheckProvider(ctx, "alpha")
	if err != nil || ph.Status != health.ProviderHealthy || ph.TotalChecks != 1 {
		t.Fatalf("CheckProvider() = %+v, %v", ph, err)
	}

	alpha.SetProbe(providers.ProbeResult{}, errors.New("connection refused"))
	ph, err = h.core.CheckProvider(ctx, "alpha")
	if err != nil || ph.Status != health.ProviderError || ph.ConsecutiveFailures != 1 {
		t.Fatalf("CheckProvider() after failure = %+v, %v", ph, err)
	}

	if _, err := h.core.CheckProvider(ctx, "ghost"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("unknown provider = %v, want ErrProviderNotFound", err)
	}
	if alpha.Probes() != 2 {
		t.Errorf("probes = %d, want 2", alpha.Probes())
	}
}

func TestRegisterAndDeregister(t *testing.T) {
	h := newHarness(t, Config{Providers: []ProviderConfig{custom("alpha")}}, providertest.New("alpha"))

	beta := providertest.New("beta", providertest.Models("b1")...)
	if err := h.core.RegisterProvider(custom("beta"), beta); err != nil {
		t.Fatalf("RegisterProvider() error: %v", err)
	}
	if err := h.core.RegisterProvider(custom("beta"), beta); !errors.Is(err, ErrProviderExists) {
		t.Fatalf("duplicate RegisterProvider() = %v", err)
	}
	if err := h.force(t, "beta"); err != nil {
		t.Fatalf("refresh beta error: %v", err)
	}

	if err := h.core.DeregisterProvider("beta"); err != nil {
		t.Fatalf("DeregisterProvider() error: %v", err)
	}
	if _, err := h.core.ProviderStatus("beta"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("ProviderStatus after deregister = %v", err)
	}
	if h.core.store.Has("beta", "b1") {
		t.Error("snapshot survived deregistration")
	}
	if _, err := h.core.ModelHealth("beta/b1"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("model health survived deregistration: %v", err)
	}
	if got := h.core.Providers(); len(got) != 1 || got[0] != "alpha" {
		t.Errorf("Providers() = %v", got)
	}
}

func TestDeregister_DuringRunningRefresh(t *testing.T) {
	beta := providertest.New("beta", providertest.Models("b1", "b2")...)
	h := newHarness(t, Config{Providers: []ProviderConfig{custom("beta")}}, beta)

	entered := make(chan struct{})
	release := make(chan struct{})
	beta.OnFetch(func(context.Context) {
		close(entered)
		<-release
	})
	done := make(chan error, 1)
	go func() { done <- h.core.ForceExecuteProvider(context.Background(), "beta") }()

	<-entered
	if err := h.core.DeregisterProvider("beta"); err != nil {
		t.Fatalf("DeregisterProvider() error: %v", err)
	}
	close(release)
	if err := <-done; !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("refresh of deregistered provider = %v, want ErrProviderNotFound", err)
	}

	if h.core.store.Has("beta", "b1") {
		t.Error("running refresh restored the snapshot")
	}
	if got := h.core.detector.Lifecycles("beta"); len(got) != 0 {
		t.Errorf("running refresh restored %d lifecycles", len(got))
	}
	if _, err := h.core.ModelHealth("beta/b1"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("running refresh restored model health: %v", err)
	}

	again := providertest.New("beta", providertest.Models("b1")...)
	if err := h.core.RegisterProvider(custom("beta"), again); err != nil {
		t.Fatalf("re-register error: %v", err)
	}
	if err := h.force(t, "beta"); err != nil {
		t.Fatalf("refresh after re-register error: %v", err)
	}
	history, err := h.core.ChangeHistory("beta", 10)
	if err != nil {
		t.Fatalf("ChangeHistory() error: %v", err)
	}
	if len(history) != 1 || !history[0].InitialDiscovery {
		t.Errorf("history after re-register = %+v, want one initial discovery", history)
	}
}

func TestReconfigure(t *testing.T) {
	h := newHarness(t, Config{Providers: []ProviderConfig{custom("alpha"), custom("beta")}},
		providertest.New("alpha"), providertest.New("beta"))

	alpha := custom("alpha")
	alpha.Priority = 5
	alpha.PollingInterval = "15m"
	gamma := ProviderConfig{Name: "gamma", Kind: "static", Models: []string{"g1"}}
	if err := h.core.Reconfigure([]ProviderConfig{alpha, gamma}); err != nil {
		t.Fatalf("Reconfigure() error: %v", err)
	}

	got := h.core.Providers()
	if len(got) != 2 || got[0] != "alpha" || got[1] != "gamma" {
		t.Fatalf("Providers() = %v", got)
	}
	st, _ := h.core.ProviderStatus("alpha")
	if st.Schedule.Priority != 5 || st.Schedule.Interval != 15*time.Minute {
		t.Errorf("alpha schedule = %+v", st.Schedule)
	}
	if err := h.force(t, "gamma"); err != nil {
		t.Fatalf("refresh gamma error: %v", err)
	}

	if err := h.core.Reconfigure([]ProviderConfig{{Name: "x", Kind: "carrier-pigeon"}}); err == nil {
		t.Fatal("Reconfigure accepted an unknown kind")
	}
	if len(h.core.Providers()) != 2 {
		t.Error("failed Reconfigure changed the provider set")
	}
}

func TestLifecycleCleanup(t *testing.T) {
	alpha := providertest.New("alpha", providertest.Models("m1", "m2")...)
	h := newHarness(t, Config{
		Providers: []ProviderConfig{custom("alpha")},
		Delta:     DeltaConfig{LifecycleRetention: "1h"},
	}, alpha)
	if err := h.force(t, "alpha"); err != nil {
		t.Fatal(err)
	}

	h.clock.Advance(2 * time.Hour)
	alpha.SetModels(providertest.Models("m2")...)
	if err := h.force(t, "alpha"); err != nil {
		t.Fatal(err)
	}
	if err := h.core.RunMaintenance(context.Background(), JobLifecycleCleanup); err != nil {
		t.Fatalf("RunMaintenance() error: %v", err)
	}

	models, err := h.core.Models("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 1 || models[0].Model != "m2" {
		t.Errorf("tracked models = %+v, want only m2", models)
	}
	lcs, _ := h.core.Lifecycles("alpha")
	if len(lcs) != 1 || lcs[0].ModelID != "m2" {
		t.Errorf("lifecycles = %+v", lcs)
	}
}

func TestStartStop(t *testing.T) {
	alpha := providertest.New("alpha", providertest.Models("m1")...)
	h := newHarness(t, Config{
		Providers: []ProviderConfig{custom("alpha")},
		Health:    HealthConfig{Disabled: true},
	}, alpha)
	ctx := context.Background()

	if err := h.core.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !h.core.ScheduleStatus().Running {
		t.Fatal("scheduler not running after Start")
	}
	h.clock.Advance(time.Second)
	if alpha.Fetches() != 1 {
		t.Fatalf("fetches after initial delay = %d, want 1", alpha.Fetches())
	}
	if next := h.core.ScheduleStatus().NextRun; next.IsZero() {
		t.Error("no next run armed after the first cycle")
	}

	if err := h.core.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if h.clock.Pending() != 0 {
		t.Errorf("pending timers after Stop = %d", h.clock.Pending())
	}
	if err := h.core.Start(ctx); !errors.Is(err, ErrStopped) {
		t.Errorf("Start after Stop = %v, want ErrStopped", err)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{Providers: []ProviderConfig{{Name: "a", Kind: "nope"}}})
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
	_, err = New(Config{Providers: []ProviderConfig{{Name: "a", Kind: providers.KindCustom}}})
	if err == nil {
		t.Fatal("expected error for custom kind without an executor")
	}
	_, err = New(Config{
		Providers:     []ProviderConfig{{Name: "s", Kind: "static", Models: []string{"m"}}},
		Notifications: []NotificationConfig{{Name: "no-such-sink", Enabled: true}},
	})
	if err == nil {
		t.Fatal("expected error for an unregistered sink")
	}
}
