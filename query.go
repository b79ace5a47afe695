package gatewaycore

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ferro-labs/gateway-core/internal/circuitbreaker"
	"github.com/ferro-labs/gateway-core/internal/delta"
	"github.com/ferro-labs/gateway-core/internal/health"
	"github.com/ferro-labs/gateway-core/internal/ratelimit"
	"github.com/ferro-labs/gateway-core/internal/scheduler"
)

// DefaultStatsHours is the ProviderStats window when hours <= 0.
const DefaultStatsHours = 24

// ProviderStatus combines every component's view of one provider.
type ProviderStatus struct {
	Provider       string                  `json:"provider"`
	Kind           string                  `json:"kind"`
	Enabled        bool                    `json:"enabled"`
	Health         health.ProviderHealth   `json:"health"`
	Circuit        circuitbreaker.Snapshot `json:"circuit"`
	RateLimit      ratelimit.State         `json:"rate_limit"`
	Schedule       scheduler.Entry         `json:"schedule"`
	Models         int                     `json:"models"`
	CatalogFetched time.Time               `json:"catalog_fetched,omitempty"`
	LastChange     *delta.Report           `json:"last_change,omitempty"`
	RecentChecks   []health.Record         `json:"recent_checks,omitempty"`
	RecentJobs     []scheduler.JobRecord   `json:"recent_jobs,omitempty"`
}

// ProviderStatus returns the combined status of name.
func (c *Core) ProviderStatus(name string) (ProviderStatus, error) {
	rt, err := c.mustRuntime(name)
	if err != nil {
		return ProviderStatus{}, err
	}
	st := ProviderStatus{
		Provider: name,
		Kind:     rt.cfg.Kind,
		Enabled:  rt.cfg.IsEnabled(),
		Circuit:  rt.breaker.Snapshot(),
		Models:   c.store.ModelCount(name),
	}
	if h, err := c.monitor.ProviderHealth(name); err == nil {
		st.Health = h
	}
	if rl, err := c.limiter.State(name); err == nil {
		st.RateLimit = rl
	}
	if e, err := c.scheduler.Entry(name); err == nil {
		st.Schedule = e
	}
	if snap, ok := c.store.Get(name); ok {
		st.CatalogFetched = snap.FetchedAt
	}
	if reports := c.detector.History(name, 1); len(reports) > 0 {
		st.LastChange = &reports[0]
	}
	st.RecentChecks, _ = c.monitor.History(name, 10)
	st.RecentJobs, _ = c.scheduler.History(name, 10)
	return st, nil
}

// ModelHealth returns the health of a model. id is either "provider/model"
// or a bare model id, which matches the model under every provider.
func (c *Core) ModelHealth(id string) ([]health.ModelHealth, error) {
	if provider, model, ok := strings.Cut(id, "/"); ok {
		if _, known := c.runtime(provider); known {
			mh, err := c.monitor.ModelHealth(provider, model)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
			}
			return []health.ModelHealth{mh}, nil
		}
	}
	found := c.monitor.FindModel(id)
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	return found, nil
}

// HealthSummary is the system-wide health view.
type HealthSummary struct {
	health.Summary
	Metrics          health.Metrics `json:"metrics"`
	OpenCircuits     []string       `json:"open_circuits"`
	ProvidersBackoff []string       `json:"providers_in_backoff"`
	SchedulerRunning bool           `json:"scheduler_running"`
	MonitorRunning   bool           `json:"monitor_running"`
}

// HealthSummary counts providers and models by status and reports recent
// probe metrics over the last hour.
func (c *Core) HealthSummary() HealthSummary {
	s := HealthSummary{
		Summary:          c.monitor.Summary(),
		Metrics:          c.monitor.Metrics(time.Hour),
		OpenCircuits:     []string{},
		ProvidersBackoff: []string{},
		SchedulerRunning: c.scheduler.Running(),
		MonitorRunning:   c.monitor.Running(),
	}
	for _, name := range c.Providers() {
		rt, ok := c.runtime(name)
		if !ok {
			continue
		}
		if rt.breaker.State() == circuitbreaker.StateOpen {
			s.OpenCircuits = append(s.OpenCircuits, name)
		}
		if st, err := c.limiter.State(name); err == nil && st.BackoffActive {
			s.ProvidersBackoff = append(s.ProvidersBackoff, name)
		}
	}
	return s
}

// ScheduleStatus is the scheduler view of every provider.
type ScheduleStatus struct {
	Running   bool              `json:"running"`
	Providers []scheduler.Entry `json:"providers"`
	NextRun   time.Time         `json:"next_run,omitempty"`
}

// ScheduleStatus returns every schedule entry in execution priority order
// and the earliest pending run.
func (c *Core) ScheduleStatus() ScheduleStatus {
	s := ScheduleStatus{Running: c.scheduler.Running(), Providers: c.scheduler.Entries()}
	for _, e := range s.Providers {
		if e.NextRun.IsZero() {
			continue
		}
		if s.NextRun.IsZero() || e.NextRun.Before(s.NextRun) {
			s.NextRun = e.NextRun
		}
	}
	return s
}

// ChangeHistory returns up to limit change reports of name, newest first.
func (c *Core) ChangeHistory(name string, limit int) ([]delta.Report, error) {
	if _, err := c.mustRuntime(name); err != nil {
		return nil, err
	}
	reports := c.detector.History(name, limit)
	if reports == nil {
		reports = []delta.Report{}
	}
	return reports, nil
}

// ProviderStats returns health statistics of name over the last hours.
func (c *Core) ProviderStats(name string, hours int) (health.Stats, error) {
	if _, err := c.mustRuntime(name); err != nil {
		return health.Stats{}, err
	}
	if hours <= 0 {
		hours = DefaultStatsHours
	}
	return c.monitor.Stats(name, time.Duration(hours)*time.Hour)
}

// Models returns the model health entries of name, or of every provider
// when name is empty.
func (c *Core) Models(name string) ([]health.ModelHealth, error) {
	if name != "" {
		if _, err := c.mustRuntime(name); err != nil {
			return nil, err
		}
	}
	return c.monitor.Models(name), nil
}

// Lifecycles returns the model lifecycle records of name, sorted by model.
func (c *Core) Lifecycles(name string) ([]delta.Lifecycle, error) {
	if _, err := c.mustRuntime(name); err != nil {
		return nil, err
	}
	out := c.detector.Lifecycles(name)
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out, nil
}

// JobHistory returns up to limit executed refresh cycles of name, newest
// first.
func (c *Core) JobHistory(name string, limit int) ([]scheduler.JobRecord, error) {
	if _, err := c.mustRuntime(name); err != nil {
		return nil, err
	}
	return c.scheduler.History(name, limit)
}
