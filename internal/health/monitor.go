// Package health runs lightweight provider and model probes, keeps a
// bounded probe history per entity and derives uptime statistics.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ferro-labs/gateway-core/internal/clock"
	"github.com/ferro-labs/gateway-core/internal/logging"
	"github.com/ferro-labs/gateway-core/internal/ringbuf"
	"github.com/ferro-labs/gateway-core/providers"
)

var (
	// ErrUnknownEntity is returned for providers or models the monitor does
	// not track.
	ErrUnknownEntity = errors.New("health: unknown entity")

	// ErrSkipped is returned by a ProbeFunc when admission control refused
	// the probe. Skipped probes leave health state untouched.
	ErrSkipped = errors.New("health: probe skipped")
)

// Defaults.
const (
	DefaultUnhealthyThreshold = 3
	DefaultRecoveryThreshold  = 2
	DefaultHistorySize        = 100
	DefaultInterval           = 60 * time.Second
	DefaultProviderBatch      = 3
	DefaultModelBatch         = 5
	DefaultProbeTimeout       = 30 * time.Second
)

// ProviderStatus is the health state of a provider.
type ProviderStatus string

// Provider statuses.
const (
	ProviderUnknown   ProviderStatus = "unknown"
	ProviderHealthy   ProviderStatus = "healthy"
	ProviderUnhealthy ProviderStatus = "unhealthy"
	ProviderError     ProviderStatus = "error"
)

// ModelStatus is the availability state of a model.
type ModelStatus string

// Model statuses.
const (
	ModelUnknown     ModelStatus = "unknown"
	ModelAvailable   ModelStatus = "available"
	ModelUnavailable ModelStatus = "unavailable"
	ModelError       ModelStatus = "error"
)

// ProbeFunc performs a provider probe. The scheduling core supplies one
// that is gated by the rate limiter and wrapped by the circuit breaker.
type ProbeFunc func(ctx context.Context, provider string) (providers.ProbeResult, error)

// CatalogView answers model presence checks.
type CatalogView interface {
	Has(provider, model string) bool
}

// Options configures a Monitor.
type Options struct {
	UnhealthyThreshold int
	RecoveryThreshold  int
	HistorySize        int
	Interval           time.Duration
	ProviderBatch      int
	ModelBatch         int
	ProbeTimeout       time.Duration
	Clock              clock.Clock
	Logger             *slog.Logger

	// OnDegraded and OnRecovered are called outside the monitor lock.
	OnDegraded  func(ProviderHealth)
	OnRecovered func(ProviderHealth)
}

func (o *Options) defaults() {
	if o.UnhealthyThreshold <= 0 {
		o.UnhealthyThreshold = DefaultUnhealthyThreshold
	}
	if o.RecoveryThreshold <= 0 {
		o.RecoveryThreshold = DefaultRecoveryThreshold
	}
	if o.HistorySize <= 0 {
		o.HistorySize = DefaultHistorySize
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.ProviderBatch <= 0 {
		o.ProviderBatch = DefaultProviderBatch
	}
	if o.ModelBatch <= 0 {
		o.ModelBatch = DefaultModelBatch
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	o.Clock = clock.OrReal(o.Clock)
	o.Logger = logging.OrDefault(o.Logger)
}

// Record is one probe outcome.
type Record struct {
	Timestamp time.Time     `json:"timestamp"`
	Status    string        `json:"status"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

// ProviderHealth is the health state of one provider.
type ProviderHealth struct {
	Provider             string         `json:"provider"`
	Status               ProviderStatus `json:"status"`
	LastCheck            time.Time      `json:"last_check,omitempty"`
	LastSuccess          time.Time      `json:"last_success,omitempty"`
	LastFailure          time.Time      `json:"last_failure,omitempty"`
	LastLatency          time.Duration  `json:"last_latency"`
	LastError            string         `json:"last_error,omitempty"`
	ConsecutiveFailures  int            `json:"consecutive_failures"`
	ConsecutiveSuccesses int            `json:"consecutive_successes"`
	TotalChecks          int            `json:"total_checks"`
	Degraded             bool           `json:"degraded"`
}

// ModelHealth is the availability state of one model.
type ModelHealth struct {
	Provider            string      `json:"provider"`
	Model               string      `json:"model"`
	Status              ModelStatus `json:"status"`
	LastCheck           time.Time   `json:"last_check,omitempty"`
	LastAvailable       time.Time   `json:"last_available,omitempty"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	TotalChecks         int         `json:"total_checks"`
	LastError           string      `json:"last_error,omitempty"`
}

type providerEntry struct {
	health       ProviderHealth
	wasUnhealthy bool
	history      *ringbuf.Buffer[Record]
}

type modelEntry struct {
	health  ModelHealth
	history *ringbuf.Buffer[Record]
}

// Monitor tracks provider and model health.
type Monitor struct {
	opts    Options
	probe   ProbeFunc
	catalog CatalogView

	mu        sync.RWMutex
	providers map[string]*providerEntry
	models    map[string]*modelEntry // keyed provider/model

	loopMu  sync.Mutex
	timer   clock.Timer
	gen     uint64
	running bool
}

// NewMonitor creates a Monitor. probe performs provider probes and catalog
// answers model presence checks.
func NewMonitor(probe ProbeFunc, catalog CatalogView, opts Options) *Monitor {
	opts.defaults()
	return &Monitor{
		opts:      opts,
		probe:     probe,
		catalog:   catalog,
		providers: make(map[string]*providerEntry),
		models:    make(map[string]*modelEntry),
	}
}

func modelKey(provider, model string) string { return provider + "/" + model }

// Track starts monitoring provider. Tracking twice is a no-op.
func (m *Monitor) Track(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[provider]; ok {
		return
	}
	m.providers[provider] = &providerEntry{
		health:  ProviderHealth{Provider: provider, Status: ProviderUnknown},
		history: ringbuf.New[Record](m.opts.HistorySize),
	}
}

// Untrack stops monitoring provider and all of its models.
func (m *Monitor) Untrack(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.providers, provider)
	prefix := provider + "/"
	for key := range m.models {
		if strings.HasPrefix(key, prefix) {
			delete(m.models, key)
		}
	}
}

// TrackModel starts monitoring a model.
func (m *Monitor) TrackModel(provider, model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := modelKey(provider, model)
	if _, ok := m.models[key]; ok {
		return
	}
	m.models[key] = &modelEntry{
		health:  ModelHealth{Provider: provider, Model: model, Status: ModelUnknown},
		history: ringbuf.New[Record](m.opts.HistorySize),
	}
}

// UntrackModel stops monitoring a model.
func (m *Monitor) UntrackModel(provider, model string) {
	m.mu.Lock()
	delete(m.models, modelKey(provider, model))
	m.mu.Unlock()
}

// Providers returns the tracked provider names, sorted.
func (m *Monitor) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.providers))
	for p := range m.providers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ProviderHealth returns the current state of provider.
func (m *Monitor) ProviderHealth(provider string) (ProviderHealth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.providers[provider]
	if !ok {
		return ProviderHealth{}, fmt.Errorf("%w: provider %q", ErrUnknownEntity, provider)
	}
	return e.health, nil
}

// ModelHealth returns the current state of provider/model.
func (m *Monitor) ModelHealth(provider, model string) (ModelHealth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.models[modelKey(provider, model)]
	if !ok {
		return ModelHealth{}, fmt.Errorf("%w: model %q", ErrUnknownEntity, modelKey(provider, model))
	}
	return e.health, nil
}

// FindModel returns the state of model under every provider that serves it.
func (m *Monitor) FindModel(model string) []ModelHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ModelHealth
	for _, e := range m.models {
		if e.health.Model == model {
			out = append(out, e.health)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Models returns the tracked models of provider, sorted. An empty provider
// returns every tracked model.
func (m *Monitor) Models(provider string) []ModelHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ModelHealth
	for _, e := range m.models {
		if provider == "" || e.health.Provider == provider {
			out = append(out, e.health)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return modelKey(out[i].Provider, out[i].Model) < modelKey(out[j].Provider, out[j].Model)
	})
	return out
}

// History returns up to limit probe records of provider, oldest first.
func (m *Monitor) History(provider string, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q", ErrUnknownEntity, provider)
	}
	return e.history.Last(limit), nil
}

// ModelHistory returns up to limit probe records of provider/model.
func (m *Monitor) ModelHistory(provider, model string, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.models[modelKey(provider, model)]
	if !ok {
		return nil, fmt.Errorf("%w: model %q", ErrUnknownEntity, modelKey(provider, model))
	}
	return e.history.Last(limit), nil
}
