package health

import (
	"fmt"
	"time"
)

// Summary aggregates the current state of every tracked entity.
type Summary struct {
	Providers        map[ProviderStatus]int `json:"providers"`
	Models           map[ModelStatus]int    `json:"models"`
	TotalProviders   int                    `json:"total_providers"`
	TotalModels      int                    `json:"total_models"`
	HealthyProviders int                    `json:"healthy_providers"`
	AvailableModels  int                    `json:"available_models"`
	UptimePercentage float64                `json:"uptime_percentage"`
	GeneratedAt      time.Time              `json:"generated_at"`
}

// Summary counts providers and models by status. UptimePercentage is the
// share of healthy providers and available models among all tracked
// entities, 0 when nothing is tracked.
func (m *Monitor) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Summary{
		Providers:      make(map[ProviderStatus]int),
		Models:         make(map[ModelStatus]int),
		TotalProviders: len(m.providers),
		TotalModels:    len(m.models),
		GeneratedAt:    m.opts.Clock.Now(),
	}
	for _, e := range m.providers {
		s.Providers[e.health.Status]++
		if e.health.Status == ProviderHealthy {
			s.HealthyProviders++
		}
	}
	for _, e := range m.models {
		s.Models[e.health.Status]++
		if e.health.Status == ModelAvailable {
			s.AvailableModels++
		}
	}
	if total := s.TotalProviders + s.TotalModels; total > 0 {
		s.UptimePercentage = float64(s.HealthyProviders+s.AvailableModels) / float64(total) * 100
	}
	return s
}

// Metrics describes probe outcomes inside a trailing window.
type Metrics struct {
	Window         time.Duration `json:"window"`
	ProviderProbes int           `json:"provider_probes"`
	ModelProbes    int           `json:"model_probes"`
	Failures       int           `json:"failures"`
	FailureRate    float64       `json:"failure_rate"`
	AverageLatency time.Duration `json:"average_latency"`
}

// Metrics reports the average provider probe latency and the failure rate
// over all provider and model probes recorded within window.
func (m *Monitor) Metrics(window time.Duration) Metrics {
	cutoff := m.opts.Clock.Now().Add(-window)
	out := Metrics{Window: window}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var latency time.Duration
	for _, e := range m.providers {
		for _, r := range e.history.Items() {
			if r.Timestamp.Before(cutoff) {
				continue
			}
			out.ProviderProbes++
			latency += r.Latency
			if r.Status != string(ProviderHealthy) {
				out.Failures++
			}
		}
	}
	for _, e := range m.models {
		for _, r := range e.history.Items() {
			if r.Timestamp.Before(cutoff) {
				continue
			}
			out.ModelProbes++
			if r.Status != string(ModelAvailable) {
				out.Failures++
			}
		}
	}
	if out.ProviderProbes > 0 {
		out.AverageLatency = latency / time.Duration(out.ProviderProbes)
	}
	if total := out.ProviderProbes + out.ModelProbes; total > 0 {
		out.FailureRate = float64(out.Failures) / float64(total)
	}
	return out
}

// Stats summarises one provider's probe history.
type Stats struct {
	Provider         string         `json:"provider"`
	Status           ProviderStatus `json:"status"`
	Since            time.Time      `json:"since"`
	Checks           int            `json:"checks"`
	Successes        int            `json:"successes"`
	Failures         int            `json:"failures"`
	UptimePercentage float64        `json:"uptime_percentage"`
	AverageLatency   time.Duration  `json:"average_latency"`
	MinLatency       time.Duration  `json:"min_latency"`
	MaxLatency       time.Duration  `json:"max_latency"`
	Models           int            `json:"models"`
	AvailableModels  int            `json:"available_models"`
}

// Stats returns provider statistics over the records newer than since ago.
func (m *Monitor) Stats(provider string, since time.Duration) (Stats, error) {
	from := m.opts.Clock.Now().Add(-since)

	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.providers[provider]
	if !ok {
		return Stats{}, fmt.Errorf("%w: provider %q", ErrUnknownEntity, provider)
	}

	st := Stats{Provider: provider, Status: e.health.Status, Since: from}
	var total time.Duration
	for _, r := range e.history.Items() {
		if r.Timestamp.Before(from) {
			continue
		}
		st.Checks++
		if r.Status == string(ProviderHealthy) {
			st.Successes++
		} else {
			st.Failures++
		}
		total += r.Latency
		if st.Checks == 1 || r.Latency < st.MinLatency {
			st.MinLatency = r.Latency
		}
		if r.Latency > st.MaxLatency {
			st.MaxLatency = r.Latency
		}
	}
	if st.Checks > 0 {
		st.AverageLatency = total / time.Duration(st.Checks)
		st.UptimePercentage = float64(st.Successes) / float64(st.Checks) * 100
	}
	for _, me := range m.models {
		if me.health.Provider != provider {
			continue
		}
		st.Models++
		if me.health.Status == ModelAvailable {
			st.AvailableModels++
		}
	}
	return st, nil
}
