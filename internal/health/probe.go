package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/ferro-labs/gateway-core/internal/metrics"
	"github.com/ferro-labs/gateway-core/providers"
)

// CheckProvider probes provider through the monitor's ProbeFunc with the
// configured timeout and records the outcome. A skipped probe returns the
// unchanged state together with ErrSkipped.
func (m *Monitor) CheckProvider(ctx context.Context, provider string) (ProviderHealth, error) {
	if _, err := m.ProviderHealth(provider); err != nil {
		return ProviderHealth{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()

	start := m.opts.Clock.Now()
	res, err := m.probe(ctx, provider)
	if errors.Is(err, ErrSkipped) {
		h, herr := m.ProviderHealth(provider)
		if herr != nil {
			return ProviderHealth{}, herr
		}
		return h, err
	}
	if res.Latency == 0 {
		res.Latency = m.opts.Clock.Now().Sub(start)
	}
	return m.RecordProviderResult(provider, res, err)
}

// RecordProviderResult applies a probe outcome to provider. A non-nil err
// marks the provider as error, an unhealthy result as unhealthy.
func (m *Monitor) RecordProviderResult(provider string, res providers.ProbeResult, probeErr error) (ProviderHealth, error) {
	now := m.opts.Clock.Now()

	m.mu.Lock()
	e, ok := m.providers[provider]
	if !ok {
		m.mu.Unlock()
		return ProviderHealth{}, fmt.Errorf("%w: provider %q", ErrUnknownEntity, provider)
	}

	h := &e.health
	h.LastCheck = now
	h.LastLatency = res.Latency
	h.TotalChecks++
	rec := Record{Timestamp: now, Latency: res.Latency}

	var degraded, recovered bool
	switch {
	case probeErr == nil && res.Healthy:
		h.Status = ProviderHealthy
		h.LastSuccess = now
		h.LastError = ""
		h.ConsecutiveFailures = 0
		h.ConsecutiveSuccesses++
		if e.wasUnhealthy && h.ConsecutiveSuccesses >= m.opts.RecoveryThreshold {
			e.wasUnhealthy = false
			h.Degraded = false
			recovered = true
		}
	default:
		if probeErr != nil {
			h.Status = ProviderError
			h.LastError = probeErr.Error()
		} else {
			h.Status = ProviderUnhealthy
			h.LastError = res.Detail
		}
		h.LastFailure = now
		h.ConsecutiveSuccesses = 0
		h.ConsecutiveFailures++
		e.wasUnhealthy = true
		if !h.Degraded && h.ConsecutiveFailures >= m.opts.UnhealthyThreshold {
			h.Degraded = true
			degraded = true
		}
		rec.Error = h.LastError
	}
	rec.Status = string(h.Status)
	e.history.Push(rec)
	snapshot := *h
	m.mu.Unlock()

	metrics.ProbeDuration.WithLabelValues(provider).Observe(res.Latency.Seconds())
	metrics.ProviderHealth.WithLabelValues(provider).Set(healthGauge(snapshot.Status))

	switch {
	case degraded:
		m.opts.Logger.Warn("provider degraded",
			"provider", provider,
			"consecutive_failures", snapshot.ConsecutiveFailures,
			"error", snapshot.LastError,
		)
		if m.opts.OnDegraded != nil {
			m.opts.OnDegraded(snapshot)
		}
	case recovered:
		m.opts.Logger.Info("provider recovered",
			"provider", provider,
			"consecutive_successes", snapshot.ConsecutiveSuccesses,
		)
		if m.opts.OnRecovered != nil {
			m.opts.OnRecovered(snapshot)
		}
	}
	return snapshot, nil
}

func healthGauge(s ProviderStatus) float64 {
	switch s {
	case ProviderHealthy:
		return 1
	case ProviderUnknown:
		return -1
	default:
		return 0
	}
}

// CheckModel checks that model is still present in provider's catalog. A
// catalog lookup that cannot answer sets the model to ModelError.
func (m *Monitor) CheckModel(provider, model string) (ModelHealth, error) {
	present, lookupErr := m.lookup(provider, model)
	now := m.opts.Clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.models[modelKey(provider, model)]
	if !ok {
		return ModelHealth{}, fmt.Errorf("%w: model %q", ErrUnknownEntity, modelKey(provider, model))
	}
	h := &e.health
	h.LastCheck = now
	h.TotalChecks++
	rec := Record{Timestamp: now}
	switch {
	case lookupErr != nil:
		h.Status = ModelError
		h.LastError = lookupErr.Error()
		h.ConsecutiveFailures++
		rec.Error = h.LastError
	case present:
		h.Status = ModelAvailable
		h.LastAvailable = now
		h.LastError = ""
		h.ConsecutiveFailures = 0
	default:
		h.Status = ModelUnavailable
		h.LastError = ""
		h.ConsecutiveFailures++
	}
	rec.Status = string(h.Status)
	e.history.Push(rec)
	return *h, nil
}

func (m *Monitor) lookup(provider, model string) (present bool, err error) {
	if m.catalog == nil {
		return false, errors.New("no catalog view configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("catalog lookup panicked: %v", r)
		}
	}()
	return m.catalog.Has(provider, model), nil
}
