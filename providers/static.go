package providers

import (
	"context"
	"sync"
)

// StaticProvider serves a fixed catalog. It backs self-hosted deployments
// whose model list is declared in configuration, and it is handy in tests.
type StaticProvider struct {
	name string

	mu     sync.RWMutex
	models []ModelInfo
}

// NewStatic creates a provider that always reports models.
func NewStatic(name string, models []ModelInfo) *StaticProvider {
	return &StaticProvider{name: name, models: cloneModels(models)}
}

// Name implements Provider.
func (p *StaticProvider) Name() string { return p.name }

// SetModels replaces the served catalog.
func (p *StaticProvider) SetModels(models []ModelInfo) {
	p.mu.Lock()
	p.models = cloneModels(models)
	p.mu.Unlock()
}

// FetchCatalog implements Provider.
func (p *StaticProvider) FetchCatalog(_ context.Context) ([]ModelInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneModels(p.models), nil
}

// Probe always reports healthy.
func (p *StaticProvider) Probe(_ context.Context) (ProbeResult, error) {
	return ProbeResult{Healthy: true}, nil
}

func cloneModels(in []ModelInfo) []ModelInfo {
	out := make([]ModelInfo, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}

// Clone returns a deep copy of m.
func (m ModelInfo) Clone() ModelInfo {
	out := m
	if m.Capabilities != nil {
		out.Capabilities = append([]string(nil), m.Capabilities...)
	}
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	if m.Parameters != nil {
		out.Parameters = make(map[string]string, len(m.Parameters))
		for k, v := range m.Parameters {
			out.Parameters[k] = v
		}
	}
	if m.Metrics != nil {
		out.Metrics = make(map[string]float64, len(m.Metrics))
		for k, v := range m.Metrics {
			out.Metrics[k] = v
		}
	}
	return out
}
