// Package providertest provides a scriptable providers.Provider for tests.
package providertest

import (
	"context"
	"sync"

	"github.com/ferro-labs/gateway-core/providers"
)

// Fake is a provider whose answers are set by the test. The zero value
// (with a name) serves an empty catalog and healthy probes.
type Fake struct {
	name string

	mu          sync.Mutex
	models      []providers.ModelInfo
	catalogErr  error
	probe       providers.ProbeResult
	probeErr    error
	catalogHook func(ctx context.Context)
	fetches     int
	probes      int
}

var _ providers.Provider = (*Fake)(nil)

// New returns a fake provider serving models.
func New(name string, models ...providers.ModelInfo) *Fake {
	return &Fake{name: name, models: models, probe: providers.ProbeResult{Healthy: true}}
}

// Models builds bare ModelInfo values from ids.
func Models(ids ...string) []providers.ModelInfo {
	out := make([]providers.ModelInfo, len(ids))
	for i, id := range ids {
		out[i] = providers.ModelInfo{ID: id, Name: id}
	}
	return out
}

// Name implements providers.Provider.
func (f *Fake) Name() string { return f.name }

// SetModels replaces the served catalog and clears any catalog error.
func (f *Fake) SetModels(models ...providers.ModelInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models = models
	f.catalogErr = nil
}

// FailCatalog makes FetchCatalog return err until SetModels is called.
func (f *Fake) FailCatalog(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalogErr = err
}

// SetProbe scripts the probe answer.
func (f *Fake) SetProbe(res providers.ProbeResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probe = res
	f.probeErr = err
}

// OnFetch installs a hook run at the start of every FetchCatalog call.
func (f *Fake) OnFetch(hook func(ctx context.Context)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalogHook = hook
}

// FetchCatalog implements providers.Provider.
func (f *Fake) FetchCatalog(ctx context.Context) ([]providers.ModelInfo, error) {
	f.mu.Lock()
	hook := f.catalogHook
	f.fetches++
	models := make([]providers.ModelInfo, len(f.models))
	for i, m := range f.models {
		models[i] = m.Clone()
	}
	err := f.catalogErr
	f.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	if err != nil {
		return nil, err
	}
	return models, nil
}

// Probe implements providers.Provider.
func (f *Fake) Probe(_ context.Context) (providers.ProbeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.probe, f.probeErr
}

// Fetches returns the number of FetchCatalog calls.
func (f *Fake) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// Probes returns the number of Probe calls.
func (f *Fake) Probes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}
