package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry manages a collection of providers for lookup by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry. Names must be unique.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Name()]; exists {
		return fmt.Errorf("provider %q already registered", p.Name())
	}
	r.providers[p.Name()] = p
	return nil
}

// Remove deletes a provider and reports whether it was present.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.providers[name]
	delete(r.providers, name)
	return ok
}

// Get returns a provider by name and whether it was found.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// List returns the names of all registered providers, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildConfig is the provider-level subset of the gateway configuration.
type BuildConfig struct {
	Name       string
	Kind       string
	BaseURL    string
	APIKey     string
	Region     string
	AWS        *AWSCredentials
	Models     []string
	ProbeModel string
	ModelsPath string
	HealthPath string
	Headers    map[string]string
	OAuth2     *OAuth2Config
}

// KindCustom names providers whose executor is supplied by the embedding
// program instead of being built from configuration.
const KindCustom = "custom"

// Kinds returns every provider kind the configuration accepts.
func Kinds() []string {
	kinds := append([]string{"openai", "openai_compatible", "anthropic", "gemini", "bedrock", "ollama", "static", KindCustom}, CompatiblePresets()...)
	sort.Strings(kinds)
	return kinds
}

// Build constructs a provider from configuration.
func Build(cfg BuildConfig) (Provider, error) {
	switch strings.ToLower(cfg.Kind) {
	case "openai":
		return NewOpenAI(cfg.Name, cfg.APIKey, cfg.BaseURL, cfg.ProbeModel)
	case "anthropic":
		return NewAnthropic(cfg.Name, cfg.APIKey, cfg.BaseURL)
	case "gemini":
		return NewGemini(cfg.Name, cfg.APIKey, cfg.BaseURL, cfg.ProbeModel)
	case "bedrock":
		return NewBedrock(cfg.Name, cfg.Region, cfg.AWS, cfg.Models, cfg.ProbeModel)
	case "ollama":
		return NewOllama(cfg.Name, cfg.BaseURL)
	case "static":
		return NewStatic(cfg.Name, ModelsFromList(cfg.Name, "openai", cfg.BaseURL, cfg.Models)), nil
	case "openai_compatible":
		return NewCompatible(compatibleConfig(cfg))
	case KindCustom:
		return nil, &ConfigError{Provider: cfg.Name, Field: "kind", Reason: "custom requires an executor supplied by the caller"}
	}
	if _, ok := compatiblePresets[strings.ToLower(cfg.Kind)]; ok {
		return NewCompatible(compatibleConfig(cfg))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
}

func compatibleConfig(cfg BuildConfig) CompatibleConfig {
	return CompatibleConfig{
		Name:       cfg.Name,
		Kind:       strings.ToLower(cfg.Kind),
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		ModelsPath: cfg.ModelsPath,
		HealthPath: cfg.HealthPath,
		Headers:    cfg.Headers,
		OAuth2:     cfg.OAuth2,
	}
}
