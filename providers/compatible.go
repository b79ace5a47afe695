package providers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Config enables the client-credentials flow for enterprise endpoints
// that sit behind an identity provider instead of static API keys.
type OAuth2Config struct {
	ClientID       string
	ClientSecret   string
	TokenURL       string
	Scopes         []string
	EndpointParams map[string][]string
}

// CompatibleConfig configures an OpenAI-compatible provider.
type CompatibleConfig struct {
	Name       string
	Kind       string // preset name; selects default base URL and paths
	BaseURL    string
	APIKey     string
	ModelsPath string
	HealthPath string
	Headers    map[string]string
	OAuth2     *OAuth2Config
	HTTPClient *http.Client
}

type compatiblePreset struct {
	baseURL    string
	modelsPath string
}

// compatiblePresets are hosts that speak the OpenAI /models dialect.
var compatiblePresets = map[string]compatiblePreset{
	"groq":       {baseURL: "https://api.groq.com/openai", modelsPath: "/v1/models"},
	"together":   {baseURL: "https://api.together.xyz", modelsPath: "/v1/models"},
	"mistral":    {baseURL: "https://api.mistral.ai", modelsPath: "/v1/models"},
	"deepseek":   {baseURL: "https://api.deepseek.com", modelsPath: "/models"},
	"fireworks":  {baseURL: "https://api.fireworks.ai/inference", modelsPath: "/v1/models"},
	"openrouter": {baseURL: "https://openrouter.ai/api", modelsPath: "/v1/models"},
	"xai":        {baseURL: "https://api.x.ai", modelsPath: "/v1/models"},
}

// CompatiblePresets returns the preset kinds handled by NewCompatible.
func CompatiblePresets() []string {
	out := make([]string, 0, len(compatiblePresets))
	for k := range compatiblePresets {
		out = append(out, k)
	}
	return out
}

// CompatibleProvider polls any host exposing an OpenAI-compatible model list.
type CompatibleProvider struct {
	Base
	httpClient *http.Client
	modelsPath string
	healthPath string
	headers    map[string]string
}

// NewCompatible creates an OpenAI-compatible provider.
func NewCompatible(cfg CompatibleConfig) (*CompatibleProvider, error) {
	preset := compatiblePresets[cfg.Kind]
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = preset.baseURL
	}
	if baseURL == "" {
		return nil, &ConfigError{Provider: cfg.Name, Field: "base_url", Reason: "required"}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	modelsPath := cfg.ModelsPath
	if modelsPath == "" {
		modelsPath = preset.modelsPath
	}
	if modelsPath == "" {
		modelsPath = "/v1/models"
	}
	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = modelsPath
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.OAuth2 != nil {
		cc := clientcredentials.Config{
			ClientID:       cfg.OAuth2.ClientID,
			ClientSecret:   cfg.OAuth2.ClientSecret,
			TokenURL:       cfg.OAuth2.TokenURL,
			Scopes:         cfg.OAuth2.Scopes,
			EndpointParams: cfg.OAuth2.EndpointParams,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = cc.Client(ctx)
	}

	name := cfg.Name
	if name == "" {
		name = cfg.Kind
	}
	return &CompatibleProvider{
		Base:       Base{name: name, apiKey: cfg.APIKey, baseURL: baseURL},
		httpClient: client,
		modelsPath: modelsPath,
		healthPath: healthPath,
		headers:    cfg.Headers,
	}, nil
}

func (p *CompatibleProvider) setHeaders(h http.Header) {
	if p.apiKey != "" {
		h.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range p.headers {
		h.Set(k, v)
	}
}

// FetchCatalog implements Provider.
func (p *CompatibleProvider) FetchCatalog(ctx context.Context) ([]ModelInfo, error) {
	return fetchOpenAICompatibleModels(ctx, p.httpClient, p.baseURL+p.modelsPath, p.name, p.baseURL, p.setHeaders)
}

// Probe implements Provider.
func (p *CompatibleProvider) Probe(ctx context.Context) (ProbeResult, error) {
	return timedProbe(ctx, func(ctx context.Context) error {
		return probeHTTP(ctx, p.httpClient, p.baseURL+p.healthPath, p.name, p.setHeaders)
	})
}
