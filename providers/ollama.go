package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaProvider polls a local or remote Ollama server.
type OllamaProvider struct {
	Base
	httpClient *http.Client
}

// NewOllama creates a new Ollama provider.
func NewOllama(name, baseURL string) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if name == "" {
		name = "ollama"
	}
	return &OllamaProvider{
		Base:       Base{name: name, baseURL: strings.TrimRight(baseURL, "/")},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type ollamaTags struct {
	Models []struct {
		Name       string    `json:"name"`
		Model      string    `json:"model"`
		ModifiedAt time.Time `json:"modified_at"`
		Size       int64     `json:"size"`
		Digest     string    `json:"digest"`
		Details    struct {
			Format            string   `json:"format"`
			Family            string   `json:"family"`
			Families          []string `json:"families"`
			ParameterSize     string   `json:"parameter_size"`
			QuantizationLevel string   `json:"quantization_level"`
		} `json:"details"`
	} `json:"models"`
}

// FetchCatalog lists locally installed models via /api/tags.
func (p *OllamaProvider) FetchCatalog(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(p.name, resp, body)
	}

	var tags ollamaTags
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	models := make([]ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		id := m.Name
		if id == "" {
			id = m.Model
		}
		params := map[string]string{}
		if m.Details.Family != "" {
			params["family"] = m.Details.Family
		}
		if m.Details.ParameterSize != "" {
			params["parameter_size"] = m.Details.ParameterSize
		}
		if m.Details.QuantizationLevel != "" {
			params["quantization"] = m.Details.QuantizationLevel
		}
		if m.Digest != "" {
			params["digest"] = m.Digest
		}
		models = append(models, ModelInfo{
			ID:           id,
			OwnedBy:      p.name,
			Capabilities: InferCapabilities(id),
			Tags:         m.Details.Families,
			Parameters:   params,
			Metrics:      map[string]float64{"size_bytes": float64(m.Size)},
			API:          APIDescriptor{Endpoint: p.baseURL, Format: "ollama", Version: m.Details.Format},
		})
	}
	sortModels(models)
	return models, nil
}

// Probe checks /api/version.
func (p *OllamaProvider) Probe(ctx context.Context) (ProbeResult, error) {
	return timedProbe(ctx, func(ctx context.Context) error {
		return probeHTTP(ctx, p.httpClient, p.baseURL+"/api/version", p.name, nil)
	})
}
