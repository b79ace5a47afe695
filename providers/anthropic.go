package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider polls the Anthropic models API.
type AnthropicProvider struct {
	Base
	client anthropic.Client
}

// NewAnthropic creates a new Anthropic provider. The optional baseURL
// parameter allows overriding the API endpoint (pass "" for the default).
func NewAnthropic(name, apiKey, baseURL string) (*AnthropicProvider, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	resolvedBase := "https://api.anthropic.com"
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
		resolvedBase = strings.TrimRight(baseURL, "/")
	}
	if name == "" {
		name = "anthropic"
	}
	return &AnthropicProvider{
		Base:   Base{name: name, apiKey: apiKey, baseURL: resolvedBase},
		client: anthropic.NewClient(opts...),
	}, nil
}

// FetchCatalog implements Provider.
func (p *AnthropicProvider) FetchCatalog(ctx context.Context) ([]ModelInfo, error) {
	iter := p.client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{
		Limit: anthropic.Int(100),
	})
	var models []ModelInfo
	for iter.Next() {
		m := iter.Current()
		models = append(models, ModelInfo{
			ID:           m.ID,
			Name:         m.DisplayName,
			OwnedBy:      p.name,
			Created:      m.CreatedAt.Unix(),
			Capabilities: InferCapabilities(m.ID),
			API:          APIDescriptor{Endpoint: p.baseURL, Format: "anthropic", Version: "2023-06-01"},
		})
	}
	if err := iter.Err(); err != nil {
		return nil, p.classify(err)
	}
	sortModels(models)
	return models, nil
}

// Probe lists a single model.
func (p *AnthropicProvider) Probe(ctx context.Context) (ProbeResult, error) {
	return timedProbe(ctx, func(ctx context.Context) error {
		_, err := p.client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(1)})
		return p.classify(err)
	})
}

func (p *AnthropicProvider) classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		return classifyHTTPStatus(p.name, apiErr.StatusCode, header, err)
	}
	return err
}
