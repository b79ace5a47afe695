package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider polls the OpenAI models API through the official SDK.
type OpenAIProvider struct {
	Base
	client     openai.Client
	probeModel string
}

// NewOpenAI creates a new OpenAI provider. The optional baseURL parameter
// allows overriding the API endpoint (pass "" for the default). probeModel
// is the model fetched by Probe; it defaults to gpt-4o-mini.
func NewOpenAI(name, apiKey, baseURL, probeModel string) (*OpenAIProvider, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	resolvedBase := "https://api.openai.com"
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
		resolvedBase = strings.TrimRight(baseURL, "/")
	}
	if name == "" {
		name = "openai"
	}
	if probeModel == "" {
		probeModel = "gpt-4o-mini"
	}
	return &OpenAIProvider{
		Base:       Base{name: name, apiKey: apiKey, baseURL: resolvedBase},
		client:     openai.NewClient(opts...),
		probeModel: probeModel,
	}, nil
}

// FetchCatalog implements Provider.
func (p *OpenAIProvider) FetchCatalog(ctx context.Context) ([]ModelInfo, error) {
	iter := p.client.Models.ListAutoPaging(ctx)
	var models []ModelInfo
	for iter.Next() {
		m := iter.Current()
		ownedBy := m.OwnedBy
		if ownedBy == "" {
			ownedBy = p.name
		}
		models = append(models, ModelInfo{
			ID:           m.ID,
			OwnedBy:      ownedBy,
			Created:      m.Created,
			Capabilities: InferCapabilities(m.ID),
			API:          APIDescriptor{Endpoint: p.baseURL, Format: "openai", Version: "v1"},
		})
	}
	if err := iter.Err(); err != nil {
		return nil, p.classify(err)
	}
	sortModels(models)
	return models, nil
}

// Probe retrieves a single model, which is the cheapest authenticated call.
func (p *OpenAIProvider) Probe(ctx context.Context) (ProbeResult, error) {
	return timedProbe(ctx, func(ctx context.Context) error {
		_, err := p.client.Models.Get(ctx, p.probeModel)
		return p.classify(err)
	})
}

func (p *OpenAIProvider) classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		return classifyHTTPStatus(p.name, apiErr.StatusCode, header, err)
	}
	return err
}
