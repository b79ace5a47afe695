package providers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider polls the Gemini API model list.
type GeminiProvider struct {
	Base
	client     *genai.Client
	probeModel string
}

// NewGemini creates a new Google Gemini provider.
func NewGemini(name, apiKey, baseURL, probeModel string) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	resolvedBase := "https://generativelanguage.googleapis.com"
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
		resolvedBase = strings.TrimRight(baseURL, "/")
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	if name == "" {
		name = "gemini"
	}
	if probeModel == "" {
		probeModel = "gemini-2.0-flash"
	}
	return &GeminiProvider{
		Base:       Base{name: name, apiKey: apiKey, baseURL: resolvedBase},
		client:     client,
		probeModel: probeModel,
	}, nil
}

// FetchCatalog walks every page of the model list.
func (p *GeminiProvider) FetchCatalog(ctx context.Context) ([]ModelInfo, error) {
	page, err := p.client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 100})
	if err != nil {
		return nil, p.classify(err)
	}
	var models []ModelInfo
	for {
		for _, m := range page.Items {
			models = append(models, p.toModelInfo(m))
		}
		if page.NextPageToken == "" {
			break
		}
		page, err = page.Next(ctx)
		if errors.Is(err, genai.ErrPageDone) {
			break
		}
		if err != nil {
			return nil, p.classify(err)
		}
	}
	sortModels(models)
	return models, nil
}

func (p *GeminiProvider) toModelInfo(m *genai.Model) ModelInfo {
	id := strings.TrimPrefix(m.Name, "models/")
	caps := make([]string, 0, len(m.SupportedActions))
	for _, action := range m.SupportedActions {
		switch action {
		case "generateContent":
			caps = append(caps, CapabilityChat)
		case "embedContent":
			caps = append(caps, CapabilityEmbedding)
		case "predict":
			caps = append(caps, CapabilityImage)
		}
	}
	if len(caps) == 0 {
		caps = InferCapabilities(id)
	}
	params := map[string]string{}
	if m.InputTokenLimit > 0 {
		params["input_token_limit"] = strconv.Itoa(int(m.InputTokenLimit))
	}
	if m.OutputTokenLimit > 0 {
		params["output_token_limit"] = strconv.Itoa(int(m.OutputTokenLimit))
	}
	return ModelInfo{
		ID:           id,
		Name:         m.DisplayName,
		Description:  m.Description,
		OwnedBy:      p.name,
		Capabilities: caps,
		Parameters:   params,
		API:          APIDescriptor{Endpoint: p.baseURL, Format: "gemini", Version: m.Version},
	}
}

// Probe fetches the probe model's metadata.
func (p *GeminiProvider) Probe(ctx context.Context) (ProbeResult, error) {
	return timedProbe(ctx, func(ctx context.Context) error {
		_, err := p.client.Models.Get(ctx, p.probeModel, nil)
		return p.classify(err)
	})
}

func (p *GeminiProvider) classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyHTTPStatus(p.name, apiErr.Code, nil, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return classifyHTTPStatus(p.name, apiErrPtr.Code, nil, err)
	}
	return err
}
