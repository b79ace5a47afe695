package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// openAIModelList mirrors the OpenAI /v1/models response schema. Several
// compatible hosts add optional fields; the common ones are decoded too.
type openAIModelList struct {
	Object string `json:"object"`
	Data   []struct {
		ID            string `json:"id"`
		Object        string `json:"object"`
		Created       int64  `json:"created"`
		OwnedBy       string `json:"owned_by"`
		Name          string `json:"name"`
		DisplayName   string `json:"display_name"`
		Description   string `json:"description"`
		Type          string `json:"type"`
		ContextLength int64  `json:"context_length"`
		Active        *bool  `json:"active"`
	} `json:"data"`
}

// fetchOpenAICompatibleModels fetches a live model list from any provider
// that exposes an OpenAI-compatible GET /v1/models (or similar) endpoint.
// header decorates the request with provider-specific authentication.
func fetchOpenAICompatibleModels(ctx context.Context, client *http.Client, url, providerName, endpoint string, header func(http.Header)) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}
	if header != nil {
		header(req.Header)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read discovery response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(providerName, resp, body)
	}

	var list openAIModelList
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		// together.ai answers with a bare array
		err = json.Unmarshal(trimmed, &list.Data)
	} else {
		err = json.Unmarshal(trimmed, &list)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse model list: %w", err)
	}

	models := make([]ModelInfo, 0, len(list.Data))
	for _, m := range list.Data {
		if m.Active != nil && !*m.Active {
			continue
		}
		ownedBy := m.OwnedBy
		if ownedBy == "" {
			ownedBy = providerName
		}
		name := m.Name
		if name == "" {
			name = m.DisplayName
		}
		info := ModelInfo{
			ID:           m.ID,
			Name:         name,
			Description:  m.Description,
			OwnedBy:      ownedBy,
			Created:      m.Created,
			Capabilities: InferCapabilities(m.ID),
			API:          APIDescriptor{Endpoint: endpoint, Format: "openai"},
		}
		if m.Type != "" {
			info.Tags = []string{m.Type}
		}
		if m.ContextLength > 0 {
			info.Parameters = map[string]string{"context_length": strconv.FormatInt(m.ContextLength, 10)}
		}
		models = append(models, info)
	}
	sortModels(models)
	return models, nil
}

// probeHTTP issues a GET and maps the answer onto the package error types.
func probeHTTP(ctx context.Context, client *http.Client, url, providerName string, header func(http.Header)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}
	if header != nil {
		header(req.Header)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return statusError(providerName, resp, body)
}
