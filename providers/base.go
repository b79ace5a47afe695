package providers

import (
	"sort"
	"strings"
)

// Base provides common fields shared by REST-based provider implementations.
// Embed this struct to avoid repeating name, apiKey, and baseURL handling.
type Base struct {
	name    string
	apiKey  string
	baseURL string
}

// Name returns the provider name.
func (b *Base) Name() string { return b.name }

// BaseURL returns the provider root URL without a trailing slash.
func (b *Base) BaseURL() string { return b.baseURL }

// ModelsFromList builds a ModelInfo slice from a list of model IDs. Static
// catalogs and SDK-backed providers without rich metadata use it.
func ModelsFromList(providerName, format, endpoint string, ids []string) []ModelInfo {
	models := make([]ModelInfo, len(ids))
	for i, id := range ids {
		models[i] = ModelInfo{
			ID:           id,
			OwnedBy:      providerName,
			Capabilities: InferCapabilities(id),
			API:          APIDescriptor{Endpoint: endpoint, Format: format},
		}
	}
	return models
}

// InferCapabilities guesses capabilities from well-known model id fragments.
// It is only used when the upstream catalog carries no capability data.
func InferCapabilities(id string) []string {
	lower := strings.ToLower(id)
	switch {
	case strings.Contains(lower, "embed"):
		return []string{CapabilityEmbedding}
	case strings.HasPrefix(lower, "dall-e"), strings.Contains(lower, "imagen"), strings.Contains(lower, "image"):
		return []string{CapabilityImage}
	case strings.HasPrefix(lower, "whisper"), strings.HasPrefix(lower, "tts"):
		return []string{CapabilityAudio}
	}
	caps := []string{CapabilityChat}
	for _, frag := range []string{"vision", "gpt-4o", "gpt-4.1", "claude-3", "claude-sonnet", "claude-opus", "gemini", "llava", "pixtral"} {
		if strings.Contains(lower, frag) {
			caps = append(caps, CapabilityVision)
			break
		}
	}
	return caps
}

func sortModels(models []ModelInfo) {
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
}
