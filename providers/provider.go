// Package providers defines the Provider interface the scheduling core polls
// and the catalog types exchanged with upstream LLM providers.
//
// A Provider answers two questions: which models it currently offers
// (FetchCatalog) and whether it is reachable right now (Probe). Throttling
// by the upstream is reported by returning an error that wraps
// ErrRateLimited, usually a *RateLimitError carrying Retry-After.
//
// Core types: Provider, ModelInfo, APIDescriptor, ProbeResult.
package providers

import (
	"context"
	"errors"
	"time"
)

// Capability constants used across provider implementations.
const (
	CapabilityChat       = "chat"
	CapabilityCompletion = "completion"
	CapabilityEmbedding  = "embedding"
	CapabilityVision     = "vision"
	CapabilityTools      = "tools"
	CapabilityImage      = "image_generation"
	CapabilityAudio      = "audio"
)

// Provider defines the interface the scheduling core calls for every
// registered upstream.
type Provider interface {
	Name() string
	FetchCatalog(ctx context.Context) ([]ModelInfo, error)
	Probe(ctx context.Context) (ProbeResult, error)
}

// ModelInfo describes one model offered by a provider.
type ModelInfo struct {
	ID           string             `json:"id"`
	Name         string             `json:"name,omitempty"`
	Description  string             `json:"description,omitempty"`
	OwnedBy      string             `json:"owned_by,omitempty"`
	Created      int64              `json:"created,omitempty"`
	Capabilities []string           `json:"capabilities,omitempty"`
	Tags         []string           `json:"tags,omitempty"`
	Parameters   map[string]string  `json:"parameters,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	API          APIDescriptor      `json:"api"`
}

// APIDescriptor tells a client how to reach a model.
type APIDescriptor struct {
	Endpoint string `json:"endpoint,omitempty"`
	Format   string `json:"format,omitempty"` // "openai" | "anthropic" | "gemini" | "bedrock" | "ollama"
	Version  string `json:"version,omitempty"`
}

// ProbeResult is the outcome of a lightweight liveness call. A probe that
// reaches the provider but gets a failure answer returns Healthy=false and
// a nil error; transport failures return an error.
type ProbeResult struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Detail  string        `json:"detail,omitempty"`
}

func timedProbe(ctx context.Context, fn func(ctx context.Context) error) (ProbeResult, error) {
	start := time.Now()
	err := fn(ctx)
	latency := time.Since(start)
	if err == nil {
		return ProbeResult{Healthy: true, Latency: latency}, nil
	}
	var se *StatusError
	if errors.As(err, &se) {
		return ProbeResult{Healthy: false, Latency: latency, Detail: se.Error()}, nil
	}
	return ProbeResult{Latency: latency}, err
}
