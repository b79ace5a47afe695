// Package events defines the notifications the scheduling core emits and
// the Sink interface that delivers them.
//
// Sinks are registered by name via RegisterFactory and loaded at startup
// from the notifications section of the configuration. Built-in sinks live
// in the internal/sinks/* packages and are registered by importing them
// with a blank import (e.g. _ "github.com/ferro-labs/gateway-core/internal/sinks/redissink").
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type names a notification.
type Type string

// Event types.
const (
	TypeRateLimitHit      Type = "rate_limit_hit"
	TypeCircuitOpened     Type = "circuit_opened"
	TypeCircuitClosed     Type = "circuit_closed"
	TypeProviderRecovered Type = "provider_recovered"
	TypeProviderDegraded  Type = "provider_degraded"
	TypeCatalogChanged    Type = "catalog_changed"
	TypeCatalogInvalid    Type = "catalog_invalid"
)

// Types returns every event type in a stable order.
func Types() []Type {
	return []Type{
		TypeRateLimitHit,
		TypeCircuitOpened,
		TypeCircuitClosed,
		TypeProviderRecovered,
		TypeProviderDegraded,
		TypeCatalogChanged,
		TypeCatalogInvalid,
	}
}

// Event is one notification.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Provider  string                 `json:"provider"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// New creates an event with a fresh id.
func New(typ Type, provider string, at time.Time, data map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Provider:  provider,
		Timestamp: at.UTC(),
		Data:      data,
	}
}
