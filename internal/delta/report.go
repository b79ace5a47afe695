package delta

import (
	"fmt"
	"strings"
	"time"

	"github.com/ferro-labs/gateway-core/providers"
)

// ChangeType classifies a model-level change.
type ChangeType string

// Change types.
const (
	ChangeAdded    ChangeType = "added"
	ChangeRemoved  ChangeType = "removed"
	ChangeModified ChangeType = "modified"
)

// ModificationType classifies a field-level change of a modified model.
type ModificationType string

// Modification types.
const (
	CapabilitiesAdded   ModificationType = "capabilities_added"
	CapabilitiesRemoved ModificationType = "capabilities_removed"
	CapabilitiesChanged ModificationType = "capabilities_changed"
	MetadataUpdate      ModificationType = "metadata_update"
	APIConfigUpdate     ModificationType = "api_config_update"
	FieldUpdate         ModificationType = "field_update"
)

// FieldChange is one differing field of a modified model.
type FieldChange struct {
	Field string           `json:"field"`
	Type  ModificationType `json:"type"`
	Old   any              `json:"old,omitempty"`
	New   any              `json:"new,omitempty"`
}

// ModelChange describes what happened to one model.
type ModelChange struct {
	ModelID string               `json:"model_id"`
	Type    ChangeType           `json:"type"`
	Reason  string               `json:"reason"`
	Changes []FieldChange        `json:"changes,omitempty"`
	Model   *providers.ModelInfo `json:"model,omitempty"`
}

// ModificationTypes returns the distinct modification types, in order of
// first appearance.
func (c ModelChange) ModificationTypes() []ModificationType {
	var out []ModificationType
	seen := map[ModificationType]bool{}
	for _, fc := range c.Changes {
		if !seen[fc.Type] {
			seen[fc.Type] = true
			out = append(out, fc.Type)
		}
	}
	return out
}

// Report is the result of one Detect call.
type Report struct {
	Provider         string        `json:"provider"`
	Timestamp        time.Time     `json:"timestamp"`
	InitialDiscovery bool          `json:"initial_discovery"`
	Added            []ModelChange `json:"added,omitempty"`
	Removed          []ModelChange `json:"removed,omitempty"`
	Modified         []ModelChange `json:"modified,omitempty"`
	PreviousCount    int           `json:"previous_count"`
	CurrentCount     int           `json:"current_count"`
	ChangeRatio      float64       `json:"change_ratio"`
	Significant      bool          `json:"significant"`
}

// HasChanges reports whether any model was added, removed or modified.
func (r Report) HasChanges() bool {
	return len(r.Added)+len(r.Removed)+len(r.Modified) > 0
}

// Summary renders a short human-readable description.
func (r Report) Summary() string {
	if !r.HasChanges() {
		return "no changes"
	}
	var parts []string
	if n := len(r.Added); n > 0 {
		parts = append(parts, fmt.Sprintf("%d added", n))
	}
	if n := len(r.Removed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", n))
	}
	if n := len(r.Modified); n > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", n))
	}
	s := strings.Join(parts, ", ")
	if r.InitialDiscovery {
		s += " (initial discovery)"
	}
	return s
}
