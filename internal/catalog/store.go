// Package catalog keeps the last accepted model catalog of every provider.
package catalog

import (
	"sort"
	"sync"
	"time"

	"github.com/ferro-labs/gateway-core/providers"
)

// Snapshot is the last accepted catalog of one provider.
type Snapshot struct {
	Provider  string
	FetchedAt time.Time
	Models    map[string]providers.ModelInfo
}

// IDs returns the model ids in the snapshot, sorted.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Models))
	for id := range s.Models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Store holds one snapshot per provider. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{snapshots: make(map[string]Snapshot)}
}

// Get returns a deep copy of the provider's snapshot.
func (s *Store) Get(provider string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[provider]
	if !ok {
		return Snapshot{}, false
	}
	return cloneSnapshot(snap), true
}

// Replace swaps the provider's snapshot wholesale.
func (s *Store) Replace(provider string, models []providers.ModelInfo, fetchedAt time.Time) {
	byID := make(map[string]providers.ModelInfo, len(models))
	for _, m := range models {
		byID[m.ID] = m.Clone()
	}
	s.mu.Lock()
	s.snapshots[provider] = Snapshot{Provider: provider, FetchedAt: fetchedAt, Models: byID}
	s.mu.Unlock()
}

// Touch refreshes the fetch time of an unchanged snapshot.
func (s *Store) Touch(provider string, fetchedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.snapshots[provider]; ok {
		snap.FetchedAt = fetchedAt
		s.snapshots[provider] = snap
	}
}

// Has reports whether the provider's snapshot lists model.
func (s *Store) Has(provider, model string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.snapshots[provider].Models[model]
	return ok
}

// Lookup returns a copy of one model descriptor.
func (s *Store) Lookup(provider, model string) (providers.ModelInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.snapshots[provider].Models[model]
	if !ok {
		return providers.ModelInfo{}, false
	}
	return m.Clone(), true
}

// Delete drops the provider's snapshot.
func (s *Store) Delete(provider string) {
	s.mu.Lock()
	delete(s.snapshots, provider)
	s.mu.Unlock()
}

// Providers returns the providers with a snapshot, sorted.
func (s *Store) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.snapshots))
	for p := range s.snapshots {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ModelCount returns the number of models in the provider's snapshot.
func (s *Store) ModelCount(provider string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots[provider].Models)
}

func cloneSnapshot(snap Snapshot) Snapshot {
	out := Snapshot{Provider: snap.Provider, FetchedAt: snap.FetchedAt, Models: make(map[string]providers.ModelInfo, len(snap.Models))}
	for id, m := range snap.Models {
		out.Models[id] = m.Clone()
	}
	return out
}
