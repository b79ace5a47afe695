package delta

import (
	"sort"
	"time"

	"github.com/ferro-labs/gateway-core/internal/ringbuf"
	"github.com/ferro-labs/gateway-core/providers"
)

// LifecycleStatus is the presence state of a model.
type LifecycleStatus string

// Lifecycle statuses.
const (
	LifecycleActive  LifecycleStatus = "active"
	LifecycleRemoved LifecycleStatus = "removed"
)

// Lifecycle tracks when a model was first and last seen.
type Lifecycle struct {
	Provider  string          `json:"provider"`
	ModelID   string          `json:"model_id"`
	FirstSeen time.Time       `json:"first_seen"`
	LastSeen  time.Time       `json:"last_seen"`
	SeenCount int             `json:"seen_count"`
	Status    LifecycleStatus `json:"status"`
	RemovedAt *time.Time      `json:"removed_at,omitempty"`
	// Availability holds the newest presence checks, oldest first.
	Availability []Availability `json:"availability"`
}

// Availability is one presence check of a model in a fetched catalog.
type Availability struct {
	Timestamp time.Time `json:"timestamp"`
	Available bool      `json:"available"`
}

type lifecycleEntry struct {
	Lifecycle
	availability *ringbuf.Buffer[Availability]
}

func (e *lifecycleEntry) snapshot() Lifecycle {
	lc := e.Lifecycle
	lc.Availability = e.availability.Items()
	return lc
}

// Key returns the "provider/model" identifier of the record.
func (l Lifecycle) Key() string { return LifecycleKey(l.Provider, l.ModelID) }

// LifecycleKey joins a provider and model id.
func LifecycleKey(provider, model string) string { return provider + "/" + model }

func (d *Detector) updateLifecycles(provider string, models []providers.ModelInfo, removed []ModelChange, now time.Time) {
	present := make(map[string]struct{}, len(models))
	for _, m := range models {
		present[m.ID] = struct{}{}
		key := LifecycleKey(provider, m.ID)
		e, ok := d.lifecycles[key]
		if !ok {
			e = &lifecycleEntry{
				Lifecycle:    Lifecycle{Provider: provider, ModelID: m.ID, FirstSeen: now},
				availability: ringbuf.New[Availability](d.opts.AvailabilitySize),
			}
			d.lifecycles[key] = e
		}
		e.LastSeen = now
		e.SeenCount++
		e.Status = LifecycleActive
		e.RemovedAt = nil
	}
	for _, r := range removed {
		if e, ok := d.lifecycles[LifecycleKey(provider, r.ModelID)]; ok {
			at := now
			e.Status = LifecycleRemoved
			e.RemovedAt = &at
		}
	}
	for _, e := range d.lifecycles {
		if e.Provider != provider {
			continue
		}
		_, ok := present[e.ModelID]
		e.availability.Push(Availability{Timestamp: now, Available: ok})
	}
}

// Lifecycle returns a copy of the record for provider/model.
func (d *Detector) Lifecycle(provider, model string) (Lifecycle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.lifecycles[LifecycleKey(provider, model)]
	if !ok {
		return Lifecycle{}, false
	}
	return e.snapshot(), true
}

// Lifecycles returns the records of provider sorted by model id. An empty
// provider returns every record.
func (d *Detector) Lifecycles(provider string) []Lifecycle {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Lifecycle
	for _, e := range d.lifecycles {
		if provider == "" || e.Provider == provider {
			out = append(out, e.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// PurgeLifecycles removes records not seen within retention and returns
// them. retention <= 0 uses DefaultLifecycleRetention.
func (d *Detector) PurgeLifecycles(retention time.Duration) []Lifecycle {
	if retention <= 0 {
		retention = DefaultLifecycleRetention
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cutoff := d.opts.Clock.Now().Add(-retention)
	var purged []Lifecycle
	for key, e := range d.lifecycles {
		if e.LastSeen.Before(cutoff) {
			purged = append(purged, e.snapshot())
			delete(d.lifecycles, key)
		}
	}
	sort.Slice(purged, func(i, j int) bool { return purged[i].Key() < purged[j].Key() })
	return purged
}
