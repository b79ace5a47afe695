// Package delta compares freshly fetched provider catalogs against the last
// accepted snapshot and keeps per-provider change history and per-model
// lifecycle records.
package delta

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ferro-labs/gateway-core/internal/catalog"
	"github.com/ferro-labs/gateway-core/internal/clock"
	"github.com/ferro-labs/gateway-core/internal/logging"
	"github.com/ferro-labs/gateway-core/internal/ringbuf"
	"github.com/ferro-labs/gateway-core/providers"
)

// ErrMalformedCatalog is returned when a fetched catalog cannot be diffed.
// The previous snapshot is left untouched.
var ErrMalformedCatalog = errors.New("malformed catalog")

// Defaults.
const (
	DefaultSignificanceThreshold = 0.1
	DefaultHistorySize           = 1000
	DefaultAvailabilitySize      = 100
	DefaultLifecycleRetention    = 7 * 24 * time.Hour
)

// Reasons attached to added and removed models.
const (
	ReasonInitialDiscovery = "initial_discovery"
	ReasonNewModel         = "new_model"
	ReasonModelRemoved     = "model_removed"
	ReasonModelChanged     = "model_changed"
)

// Options configures a Detector.
type Options struct {
	SignificanceThreshold float64
	HistorySize           int
	// AvailabilitySize caps each lifecycle's availability history.
	AvailabilitySize int
	Clock            clock.Clock
	Logger           *slog.Logger
}

func (o *Options) defaults() {
	if o.SignificanceThreshold <= 0 {
		o.SignificanceThreshold = DefaultSignificanceThreshold
	}
	if o.HistorySize <= 0 {
		o.HistorySize = DefaultHistorySize
	}
	if o.AvailabilitySize <= 0 {
		o.AvailabilitySize = DefaultAvailabilitySize
	}
	o.Clock = clock.OrReal(o.Clock)
	o.Logger = logging.OrDefault(o.Logger)
}

// Detector diffs catalogs against a catalog.Store.
type Detector struct {
	store *catalog.Store
	opts  Options

	mu         sync.Mutex
	history    map[string]*ringbuf.Buffer[Report]
	lifecycles map[string]*lifecycleEntry
}

// New creates a Detector backed by store.
func New(store *catalog.Store, opts Options) *Detector {
	opts.defaults()
	return &Detector{
		store:      store,
		opts:       opts,
		history:    make(map[string]*ringbuf.Buffer[Report]),
		lifecycles: make(map[string]*lifecycleEntry),
	}
}

// Validate rejects catalogs with empty or duplicate model ids.
func Validate(models []providers.ModelInfo) error {
	seen := make(map[string]struct{}, len(models))
	for i, m := range models {
		if m.ID == "" {
			return fmt.Errorf("%w: model at index %d has an empty id", ErrMalformedCatalog, i)
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("%w: duplicate model id %q", ErrMalformedCatalog, m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}

// Detect diffs models against the provider's snapshot, updates the
// snapshot, change history and lifecycle records, and returns the report.
func (d *Detector) Detect(provider string, models []providers.ModelInfo) (Report, error) {
	if err := Validate(models); err != nil {
		return Report{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.opts.Clock.Now()
	prev, seen := d.store.Get(provider)

	var report Report
	if !seen {
		report = initialReport(provider, models, now)
	} else {
		report = diff(provider, prev, models, now)
		report.Significant = report.ChangeRatio >= d.opts.SignificanceThreshold
	}

	switch {
	case !seen || report.HasChanges():
		d.store.Replace(provider, models, now)
	default:
		d.store.Touch(provider, now)
	}

	if report.HasChanges() {
		d.historyFor(provider).Push(report)
	}
	d.updateLifecycles(provider, models, report.Removed, now)

	d.opts.Logger.Debug("catalog diffed",
		"provider", provider,
		"added", len(report.Added),
		"removed", len(report.Removed),
		"modified", len(report.Modified),
		"change_ratio", report.ChangeRatio,
		"significant", report.Significant,
	)
	return report, nil
}

func initialReport(provider string, models []providers.ModelInfo, now time.Time) Report {
	r := Report{
		Provider:         provider,
		Timestamp:        now,
		InitialDiscovery: true,
		CurrentCount:     len(models),
	}
	for _, m := range models {
		model := m.Clone()
		r.Added = append(r.Added, ModelChange{ModelID: m.ID, Type: ChangeAdded, Reason: ReasonInitialDiscovery, Model: &model})
	}
	sortChanges(r.Added)
	r.ChangeRatio = ratio(len(r.Added), 0, len(models))
	return r
}

func diff(provider string, prev catalog.Snapshot, models []providers.ModelInfo, now time.Time) Report {
	r := Report{
		Provider:      provider,
		Timestamp:     now,
		PreviousCount: len(prev.Models),
		CurrentCount:  len(models),
	}
	current := make(map[string]providers.ModelInfo, len(models))
	for _, m := range models {
		current[m.ID] = m
		old, existed := prev.Models[m.ID]
		if !existed {
			model := m.Clone()
			r.Added = append(r.Added, ModelChange{ModelID: m.ID, Type: ChangeAdded, Reason: ReasonNewModel, Model: &model})
			continue
		}
		if changes := compareModels(old, m); len(changes) > 0 {
			model := m.Clone()
			r.Modified = append(r.Modified, ModelChange{ModelID: m.ID, Type: ChangeModified, Reason: ReasonModelChanged, Changes: changes, Model: &model})
		}
	}
	for id, old := range prev.Models {
		if _, still := current[id]; !still {
			model := old.Clone()
			r.Removed = append(r.Removed, ModelChange{ModelID: id, Type: ChangeRemoved, Reason: ReasonModelRemoved, Model: &model})
		}
	}
	sortChanges(r.Added)
	sortChanges(r.Removed)
	sortChanges(r.Modified)
	r.ChangeRatio = ratio(len(r.Added)+len(r.Removed)+len(r.Modified), r.PreviousCount, r.CurrentCount)
	return r
}

func ratio(changes, prev, cur int) float64 {
	denom := prev
	if cur > denom {
		denom = cur
	}
	if denom == 0 {
		return 0
	}
	return float64(changes) / float64(denom)
}

func sortChanges(c []ModelChange) {
	sort.Slice(c, func(i, j int) bool { return c[i].ModelID < c[j].ModelID })
}

func (d *Detector) historyFor(provider string) *ringbuf.Buffer[Report] {
	h, ok := d.history[provider]
	if !ok {
		h = ringbuf.New[Report](d.opts.HistorySize)
		d.history[provider] = h
	}
	return h
}

// History returns up to limit reports for provider, newest first. limit
// <= 0 returns all retained reports.
func (d *Detector) History(provider string, limit int) []Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.history[provider]
	if !ok {
		return nil
	}
	items := h.Last(limit)
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items
}

// Forget drops history and lifecycle records of provider.
func (d *Detector) Forget(provider string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, provider)
	for key, lc := range d.lifecycles {
		if lc.Provider == provider {
			delete(d.lifecycles, key)
		}
	}
}
