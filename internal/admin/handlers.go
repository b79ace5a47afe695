// Package admin provides the HTTP query and administration API of the
// gateway core. Read-only routes expose provider status, health, schedule
// and change history; admin routes change schedules and limits, force
// refreshes and reconfigure providers. Every route is protected by bearer
// tokens via AuthMiddleware.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	gatewaycore "github.com/ferro-labs/gateway-core"
	"github.com/ferro-labs/gateway-core/internal/cron"
	"github.com/ferro-labs/gateway-core/internal/delta"
	"github.com/ferro-labs/gateway-core/internal/health"
	"github.com/ferro-labs/gateway-core/internal/ratelimit"
	"github.com/ferro-labs/gateway-core/internal/scheduler"
	"github.com/ferro-labs/gateway-core/providers"
)

// Core is the part of *gatewaycore.Core the handlers use.
type Core interface {
	Providers() []string
	Config() gatewaycore.Config
	Sinks() []string
	MaintenanceJobs() []string

	ProviderStatus(name string) (gatewaycore.ProviderStatus, error)
	ModelHealth(id string) ([]health.ModelHealth, error)
	HealthSummary() gatewaycore.HealthSummary
	ScheduleStatus() gatewaycore.ScheduleStatus
	ChangeHistory(name string, limit int) ([]delta.Report, error)
	ProviderStats(name string, hours int) (health.Stats, error)
	Models(name string) ([]health.ModelHealth, error)
	Lifecycles(name string) ([]delta.Lifecycle, error)
	JobHistory(name string, limit int) ([]scheduler.JobRecord, error)

	SetProviderEnabled(name string, enabled bool) error
	UpdateProviderSchedule(name string, u scheduler.ScheduleUpdate) (scheduler.Entry, error)
	UpdateProviderLimits(name string, u ratelimit.LimitsUpdate) (ratelimit.Limits, error)
	ForceExecuteProvider(ctx context.Context, name string) error
	ResetBackoff(name string) error
	ResetCircuit(name string) error
	CheckProvider(ctx context.Context, name string) (health.ProviderHealth, error)
	RegisterProvider(pc gatewaycore.ProviderConfig, p providers.Provider) error
	DeregisterProvider(name string) error
	Reconfigure(list []gatewaycore.ProviderConfig) error
	RunMaintenance(ctx context.Context, job string) error
}

var _ Core = (*gatewaycore.Core)(nil)

// Handlers holds dependencies for admin HTTP handlers.
type Handlers struct {
	Core Core

	historyMu     sync.Mutex
	configHistory []ConfigHistoryEntry
}

// ConfigHistoryEntry captures the provider list applied by a runtime
// reconfiguration.
type ConfigHistoryEntry struct {
	Version        int                          `json:"version"`
	UpdatedAt      time.Time                    `json:"updated_at"`
	Providers      []gatewaycore.ProviderConfig `json:"providers"`
	RolledBackFrom *int                         `json:"rolled_back_from,omitempty"`
}

const (
	defaultHistoryLimit = 20
	maxConfigHistory    = 50
)

// Routes returns a chi.Router with all admin endpoints mounted.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	// Read-only endpoints (read_only or admin scope).
	r.Group(func(r chi.Router) {
		r.Use(RequireScope(ScopeReadOnly))
		r.Get("/health", h.healthSummary)
		r.Get("/schedule", h.scheduleStatus)
		r.Get("/providers", h.listProviders)
		r.Get("/providers/{name}", h.providerStatus)
		r.Get("/providers/{name}/history", h.changeHistory)
		r.Get("/providers/{name}/stats", h.providerStats)
		r.Get("/providers/{name}/models", h.providerModels)
		r.Get("/providers/{name}/lifecycles", h.lifecycles)
		r.Get("/providers/{name}/jobs", h.jobHistory)
		r.Get("/models/*", h.modelHealth)
		r.Get("/sinks", h.listSinks)
		r.Get("/config", h.getConfig)
		r.Get("/config/history", h.getConfigHistory)
	})

	// Write endpoints (admin scope only).
	r.Group(func(r chi.Router) {
		r.Use(RequireScope(ScopeAdmin))
		r.Post("/providers", h.registerProvider)
		r.Put("/providers", h.reconfigure)
		r.Delete("/providers/{name}", h.deregisterProvider)
		r.Post("/providers/{name}/enable", h.setEnabled(true))
		r.Post("/providers/{name}/disable", h.setEnabled(false))
		r.Put("/providers/{name}/schedule", h.updateSchedule)
		r.Put("/providers/{name}/limits", h.updateLimits)
		r.Post("/providers/{name}/refresh", h.forceRefresh)
		r.Post("/providers/{name}/reset-backoff", h.resetBackoff)
		r.Post("/providers/{name}/reset-circuit", h.resetCircuit)
		r.Post("/providers/{name}/check", h.checkProvider)
		r.Post("/config/rollback/{version}", h.rollbackConfig)
		r.Post("/maintenance/{job}", h.runMaintenance)
	})

	return r
}

// writeCoreError maps core errors onto HTTP statuses.
func writeCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gatewaycore.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "", "provider_not_found")
	case errors.Is(err, gatewaycore.ErrModelNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "", "model_not_found")
	case errors.Is(err, gatewaycore.ErrProviderExists):
		writeError(w, http.StatusConflict, err.Error(), "", "provider_exists")
	case errors.Is(err, scheduler.ErrCycleRunning), errors.Is(err, cron.ErrJobRunning):
		writeError(w, http.StatusConflict, err.Error(), "", "already_running")
	case errors.Is(err, gatewaycore.ErrManualRefreshThrottled):
		writeError(w, http.StatusTooManyRequests, err.Error(), "", "refresh_throttled")
	case errors.Is(err, health.ErrSkipped):
		writeError(w, http.StatusConflict, err.Error(), "", "probe_skipped")
	default:
		writeError(w, http.StatusBadRequest, err.Error(), "", "invalid_request")
	}
}

func positiveQuery(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (h *Handlers) healthSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Core.HealthSummary())
}

func (h *Handlers) scheduleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Core.ScheduleStatus())
}

func (h *Handlers) listProviders(w http.ResponseWriter, _ *http.Request) {
	result := []gatewaycore.ProviderStatus{}
	for _, name := range h.Core.Providers() {
		st, err := h.Core.ProviderStatus(name)
		if err != nil {
			continue // deregistered concurrently
		}
		result = append(result, st)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) providerStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Core.ProviderStatus(chi.URLParam(r, "name"))
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handlers) changeHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := positiveQuery(r, "limit", defaultHistoryLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit: must be a positive integer", "invalid_request_error", "invalid_request")
		return
	}
	reports, err := h.Core.ChangeHistory(chi.URLParam(r, "name"), limit)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *Handlers) providerStats(w http.ResponseWriter, r *http.Request) {
	hours, ok := positiveQuery(r, "hours", gatewaycore.DefaultStatsHours)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid hours: must be a positive integer", "invalid_request_error", "invalid_request")
		return
	}
	stats, err := h.Core.ProviderStats(chi.URLParam(r, "name"), hours)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) providerModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.Core.Models(chi.URLParam(r, "name"))
	if err != nil {
		writeCoreError(w, err)
		return
	}
	if models == nil {
		models = []health.ModelHealth{}
	}
	writeJSON(w, http.StatusOK, models)
}

func (h *Handlers) lifecycles(w http.ResponseWriter, r *http.Request) {
	lcs, err := h.Core.Lifecycles(chi.URLParam(r, "name"))
	if err != nil {
		writeCoreError(w, err)
		return
	}
	if lcs == nil {
		lcs = []delta.Lifecycle{}
	}
	writeJSON(w, http.StatusOK, lcs)
}

func (h *Handlers) jobHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := positiveQuery(r, "limit", defaultHistoryLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit: must be a positive integer", "invalid_request_error", "invalid_request")
		return
	}
	jobs, err := h.Core.JobHistory(chi.URLParam(r, "name"), limit)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// modelHealth accepts "provider/model" ids, so the id is the wildcard.
func (h *Handlers) modelHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "*")
	if id == "" {
		writeError(w, http.StatusBadRequest, "model id is required", "invalid_request_error", "invalid_request")
		return
	}
	models, err := h.Core.ModelHealth(id)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models)
}

func (h *Handlers) listSinks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sinks":            h.Core.Sinks(),
		"maintenance_jobs": h.Core.MaintenanceJobs(),
	})
}

func (h *Handlers) getConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Redact(h.Core.Config()))
}

func (h *Handlers) getConfigHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.getConfigHistorySnapshot())
}

func (h *Handlers) registerProvider(w http.ResponseWriter, r *http.Request) {
	var pc gatewaycore.ProviderConfig
	if err := json.NewDecoder(r.Body).Decode(&pc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request_error", "invalid_request")
		return
	}
	if err := h.Core.RegisterProvider(pc, nil); err != nil {
		writeCoreError(w, err)
		return
	}
	st, err := h.Core.ProviderStatus(pc.Name)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *Handlers) deregisterProvider(w http.ResponseWriter, r *http.Request) {
	if err := h.Core.DeregisterProvider(chi.URLParam(r, "name")); err != nil {
		writeCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) reconfigure(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Providers []gatewaycore.ProviderConfig `json:"providers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request_error", "invalid_request")
		return
	}
	h.applyProviders(w, body.Providers, nil)
}

func (h *Handlers) applyProviders(w http.ResponseWriter, list []gatewaycore.ProviderConfig, rolledBackFrom *int) {
	if len(h.getConfigHistorySnapshot()) == 0 {
		h.appendConfigHistory(h.Core.Config().Providers, nil)
	}
	if err := h.Core.Reconfigure(list); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error", "invalid_config")
		return
	}
	version := h.appendConfigHistory(list, rolledBackFrom)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "updated",
		"version":   version,
		"providers": h.Core.Providers(),
	})
}

func (h *Handlers) rollbackConfig(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version <= 0 {
		writeError(w, http.StatusBadRequest, "invalid version", "invalid_request_error", "invalid_request")
		return
	}
	target, ok := h.configVersion(version)
	if !ok {
		writeError(w, http.StatusNotFound, "config version not found", "not_found_error", "resource_not_found")
		return
	}
	h.applyProviders(w, target.Providers, &version)
}

func (h *Handlers) setEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := h.Core.SetProviderEnabled(name, enabled); err != nil {
			writeCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"provider": name, "enabled": enabled})
	}
}

func (h *Handlers) updateSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Interval     string `json:"interval"`
		Priority     *int   `json:"priority"`
		Enabled      *bool  `json:"enabled"`
		BackoffDelay string `json:"backoff_delay"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request_error", "invalid_request")
		return
	}
	u := scheduler.ScheduleUpdate{Priority: body.Priority, Enabled: body.Enabled}
	for field, raw := range map[string]string{"interval": body.Interval, "backoff_delay": body.BackoffDelay} {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+field+": "+err.Error(), "invalid_request_error", "invalid_request")
			return
		}
		if field == "interval" {
			u.Interval = &d
		} else {
			u.BackoffDelay = &d
		}
	}
	entry, err := h.Core.UpdateProviderSchedule(chi.URLParam(r, "name"), u)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handlers) updateLimits(w http.ResponseWriter, r *http.Request) {
	var u ratelimit.LimitsUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request_error", "invalid_request")
		return
	}
	limits, err := h.Core.UpdateProviderLimits(chi.URLParam(r, "name"), u)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

func (h *Handlers) forceRefresh(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := h.Core.ForceExecuteProvider(r.Context(), name)
	switch {
	case err == nil:
	case errors.Is(err, gatewaycore.ErrProviderNotFound),
		errors.Is(err, gatewaycore.ErrManualRefreshThrottled),
		errors.Is(err, scheduler.ErrCycleRunning):
		writeCoreError(w, err)
		return
	default:
		// The cycle ran and failed; its outcome is already recorded.
		writeError(w, http.StatusBadGateway, err.Error(), "upstream_error", "refresh_failed")
		return
	}
	st, err := h.Core.ProviderStatus(name)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handlers) resetBackoff(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.Core.ResetBackoff(name); err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"provider": name, "status": "backoff_reset"})
}

func (h *Handlers) resetCircuit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.Core.ResetCircuit(name); err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"provider": name, "status": "circuit_reset"})
}

func (h *Handlers) checkProvider(w http.ResponseWriter, r *http.Request) {
	ph, err := h.Core.CheckProvider(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ph)
}

func (h *Handlers) runMaintenance(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")
	known := false
	for _, name := range h.Core.MaintenanceJobs() {
		if name == job {
			known = true
			break
		}
	}
	if !known {
		writeError(w, http.StatusNotFound, "maintenance job not found", "not_found_error", "resource_not_found")
		return
	}
	if err := h.Core.RunMaintenance(r.Context(), job); err != nil {
		if errors.Is(err, cron.ErrJobRunning) {
			writeCoreError(w, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error(), "server_error", "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job": job, "status": "completed"})
}

func (h *Handlers) appendConfigHistory(list []gatewaycore.ProviderConfig, rolledBackFrom *int) int {
	h.historyMu.Lock()
	defer h.historyMu.Unlock()
	version := 1
	if n := len(h.configHistory); n > 0 {
		version = h.configHistory[n-1].Version + 1
	}
	h.configHistory = append(h.configHistory, ConfigHistoryEntry{
		Version:        version,
		UpdatedAt:      time.Now().UTC(),
		Providers:      append([]gatewaycore.ProviderConfig(nil), list...),
		RolledBackFrom: rolledBackFrom,
	})
	if len(h.configHistory) > maxConfigHistory {
		h.configHistory = h.configHistory[len(h.configHistory)-maxConfigHistory:]
	}
	return version
}

func (h *Handlers) configVersion(version int) (ConfigHistoryEntry, bool) {
	h.historyMu.Lock()
	defer h.historyMu.Unlock()
	for _, entry := range h.configHistory {
		if entry.Version == version {
			return entry, true
		}
	}
	return ConfigHistoryEntry{}, false
}

// getConfigHistorySnapshot returns the history with secrets masked.
func (h *Handlers) getConfigHistorySnapshot() []ConfigHistoryEntry {
	h.historyMu.Lock()
	defer h.historyMu.Unlock()
	out := make([]ConfigHistoryEntry, len(h.configHistory))
	for i, entry := range h.configHistory {
		entry.Providers = redactProviders(entry.Providers)
		out[i] = entry
	}
	return out
}
