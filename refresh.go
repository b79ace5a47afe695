package gatewaycore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ferro-labs/gateway-core/events"
	"github.com/ferro-labs/gateway-core/internal/circuitbreaker"
	"github.com/ferro-labs/gateway-core/internal/delta"
	"github.com/ferro-labs/gateway-core/internal/health"
	"github.com/ferro-labs/gateway-core/internal/logging"
	"github.com/ferro-labs/gateway-core/internal/metrics"
	"github.com/ferro-labs/gateway-core/internal/ratelimit"
	"github.com/ferro-labs/gateway-core/internal/scheduler"
	"github.com/ferro-labs/gateway-core/providers"
)

// refresh is the scheduler's cycle: admit, fetch through the breaker, diff,
// and publish what changed.
func (c *Core) refresh(ctx context.Context, name string) error {
	rt, err := c.mustRuntime(name)
	if err != nil {
		return err
	}
	log := c.logger.With("provider", name, "trace_id", logging.TraceIDFromContext(ctx))

	decision := c.limiter.CanProceed(name, rt.cfg.EstimatedTokens)
	if !decision.Allowed {
		log.Debug("refresh deferred by rate limiter", "reason", decision.Reason, "retry_after", decision.RetryAfter.String())
		return &scheduler.SkipError{RetryAfter: decision.RetryAfter, Err: decision.Err()}
	}
	defer c.limiter.RecordCompletion(name)

	var models []providers.ModelInfo
	start := c.clock.Now()
	err = rt.breaker.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
		var ferr error
		models, ferr = rt.provider.FetchCatalog(callCtx)
		return ferr
	})
	latency := c.clock.Now().Sub(start)

	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		snap := rt.breaker.Snapshot()
		var wait time.Duration
		if !snap.RetryAt.IsZero() {
			wait = snap.RetryAt.Sub(c.clock.Now())
		}
		return &scheduler.SkipError{RetryAfter: wait, Err: err}

	case providers.IsRateLimited(err):
		c.limiter.RecordOutcome(name, 0, ratelimit.OutcomeRateLimited, providers.RetryAfter(err))
		metrics.ProviderErrors.WithLabelValues(name, "rate_limited").Inc()
		var wait time.Duration
		if st, serr := c.limiter.State(name); serr == nil {
			wait = st.BackoffDelay
		}
		return &scheduler.SkipError{RetryAfter: wait, Err: err}

	case err != nil:
		c.limiter.RecordOutcome(name, 0, ratelimit.OutcomeFailure, 0)
		metrics.ProviderErrors.WithLabelValues(name, errorType(ctx, err)).Inc()
		c.recordHealth(name, providers.ProbeResult{Latency: latency}, err)
		log.Warn("catalog fetch failed", "error", err)
		return fmt.Errorf("fetch catalog: %w", err)
	}

	c.limiter.RecordOutcome(name, 0, ratelimit.OutcomeSuccess, 0)
	c.recordHealth(name, providers.ProbeResult{Healthy: true, Latency: latency}, nil)

	var report delta.Report
	live := c.whileRegistered(name, rt, func() {
		report, err = c.detector.Detect(name, models)
		if err != nil {
			return
		}
		for _, m := range models {
			c.monitor.TrackModel(name, m.ID)
		}
		metrics.CatalogModels.WithLabelValues(name).Set(float64(len(models)))
		metrics.CatalogChanges.WithLabelValues(name, "added").Add(float64(len(report.Added)))
		metrics.CatalogChanges.WithLabelValues(name, "removed").Add(float64(len(report.Removed)))
		metrics.CatalogChanges.WithLabelValues(name, "modified").Add(float64(len(report.Modified)))
	})
	if !live {
		log.Info("dropping catalog of deregistered provider", "models", len(models))
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	if err != nil {
		metrics.ProviderErrors.WithLabelValues(name, "invalid_catalog").Inc()
		log.Error("catalog rejected", "error", err)
		c.publish(events.TypeCatalogInvalid, name, map[string]interface{}{
			"error":  err.Error(),
			"models": len(models),
		})
		return err
	}

	if !report.InitialDiscovery && report.HasChanges() {
		c.publish(events.TypeCatalogChanged, name, map[string]interface{}{
			"summary":      summarize(report),
			"added":        modelIDs(report.Added),
			"removed":      modelIDs(report.Removed),
			"modified":     modelIDs(report.Modified),
			"change_ratio": report.ChangeRatio,
			"significant":  report.Significant,
		})
	}
	log.Info("catalog refreshed",
		"models", len(models),
		"added", len(report.Added),
		"removed", len(report.Removed),
		"modified", len(report.Modified),
		"initial", report.InitialDiscovery,
		"latency", latency.String(),
	)
	return nil
}

// recordHealth feeds a refresh outcome into the health monitor so catalog
// polling counts as a liveness signal.
func (c *Core) recordHealth(name string, res providers.ProbeResult, err error) {
	if !c.healthEnabled {
		return
	}
	if _, herr := c.monitor.RecordProviderResult(name, res, err); herr != nil {
		c.logger.Debug("health record dropped", "provider", name, "error", herr)
	}
}

// probe is the health monitor's ProbeFunc. It goes through the same limiter
// and breaker as refresh cycles.
func (c *Core) probe(ctx context.Context, name string) (providers.ProbeResult, error) {
	rt, ok := c.runtime(name)
	if !ok || !rt.cfg.IsEnabled() {
		return providers.ProbeResult{}, fmt.Errorf("%w: provider %s disabled", health.ErrSkipped, name)
	}
	decision := c.limiter.CanProceed(name, 0)
	if !decision.Allowed {
		return providers.ProbeResult{}, fmt.Errorf("%w: %w", health.ErrSkipped, decision.Err())
	}
	defer c.limiter.RecordCompletion(name)

	var res providers.ProbeResult
	err := rt.breaker.Execute(ctx, func(ctx context.Context) error {
		var perr error
		res, perr = rt.provider.Probe(ctx)
		if perr == nil && !res.Healthy {
			return errProbeUnhealthy
		}
		return perr
	})
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return providers.ProbeResult{}, fmt.Errorf("%w: %w", health.ErrSkipped, err)
	case providers.IsRateLimited(err):
		c.limiter.RecordOutcome(name, 0, ratelimit.OutcomeRateLimited, providers.RetryAfter(err))
		return providers.ProbeResult{}, fmt.Errorf("%w: %w", health.ErrSkipped, err)
	case errors.Is(err, errProbeUnhealthy):
		c.limiter.RecordOutcome(name, 0, ratelimit.OutcomeFailure, 0)
		return res, nil
	case err != nil:
		c.limiter.RecordOutcome(name, 0, ratelimit.OutcomeFailure, 0)
		metrics.ProviderErrors.WithLabelValues(name, errorType(ctx, err)).Inc()
		return res, err
	}
	c.limiter.RecordOutcome(name, 0, ratelimit.OutcomeSuccess, 0)
	return res, nil
}

func (c *Core) publish(typ events.Type, provider string, data map[string]interface{}) {
	c.dispatcher.Publish(events.New(typ, provider, c.clock.Now(), data))
}

func (c *Core) onRateLimitHit(provider string, hits int, delay time.Duration) {
	c.publish(events.TypeRateLimitHit, provider, map[string]interface{}{
		"consecutive_hits": hits,
		"backoff_seconds":  delay.Seconds(),
	})
}

func (c *Core) onCircuitChange(name string, from, to circuitbreaker.State) {
	var gauge float64
	switch to {
	case circuitbreaker.StateOpen:
		gauge = 1
	case circuitbreaker.StateHalfOpen:
		gauge = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(gauge)

	data := map[string]interface{}{"from": from.String(), "to": to.String()}
	switch {
	case to == circuitbreaker.StateOpen:
		c.publish(events.TypeCircuitOpened, name, data)
	case to == circuitbreaker.StateClosed && from != circuitbreaker.StateClosed:
		c.publish(events.TypeCircuitClosed, name, data)
	}
}

func (c *Core) onDegraded(h health.ProviderHealth) {
	c.publish(events.TypeProviderDegraded, h.Provider, map[string]interface{}{
		"consecutive_failures": h.ConsecutiveFailures,
		"status":               string(h.Status),
		"error":                h.LastError,
	})
}

func (c *Core) onRecovered(h health.ProviderHealth) {
	c.publish(events.TypeProviderRecovered, h.Provider, map[string]interface{}{
		"consecutive_successes": h.ConsecutiveSuccesses,
		"latency_ms":            h.LastLatency.Milliseconds(),
	})
}

func errorType(ctx context.Context, err error) string {
	var se *providers.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case ctx.Err() != nil:
		return "canceled"
	case errors.As(err, &se):
		return "status"
	default:
		return "transport"
	}
}

func modelIDs(changes []delta.ModelChange) []string {
	ids := make([]string, len(changes))
	for i, ch := range changes {
		ids[i] = ch.ModelID
	}
	return ids
}

func summarize(r delta.Report) string {
	return fmt.Sprintf("%d added, %d removed, %d modified (%d -> %d models)",
		len(r.Added), len(r.Removed), len(r.Modified), r.PreviousCount, r.CurrentCount)
}
