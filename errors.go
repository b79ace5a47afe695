package gatewaycore

import "errors"

var (
	// ErrProviderNotFound is returned for provider names the core does not
	// know.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrModelNotFound is returned by ModelHealth for unknown models.
	ErrModelNotFound = errors.New("model not found")

	// ErrProviderExists is returned when registering a duplicate provider.
	ErrProviderExists = errors.New("provider already registered")

	// ErrManualRefreshThrottled is returned by ForceExecuteProvider when a
	// provider was refreshed manually too often.
	ErrManualRefreshThrottled = errors.New("manual refresh throttled")

	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("gateway core stopped")

	// errProbeUnhealthy marks a probe that reached the provider but got a
	// failure answer, so the circuit breaker counts it.
	errProbeUnhealthy = errors.New("probe reported unhealthy")
)
