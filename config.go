package gatewaycore

// Config holds the configuration of the scheduling core.
type Config struct {
	// Providers is the provider registry: every upstream the core polls.
	Providers []ProviderConfig `json:"providers" yaml:"providers"`
	// RateLimit tunes admission control shared by every provider.
	RateLimit RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	// CircuitBreaker tunes the per-provider breakers.
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
	// Health tunes the probe sweeps.
	Health HealthConfig `json:"health,omitempty" yaml:"health,omitempty"`
	// Scheduler tunes refresh timers and retries.
	Scheduler SchedulerConfig `json:"scheduler,omitempty" yaml:"scheduler,omitempty"`
	// Delta tunes change detection.
	Delta DeltaConfig `json:"delta,omitempty" yaml:"delta,omitempty"`
	// Maintenance holds cron schedules of housekeeping jobs.
	Maintenance MaintenanceConfig `json:"maintenance,omitempty" yaml:"maintenance,omitempty"`
	// Notifications lists the event sinks to load (optional).
	Notifications []NotificationConfig `json:"notifications,omitempty" yaml:"notifications,omitempty"`
	// Admin configures the HTTP admin API.
	Admin AdminConfig `json:"admin,omitempty" yaml:"admin,omitempty"`
}

// ProviderConfig describes one upstream provider.
type ProviderConfig struct {
	Name    string `json:"name" yaml:"name"`
	Kind    string `json:"kind" yaml:"kind"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// APIKey is used as is; APIKeyEnv names an environment variable holding
	// the key and wins when both are set.
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`

	// Lower priorities are armed first on startup.
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`
	// PollingInterval is a Go duration string, e.g. "5m".
	PollingInterval string `json:"polling_interval,omitempty" yaml:"polling_interval,omitempty"`
	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// RateLimit holds the provider's published quotas (optional).
	RateLimit *ProviderLimits `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	// EstimatedTokens is the token cost reserved for one refresh cycle.
	EstimatedTokens int `json:"estimated_tokens,omitempty" yaml:"estimated_tokens,omitempty"`

	Region     string            `json:"region,omitempty" yaml:"region,omitempty"`
	AWS        *AWSConfig        `json:"aws,omitempty" yaml:"aws,omitempty"`
	Models     []string          `json:"models,omitempty" yaml:"models,omitempty"`
	ProbeModel string            `json:"probe_model,omitempty" yaml:"probe_model,omitempty"`
	ModelsPath string            `json:"models_path,omitempty" yaml:"models_path,omitempty"`
	HealthPath string            `json:"health_path,omitempty" yaml:"health_path,omitempty"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	OAuth2     *OAuth2Config     `json:"oauth2,omitempty" yaml:"oauth2,omitempty"`
}

// IsEnabled reports whether the provider is enabled.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// ProviderLimits are a provider's published quotas. Zero means unlimited.
type ProviderLimits struct {
	RequestsPerMinute  int `json:"requests_per_minute,omitempty" yaml:"requests_per_minute,omitempty"`
	TokensPerMinute    int `json:"tokens_per_minute,omitempty" yaml:"tokens_per_minute,omitempty"`
	ConcurrentRequests int `json:"concurrent_requests,omitempty" yaml:"concurrent_requests,omitempty"`
}

// AWSConfig holds static Bedrock credentials. The *_env fields name
// environment variables and win over literal values.
type AWSConfig struct {
	AccessKeyID        string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	AccessKeyIDEnv     string `json:"access_key_id_env,omitempty" yaml:"access_key_id_env,omitempty"`
	SecretAccessKey    string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
	SecretAccessKeyEnv string `json:"secret_access_key_env,omitempty" yaml:"secret_access_key_env,omitempty"`
	SessionToken       string `json:"session_token,omitempty" yaml:"session_token,omitempty"`
}

// OAuth2Config configures client-credentials auth for OpenAI-compatible
// endpoints.
type OAuth2Config struct {
	ClientID        string   `json:"client_id" yaml:"client_id"`
	ClientSecret    string   `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	ClientSecretEnv string   `json:"client_secret_env,omitempty" yaml:"client_secret_env,omitempty"`
	TokenURL        string   `json:"token_url" yaml:"token_url"`
	Scopes          []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// RateLimitConfig tunes the rate limiter.
type RateLimitConfig struct {
	// SafetyBuffer is the share of each published quota actually used, in
	// (0, 1]. Default 0.8.
	SafetyBuffer      float64 `json:"safety_buffer,omitempty" yaml:"safety_buffer,omitempty"`
	MinBackoff        string  `json:"min_backoff,omitempty" yaml:"min_backoff,omitempty"`
	MaxBackoff        string  `json:"max_backoff,omitempty" yaml:"max_backoff,omitempty"`
	BackoffMultiplier float64 `json:"backoff_multiplier,omitempty" yaml:"backoff_multiplier,omitempty"`
}

// CircuitBreakerConfig tunes the circuit breakers.
type CircuitBreakerConfig struct {
	FailureThreshold int    `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`
	SuccessThreshold int    `json:"success_threshold,omitempty" yaml:"success_threshold,omitempty"`
	Timeout          string `json:"timeout,omitempty" yaml:"timeout,omitempty"` // e.g. "60s"
}

// HealthConfig tunes the health monitor.
type HealthConfig struct {
	Disabled           bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Interval           string `json:"interval,omitempty" yaml:"interval,omitempty"`
	ProbeTimeout       string `json:"probe_timeout,omitempty" yaml:"probe_timeout,omitempty"`
	UnhealthyThreshold int    `json:"unhealthy_threshold,omitempty" yaml:"unhealthy_threshold,omitempty"`
	RecoveryThreshold  int    `json:"recovery_threshold,omitempty" yaml:"recovery_threshold,omitempty"`
	HistorySize        int    `json:"history_size,omitempty" yaml:"history_size,omitempty"`
	ProviderBatch      int    `json:"provider_batch,omitempty" yaml:"provider_batch,omitempty"`
	ModelBatch         int    `json:"model_batch,omitempty" yaml:"model_batch,omitempty"`
}

// SchedulerConfig tunes the polling scheduler.
type SchedulerConfig struct {
	DefaultInterval string `json:"default_interval,omitempty" yaml:"default_interval,omitempty"`
	InitialDelay    string `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	// MaxRetries and Jitter distinguish unset (default) from an explicit 0.
	MaxRetries            *int     `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	BackoffDelay          string   `json:"backoff_delay,omitempty" yaml:"backoff_delay,omitempty"`
	BackoffMultiplier     float64  `json:"backoff_multiplier,omitempty" yaml:"backoff_multiplier,omitempty"`
	MaxBackoff            string   `json:"max_backoff,omitempty" yaml:"max_backoff,omitempty"`
	Jitter                *float64 `json:"jitter,omitempty" yaml:"jitter,omitempty"`
	HistorySize           int      `json:"history_size,omitempty" yaml:"history_size,omitempty"`
	CallTimeout           string   `json:"call_timeout,omitempty" yaml:"call_timeout,omitempty"`
	ManualRefreshInterval string   `json:"manual_refresh_interval,omitempty" yaml:"manual_refresh_interval,omitempty"`
	ManualRefreshBurst    int      `json:"manual_refresh_burst,omitempty" yaml:"manual_refresh_burst,omitempty"`
}

// DeltaConfig tunes change detection.
type DeltaConfig struct {
	SignificanceThreshold float64 `json:"significance_threshold,omitempty" yaml:"significance_threshold,omitempty"`
	HistorySize           int     `json:"history_size,omitempty" yaml:"history_size,omitempty"`
	LifecycleRetention    string  `json:"lifecycle_retention,omitempty" yaml:"lifecycle_retention,omitempty"`
	AvailabilitySize      int     `json:"availability_size,omitempty" yaml:"availability_size,omitempty"`
}

// MaintenanceConfig holds cron expressions of housekeeping jobs.
type MaintenanceConfig struct {
	// LifecycleCleanup defaults to "0 * * * *".
	LifecycleCleanup string `json:"lifecycle_cleanup,omitempty" yaml:"lifecycle_cleanup,omitempty"`
}

// NotificationConfig loads one event sink.
type NotificationConfig struct {
	Name    string `json:"name" yaml:"name"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	// Events restricts delivery to the listed event types; empty means all.
	Events []string               `json:"events,omitempty" yaml:"events,omitempty"`
	Config map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// AdminConfig configures the admin API.
type AdminConfig struct {
	Tokens []AdminToken `json:"tokens,omitempty" yaml:"tokens,omitempty"`
}

// AdminToken is one bearer token accepted by the admin API.
type AdminToken struct {
	Name     string `json:"name" yaml:"name"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
	TokenEnv string `json:"token_env,omitempty" yaml:"token_env,omitempty"`
	// Scope is "read_only" or "admin".
	Scope string `json:"scope" yaml:"scope"`
}
