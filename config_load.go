package gatewaycore

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/ferro-labs/gateway-core/internal/cron"
	"github.com/ferro-labs/gateway-core/providers"
)

//go:embed config.schema.json
var configSchemaJSON string

var configSchema = jsonschema.MustCompileString("config.schema.json", configSchemaJSON)

// Default schedule of the lifecycle cleanup job.
const DefaultLifecycleCleanup = "0 * * * *"

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml). The document is
// checked against the configuration schema, so unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var doc interface{}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	// Round-trip through JSON so YAML documents validate with JSON types.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalizing config: %w", err)
	}
	if err := validateSchema(normalized); err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(normalized, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

func validateSchema(doc []byte) error {
	var v interface{}
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("decoding config for schema validation: %w", err)
	}
	if err := configSchema.Validate(v); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}

// ValidateConfig validates a Config for correctness: the schema first, then
// cross-field rules the schema cannot express.
func ValidateConfig(cfg Config) error {
	if cfg.Providers == nil {
		cfg.Providers = []ProviderConfig{}
	}
	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := validateSchema(doc); err != nil {
		return err
	}

	if err := validateProviders(cfg.Providers); err != nil {
		return err
	}

	durations := map[string]string{
		"rate_limit.min_backoff":            cfg.RateLimit.MinBackoff,
		"rate_limit.max_backoff":            cfg.RateLimit.MaxBackoff,
		"circuit_breaker.timeout":           cfg.CircuitBreaker.Timeout,
		"health.interval":                   cfg.Health.Interval,
		"health.probe_timeout":              cfg.Health.ProbeTimeout,
		"scheduler.default_interval":        cfg.Scheduler.DefaultInterval,
		"scheduler.initial_delay":           cfg.Scheduler.InitialDelay,
		"scheduler.backoff_delay":           cfg.Scheduler.BackoffDelay,
		"scheduler.max_backoff":             cfg.Scheduler.MaxBackoff,
		"scheduler.call_timeout":            cfg.Scheduler.CallTimeout,
		"scheduler.manual_refresh_interval": cfg.Scheduler.ManualRefreshInterval,
		"delta.lifecycle_retention":         cfg.Delta.LifecycleRetention,
	}
	for field, raw := range durations {
		if _, err := parseDuration(field, raw, 0); err != nil {
			return err
		}
	}
	minB, _ := parseDuration("", cfg.RateLimit.MinBackoff, 0)
	maxB, _ := parseDuration("", cfg.RateLimit.MaxBackoff, 0)
	if minB > 0 && maxB > 0 && minB > maxB {
		return fmt.Errorf("rate_limit.min_backoff %s exceeds max_backoff %s", minB, maxB)
	}

	if expr := cfg.Maintenance.LifecycleCleanup; expr != "" {
		if err := cron.ValidateSchedule(expr); err != nil {
			return fmt.Errorf("maintenance.lifecycle_cleanup: %w", err)
		}
	}

	seenSinks := make(map[string]bool, len(cfg.Notifications))
	for _, n := range cfg.Notifications {
		if seenSinks[n.Name] {
			return fmt.Errorf("notification sink %q configured twice", n.Name)
		}
		seenSinks[n.Name] = true
	}

	for _, tok := range cfg.Admin.Tokens {
		if tok.Token == "" && tok.TokenEnv == "" {
			return fmt.Errorf("admin token %q needs token or token_env", tok.Name)
		}
	}
	return nil
}

func validateProviders(list []ProviderConfig) error {
	kinds := make(map[string]bool)
	for _, k := range providers.Kinds() {
		kinds[k] = true
	}
	seen := make(map[string]bool, len(list))
	for _, p := range list {
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true
		if err := validateProvider(p, kinds); err != nil {
			return err
		}
	}
	return nil
}

func validateProvider(p ProviderConfig, kinds map[string]bool) error {
	if p.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	kind := strings.ToLower(p.Kind)
	if !kinds[kind] {
		return fmt.Errorf("provider %q: unknown kind %q", p.Name, p.Kind)
	}
	interval, err := parseDuration("providers."+p.Name+".polling_interval", p.PollingInterval, 0)
	if err != nil {
		return err
	}
	if interval > 0 && interval < time.Second {
		return fmt.Errorf("provider %q: polling_interval must be at least 1s", p.Name)
	}
	if kind == "static" && len(p.Models) == 0 {
		return fmt.Errorf("provider %q: static providers need models", p.Name)
	}
	if kind == "openai_compatible" && p.BaseURL == "" {
		return fmt.Errorf("provider %q: openai_compatible needs base_url", p.Name)
	}
	if p.OAuth2 != nil && (kind == "openai" || kind == "anthropic" || kind == "gemini" || kind == "bedrock" || kind == "ollama" || kind == "static" || kind == providers.KindCustom) {
		return fmt.Errorf("provider %q: oauth2 is only supported for openai-compatible kinds", p.Name)
	}
	if p.AWS != nil && kind != "bedrock" {
		return fmt.Errorf("provider %q: aws credentials are only supported for bedrock", p.Name)
	}
	return nil
}

// parseDuration parses raw, returning def when raw is empty.
func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must not be negative", field)
	}
	return d, nil
}

// durationOr parses a validated duration, falling back to def.
func durationOr(raw string, def time.Duration) time.Duration {
	d, err := parseDuration("", raw, def)
	if err != nil || d == 0 {
		return def
	}
	return d
}

// secret returns the value of env when set, otherwise value.
func secret(value, env string) string {
	if env != "" {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return value
}

// buildConfig resolves secrets and maps p onto the providers package.
func (p ProviderConfig) buildConfig() providers.BuildConfig {
	bc := providers.BuildConfig{
		Name:       p.Name,
		Kind:       p.Kind,
		BaseURL:    p.BaseURL,
		APIKey:     secret(p.APIKey, p.APIKeyEnv),
		Region:     p.Region,
		Models:     p.Models,
		ProbeModel: p.ProbeModel,
		ModelsPath: p.ModelsPath,
		HealthPath: p.HealthPath,
		Headers:    p.Headers,
	}
	if p.AWS != nil {
		bc.AWS = &providers.AWSCredentials{
			AccessKeyID:     secret(p.AWS.AccessKeyID, p.AWS.AccessKeyIDEnv),
			SecretAccessKey: secret(p.AWS.SecretAccessKey, p.AWS.SecretAccessKeyEnv),
			SessionToken:    p.AWS.SessionToken,
		}
	}
	if p.OAuth2 != nil {
		bc.OAuth2 = &providers.OAuth2Config{
			ClientID:     p.OAuth2.ClientID,
			ClientSecret: secret(p.OAuth2.ClientSecret, p.OAuth2.ClientSecretEnv),
			TokenURL:     p.OAuth2.TokenURL,
			Scopes:       p.OAuth2.Scopes,
		}
	}
	return bc
}

// optionalInt maps an unset value to 0 (the scheduler default) and an
// explicit 0 to none.
func optionalInt(v *int, none int) int {
	switch {
	case v == nil:
		return 0
	case *v == 0:
		return none
	}
	return *v
}

func optionalFloat(v *float64, none float64) float64 {
	switch {
	case v == nil:
		return 0
	case *v == 0:
		return none
	}
	return *v
}
