package gatewaycore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ferro-labs/gateway-core/internal/scheduler"
)

func TestLoadConfig_JSON(t *testing.T) {
	data := `{
		"providers": [
			{"name": "openai", "kind": "openai", "api_key_env": "OPENAI_API_KEY", "priority": 1,
			 "polling_interval": "10m", "rate_limit": {"requests_per_minute": 500}},
			{"name": "local", "kind": "ollama", "base_url": "http://localhost:11434", "enabled": false}
		],
		"circuit_breaker": {"failure_threshold": 3, "timeout": "2m"},
		"notifications": [{"name": "log", "enabled": true, "events": ["catalog_changed"]}]
	}`
	path := writeTempFile(t, "config.json", data)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(cfg.Providers))
	}
	if cfg.Providers[0].RateLimit == nil || cfg.Providers[0].RateLimit.RequestsPerMinute != 500 {
		t.Errorf("rate limit not decoded: %+v", cfg.Providers[0].RateLimit)
	}
	if cfg.Providers[1].IsEnabled() {
		t.Error("expected local provider disabled")
	}
	if cfg.CircuitBreaker.Timeout != "2m" {
		t.Errorf("expected timeout 2m, got %q", cfg.CircuitBreaker.Timeout)
	}
	if err := ValidateConfig(*cfg); err != nil {
		t.Fatalf("loaded config does not validate: %v", err)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	data := `
providers:
  - name: fixed
    kind: static
    models: [m1, m2]
scheduler:
  default_interval: 5m
  jitter: 0.1
maintenance:
  lifecycle_cleanup: "@daily"
`
	for _, name := range []string{"config.yaml", "config.yml"} {
		path := writeTempFile(t, name, data)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if len(cfg.Providers[0].Models) != 2 {
			t.Errorf("%s: expected 2 models, got %v", name, cfg.Providers[0].Models)
		}
		if j := cfg.Scheduler.Jitter; j == nil || *j != 0.1 {
			t.Errorf("%s: expected jitter 0.1, got %v", name, j)
		}
		if err := ValidateConfig(*cfg); err != nil {
			t.Errorf("%s: validate: %v", name, err)
		}
	}
}

func TestLoadConfig_SchemaRejectsUnknownKeys(t *testing.T) {
	path := writeTempFile(t, "config.yaml", "providers: []\nstrategy: {mode: fallback}\n")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "schema") {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig("/tmp/does-not-exist-config-12345.json"); err == nil {
		t.Error("expected error for non-existent file")
	}
	if _, err := LoadConfig(writeTempFile(t, "bad.json", `{invalid`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := LoadConfig(writeTempFile(t, "config.toml", "key = value")); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestValidateConfig(t *testing.T) {
	static := ProviderConfig{Name: "s", Kind: "static", Models: []string{"m"}}
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "valid", cfg: Config{Providers: []ProviderConfig{static}}},
		{name: "no providers", cfg: Config{}},
		{
			name:    "duplicate names",
			cfg:     Config{Providers: []ProviderConfig{static, static}},
			wantErr: "duplicate provider",
		},
		{
			name:    "unknown kind",
			cfg:     Config{Providers: []ProviderConfig{{Name: "x", Kind: "carrier-pigeon"}}},
			wantErr: "unknown kind",
		},
		{
			name:    "static without models",
			cfg:     Config{Providers: []ProviderConfig{{Name: "x", Kind: "static"}}},
			wantErr: "need models",
		},
		{
			name:    "compatible without base url",
			cfg:     Config{Providers: []ProviderConfig{{Name: "x", Kind: "openai_compatible"}}},
			wantErr: "base_url",
		},
		{
			name:    "interval too short",
			cfg:     Config{Providers: []ProviderConfig{{Name: "x", Kind: "ollama", PollingInterval: "500ms"}}},
			wantErr: "at least 1s",
		},
		{
			name:    "oauth2 on openai",
			cfg:     Config{Providers: []ProviderConfig{{Name: "x", Kind: "openai", OAuth2: &OAuth2Config{ClientID: "id", TokenURL: "https://auth"}}}},
			wantErr: "oauth2",
		},
		{
			name:    "aws on ollama",
			cfg:     Config{Providers: []ProviderConfig{{Name: "x", Kind: "ollama", AWS: &AWSConfig{AccessKeyID: "a"}}}},
			wantErr: "aws",
		},
		{
			name:    "bad duration",
			cfg:     Config{Providers: []ProviderConfig{static}, CircuitBreaker: CircuitBreakerConfig{Timeout: "soon"}},
			wantErr: "schema",
		},
		{
			name:    "safety buffer out of range",
			cfg:     Config{Providers: []ProviderConfig{static}, RateLimit: RateLimitConfig{SafetyBuffer: 1.5}},
			wantErr: "schema",
		},
		{
			name:    "backoff bounds inverted",
			cfg:     Config{Providers: []ProviderConfig{static}, RateLimit: RateLimitConfig{MinBackoff: "10m", MaxBackoff: "1m"}},
			wantErr: "exceeds max_backoff",
		},
		{
			name:    "bad cron",
			cfg:     Config{Providers: []ProviderConfig{static}, Maintenance: MaintenanceConfig{LifecycleCleanup: "every tuesday"}},
			wantErr: "lifecycle_cleanup",
		},
		{
			name:    "duplicate sink",
			cfg:     Config{Providers: []ProviderConfig{static}, Notifications: []NotificationConfig{{Name: "log"}, {Name: "log"}}},
			wantErr: "configured twice",
		},
		{
			name:    "unknown event type",
			cfg:     Config{Providers: []ProviderConfig{static}, Notifications: []NotificationConfig{{Name: "log", Events: []string{"moon_landing"}}}},
			wantErr: "schema",
		},
		{
			name:    "admin token without secret",
			cfg:     Config{Providers: []ProviderConfig{static}, Admin: AdminConfig{Tokens: []AdminToken{{Name: "ops", Scope: "admin"}}}},
			wantErr: "needs token",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBuildConfig_ResolvesSecretsFromEnv(t *testing.T) {
	t.Setenv("TEST_GATEWAY_KEY", "from-env")
	t.Setenv("TEST_GATEWAY_SECRET", "oauth-secret")
	pc := ProviderConfig{
		Name:      "corp",
		Kind:      "openai_compatible",
		BaseURL:   "https://llm.internal",
		APIKey:    "literal",
		APIKeyEnv: "TEST_GATEWAY_KEY",
		OAuth2:    &OAuth2Config{ClientID: "id", ClientSecretEnv: "TEST_GATEWAY_SECRET", TokenURL: "https://auth/token"},
	}
	bc := pc.buildConfig()
	if bc.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want env value", bc.APIKey)
	}
	if bc.OAuth2 == nil || bc.OAuth2.ClientSecret != "oauth-secret" {
		t.Errorf("OAuth2 = %+v", bc.OAuth2)
	}

	pc.APIKeyEnv = "TEST_GATEWAY_UNSET"
	if got := pc.buildConfig().APIKey; got != "literal" {
		t.Errorf("APIKey fallback = %q, want literal", got)
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestLoadConfig_ExplicitZeroRetriesAndJitter(t *testing.T) {
	path := writeTempFile(t, "zero.yaml", `
providers:
  - name: fixed
    kind: static
    models: [m1]
scheduler:
  max_retries: 0
  jitter: 0
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := optionalInt(cfg.Scheduler.MaxRetries, scheduler.NoRetries); got != scheduler.NoRetries {
		t.Errorf("max_retries: 0 maps to %d, want NoRetries", got)
	}
	if got := optionalFloat(cfg.Scheduler.Jitter, scheduler.NoJitter); got != scheduler.NoJitter {
		t.Errorf("jitter: 0 maps to %v, want NoJitter", got)
	}

	var unset Config
	if optionalInt(unset.Scheduler.MaxRetries, scheduler.NoRetries) != 0 || optionalFloat(unset.Scheduler.Jitter, scheduler.NoJitter) != 0 {
		t.Error("unset scheduler options must select the defaults")
	}
	three := 3
	if optionalInt(&three, scheduler.NoRetries) != 3 {
		t.Error("explicit max_retries not passed through")
	}
}
