// Package config loads tandem runtime settings: defaults, then an optional
// TOML file, then environment overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Generator GeneratorConfig `toml:"generator"`
	Keys      KeysConfig      `toml:"keys"`
	Workflow  WorkflowConfig  `toml:"workflow"`
	Observer  ObserverConfig  `toml:"observer"`
}

type GeneratorConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
}

type KeysConfig struct {
	// APIKeys is a comma- or newline-separated key list. Usually supplied
	// via TANDEM_API_KEYS rather than the file.
	APIKeys string `toml:"api_keys"`
	// Strategy is round-robin, least-used, or weighted-random.
	Strategy string `toml:"strategy"`
	// CooldownSeconds is how long an erroring key stays disabled.
	CooldownSeconds int `toml:"cooldown_seconds"`

	RequestsPerMinute    int   `toml:"requests_per_minute"`
	RequestsPerHour      int   `toml:"requests_per_hour"`
	BytesPerMinute       int64 `toml:"bytes_per_minute"`
	MaxConcurrentUploads int   `toml:"max_concurrent_uploads"`
}

type WorkflowConfig struct {
	// DefaultTimeoutSeconds bounds steps without their own timeout.
	DefaultTimeoutSeconds int `toml:"default_timeout_seconds"`
	// MaxRetries is the default per-step retry budget.
	MaxRetries int `toml:"max_retries"`
	// SelfArgueCycles is the default refinement budget.
	SelfArgueCycles int `toml:"self_argue_cycles"`
	// MaxParallel caps parallel composer fan-out.
	MaxParallel int `toml:"max_parallel"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultTimeout returns the workflow default timeout as a duration.
func (w WorkflowConfig) DefaultTimeout() time.Duration {
	return time.Duration(w.DefaultTimeoutSeconds) * time.Second
}

// Cooldown returns the key cooldown as a duration.
func (k KeysConfig) Cooldown() time.Duration {
	return time.Duration(k.CooldownSeconds) * time.Second
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Generator: GeneratorConfig{Provider: "gemini", Model: "gemini-2.5-flash"},
		Keys: KeysConfig{
			Strategy:             "round-robin",
			CooldownSeconds:      60,
			RequestsPerMinute:    15,
			RequestsPerHour:      1000,
			BytesPerMinute:       100 << 20,
			MaxConcurrentUploads: 4,
		},
		Workflow: WorkflowConfig{
			DefaultTimeoutSeconds: 120,
			MaxRetries:            3,
			SelfArgueCycles:       5,
			MaxParallel:           4,
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "tandem.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("TANDEM_API_KEYS"); v != "" {
		cfg.Keys.APIKeys = v
	}
	if v := os.Getenv("TANDEM_MODEL"); v != "" {
		cfg.Generator.Model = v
	}
	if v := os.Getenv("TANDEM_KEY_STRATEGY"); v != "" {
		cfg.Keys.Strategy = v
	}
	if v := os.Getenv("TANDEM_REQUESTS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Keys.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("TANDEM_REQUESTS_PER_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Keys.RequestsPerHour = n
		}
	}
	if v := os.Getenv("TANDEM_BYTES_PER_MINUTE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Keys.BytesPerMinute = n
		}
	}
	if os.Getenv("TANDEM_OBSERVER_ENABLED") == "true" || os.Getenv("TANDEM_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
