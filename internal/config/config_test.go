package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Generator.Model != "gemini-2.5-flash" {
		t.Errorf("model = %q, want gemini-2.5-flash", cfg.Generator.Model)
	}
	if cfg.Keys.Strategy != "round-robin" {
		t.Errorf("strategy = %q, want round-robin", cfg.Keys.Strategy)
	}
	if cfg.Keys.RequestsPerMinute != 15 {
		t.Errorf("requests per minute = %d, want 15", cfg.Keys.RequestsPerMinute)
	}
	if cfg.Keys.Cooldown() != 60*time.Second {
		t.Errorf("cooldown = %v, want 60s", cfg.Keys.Cooldown())
	}
	if cfg.Workflow.DefaultTimeout() != 120*time.Second {
		t.Errorf("default timeout = %v, want 120s", cfg.Workflow.DefaultTimeout())
	}
	if cfg.Observer.Enabled {
		t.Error("observer should default to disabled")
	}
}

func TestLoadTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tandem.toml")
	content := `
[generator]
model = "gemini-2.5-pro"

[keys]
strategy = "least-used"
requests_per_minute = 30

[workflow]
max_retries = 1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.Generator.Model != "gemini-2.5-pro" {
		t.Errorf("model = %q, want gemini-2.5-pro", cfg.Generator.Model)
	}
	if cfg.Keys.Strategy != "least-used" {
		t.Errorf("strategy = %q, want least-used", cfg.Keys.Strategy)
	}
	if cfg.Keys.RequestsPerMinute != 30 {
		t.Errorf("requests per minute = %d, want 30", cfg.Keys.RequestsPerMinute)
	}
	if cfg.Workflow.MaxRetries != 1 {
		t.Errorf("max retries = %d, want 1", cfg.Workflow.MaxRetries)
	}
	// Unset fields keep their defaults.
	if cfg.Keys.RequestsPerHour != 1000 {
		t.Errorf("requests per hour = %d, want default 1000", cfg.Keys.RequestsPerHour)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tandem.toml")
	if err := os.WriteFile(path, []byte("[generator]\nmodel = \"from-file\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TANDEM_MODEL", "from-env")
	t.Setenv("TANDEM_API_KEYS", "k1,k2")
	t.Setenv("TANDEM_REQUESTS_PER_MINUTE", "99")
	t.Setenv("TANDEM_OBSERVER_ENABLED", "true")

	cfg := Load(path)
	if cfg.Generator.Model != "from-env" {
		t.Errorf("model = %q, env should win over the file", cfg.Generator.Model)
	}
	if cfg.Keys.APIKeys != "k1,k2" {
		t.Errorf("api keys = %q, want k1,k2", cfg.Keys.APIKeys)
	}
	if cfg.Keys.RequestsPerMinute != 99 {
		t.Errorf("requests per minute = %d, want 99", cfg.Keys.RequestsPerMinute)
	}
	if !cfg.Observer.Enabled {
		t.Error("observer should be enabled via env")
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if cfg.Generator.Model != "gemini-2.5-flash" {
		t.Errorf("model = %q, want the default", cfg.Generator.Model)
	}
}
