package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func withSourceCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("INVOICESYNC_SOURCE_ENDPOINT", "https://reports.example.com")
	t.Setenv("INVOICESYNC_SOURCE_USERNAME", "svc_user")
	t.Setenv("INVOICESYNC_SOURCE_PASSWORD", "secret")
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "invoicesync.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	withSourceCredentials(t)
	t.Setenv("INVOICESYNC_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.Path != "data/invoicesync.db" {
		t.Errorf("unexpected default db path %q", cfg.Database.Path)
	}
	if cfg.Sync.JobName != "Invoice" {
		t.Errorf("unexpected default job name %q", cfg.Sync.JobName)
	}
	if time.Duration(cfg.Sync.PollInterval) != 2*time.Hour {
		t.Errorf("expected 2h poll interval, got %v", time.Duration(cfg.Sync.PollInterval))
	}
	if cfg.Source.MaxAttempts != 3 {
		t.Errorf("expected 3 fetch attempts, got %d", cfg.Source.MaxAttempts)
	}
	if cfg.Log.Format != "json" || cfg.Log.Level != "info" {
		t.Errorf("unexpected default log config %+v", cfg.Log)
	}
}

func TestLoadFromFile_OverridesDefaults(t *testing.T) {
	withSourceCredentials(t)

	path := writeConfigFile(t, `
server:
  port: 9090
sync:
  job_name: InvoiceStaging
  poll_interval: 30m
source:
  timeout: 1m
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Sync.JobName != "InvoiceStaging" {
		t.Errorf("expected job name from file, got %q", cfg.Sync.JobName)
	}
	if time.Duration(cfg.Sync.PollInterval) != 30*time.Minute {
		t.Errorf("expected 30m interval, got %v", time.Duration(cfg.Sync.PollInterval))
	}
	if time.Duration(cfg.Source.Timeout) != time.Minute {
		t.Errorf("expected 1m timeout, got %v", time.Duration(cfg.Source.Timeout))
	}
	// Untouched sections keep their defaults.
	if cfg.Database.Path != "data/invoicesync.db" {
		t.Errorf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadFromFile_EnvOverridesFile(t *testing.T) {
	withSourceCredentials(t)
	t.Setenv("INVOICESYNC_PORT", "7070")
	t.Setenv("INVOICESYNC_POLL_INTERVAL", "15m")

	path := writeConfigFile(t, `
server:
  port: 9090
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("expected env port to win, got %d", cfg.Server.Port)
	}
	if time.Duration(cfg.Sync.PollInterval) != 15*time.Minute {
		t.Errorf("expected env interval to win, got %v", time.Duration(cfg.Sync.PollInterval))
	}
}

func TestLoadFromFile_CredentialsNeverFromYAML(t *testing.T) {
	withSourceCredentials(t)

	path := writeConfigFile(t, `
source:
  username: yaml_user
  password: yaml_secret
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Source.Username != "svc_user" {
		t.Errorf("expected env username, got %q", cfg.Source.Username)
	}
	if cfg.Source.Password != "secret" {
		t.Errorf("expected env password, got %q", cfg.Source.Password)
	}
}

func TestLoad_MissingCredentialsRejected(t *testing.T) {
	t.Setenv("INVOICESYNC_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("INVOICESYNC_SOURCE_ENDPOINT", "https://reports.example.com")
	t.Setenv("INVOICESYNC_SOURCE_USERNAME", "")
	t.Setenv("INVOICESYNC_SOURCE_PASSWORD", "")
	t.Setenv("INVOICESYNC_DEV_MODE", "")

	if _, err := Load(); err == nil {
		t.Error("expected validation error without credentials")
	}
}

func TestLoad_DevModeSkipsSourceValidation(t *testing.T) {
	t.Setenv("INVOICESYNC_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("INVOICESYNC_SOURCE_ENDPOINT", "")
	t.Setenv("INVOICESYNC_SOURCE_USERNAME", "")
	t.Setenv("INVOICESYNC_SOURCE_PASSWORD", "")
	t.Setenv("INVOICESYNC_DEV_MODE", "true")

	if _, err := Load(); err != nil {
		t.Errorf("expected dev mode to skip source validation, got %v", err)
	}
}

func TestLoadFromFile_InvalidDuration(t *testing.T) {
	withSourceCredentials(t)

	path := writeConfigFile(t, `
sync:
  poll_interval: banana
`)

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("expected parse error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	withSourceCredentials(t)

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for explicit missing file")
	}
}
