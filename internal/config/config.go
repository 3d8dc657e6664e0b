package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Source   SourceConfig   `yaml:"source"`
	Sync     SyncConfig     `yaml:"sync"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains settings for the operational status endpoint.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SourceConfig contains reporting service settings.
// Credentials are env-only and never read from YAML.
type SourceConfig struct {
	Endpoint    string   `yaml:"endpoint"`
	ReportPath  string   `yaml:"report_path"`
	Username    string   `yaml:"-"` // env-only, never in YAML
	Password    string   `yaml:"-"` // env-only, never in YAML
	Timeout     Duration `yaml:"timeout"`
	MaxAttempts int      `yaml:"max_attempts"`
}

// SyncConfig contains sync loop settings.
type SyncConfig struct {
	JobName      string   `yaml:"job_name"`
	PollInterval Duration `yaml:"poll_interval"`
}

// ArchiveConfig contains optional S3-compatible extract archive settings.
// Archiving is disabled when Bucket is empty.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"-"` // env-only, never in YAML
	SecretKey string `yaml:"-"` // env-only, never in YAML
	Region    string `yaml:"region"`
	UseSSL    *bool  `yaml:"use_ssl"`
}

// LogConfig contains logging settings. When Directory is set, log output
// goes to a file under it instead of stdout.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Directory string `yaml:"directory"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("INVOICESYNC_CONFIG_PATH", "config/invoicesync.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/invoicesync.db",
		},
		Source: SourceConfig{
			ReportPath:  "/Custom/Integrations/AR Invoice Print.xdo",
			Timeout:     Duration(5 * time.Minute),
			MaxAttempts: 3,
		},
		Sync: SyncConfig{
			JobName:      "Invoice",
			PollInterval: Duration(2 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("INVOICESYNC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("INVOICESYNC_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Database
	if v := os.Getenv("INVOICESYNC_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Source
	if v := os.Getenv("INVOICESYNC_SOURCE_ENDPOINT"); v != "" {
		cfg.Source.Endpoint = v
	}
	if v := os.Getenv("INVOICESYNC_SOURCE_REPORT_PATH"); v != "" {
		cfg.Source.ReportPath = v
	}
	if v := os.Getenv("INVOICESYNC_SOURCE_USERNAME"); v != "" {
		cfg.Source.Username = v
	}
	if v := os.Getenv("INVOICESYNC_SOURCE_PASSWORD"); v != "" {
		cfg.Source.Password = v
	}
	if v := os.Getenv("INVOICESYNC_SOURCE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Source.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("INVOICESYNC_SOURCE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Source.MaxAttempts = n
		}
	}

	// Sync
	if v := os.Getenv("INVOICESYNC_JOB_NAME"); v != "" {
		cfg.Sync.JobName = v
	}
	if v := os.Getenv("INVOICESYNC_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.PollInterval = Duration(d)
		}
	}

	// Archive
	if v := os.Getenv("INVOICESYNC_ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("INVOICESYNC_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("INVOICESYNC_ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("INVOICESYNC_ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
	if v := os.Getenv("INVOICESYNC_ARCHIVE_REGION"); v != "" {
		cfg.Archive.Region = v
	}

	// Log
	if v := os.Getenv("INVOICESYNC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("INVOICESYNC_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("INVOICESYNC_LOG_DIR"); v != "" {
		cfg.Log.Directory = v
	}
}

// validate checks that required configuration values are set.
// In dev mode (INVOICESYNC_DEV_MODE=true), source validation is skipped.
func (c *Config) validate() error {
	if os.Getenv("INVOICESYNC_DEV_MODE") == "true" {
		return nil
	}

	if c.Source.Endpoint == "" {
		return errors.New("source endpoint is required (INVOICESYNC_SOURCE_ENDPOINT)")
	}
	if c.Source.Username == "" {
		return errors.New("INVOICESYNC_SOURCE_USERNAME is required")
	}
	if c.Source.Password == "" {
		return errors.New("INVOICESYNC_SOURCE_PASSWORD is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
