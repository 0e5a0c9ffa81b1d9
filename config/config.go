// Package config loads the application configuration from a YAML
// file. The path comes from the CONFIG_PATH environment variable,
// defaulting to /app/config/app.yaml.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when CONFIG_PATH is unset.
const DefaultPath = "/app/config/app.yaml"

// Config represents the application configuration.
type Config struct {
	Providers []ProviderConfig `yaml:"providers"`
	Desired   DesiredConfig    `yaml:"desired"`
	Sync      SyncConfig       `yaml:"sync"`
	Cleanup   CleanupConfig    `yaml:"cleanup"`
	Tracker   TrackerConfig    `yaml:"tracker"`
	HTTP      HTTPConfig       `yaml:"http"`
}

// ProviderConfig declares one provider instance. Credentials values
// may reference environment variables as ${VAR}; they are expanded at
// load time.
type ProviderConfig struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Type        string            `yaml:"type"`
	Zone        string            `yaml:"zone"`
	Credentials map[string]string `yaml:"credentials"`
	// CacheRefreshInterval bounds how stale the record cache may get
	// before a pass forces a refresh.
	CacheRefreshInterval string `yaml:"cache_refresh_interval"`
}

// DesiredConfig points at the desired-state file.
type DesiredConfig struct {
	File string `yaml:"file"`
}

// SyncConfig controls the reconciliation loop.
type SyncConfig struct {
	// PollInterval is how often a full pass runs regardless of
	// triggers. Empty or "0" disables polling.
	PollInterval string `yaml:"poll_interval"`
}

// CleanupConfig controls the orphan lifecycle.
type CleanupConfig struct {
	GracePeriod        string   `yaml:"grace_period"`
	SweepInterval      string   `yaml:"sweep_interval"`
	ProtectedHostnames []string `yaml:"protected_hostnames"`
}

// TrackerConfig selects the ownership ledger backend: memory, file, or
// configmap.
type TrackerConfig struct {
	Type      string                 `yaml:"type"`
	File      FileTrackerConfig      `yaml:"file"`
	ConfigMap ConfigMapTrackerConfig `yaml:"configmap"`
}

type FileTrackerConfig struct {
	Path string `yaml:"path"`
}

type ConfigMapTrackerConfig struct {
	Namespace string `yaml:"namespace"`
	Name      string `yaml:"name"`
	DataKey   string `yaml:"data_key"`
}

type HTTPConfig struct {
	Enabled bool       `yaml:"enabled"`
	Listen  string     `yaml:"listen"`
	Auth    AuthConfig `yaml:"auth"`
}

type AuthConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env"`
}

// Load reads the configuration from CONFIG_PATH (or the default path).
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	return LoadFromPath(path)
}

// LoadFromPath reads and validates the configuration from the given
// file.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Expand ${ENV_VAR} references in credential values.
	for i := range cfg.Providers {
		for k, v := range cfg.Providers[i].Credentials {
			cfg.Providers[i].Credentials[k] = os.ExpandEnv(v)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural requirements and required environment
// variables.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	seen := make(map[string]bool)
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider %d: missing required field 'id'", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("provider %d: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		if p.Type == "" {
			return fmt.Errorf("provider %q: missing required field 'type'", p.ID)
		}
		if p.Zone == "" {
			return fmt.Errorf("provider %q: missing required field 'zone'", p.ID)
		}
	}

	if c.Desired.File == "" {
		return fmt.Errorf("desired.file is required")
	}

	switch c.Tracker.Type {
	case "", "memory":
	case "file":
		if c.Tracker.File.Path == "" {
			return fmt.Errorf("tracker.file.path is required for file tracker")
		}
	case "configmap":
		if c.Tracker.ConfigMap.Name == "" {
			return fmt.Errorf("tracker.configmap.name is required for configmap tracker")
		}
	default:
		return fmt.Errorf("unknown tracker type %q", c.Tracker.Type)
	}

	if c.HTTP.Enabled && c.HTTP.Auth.Enabled {
		if c.HTTP.Auth.TokenEnv == "" {
			return fmt.Errorf("HTTP authentication is enabled but token_env is not configured")
		}
		if os.Getenv(c.HTTP.Auth.TokenEnv) == "" {
			return fmt.Errorf("HTTP authentication is enabled but environment variable %s is not set or empty", c.HTTP.Auth.TokenEnv)
		}
	}

	for _, d := range []struct {
		name  string
		value string
	}{
		{"sync.poll_interval", c.Sync.PollInterval},
		{"cleanup.grace_period", c.Cleanup.GracePeriod},
		{"cleanup.sweep_interval", c.Cleanup.SweepInterval},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	for _, p := range c.Providers {
		if p.CacheRefreshInterval == "" {
			continue
		}
		if _, err := time.ParseDuration(p.CacheRefreshInterval); err != nil {
			return fmt.Errorf("provider %q: cache_refresh_interval: %w", p.ID, err)
		}
	}

	return nil
}

// Duration parses a duration field, returning fallback when the field
// is empty. Validate has already rejected malformed values.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
