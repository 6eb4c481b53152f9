package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BootstrapConfig holds the daemon's static bootstrap settings persisted
// in ~/.relayd/relayd.yaml (SPEC_FULL.md "Configuration"). Unlike the
// Registry/mapping/Settings documents (spec.md §6), this file is
// hand-edited and read once at startup.
type BootstrapConfig struct {
	SocketPath         string `yaml:"socket_path,omitempty"`
	HealthInterval     string `yaml:"health_interval,omitempty"` // e.g. "60s"
	AutoCleanupOrphans bool   `yaml:"auto_cleanup_orphans,omitempty"`
	TerminalApp        string `yaml:"terminal_app,omitempty"` // "Terminal" | "iTerm2"
	LogLevel           string `yaml:"log_level,omitempty"`
	LogFile            string `yaml:"log_file,omitempty"`

	// HealthIntervalSeconds is a deprecated integer form, folded into
	// HealthInterval on load for backwards compatibility.
	HealthIntervalSeconds int `yaml:"health_interval_seconds,omitempty"`
}

// HealthIntervalDuration parses HealthInterval, defaulting to 60s if unset
// or unparseable.
func (c *BootstrapConfig) HealthIntervalDuration() time.Duration {
	if c.HealthInterval == "" {
		return 60 * time.Second
	}
	d, err := time.ParseDuration(c.HealthInterval)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// LoadBootstrapConfig reads relayd.yaml from dir. A missing file returns
// zero-value defaults, not an error.
func LoadBootstrapConfig(dir string) (*BootstrapConfig, error) {
	cfg := &BootstrapConfig{}
	path := filepath.Join(dir, "relayd.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read bootstrap: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse bootstrap: %w", err)
	}
	// Migrate legacy health_interval_seconds -> health_interval
	if cfg.HealthIntervalSeconds > 0 && cfg.HealthInterval == "" {
		cfg.HealthInterval = fmt.Sprintf("%ds", cfg.HealthIntervalSeconds)
	}
	return cfg, nil
}

// SaveBootstrapConfig writes relayd.yaml to dir.
func SaveBootstrapConfig(dir string, cfg *BootstrapConfig) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir bootstrap dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal bootstrap: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "relayd.yaml"), data, 0o644)
}
