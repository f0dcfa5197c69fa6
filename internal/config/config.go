// Package config loads the server configuration from an optional YAML file
// with environment-variable overrides. Durations are written as Go duration
// strings ("30s", "15m").
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultGitlabTimeout   = 30 * time.Second
	defaultRefreshInterval = 15 * time.Minute
)

// Config is the full server configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`

	Gitlab GitlabConfig `yaml:"gitlab"`
	Auth   AuthConfig   `yaml:"auth"`
}

// GitlabConfig points at the identity provider.
type GitlabConfig struct {
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Timeout      string `yaml:"timeout"`
}

// TimeoutDuration parses the provider call timeout, falling back to the
// default on absence or garbage.
func (g GitlabConfig) TimeoutDuration() time.Duration {
	return parseDuration(g.Timeout, defaultGitlabTimeout)
}

// AuthConfig holds local policy knobs.
type AuthConfig struct {
	MinPasswordLength int    `yaml:"min_password_length"`
	RefreshInterval   string `yaml:"refresh_interval"`
}

// RefreshIntervalDuration parses the background refresh cadence.
func (a AuthConfig) RefreshIntervalDuration() time.Duration {
	return parseDuration(a.RefreshInterval, defaultRefreshInterval)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		DBPath:     "mlhub.db",
		Gitlab: GitlabConfig{
			BaseURL: "http://localhost:10080",
		},
		Auth: AuthConfig{
			MinPasswordLength: 6,
		},
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MLHUB_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("MLHUB_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("MLHUB_GITLAB_URL"); v != "" {
		c.Gitlab.BaseURL = v
	}
	if v := os.Getenv("MLHUB_GITLAB_CLIENT_ID"); v != "" {
		c.Gitlab.ClientID = v
	}
	if v := os.Getenv("MLHUB_GITLAB_CLIENT_SECRET"); v != "" {
		c.Gitlab.ClientSecret = v
	}
}
