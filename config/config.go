// Package config loads the proxy configuration from an optional YAML file
// over compiled-in defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration of the proxy.
type Config struct {
	// ListenPort is the local port game clients connect to.
	ListenPort int `yaml:"listen_port"`
	// SessionPort is the local port the hijack endpoint binds; the
	// patched launcher posts its join request here.
	SessionPort int `yaml:"session_port"`

	UpstreamHost string `yaml:"upstream_host"`
	UpstreamPort int    `yaml:"upstream_port"`

	// SessionHost is the real session service the recomputed join is
	// posted to.
	SessionHost string `yaml:"session_host"`

	// SavedDir receives one .mcs trace per session.
	SavedDir string `yaml:"saved_dir"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		ListenPort:   25565,
		SessionPort:  8080,
		UpstreamHost: "2b2t.org",
		UpstreamPort: 25565,
		SessionHost:  "sessionserver.mojang.com",
		SavedDir:     "saved",
		LogLevel:     "info",
	}
}

// Load reads path over the defaults. An empty path returns the defaults
// unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.ListenPort <= 0 || cfg.SessionPort <= 0 || cfg.UpstreamPort <= 0 {
		return nil, fmt.Errorf("config: ports must be positive")
	}
	if cfg.UpstreamHost == "" {
		return nil, fmt.Errorf("config: upstream_host must be set")
	}
	return cfg, nil
}

// UpstreamAddr returns the dialable upstream address.
func (c *Config) UpstreamAddr() string {
	return fmt.Sprintf("%s:%d", c.UpstreamHost, c.UpstreamPort)
}
