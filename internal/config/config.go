// Package config loads the bridge configuration from a YAML file and
// environment-independent defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full bridge configuration.
type Config struct {
	Analyzer Analyzer `yaml:"analyzer"`
	Timeouts Timeouts `yaml:"timeouts"`
	Log      Log      `yaml:"log"`
}

// Analyzer configures the analyzer process.
type Analyzer struct {
	// Command is the analyzer executable.
	Command string `yaml:"command"`

	// Args are extra arguments for the analyzer.
	Args []string `yaml:"args"`

	// Workspace is the project root the analyzer operates on.
	Workspace string `yaml:"workspace"`

	// ShutdownGrace bounds how long shutdown waits before killing the
	// process.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	// MaxDecodeErrors is the number of consecutive malformed messages
	// tolerated before the session is declared broken.
	MaxDecodeErrors int `yaml:"max_decode_errors"`
}

// Timeouts configures per-class response deadlines.
type Timeouts struct {
	// Navigation covers point queries such as definitions and references.
	Navigation time.Duration `yaml:"navigation"`

	// Refactor covers commands that compute workspace edits.
	Refactor time.Duration `yaml:"refactor"`

	// Project covers whole-project work such as cargo runs.
	Project time.Duration `yaml:"project"`
}

// Log configures logging.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Analyzer: Analyzer{
			Command:         "rust-analyzer",
			ShutdownGrace:   5 * time.Second,
			MaxDecodeErrors: 5,
		},
		Timeouts: Timeouts{
			Navigation: 15 * time.Second,
			Refactor:   30 * time.Second,
			Project:    2 * time.Minute,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
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
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Analyzer.Command == "" {
		return fmt.Errorf("analyzer.command must not be empty")
	}
	if c.Analyzer.MaxDecodeErrors < 1 {
		return fmt.Errorf("analyzer.max_decode_errors must be at least 1")
	}
	for name, d := range map[string]time.Duration{
		"timeouts.navigation": c.Timeouts.Navigation,
		"timeouts.refactor":   c.Timeouts.Refactor,
		"timeouts.project":    c.Timeouts.Project,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}
