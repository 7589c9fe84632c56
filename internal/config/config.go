// Package config loads tool configuration with the usual precedence:
// built-in defaults, then a .scribal.yaml file, then SCRIBAL_* environment
// variables. Command-line flags are applied last by the CLI itself.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	env "github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file searched in the working directory.
const DefaultFile = ".scribal.yaml"

// Config carries every tunable the tools accept.
type Config struct {
	// SafetyBudget caps states visited by the safety search.
	SafetyBudget int `yaml:"safety_budget" env:"SCRIBAL_SAFETY_BUDGET"`
	// ExecBudget caps reduction steps in rendezvous traces.
	ExecBudget int `yaml:"exec_budget" env:"SCRIBAL_EXEC_BUDGET"`
	// SimBudget caps ticks in distributed simulation runs.
	SimBudget int `yaml:"sim_budget" env:"SCRIBAL_SIM_BUDGET"`
	// InlineDepth bounds recursive sub-protocol inlining.
	InlineDepth int `yaml:"inline_depth" env:"SCRIBAL_INLINE_DEPTH"`
	// Schedule picks the simulator scheduling strategy.
	Schedule string `yaml:"schedule" env:"SCRIBAL_SCHEDULE"`
	// Seed fixes the random scheduler.
	Seed int64 `yaml:"seed" env:"SCRIBAL_SEED"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level" env:"SCRIBAL_LOG_LEVEL"`
	// Color is auto, always or never.
	Color string `yaml:"color" env:"SCRIBAL_COLOR"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		SafetyBudget: 100000,
		ExecBudget:   10000,
		SimBudget:    10000,
		InlineDepth:  8,
		Schedule:     "round-robin",
		Seed:         1,
		LogLevel:     "info",
		Color:        "auto",
	}
}

// Load resolves the configuration. path selects an explicit file; the
// empty path tries DefaultFile and silently accepts its absence.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// No file is fine when none was asked for.
	default:
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("config environment: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.SafetyBudget <= 0 || c.ExecBudget <= 0 || c.SimBudget <= 0 {
		return fmt.Errorf("config: budgets must be positive")
	}
	if c.InlineDepth < 0 {
		return fmt.Errorf("config: inline_depth must not be negative")
	}
	switch c.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("config: color must be auto, always or never, not %q", c.Color)
	}
	return nil
}
