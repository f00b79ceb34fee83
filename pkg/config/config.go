// Package config provides configuration loading and management for
// phantom4d. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Synthesis parameters consumed by the phase synthesizer.
	Synthesis struct {
		// NumPhases is the number of output phases to generate.
		NumPhases int `yaml:"numPhases"`

		// Parallelism is the number of phases synthesized
		// concurrently; 0 selects all available CPU cores.
		Parallelism int `yaml:"parallelism"`

		// FillMode selects the intensity background policy:
		// "source-minimum" or "explicit".
		FillMode string `yaml:"fillMode"`

		// FillValue is the background intensity when FillMode is
		// "explicit".
		FillValue float64 `yaml:"fillValue"`

		// OrganPriority orders organ ids for label conflict
		// resolution; earlier entries win contested voxels.
		OrganPriority []int `yaml:"organPriority"`

		// SmoothingWindow is the trailing moving-average window over
		// displacement fields; 1 disables temporal smoothing.
		SmoothingWindow int `yaml:"smoothingWindow"`
	} `yaml:"synthesis"`

	// Output parameters.
	Output struct {
		// Directory receives the synthesized series and metadata.
		Directory string `yaml:"directory"`

		// SaveFields persists the ground-truth displacement fields
		// with the series.
		SaveFields bool `yaml:"saveFields"`

		// Verbose controls the level of logging output.
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Synthesis.NumPhases = 10
	cfg.Synthesis.Parallelism = runtime.NumCPU()
	cfg.Synthesis.FillMode = "source-minimum"
	cfg.Synthesis.SmoothingWindow = 4

	cfg.Output.Directory = "phantom_series"
	cfg.Output.SaveFields = false
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file. If the file doesn't
// exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the
// specified path.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
