package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"gpusift/internal/extract"
	"gpusift/internal/opencv/sift"
)

// Config holds all gpusift settings.
type Config struct {
	Detection DetectionConfig `yaml:"detection"`
	Backend   BackendConfig   `yaml:"backend"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DetectionConfig carries the default extraction options.
type DetectionConfig struct {
	PeakThreshold        float64 `yaml:"peak_threshold"`
	EdgeThreshold        float64 `yaml:"edge_threshold"`
	TargetFeatureCount   int     `yaml:"target_features"`
	UseRootNormalization bool    `yaml:"use_root"`
	Downsampling         float64 `yaml:"downsampling"`
	MaxExtrema           int     `yaml:"max_extrema"`
}

type BackendConfig struct {
	OctaveLayers int     `yaml:"octave_layers"`
	Sigma        float64 `yaml:"sigma"`
	// MemoryBudgetMB bounds allocation probes; 0 uses available system memory.
	MemoryBudgetMB uint64 `yaml:"memory_budget_mb"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

func DefaultConfig() *Config {
	opts := extract.DefaultOptions()
	backend := sift.DefaultOptions()
	return &Config{
		Detection: DetectionConfig{
			PeakThreshold:        opts.PeakThreshold,
			EdgeThreshold:        opts.EdgeThreshold,
			TargetFeatureCount:   opts.TargetFeatureCount,
			UseRootNormalization: opts.UseRootNormalization,
			Downsampling:         opts.Downsampling,
			MaxExtrema:           opts.MaxExtrema,
		},
		Backend: BackendConfig{
			OctaveLayers: backend.OctaveLayers,
			Sigma:        backend.Sigma,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error when
// path is empty; environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv honours LOG_LEVEL, and DEBUG=1 when LOG_LEVEL is unset.
func (c *Config) applyEnv() {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	} else if os.Getenv("DEBUG") == "1" {
		c.Logging.Level = "debug"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Detection.PeakThreshold <= 0 {
		errs = append(errs, fmt.Errorf("detection.peak_threshold must be positive, got %v", c.Detection.PeakThreshold))
	}
	if c.Detection.EdgeThreshold <= 0 {
		errs = append(errs, fmt.Errorf("detection.edge_threshold must be positive, got %v", c.Detection.EdgeThreshold))
	}
	if c.Detection.TargetFeatureCount < 0 {
		errs = append(errs, fmt.Errorf("detection.target_features must not be negative, got %d", c.Detection.TargetFeatureCount))
	}
	if c.Backend.OctaveLayers < 0 {
		errs = append(errs, fmt.Errorf("backend.octave_layers must not be negative, got %d", c.Backend.OctaveLayers))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

func (c *Config) ExtractOptions() extract.Options {
	return extract.Options{
		PeakThreshold:        c.Detection.PeakThreshold,
		EdgeThreshold:        c.Detection.EdgeThreshold,
		TargetFeatureCount:   c.Detection.TargetFeatureCount,
		UseRootNormalization: c.Detection.UseRootNormalization,
		Downsampling:         c.Detection.Downsampling,
		MaxExtrema:           c.Detection.MaxExtrema,
	}
}

func (c *Config) BackendOptions() sift.Options {
	return sift.Options{
		OctaveLayers: c.Backend.OctaveLayers,
		Sigma:        c.Backend.Sigma,
		MemoryBudget: c.Backend.MemoryBudgetMB * 1024 * 1024,
	}
}

// Save writes c to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
