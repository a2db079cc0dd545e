// Package config loads run configuration for pyabcctl.
// It supports loading from YAML files with defaults applied first.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RunConfig contains all settings for a single inference run.
type RunConfig struct {
	// Problem names a registered inference problem.
	Problem string `yaml:"problem"`

	// RunID pins the run identifier. Leave empty to generate one; set it
	// together with a persistent store to resume an earlier run.
	RunID string `yaml:"run_id,omitempty"`

	// Population is the number of accepted particles per generation.
	Population int `yaml:"population"`

	// Generations caps how many generations the run may produce.
	Generations int `yaml:"generations"`

	// MinEpsilon stops the run once the acceptance threshold falls to or
	// below this value. 0 lets the run use all generations.
	MinEpsilon float64 `yaml:"min_epsilon"`

	// Simulations is the per-generation schedule of model simulations per
	// proposed particle; the last entry repeats when the run has more
	// generations than entries.
	Simulations []int `yaml:"simulations,flow"`

	// MaxAttempts caps the simulation attempts spent on a single particle.
	MaxAttempts int `yaml:"max_attempts"`

	// Seed makes the run reproducible. 0 derives a seed from the clock.
	Seed uint64 `yaml:"seed,omitempty"`

	// ContinueOnSingleModel keeps a model-selection run going after all
	// posterior mass has collected on one model.
	ContinueOnSingleModel bool `yaml:"continue_on_single_model"`

	// RecordRejected stores rejected particles alongside accepted ones.
	RecordRejected bool `yaml:"record_rejected"`

	// Store selects the persistence backend. Only "memory" exists today.
	Store string `yaml:"store,omitempty"`

	// Sampler configures the sampling backend.
	Sampler SamplerConfig `yaml:"sampler"`

	// Logging configures run logging.
	Logging LoggingConfig `yaml:"logging"`
}

// SamplerConfig configures the particle sampling backend.
type SamplerConfig struct {
	// Kind selects the backend: "singlecore" or "multicore".
	Kind string `yaml:"kind"`

	// Workers sizes the multicore worker pool. 0 uses all CPUs.
	Workers int `yaml:"workers,omitempty"`

	// MaxEvaluations bounds model evaluations per generation. 0 means unbounded.
	MaxEvaluations int `yaml:"max_evaluations,omitempty"`

	// ShowProgress prints live acceptance counts when stderr is a terminal.
	ShowProgress bool `yaml:"show_progress"`
}

// LoggingConfig configures run logging.
type LoggingConfig struct {
	// Level sets log verbosity: "debug", "info", "warn" or "error".
	Level string `yaml:"level"`
}

// Default returns a RunConfig with sensible defaults.
func Default() *RunConfig {
	return &RunConfig{
		Problem:     "gaussian-mean",
		Population:  100,
		Generations: 10,
		MinEpsilon:  0,
		Simulations: []int{1},
		MaxAttempts: 500,
		Sampler: SamplerConfig{
			Kind: "multicore",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *RunConfig) Validate() error {
	if c.Problem == "" {
		return fmt.Errorf("problem must be set")
	}

	if c.Population <= 0 {
		return fmt.Errorf("population must be positive, got %d", c.Population)
	}

	if c.Generations <= 0 {
		return fmt.Errorf("generations must be positive, got %d", c.Generations)
	}

	if c.MinEpsilon < 0 {
		return fmt.Errorf("min_epsilon must be non-negative, got %f", c.MinEpsilon)
	}

	if len(c.Simulations) == 0 {
		return fmt.Errorf("simulations must have at least one entry")
	}
	for i, s := range c.Simulations {
		if s <= 0 {
			return fmt.Errorf("simulations must be positive, entry %d is %d", i, s)
		}
	}

	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive, got %d", c.MaxAttempts)
	}

	validStores := map[string]bool{"": true, "memory": true}
	if !validStores[c.Store] {
		return fmt.Errorf("invalid store backend: %s (valid: memory, or empty for default)", c.Store)
	}

	validSamplers := map[string]bool{"": true, "singlecore": true, "multicore": true}
	if !validSamplers[c.Sampler.Kind] {
		return fmt.Errorf("invalid sampler kind: %s (valid: singlecore, multicore, or empty for default)", c.Sampler.Kind)
	}

	if c.Sampler.Workers < 0 {
		return fmt.Errorf("sampler workers must be non-negative, got %d", c.Sampler.Workers)
	}

	if c.Sampler.MaxEvaluations < 0 {
		return fmt.Errorf("sampler max_evaluations must be non-negative, got %d", c.Sampler.MaxEvaluations)
	}

	validLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error, or empty for default)", c.Logging.Level)
	}

	return nil
}
