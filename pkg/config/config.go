// Package config provides configuration loading and management for emalign.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Alignment parameters
	Align struct {
		// Mip is the resolution level alignment runs at
		Mip int `yaml:"mip"`

		// TargetRadius is the number of previously aligned sections
		// each section is vector-voted against; must be odd
		TargetRadius int `yaml:"targetRadius"`

		// RenderMips is the number of additional mip levels rendered
		// from the aligned sections
		RenderMips int `yaml:"renderMips"`

		// MaxShift bounds the translation search of the built-in
		// alignment model, in pixels
		MaxShift int `yaml:"maxShift"`

		// Workers bounds concurrent tile processing; 0 uses all cores
		Workers int `yaml:"workers"`
	} `yaml:"align"`

	// Vector voting parameters
	Voting struct {
		// SoftminTemp is the softmin temperature weighting majority
		// subsets by their internal agreement
		SoftminTemp float64 `yaml:"softminTemp"`

		// BlurSigma is the Gaussian blur applied to candidates before
		// distance computation; 0 disables blurring
		BlurSigma float64 `yaml:"blurSigma"`

		// BlurKernel is the Gaussian kernel width in pixels
		BlurKernel int `yaml:"blurKernel"`
	} `yaml:"voting"`

	// Chunk grid parameters
	Chunk struct {
		// Rows is the number of tile rows the bounding region is
		// partitioned into
		Rows int `yaml:"rows"`

		// Overlap is the seam depth between adjacent tiles, in chunks
		Overlap int `yaml:"overlap"`

		// Pad is the fixed margin around every tile, sized for the
		// largest expected displacement
		Pad int `yaml:"pad"`

		// ChunkSize is the unit, in pixels, in which Overlap is expressed
		ChunkSize int `yaml:"chunkSize"`
	} `yaml:"chunk"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default alignment parameters
	cfg.Align.Mip = 0
	cfg.Align.TargetRadius = 3
	cfg.Align.RenderMips = 2
	cfg.Align.MaxShift = 8
	cfg.Align.Workers = runtime.NumCPU()

	// Set default voting parameters. These mirror the constants the
	// algorithm has historically run with; they are tunables, not
	// correctness requirements.
	cfg.Voting.SoftminTemp = 1.0
	cfg.Voting.BlurSigma = 1.0
	cfg.Voting.BlurKernel = 5

	// Set default chunk grid parameters
	cfg.Chunk.Rows = 1
	cfg.Chunk.Overlap = 0
	cfg.Chunk.Pad = 32
	cfg.Chunk.ChunkSize = 1024

	// Set default output parameters
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
