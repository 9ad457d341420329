// Package config loads slowdigest settings from a YAML file.
package config

import (
	"os"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLimit    = 20
	DefaultFormat   = "table"
	DefaultTimezone = "+00:00"
)

// Config mirrors the command line flags. Empty or zero fields keep defaults.
type Config struct {
	Files       []string `yaml:"files"`
	Limit       int      `yaml:"limit"`
	Format      string   `yaml:"format"`
	Output      string   `yaml:"output"`
	Timezone    string   `yaml:"timezone"`
	Concurrency int      `yaml:"concurrency"`
}

func Default() *Config {
	return &Config{
		Limit:       DefaultLimit,
		Format:      DefaultFormat,
		Timezone:    DefaultTimezone,
		Concurrency: 1,
	}
}

// LoadConfig reads filePath on top of Default.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, xerrors.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, xerrors.Errorf("failed to unmarshal config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Limit < 0 {
		return xerrors.Errorf("limit must not be negative: %d", c.Limit)
	}
	if c.Concurrency < 1 {
		return xerrors.Errorf("concurrency must be at least 1: %d", c.Concurrency)
	}
	return nil
}
