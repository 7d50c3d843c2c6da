// Package config loads the optional YAML configuration used by the
// huffarc command line: codec and block-size defaults, exclude
// patterns, and the list of paths to password-protect.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration. All fields are optional;
// flags override anything set here.
type Config struct {
	// Codec is "binary" (default) or "utf-8".
	Codec string `yaml:"codec"`
	// BlockSize is the source read granularity in bytes.
	BlockSize int `yaml:"block_size"`
	// Excludes are doublestar patterns pruned from the input walk.
	Excludes []string `yaml:"excludes"`
	// Protect lists relative paths to encrypt; passwords are always
	// prompted interactively, never stored.
	Protect []string `yaml:"protect"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field values without touching the filesystem.
func (c *Config) Validate() error {
	switch c.Codec {
	case "", "binary", "utf-8":
	default:
		return fmt.Errorf("config.codec must be \"binary\" or \"utf-8\", got %q", c.Codec)
	}
	if c.BlockSize < 0 {
		return fmt.Errorf("config.block_size must be >= 0")
	}
	for _, p := range c.Excludes {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("config.excludes: bad pattern %q", p)
		}
	}
	return nil
}
