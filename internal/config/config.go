// Package config loads braid's project configuration.
//
// Configuration merges three layers, later layers winning: built-in
// defaults, the project's .braid/config.yaml, and BRAID_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/braidhq/braid/internal/types"
)

// Config holds project-level settings
type Config struct {
	// IssuePrefix overrides the ID prefix derived from the database
	// filename (e.g. "proj" yields proj-1, proj-2, ...)
	IssuePrefix string `yaml:"issue_prefix,omitempty"`

	// Actor is the name recorded in audit events for CLI mutations.
	// Default: $USER, falling back to "braid".
	Actor string `yaml:"actor,omitempty"`

	// SortPolicy is the default ordering for ready work.
	// Options: "priority", "oldest", "hybrid". Default: "priority".
	SortPolicy string `yaml:"sort_policy,omitempty"`

	// AutoImport controls whether read commands re-import the journal
	// when it has changed on disk. Default: true.
	AutoImport bool `yaml:"auto_import"`

	// AutoExport controls whether write commands flush the cache to the
	// journal after every mutation. Default: true.
	AutoExport bool `yaml:"auto_export"`
}

// Default returns the built-in configuration
func Default() *Config {
	actor := os.Getenv("USER")
	if actor == "" {
		actor = "braid"
	}
	return &Config{
		Actor:      actor,
		SortPolicy: string(types.SortPolicyPriority),
		AutoImport: true,
		AutoExport: true,
	}
}

// Load reads configuration for a project rooted at dir. A missing config
// file is not an error; defaults and environment variables still apply.
func Load(dir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(dir, ".braid", "config.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		// Unmarshal over defaults; absent keys keep their default values.
		// AutoImport/AutoExport need explicit handling since YAML false
		// and YAML absent are indistinguishable after unmarshal.
		var raw struct {
			IssuePrefix string `yaml:"issue_prefix"`
			Actor       string `yaml:"actor"`
			SortPolicy  string `yaml:"sort_policy"`
			AutoImport  *bool  `yaml:"auto_import"`
			AutoExport  *bool  `yaml:"auto_export"`
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if raw.IssuePrefix != "" {
			cfg.IssuePrefix = raw.IssuePrefix
		}
		if raw.Actor != "" {
			cfg.Actor = raw.Actor
		}
		if raw.SortPolicy != "" {
			cfg.SortPolicy = raw.SortPolicy
		}
		if raw.AutoImport != nil {
			cfg.AutoImport = *raw.AutoImport
		}
		if raw.AutoExport != nil {
			cfg.AutoExport = *raw.AutoExport
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BRAID_ISSUE_PREFIX"); v != "" {
		cfg.IssuePrefix = v
	}
	if v := os.Getenv("BRAID_ACTOR"); v != "" {
		cfg.Actor = v
	}
	if v := os.Getenv("BRAID_SORT_POLICY"); v != "" {
		cfg.SortPolicy = v
	}
	if v := os.Getenv("BRAID_AUTO_IMPORT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoImport = b
		}
	}
	if v := os.Getenv("BRAID_AUTO_EXPORT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoExport = b
		}
	}
}

// Validate checks the configuration values
func (c *Config) Validate() error {
	if !types.SortPolicy(c.SortPolicy).IsValid() {
		return fmt.Errorf("invalid sort_policy %q (options: priority, oldest, hybrid)", c.SortPolicy)
	}
	if c.Actor == "" {
		return fmt.Errorf("actor cannot be empty")
	}
	return nil
}

// Save writes the configuration to the project's config file
func (c *Config) Save(dir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	path := filepath.Join(dir, ".braid", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
