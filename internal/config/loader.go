package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Load reads and merges configuration from global and project paths.
// Precedence, lowest to highest: defaults, global file, project file,
// WAVEGATE_* environment variables. Missing files are not errors;
// malformed JSON is.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.wavegate/config.json. Project: .wavegate/config.json.
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".wavegate", "config.json")
	projectPath := filepath.Join(".wavegate", "config.json")

	return Load(globalPath, projectPath)
}

// Validate clamps concurrency into the sane 1..16 range and rejects
// thresholds outside 0..100.
func (c *Config) Validate() error {
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = 1
	}
	if c.MaxConcurrency > 16 {
		c.MaxConcurrency = 16
	}
	if c.GlobalConcurrency < 0 {
		c.GlobalConcurrency = 0
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 100 {
		return fmt.Errorf("quality_threshold %d out of range 0..100", c.QualityThreshold)
	}
	return nil
}

// mergeConfigFile reads a JSON config file and merges it into base.
// Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays WAVEGATE_* environment variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("WAVEGATE_MAX_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WAVEGATE_MAX_CONCURRENCY: %w", err)
		}
		cfg.MaxConcurrency = n
	}
	if v := os.Getenv("WAVEGATE_QUALITY_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WAVEGATE_QUALITY_THRESHOLD: %w", err)
		}
		cfg.QualityThreshold = n
	}
	if v := os.Getenv("WAVEGATE_HISTORY_DB"); v != "" {
		cfg.HistoryDB = v
	}
	return nil
}
