// Copyright (C) 2026 The avdforge authors
// License: AGPL-3.0-only

package avd

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional on-disk configuration. Every field falls back
// to the package defaults; env vars override both (see Detect).
type fileConfig struct {
	APILevel string `yaml:"api_level"`
	ABI      string `yaml:"abi"`
	Tag      string `yaml:"tag"`
}

// loadConfig reads $AVDFORGE_CONFIG or ~/.config/avdforge/config.yaml.
// A missing, unreadable or malformed file yields the package defaults.
func loadConfig(home string) fileConfig {
	cfg := fileConfig{
		APILevel: DefaultAPILevel,
		ABI:      DefaultABI,
		Tag:      DefaultTag,
	}

	path := os.Getenv("AVDFORGE_CONFIG")
	if path == "" {
		if home == "" {
			return cfg
		}
		path = filepath.Join(home, ".config", "avdforge", "config.yaml")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	var file fileConfig
	if err := yaml.Unmarshal(b, &file); err != nil {
		return cfg
	}
	if file.APILevel != "" {
		cfg.APILevel = file.APILevel
	}
	if file.ABI != "" {
		cfg.ABI = file.ABI
	}
	if file.Tag != "" {
		cfg.Tag = file.Tag
	}
	return cfg
}
