// Package config loads vmprof configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/vmprof/internal/constants"
	"github.com/coral-mesh/vmprof/internal/safe"
)

// Loader finds, reads and writes the config file.
type Loader struct {
	path string
}

// NewLoader creates a loader. The file is located in this order:
//  1. VMPROF_CONFIG.
//  2. ~/.vmprof/config.yaml.
//  3. ./vmprof.yaml when there is no home directory.
func NewLoader() *Loader {
	if path := os.Getenv(constants.EnvConfig); path != "" {
		return &Loader{path: path}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return &Loader{path: filepath.Join(home, constants.DefaultDir, constants.ConfigFile)}
	}
	return &Loader{path: constants.FallbackConfigFile}
}

// NewLoaderAt creates a loader for an explicit file.
func NewLoaderAt(path string) *Loader {
	return &Loader{path: path}
}

// Path returns the config file path.
func (l *Loader) Path() string {
	return l.path
}

// Load reads the config file, falling back to defaults when it does not
// exist, then applies environment overrides and validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	data, err := safe.ReadFile(l.path, nil)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", l.path, err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", l.path, err)
	}
	return cfg, nil
}

// Save writes cfg to the config file, creating its directory.
func (l *Loader) Save(cfg *Config) error {
	//nolint:gosec // G301: Directory needs standard permissions for traversal.
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
