// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/ploke/internal/plokeerr"
)

const (
	defaultConfigDir  = ".ploke"
	defaultConfigFile = "project.yaml"
	configVersion     = "1"
)

// Config is the .ploke/project.yaml project configuration: the crate
// root to index, the active embedding provider, and indexing excludes.
// Adapted from the teacher's CIE/EdgeCache hub-and-spoke fields (dropped:
// ploke has no remote hub mode in spec scope) down to the single-node
// shape this engine actually needs.
type Config struct {
	Version   string          `yaml:"version"`
	ProjectID string          `yaml:"project_id"`
	CrateRoot string          `yaml:"crate_root"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Indexing  IndexingConfig  `yaml:"indexing"`
}

// EmbeddingConfig selects and configures one of embedrt's providers.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // mock, local, openai, huggingface, openrouter
	Model      string `yaml:"model"`
	APIKeyEnv  string `yaml:"api_key_env,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty"`
	ModelPath  string `yaml:"model_path,omitempty"` // local provider only
}

// IndexingConfig contains indexing settings.
type IndexingConfig struct {
	Exclude []string `yaml:"exclude"`
	Workers int      `yaml:"workers,omitempty"`
}

// DefaultConfig returns sensible defaults for local development: a mock
// embedder (no network/model dependency) so `ploke index` works out of
// the box, matching the teacher's "works with Ollama out of the box"
// intent but without assuming a running model server.
func DefaultConfig(projectID, crateRoot string) *Config {
	return &Config{
		Version:   configVersion,
		ProjectID: projectID,
		CrateRoot: crateRoot,
		Embedding: EmbeddingConfig{
			Provider:   "mock",
			Dimensions: 384,
		},
		Indexing: IndexingConfig{
			Exclude: []string{".git/**", "target/**", "node_modules/**"},
			Workers: 0, // 0 means the I/O kernel's default pool size (4), see ioengine.Config
		},
	}
}

// LoadConfig loads configuration from configPath, or discovers
// .ploke/project.yaml by walking up from the working directory.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("PLOKE_CONFIG_PATH")
	}
	if configPath == "" {
		var err error
		configPath, err = findConfigFile()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: path comes from user config or discovery
	if err != nil {
		return nil, plokeerr.NewConfigError(
			"Cannot read configuration file",
			fmt.Sprintf("Failed to read %s", configPath),
			"Check file permissions and ensure the file exists",
			err,
		)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, plokeerr.NewConfigError(
			"Invalid configuration format",
			"YAML parsing failed - the config file contains syntax errors",
			fmt.Sprintf("Edit %s to fix syntax errors, or run 'ploke init --force' to recreate", configPath),
			err,
		)
	}
	if cfg.Version != configVersion {
		return nil, plokeerr.NewConfigError(
			"Unsupported configuration version",
			fmt.Sprintf("Config version '%s' is not supported (expected '%s')", cfg.Version, configVersion),
			"Run 'ploke init --force' to regenerate the configuration file",
			nil,
		)
	}
	cfg.applyEnvOverrides()
	return &cfg, nil
}

// SaveConfig writes cfg to configPath as YAML, creating the parent
// directory if needed.
func SaveConfig(cfg *Config, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return plokeerr.NewInternalError(
			"Cannot encode configuration",
			"YAML marshaling failed unexpectedly",
			"This is a bug. Please report it with your configuration details",
			err,
		)
	}
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return plokeerr.NewPermissionError(
			"Cannot create configuration directory",
			fmt.Sprintf("Permission denied creating %s", dir),
			"Check directory permissions or run with appropriate privileges",
			err,
		)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return plokeerr.NewPermissionError(
			"Cannot write configuration file",
			fmt.Sprintf("Permission denied writing to %s", configPath),
			"Check file permissions and ensure sufficient disk space",
			err,
		)
	}
	return nil
}

// ConfigPath returns <dir>/.ploke/project.yaml.
func ConfigPath(dir string) string {
	return filepath.Join(dir, defaultConfigDir, defaultConfigFile)
}

// ConfigDir returns <dir>/.ploke.
func ConfigDir(dir string) string {
	return filepath.Join(dir, defaultConfigDir)
}

func findConfigFile() (string, error) {
	if configPath := os.Getenv("PLOKE_CONFIG_PATH"); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		return "", plokeerr.NewConfigError(
			"Configuration file not found",
			fmt.Sprintf("PLOKE_CONFIG_PATH is set to '%s' but the file does not exist", configPath),
			"Fix the PLOKE_CONFIG_PATH environment variable or run 'ploke init'",
			nil,
		)
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", plokeerr.NewInternalError(
			"Cannot access working directory",
			"Failed to determine current directory path",
			"Check system permissions and try again",
			err,
		)
	}
	for {
		configPath := ConfigPath(dir)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", plokeerr.NewConfigError(
		"Configuration not found",
		"No .ploke/project.yaml file found in current directory or any parent directory",
		"Run 'ploke init' to create a new configuration",
		nil,
	)
}

func (c *Config) applyEnvOverrides() {
	if id := os.Getenv("PLOKE_PROJECT_ID"); id != "" {
		c.ProjectID = id
	}
	if provider := os.Getenv("PLOKE_EMBED_PROVIDER"); provider != "" {
		c.Embedding.Provider = provider
	}
	if model := os.Getenv("PLOKE_EMBED_MODEL"); model != "" {
		c.Embedding.Model = model
	}
}

// DataDir returns the directory CozoDB data for this project lives in,
// mirroring the teacher's ~/.cie/data/<project_id>/ layout.
func DataDir(projectID string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", plokeerr.NewInternalError(
			"Cannot determine home directory",
			"os.UserHomeDir failed",
			"Set the HOME environment variable",
			err,
		)
	}
	return filepath.Join(home, ".ploke", "data", projectID), nil
}
