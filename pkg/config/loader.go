package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Load loads configuration from a file path. An empty path searches the
// default locations; if no file is found the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		for _, p := range ConfigPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	// Store overrides
	if v := os.Getenv("FAULTLINE_DB"); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv("FAULTLINE_DB_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.MaxConns = n
		}
	}

	// Matrix overrides
	if v := os.Getenv("FAULTLINE_MATRIX_HOMESERVER"); v != "" {
		cfg.Matrix.HomeserverURL = v
	}
	if v := os.Getenv("FAULTLINE_MATRIX_TOKEN"); v != "" {
		cfg.Matrix.AccessToken = v
	}
	if v := os.Getenv("FAULTLINE_MATRIX_ROOM"); v != "" {
		cfg.Matrix.RoomID = v
	}

	// HTTP overrides
	if v := os.Getenv("FAULTLINE_HTTP_ADDR"); v != "" {
		cfg.HTTP.ListenAddr = v
	}
	if v := os.Getenv("FAULTLINE_HTTP_ENABLED"); v != "" {
		cfg.HTTP.Enabled = v == "true" || v == "1"
	}

	// Logging overrides
	if v := os.Getenv("FAULTLINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FAULTLINE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("FAULTLINE_LOG_OUTPUT"); v != "" {
		cfg.Logging.Output = v
	}
}

// Save saves the configuration to a file
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Forward slashes keep TOML happy on Windows paths
	cfgCopy := *cfg
	cfgCopy.Store.DBPath = filepath.ToSlash(cfg.Store.DBPath)

	data, err := toml.Marshal(&cfgCopy)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
