// Package config provides configuration management for the faultline daemon.
// Supports TOML configuration files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingValue  = errors.New("missing required configuration value")
)

// Config holds all faultline configuration
type Config struct {
	// Store configuration
	Store StoreConfig `toml:"store"`

	// Matrix sink configuration
	Matrix MatrixConfig `toml:"matrix"`

	// HTTP operator surface configuration
	HTTP HTTPConfig `toml:"http"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`
}

// StoreConfig holds incident store configuration
type StoreConfig struct {
	// DBPath is the path to the SQLite incident database
	DBPath string `toml:"db_path" env:"FAULTLINE_DB"`

	// MaxConns caps the shared connection pool (0 = driver default)
	MaxConns int `toml:"max_conns" env:"FAULTLINE_DB_MAX_CONNS"`
}

// MatrixConfig holds the notification sink configuration
type MatrixConfig struct {
	// HomeserverURL is the Matrix homeserver base URL
	HomeserverURL string `toml:"homeserver_url" env:"FAULTLINE_MATRIX_HOMESERVER"`

	// AccessToken authenticates the reporting user
	AccessToken string `toml:"access_token" env:"FAULTLINE_MATRIX_TOKEN"`

	// RoomID is the operator room incident notifications are posted to
	RoomID string `toml:"room_id" env:"FAULTLINE_MATRIX_ROOM"`

	// RequestsPerSecond paces outbound API calls (0 = unlimited)
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// HTTPConfig holds the operator HTTP surface configuration
type HTTPConfig struct {
	// ListenAddr is the address the HTTP server binds to
	ListenAddr string `toml:"listen_addr" env:"FAULTLINE_HTTP_ADDR"`

	// Enabled controls whether the HTTP surface is started
	Enabled bool `toml:"enabled" env:"FAULTLINE_HTTP_ENABLED"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level" env:"FAULTLINE_LOG_LEVEL"`
	Format string `toml:"format" env:"FAULTLINE_LOG_FORMAT"`
	Output string `toml:"output" env:"FAULTLINE_LOG_OUTPUT"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Store: StoreConfig{
			DBPath:   filepath.Join(homeDir, ".faultline", "incidents.db"),
			MaxConns: 4,
		},
		Matrix: MatrixConfig{
			HomeserverURL:     "",
			AccessToken:       "",
			RoomID:            "",
			RequestsPerSecond: 5,
		},
		HTTP: HTTPConfig{
			ListenAddr: "127.0.0.1:8710",
			Enabled:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// ConfigPaths returns the list of default configuration file paths to check
func ConfigPaths() []string {
	homeDir, _ := os.UserHomeDir()
	return []string{
		filepath.Join(homeDir, ".faultline", "config.toml"),
		filepath.Join("/etc", "faultline", "config.toml"),
		"./faultline.toml",
	}
}

// validateDirectoryWritable checks a directory exists or can be created
func validateDirectoryWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("cannot create directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}

	testFile := filepath.Join(dir, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("cannot write to directory: %w", err)
	}
	f.Close()
	os.Remove(testFile)

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Store.DBPath == "" {
		return fmt.Errorf("%w: store.db_path is required", ErrInvalidConfig)
	}

	storeDir := filepath.Dir(c.Store.DBPath)
	if err := validateDirectoryWritable(storeDir); err != nil {
		return fmt.Errorf("%w: store directory %s: %w", ErrInvalidConfig, storeDir, err)
	}

	if c.Store.MaxConns < 0 {
		return fmt.Errorf("%w: store.max_conns cannot be negative", ErrInvalidConfig)
	}

	// The Matrix sink is mandatory: faultline has nowhere to publish
	// notifications without it.
	if c.Matrix.HomeserverURL == "" {
		return fmt.Errorf("%w: matrix.homeserver_url is required", ErrInvalidConfig)
	}
	if c.Matrix.AccessToken == "" {
		return fmt.Errorf("%w: matrix.access_token is required", ErrInvalidConfig)
	}
	if c.Matrix.RoomID == "" {
		return fmt.Errorf("%w: matrix.room_id is required", ErrInvalidConfig)
	}
	if c.Matrix.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: matrix.requests_per_second cannot be negative", ErrInvalidConfig)
	}

	if c.HTTP.Enabled && c.HTTP.ListenAddr == "" {
		return fmt.Errorf("%w: http.listen_addr is required when http is enabled", ErrInvalidConfig)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("%w: logging.level must be one of: debug, info, warn, error", ErrInvalidConfig)
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: logging.format must be text or json", ErrInvalidConfig)
	}

	return nil
}
