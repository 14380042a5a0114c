package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Placeholder values shipped in the default config file. A credential equal
// to one of these counts as unconfigured.
var placeholderValues = []string{
	"set-api-key-here",
	"set-client-id-here",
	"set-client-secret-here",
	"your-api-key-here",
	"api-key",
	"key",
	"placeholder",
}

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Music     MusicConfig     `toml:"music"`
	Providers ProvidersConfig `toml:"providers"`
	Logging   LoggingConfig   `toml:"logging"`
}

// DatabaseConfig contains persistent store configuration
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// MusicConfig contains playlist and file handling configuration
type MusicConfig struct {
	SupportedFormats []string `toml:"supported_formats"`
	WatchForChanges  bool     `toml:"watch_for_changes"`
}

// ProvidersConfig contains credentials for the external metadata services.
// Each provider self-reports unconfigured when its credentials are empty or
// still set to a placeholder; no credential ever lives in process-global
// environment state.
type ProvidersConfig struct {
	AcoustIDKey         string `toml:"acoustid_key"`
	FpcalcPath          string `toml:"fpcalc_path"`
	LastFMKey           string `toml:"lastfm_key"`
	SpotifyClientID     string `toml:"spotify_client_id"`
	SpotifyClientSecret string `toml:"spotify_client_secret"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "./playing.db",
		},
		Music: MusicConfig{
			SupportedFormats: []string{".mp3", ".wav", ".aac", ".ogg", ".flac"},
			WatchForChanges:  true,
		},
		Providers: ProvidersConfig{
			AcoustIDKey:         "set-api-key-here",
			FpcalcPath:          "fpcalc",
			LastFMKey:           "set-api-key-here",
			SpotifyClientID:     "set-client-id-here",
			SpotifyClientSecret: "set-client-secret-here",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, create it with defaults
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		return cfg, nil
	}

	// Load from file
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# SMF Player Configuration
# Provider credentials are optional; leave the placeholders in place to run
# without the corresponding lookup service.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if len(c.Music.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// IsFormatSupported checks if an audio format is supported
func (c *Config) IsFormatSupported(format string) bool {
	for _, supported := range c.Music.SupportedFormats {
		if strings.EqualFold(supported, format) {
			return true
		}
	}
	return false
}

// CredentialConfigured reports whether a credential is usable: non-blank and
// not one of the placeholder values from the default config file.
func CredentialConfigured(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return false
	}
	for _, placeholder := range placeholderValues {
		if strings.EqualFold(v, placeholder) {
			return false
		}
	}
	return true
}
