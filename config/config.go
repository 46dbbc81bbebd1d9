package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/xyproto/env/v2"
)

// Config represents the assembler configuration
type Config struct {
	// Output settings
	Output struct {
		FormatVersion uint16 `toml:"format_version"`
		Extension     string `toml:"extension"`
	} `toml:"output"`

	// Listing settings
	Listing struct {
		Tokens      bool `toml:"tokens"`
		Dump        bool `toml:"dump"`
		ColorOutput bool `toml:"color_output"`
	} `toml:"listing"`

	// API server settings
	API struct {
		Port         int  `toml:"port"`
		EnableWebSox bool `toml:"enable_websockets"`
	} `toml:"api"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Output.FormatVersion = 0
	cfg.Output.Extension = ".sb"

	cfg.Listing.Tokens = false
	cfg.Listing.Dump = false
	cfg.Listing.ColorOutput = true

	cfg.API.Port = 8080
	cfg.API.EnableWebSox = true

	return cfg
}

// GetConfigPath returns the platform-specific config file path
func GetConfigPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		// Windows: %APPDATA%\smas\config.toml
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "smas")

	case "darwin", "linux":
		// macOS/Linux: ~/.config/smas/config.toml
		homeDir, err := os.UserHomeDir()
		if err != nil {
			// Fallback to current directory
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "smas")

	default:
		// Unknown platform: use current directory
		return "config.toml"
	}

	// Ensure directory exists
	if err := os.MkdirAll(configDir, 0750); err != nil {
		// If we can't create the directory, fall back to current directory
		return "config.toml"
	}

	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the default config file
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom loads configuration from the specified file. Environment
// variables (SMAS_*) override file values.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	// If file doesn't exist, return default config with env overrides
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.applyEnv()
		return cfg, nil
	}

	// Read and parse config file
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays SMAS_* environment variables on the configuration.
func (c *Config) applyEnv() {
	c.Output.Extension = env.Str("SMAS_OUTPUT_EXTENSION", c.Output.Extension)
	if v := env.Int("SMAS_FORMAT_VERSION", int(c.Output.FormatVersion)); v >= 0 {
		c.Output.FormatVersion = uint16(v)
	}
	c.Listing.Tokens = env.Bool("SMAS_LIST_TOKENS") || c.Listing.Tokens
	c.Listing.Dump = env.Bool("SMAS_DUMP") || c.Listing.Dump
	c.API.Port = env.Int("SMAS_API_PORT", c.API.Port)
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo saves configuration to the specified file
func (c *Config) SaveTo(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Create file
	f, err := os.Create(path) // #nosec G304 -- user config file path
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close config file: %w", closeErr)
		}
	}()

	// Encode to TOML
	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
