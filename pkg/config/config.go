package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete nbdscan configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority, applied by the caller after Load)
//  2. Environment variables (NBDSCAN_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// The history store follows the selectable-store pattern: the Type field
// selects the implementation and only the matching type-specific section
// (history.memory, history.badger) is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Scan selects the probe target and tunes the connection
	Scan ScanConfig `mapstructure:"scan"`

	// Output controls how the report is rendered
	Output OutputConfig `mapstructure:"output"`

	// History configures the optional scan-history store
	History HistoryConfig `mapstructure:"history"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ScanConfig selects the target server and shapes the probe.
type ScanConfig struct {
	// Host is the server to probe. May be left empty here and supplied
	// on the command line.
	Host string `mapstructure:"host"`

	// Port is the NBD port
	Port int `mapstructure:"port" validate:"required,gte=1,lte=65535"`

	// Timeout bounds each blocking I/O operation on the connection
	Timeout time.Duration `mapstructure:"timeout" validate:"required,gt=0"`

	// Exports lists the export names to attach to, in order. Empty means
	// probe the implicit default export. An empty string entry explicitly
	// names the default export.
	Exports []string `mapstructure:"exports"`

	// TLS configures connection wrapping
	TLS TLSConfig `mapstructure:"tls"`
}

// TLSConfig controls TLS wrapping of the probe connection.
type TLSConfig struct {
	// Enabled wraps the connection in TLS before the handshake
	Enabled bool `mapstructure:"enabled"`

	// ServerName overrides the SNI/verification name; defaults to the host
	ServerName string `mapstructure:"server_name"`

	// InsecureSkipVerify disables certificate verification
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	// Format specifies the report format
	// Valid values: text, json, yaml
	Format string `mapstructure:"format" validate:"required,oneof=text json yaml"`
}

// HistoryConfig configures the scan-history store.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type HistoryConfig struct {
	// Enabled turns history recording on
	Enabled bool `mapstructure:"enabled"`

	// Type specifies which history store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded configuration with defaults applied and tag rules
//     checked; callers run Validate once their own overrides are in place
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Only the declarative tag rules run here. Cross-field rules are
	// checked by Validate after the caller has applied its overrides,
	// since a flag may still satisfy them.
	if err := validateTags(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Set up environment variable support
	// Environment variables use NBDSCAN_ prefix and underscores
	// Example: NBDSCAN_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("NBDSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/nbdscan/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml") // Primary format
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		// Check if error is "config file not found"
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		// An explicitly given path that does not exist is also acceptable
		if configPath != "" && os.IsNotExist(err) {
			return nil
		}
		// Other errors are problems
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "nbdscan")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "nbdscan")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
