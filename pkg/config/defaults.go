package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Default values for anything the user leaves unspecified.
const (
	// DefaultPort is the IANA-assigned NBD port
	DefaultPort = 10809

	// DefaultTimeout bounds each blocking I/O operation
	DefaultTimeout = 10 * time.Second
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyScanDefaults(&cfg.Scan)
	applyOutputDefaults(&cfg.Output)
	applyHistoryDefaults(&cfg.History)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyScanDefaults sets probe defaults.
func applyScanDefaults(cfg *ScanConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TLS.Enabled && cfg.TLS.ServerName == "" {
		cfg.TLS.ServerName = cfg.Host
	}
}

// applyOutputDefaults sets rendering defaults.
func applyOutputDefaults(cfg *OutputConfig) {
	if cfg.Format == "" {
		cfg.Format = "text"
	}
}

// applyHistoryDefaults sets history store defaults.
func applyHistoryDefaults(cfg *HistoryConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}

	// Initialize maps if nil
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	// The badger store needs somewhere to live
	if cfg.Type == "badger" {
		if _, ok := cfg.Badger["db_path"]; !ok {
			cfg.Badger["db_path"] = filepath.Join(getConfigDir(), "history")
		}
	}
}
