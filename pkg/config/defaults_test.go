package config

import (
	"testing"
)

func TestApplyDefaults_Empty(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected format text, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("Expected output stderr, got %q", cfg.Logging.Output)
	}
	if cfg.Scan.Port != DefaultPort {
		t.Errorf("Expected port %d, got %d", DefaultPort, cfg.Scan.Port)
	}
	if cfg.Scan.Timeout != DefaultTimeout {
		t.Errorf("Expected timeout %v, got %v", DefaultTimeout, cfg.Scan.Timeout)
	}
	if cfg.Output.Format != "text" {
		t.Errorf("Expected output format text, got %q", cfg.Output.Format)
	}
	if cfg.History.Type != "badger" {
		t.Errorf("Expected history type badger, got %q", cfg.History.Type)
	}
	if cfg.History.Memory == nil || cfg.History.Badger == nil {
		t.Error("Expected store sections to be initialized")
	}
	if _, ok := cfg.History.Badger["db_path"]; !ok {
		t.Error("Expected a default badger db_path")
	}
}

func TestApplyDefaults_LogLevelNormalization(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "debug"
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level DEBUG, got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Scan.Port = 12345
	cfg.Output.Format = "json"
	cfg.History.Type = "memory"
	ApplyDefaults(cfg)

	if cfg.Scan.Port != 12345 {
		t.Errorf("Explicit port was overwritten: %d", cfg.Scan.Port)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("Explicit output format was overwritten: %q", cfg.Output.Format)
	}
	if cfg.History.Type != "memory" {
		t.Errorf("Explicit history type was overwritten: %q", cfg.History.Type)
	}
	if _, ok := cfg.History.Badger["db_path"]; ok {
		t.Error("Memory history store must not get a badger db_path default")
	}
}

func TestApplyDefaults_TLSServerNameFollowsHost(t *testing.T) {
	cfg := &Config{}
	cfg.Scan.Host = "nbd.example.com"
	cfg.Scan.TLS.Enabled = true
	ApplyDefaults(cfg)

	if cfg.Scan.TLS.ServerName != "nbd.example.com" {
		t.Errorf("Expected server name to default to host, got %q", cfg.Scan.TLS.ServerName)
	}
}

func TestApplyDefaults_TLSServerNameNotSetWhenDisabled(t *testing.T) {
	cfg := &Config{}
	cfg.Scan.Host = "nbd.example.com"
	ApplyDefaults(cfg)

	if cfg.Scan.TLS.ServerName != "" {
		t.Errorf("Expected no server name when TLS is disabled, got %q", cfg.Scan.TLS.ServerName)
	}
}
