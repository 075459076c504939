package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validateTags(cfg); err != nil {
		return err
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateTags runs only the declarative struct-tag rules. Load uses it
// because cross-field rules can still be satisfied by overrides the caller
// applies after loading (a CLI flag enabling TLS, for example).
func validateTags(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// TLS options only make sense on a TLS-wrapped probe
	if !cfg.Scan.TLS.Enabled {
		if cfg.Scan.TLS.ServerName != "" {
			return fmt.Errorf("scan.tls: server_name is set but tls is not enabled")
		}
		if cfg.Scan.TLS.InsecureSkipVerify {
			return fmt.Errorf("scan.tls: insecure_skip_verify is set but tls is not enabled")
		}
	}

	// A persistent history store needs a location
	if cfg.History.Enabled && cfg.History.Type == "badger" {
		path, _ := cfg.History.Badger["db_path"].(string)
		inMemory, _ := cfg.History.Badger["in_memory"].(bool)
		if path == "" && !inMemory {
			return fmt.Errorf("history.badger: db_path is required when history is enabled")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
