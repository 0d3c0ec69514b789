package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hugo-lorenzo-mato/investigator/internal/core"
	"github.com/hugo-lorenzo-mato/investigator/internal/i18n"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration. The returned error is a
// CONFIG_INVALID domain error wrapping ValidationErrors.
func (v *Validator) Validate(cfg *Config) error {
	v.validateDataDir(cfg.DataDir)
	v.validateLocale(cfg.Locale)
	v.validateLog(&cfg.Log)
	v.validateRetention(&cfg.Retention)
	v.validateArchive(&cfg.Archive)

	if len(v.errors) > 0 {
		return core.ErrValidation(core.CodeConfigInvalid, "invalid configuration").WithCause(v.errors)
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateDataDir(dir string) {
	if dir == "" {
		v.addError("data_dir", dir, "directory required")
		return
	}
	if !isValidPath(dir) {
		v.addError("data_dir", dir, "invalid directory path")
	}
}

func (v *Validator) validateLocale(locale string) {
	if locale == "" {
		return
	}
	if i18n.Match(locale) == i18n.Supported[0] && !strings.HasPrefix(strings.ToLower(locale), "en") {
		v.addError("locale", locale, "no translation available")
	}
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}

	if cfg.File != "" && !isValidPath(cfg.File) {
		v.addError("log.file", cfg.File, "invalid file path")
	}
}

func (v *Validator) validateRetention(cfg *RetentionConfig) {
	if cfg.MaxKeep < 0 {
		v.addError("retention.max_keep", cfg.MaxKeep, "must be non-negative")
	}
}

func (v *Validator) validateArchive(cfg *ArchiveConfig) {
	validCompressions := map[string]bool{
		"bzip2": true, "deflate": true,
	}
	if !validCompressions[cfg.Compression] {
		v.addError("archive.compression", cfg.Compression, "must be one of: bzip2, deflate")
	}

	if cfg.Levels < 1 || cfg.Levels > 8 {
		v.addError("archive.levels", cfg.Levels, "must be between 1 and 8")
	}
}

func isValidPath(path string) bool {
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
