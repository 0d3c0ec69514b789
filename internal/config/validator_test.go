package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/hugo-lorenzo-mato/investigator/internal/core"
)

// validConfig returns a valid configuration for testing.
func validConfig() *Config {
	return &Config{
		DataDir: "/tmp/investigator",
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Retention: RetentionConfig{MaxKeep: 20},
		Archive: ArchiveConfig{
			Compression: "bzip2",
			Levels:      2,
		},
		Panic: PanicConfig{Enabled: true, CrashOutput: true},
	}
}

func TestValidator_ValidConfig(t *testing.T) {
	if err := ValidateConfig(validConfig()); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidator_InvalidFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"max keep", func(c *Config) { c.Retention.MaxKeep = -1 }, "retention.max_keep"},
		{"compression", func(c *Config) { c.Archive.Compression = "zstd" }, "archive.compression"},
		{"levels low", func(c *Config) { c.Archive.Levels = 0 }, "archive.levels"},
		{"levels high", func(c *Config) { c.Archive.Levels = 9 }, "archive.levels"},
		{"locale", func(c *Config) { c.Locale = "fr" }, "locale"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			v := NewValidator()
			err := v.Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if core.GetCode(err) != core.CodeConfigInvalid {
				t.Errorf("code = %q", core.GetCode(err))
			}
			if len(v.Errors()) != 1 || v.Errors()[0].Field != tt.field {
				t.Errorf("errors = %v, want one on %s", v.Errors(), tt.field)
			}
		})
	}
}

func TestValidator_SupportedLocales(t *testing.T) {
	for _, locale := range []string{"", "en", "en-GB", "de", "de-AT"} {
		cfg := validConfig()
		cfg.Locale = locale
		if err := ValidateConfig(cfg); err != nil {
			t.Errorf("locale %q: %v", locale, err)
		}
	}
}

func TestValidator_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "loud"
	cfg.Archive.Compression = "rar"

	err := ValidateConfig(cfg)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors in chain, got %T", err)
	}
	if len(verrs) != 2 {
		t.Errorf("expected 2 errors, got %d", len(verrs))
	}
	if !strings.Contains(err.Error(), "log.level") || !strings.Contains(err.Error(), "archive.compression") {
		t.Errorf("message should list both fields: %v", err)
	}
}
