package config

// Config holds all application configuration.
type Config struct {
	DataDir     string            `mapstructure:"data_dir"`
	Locale      string            `mapstructure:"locale"`
	Log         LogConfig         `mapstructure:"log"`
	Retention   RetentionConfig   `mapstructure:"retention"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Panic       PanicConfig       `mapstructure:"panic"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// RetentionConfig bounds the number of failed runs kept on disk.
type RetentionConfig struct {
	// MaxKeep is the number of failed runs without a panic record kept after
	// each startup triage.
	MaxKeep int `mapstructure:"max_keep"`
}

// ArchiveConfig configures report archives.
type ArchiveConfig struct {
	Compression string `mapstructure:"compression"`
	Levels      int    `mapstructure:"levels"`
}

// PanicConfig configures the panic recorder.
type PanicConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	CrashOutput bool `mapstructure:"crash_output"`
}

// DiagnosticsConfig configures the optional evidence written at startup.
type DiagnosticsConfig struct {
	Sysinfo bool `mapstructure:"sysinfo"`
}
