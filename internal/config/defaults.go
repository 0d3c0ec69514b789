package config

import (
	"os"
	"path/filepath"
)

// AppName names the data directory, the config directory and the env prefix.
const AppName = "investigator"

// DefaultConfigYAML contains the default configuration YAML content written
// by `investigator config init`.
const DefaultConfigYAML = `# Investigator configuration
#
# Values not specified here use the built-in defaults.

# Root of the run and failure directories. Empty means the user cache
# directory (e.g. ~/.cache/investigator).
data_dir: ""

# Locale of console messages (en, de). Empty means $LANG.
locale: ""

log:
  level: info       # debug, info, warn, error
  format: auto      # auto, text, json

retention:
  # Failed runs kept after each start. Runs with a panic record are always kept.
  max_keep: 20

archive:
  compression: bzip2  # bzip2, deflate
  # Entry names start this many directories above each archived run.
  levels: 2

panic:
  enabled: true
  # Route fatal runtime errors into the run directory.
  crash_output: true

diagnostics:
  # Append a machine description to sysinfo.txt at startup.
  sysinfo: false
`

// DefaultDataDir returns the data root used when data_dir is not set.
func DefaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, AppName)
	}
	return filepath.Join(os.TempDir(), AppName)
}
