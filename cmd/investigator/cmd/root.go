package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/investigator/internal/config"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	dataDir   string
	locale    string
	quiet     bool

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string

	// appConfig is loaded by the persistent pre-run of every command.
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "investigator",
	Short: "Collect, report and prune the leftovers of crashed runs",
	Long: `investigator keeps one run directory per process under the data directory.
Directories left behind by processes that crashed or were killed are moved
to the failed runs directory at the next start, from where they can be
archived into a bug report, moved to the trash or pruned.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initConfig()
	},
}

// Execute runs the root command and prints a returned error.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// GetVersion returns the application version string.
func GetVersion() string {
	return appVersion
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: .investigator/config.yaml or ~/.config/investigator/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "",
		"data directory holding run and failed run directories")
	rootCmd.PersistentFlags().StringVar(&locale, "locale", "",
		"locale of console messages (default: $LANG)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"only log errors")

	// Bind flags to viper (errors are nil when flag exists)
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("locale", rootCmd.PersistentFlags().Lookup("locale"))
}

func initConfig() error {
	cfg, err := config.NewLoaderWithViper(viper.GetViper()).WithConfigFile(cfgFile).Load()
	if err != nil {
		return err
	}
	if quiet {
		cfg.Log.Level = "error"
	}
	appConfig = cfg
	return nil
}
