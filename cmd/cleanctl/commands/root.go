// Package commands implements the cleanctl CLI commands.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JonMunkholm/filecleaner/internal/artifact"
	"github.com/JonMunkholm/filecleaner/internal/config"
	"github.com/JonMunkholm/filecleaner/internal/core"
	"github.com/JonMunkholm/filecleaner/internal/fetch"
	"github.com/JonMunkholm/filecleaner/internal/logging"
	"github.com/JonMunkholm/filecleaner/internal/transform"
)

var rootCmd = &cobra.Command{
	Use:   "cleanctl",
	Short: "Operate the file cleaning service from the command line",
	Long: `cleanctl runs cleaning jobs and maintains the storage directory
without going through the HTTP API.

Examples:
  # Download and clean a remote file
  cleanctl process https://example.com/export.csv

  # Clean a local workbook and copy the result next to it
  cleanctl clean ./report.xlsb --out ./report_clean.xlsx

  # Delete files older than the retention window
  cleanctl sweep

  # Show what is in the storage directory, as YAML
  cleanctl usage -o yaml`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default ./.cleanctl.yaml or $HOME/.cleanctl.yaml)")
	flags.String("storage-dir", "", "storage directory (default <tmp>/"+config.DefaultStorageDirName+")")
	flags.Duration("retention", artifact.DefaultRetention, "how long cleaned files are kept")
	flags.StringP("output", "o", "json", "output format: json, yaml")
	flags.Bool("debug", false, "enable debug logging")
	flags.BoolP("quiet", "q", false, "only log errors")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("storage_dir", flags.Lookup("storage-dir"))
	_ = viper.BindPFlag("retention", flags.Lookup("retention"))
	_ = viper.BindPFlag("output", flags.Lookup("output"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".cleanctl")
		viper.SetConfigType("yaml")
	}

	// Environment variables: CLEANCTL_STORAGE_DIR, CLEANCTL_RETENTION, ...
	viper.SetEnvPrefix("CLEANCTL")
	viper.AutomaticEnv()

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setupLogging sends structured logs to stderr so stdout stays parseable.
func setupLogging() {
	level := "info"
	switch {
	case viper.GetBool("debug"):
		level = "debug"
	case viper.GetBool("quiet"):
		level = "error"
	}
	slog.SetDefault(logging.New(os.Stderr, level, "text"))
}

// openStore opens the configured storage directory.
func openStore() (*artifact.Store, error) {
	dir := viper.GetString("storage_dir")
	if dir == "" {
		dir = filepath.Join(os.TempDir(), config.DefaultStorageDirName)
	}
	retention := viper.GetDuration("retention")
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	return artifact.NewStore(dir, retention)
}

// serviceOptions holds the job settings shared by process and preview.
type serviceOptions struct {
	maxBytes int64
	timeout  time.Duration
	suffix   string
}

// newService builds a local service without metrics or job history.
func newService(opts serviceOptions) (*core.Service, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	return core.NewService(store, core.Options{
		Downloader: fetch.New(fetch.Config{MaxBytes: opts.maxBytes, Timeout: opts.timeout}, nil),
		Pipeline:   transform.Default(opts.suffix),
		Limiter:    core.NewJobLimiter(1, time.Second),
	}), nil
}
