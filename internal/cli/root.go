package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/LeJamon/goVaultd/internal/config"
)

var (
	// Global flags
	configFile string
	debugLog   bool
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vaultd",
	Short: "vaultd - fund-of-funds redemption vault",
	Long: `vaultd runs a fund-of-funds vault: share redemptions through a standard
or emergency channel, an approval queue for large requests, day-bucketed
liability accounting and a tiered asset pool liquidated cash first.`,
	Version:       "0.1.0-dev",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path (defaults to ./vaultd.toml when present)")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
}

// loadConfig resolves the --conf flag. Without it, vaultd.toml in the
// working directory is used if present, otherwise defaults and VAULTD_*
// environment variables only.
func loadConfig() (*config.Config, error) {
	paths := config.ConfigPaths{Main: configFile}
	if paths.Main == "" {
		def := config.DefaultConfigPaths()
		if _, err := os.Stat(def.Main); err == nil {
			paths = def
		}
	}
	cfg, err := config.LoadConfig(paths)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the [log] section. --debug and
// --quiet override the configured level.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, err
	}
	switch {
	case debugLog:
		level = zapcore.DebugLevel
	case quiet:
		level = zapcore.WarnLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// setup loads config and logger for a subcommand.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}
