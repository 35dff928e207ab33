package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/config"
	applog "github.com/vovakirdan/wirechat-client/internal/log"
)

var (
	version = "dev"

	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "wirechat",
	Short: "Room chat over a websocket relay",
	Long: `wirechat joins chat rooms on a relay and streams messages in the terminal.
It also ships a small relay for local development.`,
	Version:      version,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Disable completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error, off")
}

// loadConfig resolves configuration and builds the logger. Command-line
// overrides are applied on top of the loaded values.
func loadConfig(overrides config.Config) (config.Config, *zerolog.Logger, error) {
	bootstrap := applog.New(logLevel, os.Stderr)

	cfg, path, err := config.Load(bootstrap, configPath)
	if err != nil {
		return cfg, bootstrap, err
	}
	overrides.LogLevel = logLevel
	cfg.UpdateFrom(overrides)

	logger := applog.New(cfg.LogLevel, os.Stderr)
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}
