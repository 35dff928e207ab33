package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/app"
	"github.com/vovakirdan/wirechat-client/internal/config"
)

var relayFlags struct {
	addr string
	db   string
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a development relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig(config.Config{
			Relay: config.Relay{Addr: relayFlags.addr, DatabasePath: relayFlags.db},
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.New(cfg.Relay, logger)
		if err != nil {
			return err
		}

		logger.Info().Str("addr", cfg.Relay.Addr).Msg("starting wirechat relay")
		if err := application.Run(ctx); err != nil {
			return err
		}
		logger.Info().Msg("relay stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().StringVar(&relayFlags.addr, "addr", "", "HTTP listen address")
	relayCmd.Flags().StringVar(&relayFlags.db, "db", "", "sqlite database path")
}

