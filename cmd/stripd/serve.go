package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/stripd/internal/app"
)

var flagResetCache bool

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Discover strips and serve them over HomeKit (default)",
		RunE:  runServe,
	}
	addServeFlags(cmd)
	return cmd
}

// addServeFlags registers serve flags; the root command serves by default
func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&flagResetCache, "reset-cache", false, "Forget cached accessories on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Info().Str("config", flagConfig).Msg("Starting stripd")

	// Create application
	application, err := app.New(cfg)
	if err != nil {
		return err
	}

	// Handle reset cache flag
	if flagResetCache {
		log.Info().Msg("Clearing cached accessories (--reset-cache)")
		if err := application.ClearCache(); err != nil {
			log.Warn().Err(err).Msg("Failed to clear accessory cache")
		}
	}

	// Start the application; the command context cancels on shutdown signal
	if err := application.Start(cmd.Context()); err != nil {
		application.Stop()
		return err
	}

	// Wait for shutdown
	application.Wait()

	// Graceful shutdown
	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
	return nil
}
